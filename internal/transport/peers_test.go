package transport

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

func TestAdmitEvictsWeakestBelowMedianWhenSaturated(t *testing.T) {
	pm := NewPeerManager(2, 3)
	idA := peer.ID("peer-a")
	idB := peer.ID("peer-b")
	idC := peer.ID("peer-c")

	pm.Admit(idA, 10)
	time.Sleep(time.Millisecond)
	pm.Admit(idB, 100)

	evicted, did := pm.Admit(idC, 50)
	if !did {
		t.Fatalf("expected an eviction when saturated")
	}
	if evicted != idA {
		t.Fatalf("expected the lower-reputation, older peer-a to be evicted, got %s", evicted)
	}
}

func TestRecordMissedBeatMarksDeadAfterThreshold(t *testing.T) {
	pm := NewPeerManager(10, 2)
	id := peer.ID("peer-a")
	pm.Admit(id, 10)

	if pm.RecordMissedBeat(id) {
		t.Fatalf("should not be dead after 1 missed beat")
	}
	if pm.RecordMissedBeat(id) {
		t.Fatalf("should not be dead after 2 missed beats")
	}
	if !pm.RecordMissedBeat(id) {
		t.Fatalf("should be dead after exceeding max missed beats")
	}
}

func TestHeartbeatResetsMissedBeats(t *testing.T) {
	pm := NewPeerManager(10, 2)
	id := peer.ID("peer-a")
	pm.Admit(id, 10)
	pm.RecordMissedBeat(id)
	pm.Heartbeat(id)
	if pm.RecordMissedBeat(id) {
		t.Fatalf("should not be dead: missed-beat counter should have reset")
	}
}

func TestSweepRemovesDeadPeersPastTimeout(t *testing.T) {
	pm := NewPeerManager(10, 0)
	id := peer.ID("peer-a")
	pm.Admit(id, 10)
	pm.RecordMissedBeat(id) // exceeds max of 0, marks dead immediately

	removed := pm.Sweep(time.Millisecond, time.Now().UTC().Add(time.Hour))
	if len(removed) != 1 || removed[0] != id {
		t.Fatalf("expected peer-a to be swept, got %v", removed)
	}
}
