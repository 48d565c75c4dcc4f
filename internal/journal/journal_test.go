package journal

import (
	"testing"
	"time"

	"synapse-ng/internal/store"
	"synapse-ng/internal/testutil"
)

func TestAppendAndReadLogSince(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	for seq := uint64(1); seq <= 3; seq++ {
		e := store.ExecutionLogEntry{Sequence: seq, Command: store.Command{Name: "noop"}, AppendedAt: time.Now().UTC()}
		if err := j.AppendEntry(e); err != nil {
			t.Fatalf("AppendEntry %d: %v", seq, err)
		}
	}

	entries, err := j.ReadLogSince(1)
	if err != nil {
		t.Fatalf("ReadLogSince: %v", err)
	}
	if len(entries) != 2 || entries[0].Sequence != 2 || entries[1].Sequence != 3 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestSaveLoadSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	s := store.New(nil)
	task := &store.Task{ID: "t1", Channel: "general", Status: store.TaskOpen, UpdatedAt: time.Now().UTC(), UpdatedBy: "a"}
	if err := s.ApplyLocal(store.Delta{Channel: "general", Tasks: []*store.Task{task}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.TakeSnapshot()
	if err := j.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, ok, err := j.LoadSnapshot()
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if loaded.Channels["general"].Tasks["t1"].Status != store.TaskOpen {
		t.Fatalf("loaded snapshot missing expected task")
	}
}

func TestRecoverReplaysLogAfterSnapshot(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	j, err := Open(sb.Root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	base := store.New(nil)
	if err := base.ApplyLocal(store.Delta{ExecutionLog: []store.ExecutionLogEntry{{Sequence: 1, Command: store.Command{Name: "noop"}}}}); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	if err := j.SaveSnapshot(base.TakeSnapshot()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := j.AppendEntry(store.ExecutionLogEntry{Sequence: 2, Command: store.Command{Name: "noop"}}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	fresh := store.New(nil)
	if err := Recover(j, fresh); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	log := fresh.ExecutionLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 log entries after recovery, got %d", len(log))
	}
}
