package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// LivenessState mirrors spec §3 "Peer record" liveness states.
type LivenessState string

const (
	Discovered LivenessState = "discovered"
	Connecting LivenessState = "connecting"
	Connected  LivenessState = "connected"
	Dead       LivenessState = "dead"
)

// Session tracks one peer's liveness and heartbeat bookkeeping.
type Session struct {
	PeerID        peer.ID
	Addrs         []string
	State         LivenessState
	LastSeen      time.Time
	MissedBeats   int
	ReputationHint int64 // best-known reputation, supplied by the caller for eviction scoring
}

// PeerManager tracks the set of known peers and enforces the
// max-concurrent-session bound by evicting the least-recently-active
// peer whose reputation is at or below the median when saturated
// (spec §4.1).
type PeerManager struct {
	mu             sync.Mutex
	sessions       map[peer.ID]*Session
	maxSessions    int
	maxMissedBeats int
}

// NewPeerManager constructs a PeerManager bounded by maxSessions.
func NewPeerManager(maxSessions, maxMissedBeats int) *PeerManager {
	return &PeerManager{
		sessions:       map[peer.ID]*Session{},
		maxSessions:    maxSessions,
		maxMissedBeats: maxMissedBeats,
	}
}

// Observe records a newly discovered or re-seen peer, creating a
// `discovered` session if one does not already exist.
func (pm *PeerManager) Observe(pi peer.AddrInfo) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	addrs := make([]string, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		addrs = append(addrs, a.String())
	}
	if s, ok := pm.sessions[pi.ID]; ok {
		s.Addrs = addrs
		s.LastSeen = time.Now().UTC()
		return
	}
	pm.sessions[pi.ID] = &Session{
		PeerID:   pi.ID,
		Addrs:    addrs,
		State:    Discovered,
		LastSeen: time.Now().UTC(),
	}
}

// Admit transitions a peer toward `connected`, evicting the weakest
// existing session first if the manager is at capacity (spec §4.1:
// "new candidates replace the least-recently-active peer whose
// reputation is below median").
func (pm *PeerManager) Admit(id peer.ID, reputation int64) (evicted peer.ID, didEvict bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if s, ok := pm.sessions[id]; ok {
		s.State = Connected
		s.LastSeen = time.Now().UTC()
		s.ReputationHint = reputation
		return "", false
	}

	if pm.connectedCountLocked() >= pm.maxSessions {
		if victim, ok := pm.pickEvictionVictimLocked(); ok {
			delete(pm.sessions, victim)
			evicted, didEvict = victim, true
		}
	}
	pm.sessions[id] = &Session{PeerID: id, State: Connected, LastSeen: time.Now().UTC(), ReputationHint: reputation}
	return evicted, didEvict
}

func (pm *PeerManager) connectedCountLocked() int {
	n := 0
	for _, s := range pm.sessions {
		if s.State == Connected {
			n++
		}
	}
	return n
}

// pickEvictionVictimLocked returns the least-recently-active connected
// peer among those whose reputation is at or below the median.
func (pm *PeerManager) pickEvictionVictimLocked() (peer.ID, bool) {
	var reps []int64
	var connected []*Session
	for _, s := range pm.sessions {
		if s.State != Connected {
			continue
		}
		reps = append(reps, s.ReputationHint)
		connected = append(connected, s)
	}
	if len(connected) == 0 {
		return "", false
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i] < reps[j] })
	median := reps[len(reps)/2]

	var victim *Session
	for _, s := range connected {
		if s.ReputationHint > median {
			continue
		}
		if victim == nil || s.LastSeen.Before(victim.LastSeen) {
			victim = s
		}
	}
	if victim == nil {
		return "", false
	}
	return victim.PeerID, true
}

// Heartbeat records a liveness beat for id, resetting its missed-beat
// counter; RecordMissedBeat increments it and marks the peer dead once
// max_missed_heartbeats is exceeded (spec §4.1/§4.8).
func (pm *PeerManager) Heartbeat(id peer.ID) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if s, ok := pm.sessions[id]; ok {
		s.MissedBeats = 0
		s.LastSeen = time.Now().UTC()
	}
}

func (pm *PeerManager) RecordMissedBeat(id peer.ID) (dead bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	s, ok := pm.sessions[id]
	if !ok {
		return false
	}
	s.MissedBeats++
	if s.MissedBeats > pm.maxMissedBeats {
		s.State = Dead
		return true
	}
	return false
}

// Sweep removes every session in the Dead state that has been
// inactive for longer than deadAfter (spec §3 "removed after a
// configured inactivity timeout").
func (pm *PeerManager) Sweep(deadAfter time.Duration, now time.Time) []peer.ID {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var removed []peer.ID
	for id, s := range pm.sessions {
		if s.State == Dead && now.Sub(s.LastSeen) >= deadAfter {
			delete(pm.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Snapshot returns a copy of all known sessions.
func (pm *PeerManager) Snapshot() map[peer.ID]Session {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make(map[peer.ID]Session, len(pm.sessions))
	for id, s := range pm.sessions {
		out[id] = *s
	}
	return out
}
