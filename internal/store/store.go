package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the per-node replica of the merged network state: one
// Global registry plus a set of Channels, each independently
// mergeable (spec §3, §4.3). Replicated writes, local or remote, go
// through ApplyLocal or ApplyRemote and so pass the same validation and
// merge rule; the executive-only methods in admin.go, Restore and
// DeletePendingOperation mutate the state directly.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	global   *Global
	log      *logrus.Entry

	economyEnabled        bool
	economyInitialBalance int64
	economyTaxRate        float64
}

// New returns an empty Store with the well-known "global" channel
// registry initialized.
func New(log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		channels: map[string]*Channel{},
		global:   newGlobal(),
		log:      log.WithField("component", "store"),
	}
}

func (s *Store) channelLocked(name string) *Channel {
	ch, ok := s.channels[name]
	if !ok {
		ch = newChannel(name)
		s.channels[name] = ch
	}
	return ch
}

// Channel returns a deep-enough snapshot copy of a channel's top-level
// maps for read-only use by callers outside the store; mutating the
// returned value does not affect the Store.
func (s *Store) Channel(name string) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// ChannelNames lists every non-archived channel.
func (s *Store) ChannelNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for name, ch := range s.channels {
		if !ch.Archived {
			out = append(out, name)
		}
	}
	return out
}

// Delta is a bundle of changed records attributed to one channel
// (spec §4.3: gossiped deltas carry one or more changed records).
// Every field is optional; only non-nil/non-empty fields are merged.
type Delta struct {
	Channel         string
	Participants    map[string]bool
	Tasks           []*Task
	Proposals       []*Proposal
	CompositeTasks  []*CompositeTask
	CommonTools     []*CommonTool
	Skills          map[string]*SkillsProfile
	Nodes           []*NodeRecord
	ValidatorSet    []string
	PendingOps      []*PendingOperation
	ExecutionLog    []ExecutionLogEntry
}

// ApplyLocal validates and merges a delta produced by this node's own
// operations. ApplyRemote is its twin for deltas arriving over the
// network; both call the same validate-then-merge path so a node
// cannot special-case trusting its own writes over a peer's.
func (s *Store) ApplyLocal(d Delta) error {
	return s.apply(d)
}

// ApplyRemote validates and merges a delta received from a peer.
func (s *Store) ApplyRemote(d Delta) error {
	return s.apply(d)
}

func (s *Store) apply(d Delta) error {
	if err := validateDelta(d); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Channel != "" {
		ch := s.channelLocked(d.Channel)
		for k, v := range d.Participants {
			if existing, ok := ch.Participants[k]; ok {
				ch.Participants[k] = existing && v
			} else {
				ch.Participants[k] = v
			}
		}
		for _, t := range d.Tasks {
			if ch.Tasks[t.ID] == nil {
				if err := s.checkTaskSolvencyLocked(t); err != nil {
					return err
				}
			}
			ch.Tasks[t.ID] = mergeTask(ch.Tasks[t.ID], t)
		}
		for _, p := range d.Proposals {
			ch.Proposals[p.ID] = mergeProposal(ch.Proposals[p.ID], p)
		}
		for _, c := range d.CompositeTasks {
			merged := mergeCompositeTask(ch.CompositeTasks[c.ID], c)
			ch.CompositeTasks[c.ID] = merged
			if allSubTasksCompleted(merged) && !merged.RewardsDistributed {
				merged.RewardsDistributed = true
				merged.Status = TaskCompleted
				s.recordCompositeTaskDistributionLocked(ch.Name, merged)
			}
		}
		for _, c := range d.CommonTools {
			ch.CommonTools[c.ToolID] = mergeCommonTool(ch.CommonTools[c.ToolID], c)
		}
		for node, p := range d.Skills {
			ch.Skills[node] = mergeSkillsProfile(ch.Skills[node], p)
		}
	}

	for _, n := range d.Nodes {
		if existing, ok := s.global.Nodes[n.NodeID]; !ok || n.Peer.LastSeen.After(existing.Peer.LastSeen) {
			s.global.Nodes[n.NodeID] = n
		}
	}
	if len(d.ValidatorSet) > 0 {
		s.global.ValidatorSet = append([]string{}, d.ValidatorSet...)
	}
	for _, op := range d.PendingOps {
		existing, ok := s.global.PendingOperations[op.ProposalID]
		if !ok {
			s.global.PendingOperations[op.ProposalID] = op
			continue
		}
		merged := make(map[string]bool, len(existing.Ratifications)+len(op.Ratifications))
		for k, v := range existing.Ratifications {
			merged[k] = v
		}
		for k, v := range op.Ratifications {
			merged[k] = merged[k] || v
		}
		existing.Ratifications = merged
	}
	s.appendExecutionLogLocked(d.ExecutionLog)

	return nil
}

// appendExecutionLogLocked merges incoming log entries by sequence
// number, rejecting duplicates silently (the log is append-only and
// totally ordered; a replayed entry is a no-op, not an error).
func (s *Store) appendExecutionLogLocked(entries []ExecutionLogEntry) {
	if len(entries) == 0 {
		return
	}
	have := make(map[uint64]bool, len(s.global.ExecutionLog))
	for _, e := range s.global.ExecutionLog {
		have[e.Sequence] = true
	}
	for _, e := range entries {
		if have[e.Sequence] {
			continue
		}
		s.global.ExecutionLog = append(s.global.ExecutionLog, e)
		have[e.Sequence] = true
	}
	sortExecutionLog(s.global.ExecutionLog)
}

func sortExecutionLog(log []ExecutionLogEntry) {
	for i := 1; i < len(log); i++ {
		for j := i; j > 0 && log[j].Sequence < log[j-1].Sequence; j-- {
			log[j], log[j-1] = log[j-1], log[j]
		}
	}
}

func validateDelta(d Delta) error {
	for _, t := range d.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, p := range d.Proposals {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, c := range d.CompositeTasks {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, c := range d.CommonTools {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, p := range d.Skills {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NextSequence returns the next free execution-log sequence number,
// used by the executive dispatcher when appending a newly-ratified
// command (spec §4.6: sequence numbers are strictly monotonic).
func (s *Store) NextSequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSequenceLocked()
}

func (s *Store) nextSequenceLocked() uint64 {
	var max uint64
	for _, e := range s.global.ExecutionLog {
		if e.Sequence > max {
			max = e.Sequence
		}
	}
	if len(s.global.ExecutionLog) == 0 {
		return 1
	}
	return max + 1
}

// ExecutionLog returns a copy of the execution log in sequence order.
func (s *Store) ExecutionLog() []ExecutionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExecutionLogEntry, len(s.global.ExecutionLog))
	copy(out, s.global.ExecutionLog)
	return out
}

// ValidatorSet returns the current validator set.
func (s *Store) ValidatorSet() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.global.ValidatorSet...)
}

// PendingOperation returns the pending operation for a proposal id, if any.
func (s *Store) PendingOperation(proposalID string) (PendingOperation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.global.PendingOperations[proposalID]
	if !ok {
		return PendingOperation{}, false
	}
	return *op, true
}

// DeletePendingOperation removes a pending operation once dispatched.
func (s *Store) DeletePendingOperation(proposalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.global.PendingOperations, proposalID)
}

// Nodes returns a copy of the global node registry.
func (s *Store) Nodes() map[string]NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]NodeRecord, len(s.global.Nodes))
	for id, n := range s.global.Nodes {
		out[id] = *n
	}
	return out
}

// Snapshot is a point-in-time, JSON-serializable copy of the entire
// store, used both for the periodic persisted snapshot (spec §6) and
// for digest-based anti-entropy sync.
type Snapshot struct {
	TakenAt  time.Time           `json:"taken_at"`
	Channels map[string]Channel  `json:"channels"`
	Global   Global              `json:"global"`
}

// TakeSnapshot returns a deep-enough copy of the whole store.
func (s *Store) TakeSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chans := make(map[string]Channel, len(s.channels))
	for name, ch := range s.channels {
		chans[name] = *ch
	}
	return Snapshot{
		TakenAt:  time.Now().UTC(),
		Channels: chans,
		Global:   *s.global,
	}
}

// Restore replaces the store's contents with a previously-taken
// Snapshot, used when recovering from the persisted journal (spec §6).
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]*Channel, len(snap.Channels))
	for name, ch := range snap.Channels {
		c := ch
		s.channels[name] = &c
	}
	g := snap.Global
	s.global = &g
}
