package store

import (
	"testing"
	"time"
)

func TestApplyLocalTaskLWW(t *testing.T) {
	s := New(nil)
	base := time.Now().UTC()

	older := &Task{ID: "t1", Channel: "general", Status: TaskOpen, UpdatedAt: base, UpdatedBy: "a"}
	if err := s.ApplyLocal(Delta{Channel: "general", Tasks: []*Task{older}}); err != nil {
		t.Fatalf("apply older: %v", err)
	}

	newer := &Task{ID: "t1", Channel: "general", Status: TaskClaimed, UpdatedAt: base.Add(time.Second), UpdatedBy: "b"}
	if err := s.ApplyRemote(Delta{Channel: "general", Tasks: []*Task{newer}}); err != nil {
		t.Fatalf("apply newer: %v", err)
	}

	ch, ok := s.Channel("general")
	if !ok {
		t.Fatalf("expected channel to exist")
	}
	got := ch.Tasks["t1"]
	if got.Status != TaskClaimed {
		t.Fatalf("expected newer write to win, got status %q", got.Status)
	}
}

func TestApplyLocalRejectsInvalidTask(t *testing.T) {
	s := New(nil)
	bad := &Task{ID: "t1", Reward: -5, Status: TaskOpen}
	if err := s.ApplyLocal(Delta{Channel: "general", Tasks: []*Task{bad}}); err == nil {
		t.Fatalf("expected negative reward task to be rejected")
	}
}

func TestGrowOnlySetTombstonePersists(t *testing.T) {
	s := New(nil)
	if err := s.ApplyLocal(Delta{Channel: "general", Participants: map[string]bool{"node-a": true}}); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := s.ApplyRemote(Delta{Channel: "general", Participants: map[string]bool{"node-a": false}}); err != nil {
		t.Fatalf("tombstone participant: %v", err)
	}
	// a stale remote re-asserting membership must not revive the tombstone
	if err := s.ApplyRemote(Delta{Channel: "general", Participants: map[string]bool{"node-a": true}}); err != nil {
		t.Fatalf("stale re-add: %v", err)
	}
	ch, _ := s.Channel("general")
	if ch.Participants["node-a"] {
		t.Fatalf("expected node-a to remain tombstoned")
	}
}

func TestExecutionLogDedupAndOrder(t *testing.T) {
	s := New(nil)
	e1 := ExecutionLogEntry{Sequence: 2, Command: Command{Name: "noop"}}
	e2 := ExecutionLogEntry{Sequence: 1, Command: Command{Name: "noop"}}
	if err := s.ApplyLocal(Delta{ExecutionLog: []ExecutionLogEntry{e1}}); err != nil {
		t.Fatalf("apply e1: %v", err)
	}
	if err := s.ApplyRemote(Delta{ExecutionLog: []ExecutionLogEntry{e2, e1}}); err != nil {
		t.Fatalf("apply e2+dup e1: %v", err)
	}
	log := s.ExecutionLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 entries after dedup, got %d", len(log))
	}
	if log[0].Sequence != 1 || log[1].Sequence != 2 {
		t.Fatalf("expected entries in sequence order, got %+v", log)
	}
	if s.NextSequence() != 3 {
		t.Fatalf("expected next sequence 3, got %d", s.NextSequence())
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New(nil)
	task := &Task{ID: "t1", Channel: "general", Status: TaskOpen, UpdatedAt: time.Now().UTC(), UpdatedBy: "a"}
	if err := s.ApplyLocal(Delta{Channel: "general", Tasks: []*Task{task}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.TakeSnapshot()

	fresh := New(nil)
	fresh.Restore(snap)
	ch, ok := fresh.Channel("general")
	if !ok || ch.Tasks["t1"] == nil || ch.Tasks["t1"].Status != TaskOpen {
		t.Fatalf("expected restored store to contain task t1")
	}
}

func TestDigestDiffDetectsChange(t *testing.T) {
	a := New(nil)
	b := New(nil)
	task := &Task{ID: "t1", Channel: "general", Status: TaskOpen, UpdatedAt: time.Now().UTC(), UpdatedBy: "a"}
	if err := a.ApplyLocal(Delta{Channel: "general", Tasks: []*Task{task}}); err != nil {
		t.Fatalf("apply a: %v", err)
	}
	diff := b.Diff(a.ChannelDigest("general"))
	if len(diff) != 1 || diff[0] != "task:t1" {
		t.Fatalf("expected b to want task:t1, got %v", diff)
	}
	if err := b.ApplyLocal(Delta{Channel: "general", Tasks: []*Task{task}}); err != nil {
		t.Fatalf("apply b: %v", err)
	}
	if diff := b.Diff(a.ChannelDigest("general")); len(diff) != 0 {
		t.Fatalf("expected no diff once synced, got %v", diff)
	}
}

func TestAnonymousVoteNullifierDedup(t *testing.T) {
	s := New(nil)
	p := &Proposal{
		ID:           "p1",
		ProposalType: ProposalGeneric,
		Status:       ProposalOpen,
		AnonymousVotes: []AnonymousVote{
			{Vote: VoteYes, Nullifier: "n1", Timestamp: time.Now().UTC()},
		},
	}
	if err := s.ApplyLocal(Delta{Channel: "general", Proposals: []*Proposal{p}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	dup := &Proposal{
		ID:           "p1",
		ProposalType: ProposalGeneric,
		Status:       ProposalOpen,
		AnonymousVotes: []AnonymousVote{
			{Vote: VoteNo, Nullifier: "n1", Timestamp: time.Now().UTC().Add(time.Second)},
		},
	}
	if err := s.ApplyRemote(Delta{Channel: "general", Proposals: []*Proposal{dup}}); err != nil {
		t.Fatalf("apply dup: %v", err)
	}
	ch, _ := s.Channel("general")
	got := ch.Proposals["p1"]
	if len(got.AnonymousVotes) != 1 {
		t.Fatalf("expected exactly one anonymous vote after dedup, got %d", len(got.AnonymousVotes))
	}
	if got.AnonymousVotes[0].Vote != VoteYes {
		t.Fatalf("expected first-writer-wins to keep the original ballot")
	}
}
