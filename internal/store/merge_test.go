package store

import (
	"testing"
	"time"
)

func TestMergeTaskClaimCollisionEarliestWins(t *testing.T) {
	base := time.Now().UTC()
	open := &Task{ID: "t1", Channel: "general", Status: TaskOpen, UpdatedAt: base, UpdatedBy: "creator"}

	// two nodes independently claim the same open task; b claims later
	// but must lose since a's updated_at is earlier (spec §3).
	claimA := &Task{ID: "t1", Channel: "general", Status: TaskClaimed, Assignee: "node-a", UpdatedAt: base.Add(time.Second), UpdatedBy: "node-a"}
	claimB := &Task{ID: "t1", Channel: "general", Status: TaskClaimed, Assignee: "node-b", UpdatedAt: base.Add(2 * time.Second), UpdatedBy: "node-b"}

	merged := mergeTask(mergeTask(open, claimA), claimB)
	if merged.Assignee != "node-a" {
		t.Fatalf("expected earliest claimant node-a to win, got %q", merged.Assignee)
	}

	// order independence: b merged first, then a, must still pick a.
	reordered := mergeTask(mergeTask(open, claimB), claimA)
	if reordered.Assignee != "node-a" {
		t.Fatalf("expected earliest claimant node-a to win regardless of merge order, got %q", reordered.Assignee)
	}
}

func TestMergeTaskClaimCollisionTiesBreakBySmallestNodeID(t *testing.T) {
	same := time.Now().UTC()
	claimZeta := &Task{ID: "t1", Status: TaskClaimed, Assignee: "zeta", UpdatedAt: same, UpdatedBy: "zeta"}
	claimAlpha := &Task{ID: "t1", Status: TaskClaimed, Assignee: "alpha", UpdatedAt: same, UpdatedBy: "alpha"}

	merged := mergeTask(claimZeta, claimAlpha)
	if merged.Assignee != "alpha" {
		t.Fatalf("expected lexicographically smallest node id alpha to win a tie, got %q", merged.Assignee)
	}
}

func TestMergeTaskNonCollisionStillUsesGenericLWW(t *testing.T) {
	base := time.Now().UTC()
	older := &Task{ID: "t1", Status: TaskInProgress, Assignee: "node-a", Description: "old", UpdatedAt: base, UpdatedBy: "node-a"}
	newer := &Task{ID: "t1", Status: TaskInProgress, Assignee: "node-a", Description: "new", UpdatedAt: base.Add(time.Second), UpdatedBy: "node-a"}

	merged := mergeTask(older, newer)
	if merged.Description != "new" {
		t.Fatalf("expected generic LWW (latest write wins) for non-collision updates, got %q", merged.Description)
	}
}
