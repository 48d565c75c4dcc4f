package executive

import "testing"

func TestSelectValidatorSetTopKByReputationTieBreakNodeID(t *testing.T) {
	candidates := []NodeStatus{
		{NodeID: "b", ReputationTotal: 50, UptimeRatio: 0.99},
		{NodeID: "a", ReputationTotal: 50, UptimeRatio: 0.99},
		{NodeID: "c", ReputationTotal: 80, UptimeRatio: 0.99},
		{NodeID: "d", ReputationTotal: 10, UptimeRatio: 0.5}, // below min uptime
	}
	set := SelectValidatorSet(candidates, 2, 0.9)
	if len(set) != 2 || set[0] != "c" || set[1] != "a" {
		t.Fatalf("expected [c a], got %v", set)
	}
}

func TestRatificationQuorum(t *testing.T) {
	if RatificationQuorum(7) != 4 {
		t.Fatalf("expected quorum 4 for set size 7, got %d", RatificationQuorum(7))
	}
	if RatificationQuorum(1) != 1 {
		t.Fatalf("expected quorum 1 for set size 1, got %d", RatificationQuorum(1))
	}
}

func TestIsRatified(t *testing.T) {
	ratifications := map[string]bool{"v1": true, "v2": true}
	if IsRatified(ratifications, 7) {
		t.Fatalf("2 of 7 should not meet quorum of 4")
	}
	ratifications["v3"] = true
	ratifications["v4"] = true
	if !IsRatified(ratifications, 7) {
		t.Fatalf("4 of 7 should meet quorum")
	}
}
