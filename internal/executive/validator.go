// Package executive implements the validator set, ratification
// quorum, and the deterministic command dispatcher of SPEC_FULL.md
// §4.6: the execution log is the system's single totally-ordered
// surface, and every node must compute the same validator set and the
// same dispatch results from the same inputs.
package executive

import (
	"sort"
)

// NodeStatus is the liveness/reputation input the validator selection
// formula needs per candidate (spec §4.6).
type NodeStatus struct {
	NodeID          string
	ReputationTotal int64
	UptimeRatio     float64
}

// SelectValidatorSet picks the top-K nodes by reputation total among
// those meeting minUptime, breaking ties by node_id so every node
// computes an identical ordered set (spec §4.6 "Selection is
// deterministic").
func SelectValidatorSet(candidates []NodeStatus, k int, minUptime float64) []string {
	eligible := make([]NodeStatus, 0, len(candidates))
	for _, c := range candidates {
		if c.UptimeRatio >= minUptime {
			eligible = append(eligible, c)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].ReputationTotal != eligible[j].ReputationTotal {
			return eligible[i].ReputationTotal > eligible[j].ReputationTotal
		}
		return eligible[i].NodeID < eligible[j].NodeID
	})
	if k > len(eligible) {
		k = len(eligible)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = eligible[i].NodeID
	}
	return out
}

// RatificationQuorum is floor(|validator_set| / 2) + 1 (spec §4.6).
func RatificationQuorum(validatorSetSize int) int {
	return validatorSetSize/2 + 1
}

// IsRatified reports whether the number of distinct ratifying
// validators meets quorum for the current validator set size.
func IsRatified(ratifications map[string]bool, validatorSetSize int) bool {
	count := 0
	for _, ok := range ratifications {
		if ok {
			count++
		}
	}
	return count >= RatificationQuorum(validatorSetSize)
}
