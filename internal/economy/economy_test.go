package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"synapse-ng/internal/config"
)

func TestTaskLifecyclePayoutMatchesWorkedExample(t *testing.T) {
	// spec worked example: tax=0.02, reward=10, N1 creates, N2 completes.
	history := []Event{
		{Kind: EventTaskCreated, Node: "n1", Amount: 10},
		{Kind: EventTaskCompleted, Node: "n2", Amount: 9, Tags: []string{"dev"}},
		{Kind: EventTreasuryPayout, Channel: "dev", Amount: 1},
	}
	balances, treasury := DeriveBalances(history, 1000, []string{"n1", "n2"})
	require.Equal(t, int64(990), balances["n1"])
	require.Equal(t, int64(1009), balances["n2"])
	require.Equal(t, int64(1), treasury["dev"])

	rep := DeriveReputations(history, 10, 1)
	require.Equal(t, int64(10), rep["n2"].Total)
	require.Equal(t, int64(10), rep["n2"].Tags["dev"])
}

func TestCompletionPayoutFloorsWithResidueToTreasury(t *testing.T) {
	payout, treasuryCut := CompletionPayout(10, 0.02)
	require.Equal(t, int64(9), payout)
	require.Equal(t, int64(1), treasuryCut)
	require.Equal(t, int64(10), payout+treasuryCut, "conservation must hold")
}

func TestCanCreateTaskSolvency(t *testing.T) {
	balances := Balances{"n1": 5}
	require.False(t, CanCreateTask(balances, "n1", 10, 1000), "insufficient balance must reject task creation")
	require.True(t, CanCreateTask(balances, "n1", 5, 1000), "exact balance must be admissible")
}

func TestWinningBidHighestScoreWins(t *testing.T) {
	weights := config.AuctionWeights{Cost: 0.4, Reputation: 0.4, Time: 0.2}
	bids := []Bid{
		{BidderID: "b1", Amount: 80, EstimatedDays: 10, ReputationSnapshot: 50, Timestamp: time.Unix(100, 0)},
		{BidderID: "b2", Amount: 50, EstimatedDays: 5, ReputationSnapshot: 50, Timestamp: time.Unix(200, 0)},
	}
	winner := WinningBid(bids, 100, 10, weights)
	require.Equal(t, "b2", winner.BidderID, "lower cost, shorter time should win")
}

func TestWinningBidTieBreaksByTimestampThenBidderID(t *testing.T) {
	weights := config.AuctionWeights{Cost: 0.4, Reputation: 0.4, Time: 0.2}
	same := time.Unix(100, 0)
	bids := []Bid{
		{BidderID: "zeta", Amount: 50, EstimatedDays: 5, ReputationSnapshot: 10, Timestamp: same},
		{BidderID: "alpha", Amount: 50, EstimatedDays: 5, ReputationSnapshot: 10, Timestamp: same},
	}
	winner := WinningBid(bids, 100, 10, weights)
	require.Equal(t, "alpha", winner.BidderID, "lexicographic tiebreak should pick alpha")
}

func TestDecayReputationUsesWallClockDays(t *testing.T) {
	last := time.Now().UTC().Add(-3 * 24 * time.Hour)
	r := Reputation{Total: 100, Tags: map[string]int64{"dev": 50}, LastUpdated: last}
	out := DecayReputation(r, 0.1, time.Now().UTC())
	// floor(100 * 0.9^3) = floor(72.9) = 72
	require.Equal(t, int64(72), out.Total)
	require.Equal(t, int64(36), out.Tags["dev"])
}

func TestDecayReputationNoOpWithinSameDay(t *testing.T) {
	r := Reputation{Total: 100, LastUpdated: time.Now().UTC()}
	out := DecayReputation(r, 0.1, time.Now().UTC())
	require.Equal(t, int64(100), out.Total, "no decay within the same day")
}

func TestApplyToolMaintenanceDeprecatesOnNegativeTreasury(t *testing.T) {
	out := ApplyToolMaintenance(5, 10)
	require.True(t, out.Deprecated)
	require.False(t, out.Debited)

	out2 := ApplyToolMaintenance(20, 10)
	require.True(t, out2.Debited)
	require.False(t, out2.Deprecated)
}

func TestCanExecuteToolRequiresAllThree(t *testing.T) {
	require.False(t, CanExecuteTool(false, true, true), "non-assignee must not execute tool")
	require.False(t, CanExecuteTool(true, false, true), "task not requiring tool must not authorize execution")
	require.False(t, CanExecuteTool(true, true, false), "inactive tool must not authorize execution")
	require.True(t, CanExecuteTool(true, true, true), "all three conditions hold")
}
