// Package economy implements the balance and reputation derivations,
// the auction scoring formula, decay, and maintenance flows of
// SPEC_FULL.md §4.7. Balances and reputation totals are never
// pointwise-merged state: every node recomputes them deterministically
// from the same event history, so this package is built entirely as
// pure functions over an ordered event slice plus a handful of
// stateless helpers — there is no mutable economy struct to merge.
package economy

import (
	"math"
	"sort"
	"time"

	"synapse-ng/internal/config"
)

// EventKind enumerates the deterministic event types that the balance
// and reputation derivations fold over (spec §4.7).
type EventKind string

const (
	EventTaskCreated     EventKind = "task_created"
	EventTaskCompleted   EventKind = "task_completed"
	EventAuctionSettled  EventKind = "auction_settled"
	EventTreasuryPayout  EventKind = "treasury_payout"
	EventToolMaintenance EventKind = "tool_maintenance"
	EventCommandExecuted EventKind = "command_executed"
	EventVoteCast        EventKind = "vote_cast"
)

// Event is one entry in the deterministic event history that balances
// and reputations are derived from. Fields are interpreted per Kind;
// unused fields for a given Kind are left zero.
type Event struct {
	Kind      EventKind
	Node      string  // the node whose balance/reputation this event affects
	Channel   string
	Amount    int64   // SP delta magnitude (always non-negative; sign is implied by Kind)
	Tags      []string
	Timestamp time.Time
}

// Balances maps node_id to its derived SP balance.
type Balances map[string]int64

// TreasuryBalances maps channel name to its derived treasury balance.
type TreasuryBalances map[string]int64

// DeriveBalances computes every node's SP balance and every channel's
// treasury balance from history, per spec §4.7: "balance(node) =
// INITIAL_BALANCE + sum(inflows) - sum(outflows)". It is a pure
// function: calling it twice on the same history yields identical
// results on every node.
func DeriveBalances(history []Event, initialBalance int64, knownNodes []string) (Balances, TreasuryBalances) {
	balances := make(Balances, len(knownNodes))
	for _, n := range knownNodes {
		balances[n] = initialBalance
	}
	treasury := TreasuryBalances{}

	ensure := func(node string) {
		if _, ok := balances[node]; !ok {
			balances[node] = initialBalance
		}
	}

	for _, e := range history {
		switch e.Kind {
		case EventTaskCreated:
			ensure(e.Node)
			balances[e.Node] -= e.Amount
		case EventTaskCompleted:
			ensure(e.Node)
			balances[e.Node] += e.Amount
		case EventAuctionSettled:
			ensure(e.Node)
			balances[e.Node] -= e.Amount
		case EventTreasuryPayout:
			treasury[e.Channel] += e.Amount
		case EventToolMaintenance:
			treasury[e.Channel] -= e.Amount
		case EventCommandExecuted:
			ensure(e.Node)
			balances[e.Node] += e.Amount // a payout credited to Node
		}
	}
	return balances, treasury
}

// Reputation is the derived, per-node reputation value (spec §3
// "Reputation record", before decay is applied).
type Reputation struct {
	Total       int64
	Tags        map[string]int64
	LastUpdated time.Time
}

// DeriveReputations folds task-completion and vote-cast events into
// per-node reputation totals (spec §4.7). Decay is applied separately
// by DecayReputation since it is time-driven, not event-driven.
func DeriveReputations(history []Event, taskCompletionReward, voteReward int64) map[string]*Reputation {
	out := map[string]*Reputation{}
	get := func(node string) *Reputation {
		r, ok := out[node]
		if !ok {
			r = &Reputation{Tags: map[string]int64{}}
			out[node] = r
		}
		return r
	}
	for _, e := range history {
		switch e.Kind {
		case EventTaskCompleted:
			r := get(e.Node)
			for _, t := range e.Tags {
				r.Tags[t] += taskCompletionReward
			}
			r.Total += taskCompletionReward
			if e.Timestamp.After(r.LastUpdated) {
				r.LastUpdated = e.Timestamp
			}
		case EventVoteCast:
			r := get(e.Node)
			r.Total += voteReward
			if e.Timestamp.After(r.LastUpdated) {
				r.LastUpdated = e.Timestamp
			}
		}
	}
	return out
}

// CanCreateTask enforces the task-creation solvency invariant (spec
// §4.7 "Task creation constraint").
func CanCreateTask(balance Balances, creator string, reward, initialBalance int64) bool {
	bal, ok := balance[creator]
	if !ok {
		bal = initialBalance
	}
	return bal >= reward
}

// CompletionPayout computes the assignee's net payout and the
// treasury's tax cut for a completed task of the given reward, floor-
// rounding to integer SP and depositing the rounding residue in the
// treasury to preserve conservation (spec §4.7 "Task completion
// payout").
func CompletionPayout(reward int64, taxRate float64) (payout, treasuryCut int64) {
	payout = int64(math.Floor(float64(reward) * (1 - taxRate)))
	treasuryCut = reward - payout
	return payout, treasuryCut
}

// Bid mirrors store.Bid's scoring-relevant fields without importing
// store, so this package stays a leaf the store package does not need
// to depend on.
type Bid struct {
	BidderID           string
	Amount             int64
	EstimatedDays      int
	ReputationSnapshot int64
	Timestamp          time.Time
}

// ScoreBid implements the auction scoring formula of spec §4.7:
// score = W_cost*(1 - amount/max_reward) + W_rep*norm(reputation) +
// W_time*(1 - estimated_days/max_days).
func ScoreBid(b Bid, maxReward int64, maxDays int, maxReputationInRing int64, weights config.AuctionWeights) float64 {
	costTerm := 0.0
	if maxReward > 0 {
		costTerm = 1 - float64(b.Amount)/float64(maxReward)
	}
	repTerm := 0.0
	if maxReputationInRing > 0 {
		repTerm = float64(b.ReputationSnapshot) / float64(maxReputationInRing)
	}
	timeTerm := 0.0
	if maxDays > 0 {
		timeTerm = 1 - float64(b.EstimatedDays)/float64(maxDays)
	}
	return weights.Cost*costTerm + weights.Reputation*repTerm + weights.Time*timeTerm
}

// WinningBid selects the bid with the highest score, breaking ties by
// earliest timestamp then lexicographically smallest bidder id (spec
// §4.7). bids must be non-empty.
func WinningBid(bids []Bid, maxReward int64, maxDays int, weights config.AuctionWeights) Bid {
	var maxRep int64
	for _, b := range bids {
		if b.ReputationSnapshot > maxRep {
			maxRep = b.ReputationSnapshot
		}
	}
	sorted := append([]Bid{}, bids...)
	sort.Slice(sorted, func(i, j int) bool {
		si := ScoreBid(sorted[i], maxReward, maxDays, maxRep, weights)
		sj := ScoreBid(sorted[j], maxReward, maxDays, maxRep, weights)
		if si != sj {
			return si > sj
		}
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].BidderID < sorted[j].BidderID
	})
	return sorted[0]
}

// DecayReputation applies the daily decay formula of spec §4.7,
// using wall-clock days elapsed since lastUpdated so that a node
// catching up after downtime converges to the same value a
// continuously-running node would reach.
func DecayReputation(r Reputation, decayRate float64, now time.Time) Reputation {
	days := int(now.Sub(r.LastUpdated).Hours() / 24)
	if days <= 0 {
		return r
	}
	factor := math.Pow(1-decayRate, float64(days))
	out := Reputation{Tags: map[string]int64{}, LastUpdated: now}
	out.Total = int64(math.Floor(float64(r.Total) * factor))
	for tag, v := range r.Tags {
		out.Tags[tag] = int64(math.Floor(float64(v) * factor))
	}
	return out
}

// ToolMaintenanceDue reports whether a common tool's monthly debit is
// due, given its last payment time and the configured cadence.
func ToolMaintenanceDue(lastPaymentAt time.Time, cadence time.Duration, now time.Time) bool {
	return now.Sub(lastPaymentAt) >= cadence
}

// ToolMaintenanceOutcome is the result of attempting a monthly debit
// against a channel treasury (spec §4.7 "Monthly maintenance loop").
type ToolMaintenanceOutcome struct {
	Debited    bool
	Deprecated bool
}

// ApplyToolMaintenance computes whether a debit succeeds or, if the
// treasury would go negative, the tool deprecates instead.
func ApplyToolMaintenance(treasuryBalance, monthlyCost int64) ToolMaintenanceOutcome {
	if treasuryBalance-monthlyCost < 0 {
		return ToolMaintenanceOutcome{Deprecated: true}
	}
	return ToolMaintenanceOutcome{Debited: true}
}

// CanExecuteTool enforces the tool-execution authorization rule (spec
// §4.7 "Tool execution authorization"): the caller must be the
// assignee of a task in the tool's channel requiring this tool, and
// the tool must be active.
func CanExecuteTool(callerIsAssignee bool, taskRequiresTool bool, toolActive bool) bool {
	return callerIsAssignee && taskRequiresTool && toolActive
}
