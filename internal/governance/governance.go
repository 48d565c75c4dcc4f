// Package governance implements the proposal state machine and vote
// tallying of SPEC_FULL.md §4.5: public reputation-weighted votes,
// anonymous tiered votes, auto-close, and the approved-outcome split
// between immediate effect (generic, config_change) and the executive
// path (network_operation, code_upgrade, command).
package governance

import (
	"errors"
	"math"
	"time"

	"synapse-ng/internal/store"
)

// ErrProposalClosed is returned when a vote targets a non-open proposal.
var ErrProposalClosed = errors.New("proposal is not open")

// ErrReusedNullifier is returned when an anonymous vote's nullifier
// has already been recorded against this proposal.
var ErrReusedNullifier = errors.New("nullifier already used for this proposal")

// ReputationLookup resolves a voter's current reputation snapshot;
// satisfied by internal/economy's derived reputation map.
type ReputationLookup func(nodeID string) (total int64, tags map[string]int64)

// CastPublicVote appends a voter's LWW ballot, rejecting casts against
// a non-open proposal (spec §4.5 failure semantics).
func CastPublicVote(p *store.Proposal, voter string, choice store.VoteChoice, now time.Time) error {
	if p.Status != store.ProposalOpen {
		return ErrProposalClosed
	}
	if p.Votes == nil {
		p.Votes = map[string]store.PublicVote{}
	}
	p.Votes[voter] = store.PublicVote{Vote: choice, Timestamp: now}
	return nil
}

// CastAnonymousVote appends an anonymous ballot after checking the
// proposal is open and the nullifier has not been used before.
func CastAnonymousVote(p *store.Proposal, vote store.AnonymousVote) error {
	if p.Status != store.ProposalOpen {
		return ErrProposalClosed
	}
	for _, existing := range p.AnonymousVotes {
		if existing.Nullifier == vote.Nullifier {
			return ErrReusedNullifier
		}
	}
	p.AnonymousVotes = append(p.AnonymousVotes, vote)
	return nil
}

// PublicVoteWeight computes w = round(1 + log2(total+1) + sum(alpha *
// log2(tags[t]+1) for t in proposalTags), 2), per spec §4.5.
func PublicVoteWeight(total int64, tags map[string]int64, proposalTags []string, alpha float64) float64 {
	w := 1 + math.Log2(float64(total)+1)
	for _, t := range proposalTags {
		w += alpha * math.Log2(float64(tags[t])+1)
	}
	return math.Round(w*100) / 100
}

// TierWeight returns the configured weight for an anonymous-vote tier,
// 0 if the tier index is out of range.
func TierWeight(tier int, tierWeights []float64) float64 {
	if tier < 0 || tier >= len(tierWeights) {
		return 0
	}
	return tierWeights[tier]
}

// Tally holds the computed yes/no weights for a closed proposal.
type Tally struct {
	YesWeight float64
	NoWeight  float64
}

// Outcome applies the spec §4.5 decision rule: approved iff yes_weight
// > no_weight; ties are rejected.
func (t Tally) Outcome() store.Outcome {
	if t.YesWeight > t.NoWeight {
		return store.OutcomeApproved
	}
	return store.OutcomeRejected
}

// TallyVotes computes the weighted yes/no tally for a proposal.
func TallyVotes(p *store.Proposal, reputation ReputationLookup, alpha float64, tierWeights []float64) Tally {
	var t Tally
	for voter, v := range p.Votes {
		total, tags := reputation(voter)
		w := PublicVoteWeight(total, tags, p.Tags, alpha)
		if v.Vote == store.VoteYes {
			t.YesWeight += w
		} else {
			t.NoWeight += w
		}
	}
	for _, av := range p.AnonymousVotes {
		w := TierWeight(av.Tier, tierWeights)
		if av.Vote == store.VoteYes {
			t.YesWeight += w
		} else {
			t.NoWeight += w
		}
	}
	return t
}

// IsExecutiveType reports whether a proposal type follows the
// ratification path instead of taking immediate effect.
func IsExecutiveType(pt store.ProposalType) bool {
	switch pt {
	case store.ProposalNetworkOp, store.ProposalCodeUpgrade, store.ProposalCommand:
		return true
	default:
		return false
	}
}

// ShouldAutoClose reports whether an open proposal has exceeded its
// configured auto-close window (spec §4.5).
func ShouldAutoClose(p *store.Proposal, autoCloseAfter time.Duration, now time.Time) bool {
	return p.Status == store.ProposalOpen && now.Sub(p.CreatedAt) >= autoCloseAfter
}

// Close tallies votes, sets Outcome/Status/ClosedAt, and returns the
// tally. A rejected proposal becomes closed; an approved executive type
// becomes pending_ratification; any other approved type becomes
// executed, and for a config_change the caller applies the patch that
// ConfigPatch returns.
func Close(p *store.Proposal, reputation ReputationLookup, alpha float64, tierWeights []float64, now time.Time) Tally {
	tally := TallyVotes(p, reputation, alpha, tierWeights)
	p.Outcome = tally.Outcome()
	closedAt := now
	p.ClosedAt = &closedAt
	p.UpdatedAt = now

	if p.Outcome != store.OutcomeApproved {
		p.Status = store.ProposalClosed
		return tally
	}
	if IsExecutiveType(p.ProposalType) {
		p.Status = store.ProposalPendingRatification
	} else {
		p.Status = store.ProposalExecuted
	}
	return tally
}

// ConfigPatch extracts the config patch for an approved, immediately-
// effective config_change proposal. Returns ok=false for any other
// proposal type.
func ConfigPatch(p *store.Proposal) (map[string]any, bool) {
	if p.ProposalType != store.ProposalConfigChange {
		return nil, false
	}
	return p.Params, true
}
