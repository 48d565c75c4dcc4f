package store

import "time"

// lww resolves a last-write-wins conflict between two (timestamp,
// node_id) pairs using the tiebreak rule (updated_at, then node_id)
// (spec §4.3 "CRDT merge rule"). It reports whether b should win over
// a (replace a with b).
func lww(aAt time.Time, aNode string, bAt time.Time, bNode string) bool {
	if bAt.After(aAt) {
		return true
	}
	if bAt.Before(aAt) {
		return false
	}
	return bNode > aNode
}

// mergeGrowSet unions two grow-only sets with tombstones: true means
// present, false means tombstoned. A tombstone never reverts to
// present from a merge — removal is permanent once observed, matching
// the grow-only-set-with-tombstones semantics required for
// Channel.Participants and CompositeTask.TeamMembers (spec §3, §4.3).
func mergeGrowSet(local, remote map[string]bool) map[string]bool {
	out := make(map[string]bool, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range remote {
		if existing, ok := out[k]; ok {
			out[k] = existing && v // stays false (tombstoned) if either side tombstoned
		} else {
			out[k] = v
		}
	}
	return out
}

// mergeTask applies the LWW rule keyed on (UpdatedAt, UpdatedBy), except
// for the claim-collision case: two different claimants independently
// claiming the same open task violates the at-most-one-assignee
// invariant, so it is resolved by claimCollisionLocalWins instead of
// generic LWW (spec §3).
func mergeTask(local, remote *Task) *Task {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	if isClaimCollision(local, remote) {
		if claimCollisionLocalWins(local, remote) {
			merged := *local
			if local.Auction != nil && remote.Auction != nil {
				merged.Auction = mergeAuction(local.Auction, remote.Auction)
			}
			return &merged
		}
		merged := *remote
		if local.Auction != nil && remote.Auction != nil {
			merged.Auction = mergeAuction(local.Auction, remote.Auction)
		}
		return &merged
	}
	if lww(local.UpdatedAt, local.UpdatedBy, remote.UpdatedAt, remote.UpdatedBy) {
		merged := *remote
		if local.Auction != nil && remote.Auction != nil {
			merged.Auction = mergeAuction(local.Auction, remote.Auction)
		}
		return &merged
	}
	merged := *local
	if local.Auction != nil && remote.Auction != nil {
		merged.Auction = mergeAuction(local.Auction, remote.Auction)
	}
	return &merged
}

// isClaimCollision reports whether local and remote are two different
// claimants who each independently claimed the same previously-open
// task. At most one assignee may ever be observed for a task, so this
// is an invariant violation rather than an ordinary field update.
func isClaimCollision(local, remote *Task) bool {
	return local.Status == TaskClaimed && remote.Status == TaskClaimed &&
		local.Assignee != "" && remote.Assignee != "" && local.Assignee != remote.Assignee
}

// claimCollisionLocalWins resolves a claim collision by earliest
// updated_at, ties broken by lexicographically smallest node_id (spec
// §3) -- the opposite tiebreak direction from generic LWW, since only
// one claimant's claim can be valid and the loser's claim is silently
// discarded on merge.
func claimCollisionLocalWins(local, remote *Task) bool {
	if local.UpdatedAt.Before(remote.UpdatedAt) {
		return true
	}
	if remote.UpdatedAt.Before(local.UpdatedAt) {
		return false
	}
	return local.UpdatedBy < remote.UpdatedBy
}

// mergeAuction merges bids per-bidder by LWW on bid timestamp; Status
// and Winner follow whichever side has observed finalization, since
// finalization is monotonic (open -> finalized|cancelled).
func mergeAuction(local, remote *Auction) *Auction {
	merged := *local
	merged.Bids = make(map[string]Bid, len(local.Bids)+len(remote.Bids))
	for bidder, b := range local.Bids {
		merged.Bids[bidder] = b
	}
	for bidder, b := range remote.Bids {
		if existing, ok := merged.Bids[bidder]; !ok || b.Timestamp.After(existing.Timestamp) {
			merged.Bids[bidder] = b
		}
	}
	if remote.Status == AuctionFinalized || remote.Status == AuctionCancelled {
		merged.Status = remote.Status
		merged.Winner = remote.Winner
		merged.WinningBid = remote.WinningBid
	}
	return &merged
}

// mergeProposal merges votes (LWW per voter), anonymous votes (union
// deduplicated by nullifier — the append-only, first-writer-wins set
// spec §4.4 requires so a reused nullifier cannot overwrite the
// original ballot), and the state-machine fields by status rank: the
// state machine only moves forward, so the more-advanced status wins.
func mergeProposal(local, remote *Proposal) *Proposal {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}

	merged := *local
	if statusRank(remote.Status) > statusRank(local.Status) {
		merged.Status = remote.Status
		merged.Outcome = remote.Outcome
		merged.ClosedAt = remote.ClosedAt
	}

	merged.Votes = make(map[string]PublicVote, len(local.Votes)+len(remote.Votes))
	for voter, v := range local.Votes {
		merged.Votes[voter] = v
	}
	for voter, v := range remote.Votes {
		if existing, ok := merged.Votes[voter]; !ok || v.Timestamp.After(existing.Timestamp) {
			merged.Votes[voter] = v
		}
	}

	merged.AnonymousVotes = mergeAnonymousVotes(local.AnonymousVotes, remote.AnonymousVotes)

	if remote.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}
	return &merged
}

func statusRank(s ProposalStatus) int {
	switch s {
	case ProposalOpen:
		return 0
	case ProposalClosed:
		return 1
	case ProposalPendingRatification:
		return 2
	case ProposalExecuted, ProposalExecutionFailed:
		return 3
	case ProposalArchived:
		return 4
	default:
		return -1
	}
}

func mergeAnonymousVotes(local, remote []AnonymousVote) []AnonymousVote {
	seen := make(map[string]AnonymousVote, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))
	for _, v := range local {
		if _, ok := seen[v.Nullifier]; !ok {
			order = append(order, v.Nullifier)
		}
		seen[v.Nullifier] = v
	}
	for _, v := range remote {
		if existing, ok := seen[v.Nullifier]; ok {
			// first writer wins: keep the earlier timestamp's ballot.
			if v.Timestamp.Before(existing.Timestamp) {
				seen[v.Nullifier] = v
			}
			continue
		}
		seen[v.Nullifier] = v
		order = append(order, v.Nullifier)
	}
	out := make([]AnonymousVote, 0, len(order))
	for _, n := range order {
		out = append(out, seen[n])
	}
	return out
}

// mergeCompositeTask merges the grow-only applicants/team-member sets
// and falls back to LWW on UpdatedAt for the remaining scalar fields.
func mergeCompositeTask(local, remote *CompositeTask) *CompositeTask {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	merged := *local
	if remote.UpdatedAt.After(local.UpdatedAt) {
		merged = *remote
	}
	merged.TeamMembers = mergeGrowSet(local.TeamMembers, remote.TeamMembers)
	merged.Applicants = unionStrings(local.Applicants, remote.Applicants)
	return &merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// mergeSkillsProfile applies plain LWW on UpdatedAt: a skills profile
// has no invariant-sensitive fields the way a Task's assignee does, so
// the generic tiebreak direction is correct here.
func mergeSkillsProfile(local, remote *SkillsProfile) *SkillsProfile {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return remote
	}
	return local
}

// mergeCommonTool applies LWW on UpdatedAt, except Status only moves
// forward from active to deprecated (deprecation, like the proposal
// state machine, is monotonic).
func mergeCommonTool(local, remote *CommonTool) *CommonTool {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	merged := *local
	if remote.UpdatedAt.After(local.UpdatedAt) {
		merged = *remote
	}
	if remote.Status == ToolDeprecated {
		merged.Status = ToolDeprecated
	}
	if remote.LastPaymentAt.After(merged.LastPaymentAt) {
		merged.LastPaymentAt = remote.LastPaymentAt
	}
	return &merged
}
