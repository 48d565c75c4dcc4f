package store

import "fmt"

// Validate rejects records that violate the invariants every delta
// must satisfy before apply_local or apply_remote accepts it (spec
// §4.3 "schema validation"). Validation is structural and local: it
// never consults other records, so it can run identically on the
// writer and every receiver.

func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: missing id")
	}
	if t.Reward < 0 {
		return fmt.Errorf("task %s: negative reward", t.ID)
	}
	switch t.Status {
	case TaskOpen, TaskClaimed, TaskInProgress, TaskCompleted, TaskCancelled:
	default:
		return fmt.Errorf("task %s: invalid status %q", t.ID, t.Status)
	}
	if t.Auction != nil {
		if err := t.Auction.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (a *Auction) Validate() error {
	if a.MaxReward < 0 || a.MinIncrement < 0 {
		return fmt.Errorf("auction: negative reward or increment")
	}
	switch a.Status {
	case AuctionOpen, AuctionFinalized, AuctionCancelled:
	default:
		return fmt.Errorf("auction: invalid status %q", a.Status)
	}
	for bidder, b := range a.Bids {
		if b.Amount < 0 {
			return fmt.Errorf("auction: negative bid from %s", bidder)
		}
	}
	return nil
}

func (p *Proposal) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("proposal: missing id")
	}
	switch p.ProposalType {
	case ProposalGeneric, ProposalConfigChange, ProposalNetworkOp, ProposalCodeUpgrade, ProposalCommand:
	default:
		return fmt.Errorf("proposal %s: invalid proposal_type %q", p.ID, p.ProposalType)
	}
	if statusRank(p.Status) < 0 {
		return fmt.Errorf("proposal %s: invalid status %q", p.ID, p.Status)
	}
	for voter, v := range p.Votes {
		if v.Vote != VoteYes && v.Vote != VoteNo {
			return fmt.Errorf("proposal %s: invalid vote from %s", p.ID, voter)
		}
	}
	for i, av := range p.AnonymousVotes {
		if av.Nullifier == "" {
			return fmt.Errorf("proposal %s: anonymous vote %d missing nullifier", p.ID, i)
		}
		if av.Vote != VoteYes && av.Vote != VoteNo {
			return fmt.Errorf("proposal %s: anonymous vote %d invalid vote", p.ID, i)
		}
	}
	if p.ProposalType != ProposalGeneric && p.ProposalType != ProposalConfigChange && p.Command == nil &&
		(p.Status == ProposalPendingRatification || p.Status == ProposalExecuted) {
		return fmt.Errorf("proposal %s: executive path requires a command", p.ID)
	}
	return nil
}

func (c *CompositeTask) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("composite task: missing id")
	}
	if c.MaxTeamSize <= 0 {
		return fmt.Errorf("composite task %s: max_team_size must be positive", c.ID)
	}
	if len(c.TeamMembers) > 0 {
		active := 0
		for _, present := range c.TeamMembers {
			if present {
				active++
			}
		}
		if active > c.MaxTeamSize {
			return fmt.Errorf("composite task %s: team exceeds max_team_size", c.ID)
		}
	}
	for _, st := range c.SubTasks {
		if st.Reward < 0 {
			return fmt.Errorf("composite task %s: sub-task %s has negative reward", c.ID, st.ID)
		}
	}
	return nil
}

func (s *SkillsProfile) Validate() error {
	return nil
}

func (r *ReputationRecord) Validate() error {
	if r.Total < 0 {
		return fmt.Errorf("reputation record: negative total")
	}
	for tag, v := range r.Tags {
		if v < 0 {
			return fmt.Errorf("reputation record: negative tag total for %s", tag)
		}
	}
	return nil
}

func (c *CommonTool) Validate() error {
	if c.ToolID == "" {
		return fmt.Errorf("common tool: missing tool_id")
	}
	if c.MonthlyCostSP < 0 {
		return fmt.Errorf("common tool %s: negative monthly cost", c.ToolID)
	}
	switch c.Status {
	case ToolActive, ToolDeprecated:
	default:
		return fmt.Errorf("common tool %s: invalid status %q", c.ToolID, c.Status)
	}
	return nil
}
