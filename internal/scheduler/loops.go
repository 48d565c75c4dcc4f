package scheduler

import (
	"context"
	"time"

	"synapse-ng/internal/config"
	"synapse-ng/internal/economy"
	"synapse-ng/internal/executive"
	"synapse-ng/internal/governance"
	"synapse-ng/internal/journal"
	"synapse-ng/internal/store"
)

// AutoCloseLoop closes every open proposal past its auto_close_hours
// window in every channel, tallying votes via reputation (spec §4.8,
// §4.5). An approved config_change's patch is applied to *cfg at once;
// a patch that ApplyPatch rejects leaves the proposal execution_failed.
func AutoCloseLoop(s *store.Store, reputation governance.ReputationLookup, cfg *config.Config) LoopFunc {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		autoClose := time.Duration(cfg.Governance.AutoCloseHours * float64(time.Hour))
		for _, name := range s.ChannelNames() {
			ch, ok := s.Channel(name)
			if !ok {
				continue
			}
			for _, p := range ch.Proposals {
				if governance.ShouldAutoClose(p, autoClose, now) {
					governance.Close(p, reputation, cfg.Governance.AnonymousVoteBonusAlpha, cfg.Governance.TierWeights, now)
					if patch, ok := governance.ConfigPatch(p); ok && p.Outcome == store.OutcomeApproved {
						patched, err := cfg.ApplyPatch(patch)
						if err != nil {
							p.Status = store.ProposalExecutionFailed
						} else {
							*cfg = patched
						}
					}
					if err := s.ApplyLocal(store.Delta{Channel: name, Proposals: []*store.Proposal{p}}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
}

// AuctionSweepLoop finalizes every open auction whose deadline has
// passed, selecting the winning bid by the scoring formula (spec
// §4.7).
func AuctionSweepLoop(s *store.Store, cfg *config.Config) LoopFunc {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		for _, name := range s.ChannelNames() {
			ch, ok := s.Channel(name)
			if !ok {
				continue
			}
			for _, t := range ch.Tasks {
				a := t.Auction
				if a == nil || a.Status != store.AuctionOpen || now.Before(a.Deadline) {
					continue
				}
				if len(a.Bids) == 0 {
					a.Status = store.AuctionCancelled
				} else {
					bids := make([]economy.Bid, 0, len(a.Bids))
					for bidder, b := range a.Bids {
						bids = append(bids, economy.Bid{
							BidderID: bidder, Amount: b.Amount, EstimatedDays: b.EstimatedDays,
							ReputationSnapshot: b.ReputationSnapshot, Timestamp: b.Timestamp,
						})
					}
					winner := economy.WinningBid(bids, a.MaxReward, a.MaxDays, cfg.Economy.AuctionWeights)
					winBid := a.Bids[winner.BidderID]
					a.Status = store.AuctionFinalized
					a.Winner = winner.BidderID
					a.WinningBid = &winBid
					t.Status = store.TaskClaimed
					t.Assignee = winner.BidderID
					t.Reward = winBid.Amount
				}
				t.UpdatedAt = now
				if err := s.ApplyLocal(store.Delta{Channel: name, Tasks: []*store.Task{t}}); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// ValidatorRotationLoop recomputes the validator set from the current
// reputation snapshot every validator_rotation_period (spec §4.6).
func ValidatorRotationLoop(s *store.Store, candidates func() []executive.NodeStatus, cfg *config.Config) LoopFunc {
	return func(ctx context.Context) error {
		set := executive.SelectValidatorSet(candidates(), cfg.Executive.ValidatorSetSize, cfg.HealthTargets.MinValidatorUptime)
		return s.ApplyLocal(store.Delta{ValidatorSet: set})
	}
}

// DispatcherDrainLoop appends to the on-disk journal every entry of the
// replicated execution log whose sequence is above *lastPersisted, in
// log order, and advances *lastPersisted past each one it writes
// (spec §4.6). It does not dispatch the entries.
func DispatcherDrainLoop(s *store.Store, j *journal.Journal, lastPersisted *uint64) LoopFunc {
	return func(ctx context.Context) error {
		for _, e := range s.ExecutionLog() {
			if e.Sequence <= *lastPersisted {
				continue
			}
			if err := j.AppendEntry(e); err != nil {
				return err
			}
			*lastPersisted = e.Sequence
		}
		return nil
	}
}

// DecayLoop applies the daily reputation decay formula to every known
// node's reputation record (spec §4.7).
func DecayLoop(reputations map[string]*economy.Reputation, decayRate float64) LoopFunc {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		for node, r := range reputations {
			decayed := economy.DecayReputation(*r, decayRate, now)
			reputations[node] = &decayed
		}
		return nil
	}
}

// ToolMaintenanceLoop debits (or deprecates) every active common tool
// whose payment cadence has elapsed (spec §4.7 "Monthly maintenance
// loop").
func ToolMaintenanceLoop(s *store.Store, cadence time.Duration, treasuryBalance func(channel string) int64, debitTreasury func(channel string, amount int64)) LoopFunc {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		for _, name := range s.ChannelNames() {
			ch, ok := s.Channel(name)
			if !ok {
				continue
			}
			for _, tool := range ch.CommonTools {
				if tool.Status != store.ToolActive {
					continue
				}
				if !economy.ToolMaintenanceDue(tool.LastPaymentAt, cadence, now) {
					continue
				}
				outcome := economy.ApplyToolMaintenance(treasuryBalance(name), tool.MonthlyCostSP)
				if outcome.Deprecated {
					tool.Status = store.ToolDeprecated
				} else {
					debitTreasury(name, tool.MonthlyCostSP)
					tool.LastPaymentAt = now
				}
				tool.UpdatedAt = now
				if err := s.ApplyLocal(store.Delta{Channel: name, CommonTools: []*store.CommonTool{tool}}); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
