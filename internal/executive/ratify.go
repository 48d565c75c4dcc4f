package executive

import (
	"fmt"
	"time"

	"synapse-ng/internal/config"
	"synapse-ng/internal/journal"
	"synapse-ng/internal/store"
)

// Ratify records one validator's ratification of a pending operation
// and, once quorum is reached, dispatches the command, appends it with
// its result to the execution log, and removes the pending_operation record (spec
// §4.6 steps 1-3). If quorum has not been reached after recording this
// vote, it returns nil without appending or dispatching anything.
func Ratify(
	s *store.Store,
	j *journal.Journal,
	d *Dispatcher,
	cfg *config.Config,
	proposalID, channel, validatorID string,
	validatorSetSize int,
	now time.Time,
) error {
	op, ok := s.PendingOperation(proposalID)
	if !ok {
		return fmt.Errorf("ratify: no pending operation for proposal %q", proposalID)
	}
	if op.Ratifications == nil {
		op.Ratifications = map[string]bool{}
	}
	op.Ratifications[validatorID] = true
	if err := s.ApplyLocal(store.Delta{PendingOps: []*store.PendingOperation{&op}}); err != nil {
		return fmt.Errorf("ratify: record ratification: %w", err)
	}

	if !IsRatified(op.Ratifications, validatorSetSize) {
		return nil
	}

	seq := s.NextSequence()
	result, errMsg := d.Apply(op.Command, cfg)

	entry := store.ExecutionLogEntry{
		Sequence:       seq,
		Command:        op.Command,
		OriginProposal: proposalID,
		Ratifiers:      ratifierList(op.Ratifications),
		AppendedAt:     now,
		Result:         result,
		Error:          errMsg,
	}
	if err := s.ApplyLocal(store.Delta{ExecutionLog: []store.ExecutionLogEntry{entry}}); err != nil {
		return fmt.Errorf("ratify: append execution log: %w", err)
	}
	if j != nil {
		if err := j.AppendEntry(entry); err != nil {
			return fmt.Errorf("ratify: persist execution log entry: %w", err)
		}
	}

	finalStatus := store.ProposalExecuted
	if result == "execution_failed" {
		finalStatus = store.ProposalExecutionFailed
	}
	if err := s.SetProposalStatus(channel, proposalID, finalStatus); err != nil {
		return fmt.Errorf("ratify: set proposal status: %w", err)
	}
	s.DeletePendingOperation(proposalID)
	return nil
}

func ratifierList(ratifications map[string]bool) []string {
	out := make([]string, 0, len(ratifications))
	for id, ok := range ratifications {
		if ok {
			out = append(out, id)
		}
	}
	return out
}
