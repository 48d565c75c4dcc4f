package store

import (
	"fmt"
	"time"

	"synapse-ng/internal/economy"
)

// SetEconomyParams turns on the solvency and payout derivations this
// store enforces on task-creation deltas and exposes to the executive
// dispatcher for tool-acquisition affordability (spec §4.7). Until
// called, economy enforcement is a no-op, so callers and tests that do
// not care about the economy can keep constructing a bare Store.
func (s *Store) SetEconomyParams(initialBalance int64, taxRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.economyEnabled = true
	s.economyInitialBalance = initialBalance
	s.economyTaxRate = taxRate
}

// EconomyEnabled reports whether SetEconomyParams has been called.
func (s *Store) EconomyEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.economyEnabled
}

// DeriveBalances recomputes every known node's SP balance and every
// channel's treasury balance straight from the store's own task and
// execution-log history: balances are never pointwise-merged state
// (spec §3, §4.7), so this is the only place either figure is read
// from.
func (s *Store) DeriveBalances() (economy.Balances, economy.TreasuryBalances) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deriveBalancesLocked()
}

// TreasuryBalance is a convenience accessor for a single channel's
// derived treasury balance, used by the executive dispatcher to decide
// whether acquire_common_tool can afford its monthly cost.
func (s *Store) TreasuryBalance(channel string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, treasury := s.deriveBalancesLocked()
	return treasury[channel]
}

func (s *Store) deriveBalancesLocked() (economy.Balances, economy.TreasuryBalances) {
	var history []economy.Event
	nodeSet := map[string]bool{}
	for _, ch := range s.channels {
		for _, t := range ch.Tasks {
			nodeSet[t.Creator] = true
			history = append(history, economy.Event{
				Kind: economy.EventTaskCreated, Node: t.Creator, Amount: t.Reward, Timestamp: t.CreatedAt,
			})
			if t.Status == TaskCompleted && t.Assignee != "" {
				nodeSet[t.Assignee] = true
				payout, treasuryCut := economy.CompletionPayout(t.Reward, s.economyTaxRate)
				history = append(history, economy.Event{
					Kind: economy.EventTaskCompleted, Node: t.Assignee, Channel: ch.Name,
					Amount: payout, Tags: t.Tags, Timestamp: t.UpdatedAt,
				})
				history = append(history, economy.Event{
					Kind: economy.EventTreasuryPayout, Channel: ch.Name, Amount: treasuryCut, Timestamp: t.UpdatedAt,
				})
			}
		}
	}
	for _, e := range s.global.ExecutionLog {
		if e.Result != "ok" {
			continue
		}
		switch e.Command.Name {
		case "acquire_common_tool", "tool_maintenance_debit":
			channel, _ := e.Command.Params["channel"].(string)
			cost, _ := int64Param(e.Command.Params, "monthly_cost_sp")
			history = append(history, economy.Event{
				Kind: economy.EventToolMaintenance, Channel: channel, Amount: cost, Timestamp: e.AppendedAt,
			})
		case "composite_task_distribution":
			channel, _ := e.Command.Params["channel"].(string)
			cost, _ := int64Param(e.Command.Params, "monthly_cost_sp")
			history = append(history, economy.Event{
				Kind: economy.EventToolMaintenance, Channel: channel, Amount: cost, Timestamp: e.AppendedAt,
			})
			if payouts, ok := e.Command.Params["payouts"].(map[string]any); ok {
				for node, amt := range payouts {
					amount, _ := int64Param(map[string]any{"amount": amt}, "amount")
					nodeSet[node] = true
					history = append(history, economy.Event{
						Kind: economy.EventCommandExecuted, Node: node, Amount: amount, Timestamp: e.AppendedAt,
					})
				}
			}
		}
	}
	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	return economy.DeriveBalances(history, s.economyInitialBalance, nodes)
}

func int64Param(params map[string]any, key string) (int64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// checkTaskSolvencyLocked enforces the task-creation solvency invariant
// (spec §4.7 "Task creation constraint") for a brand-new open task. It
// must be called with s.mu already held for writing, before the task is
// admitted into the channel.
func (s *Store) checkTaskSolvencyLocked(t *Task) error {
	if !s.economyEnabled || t.Status != TaskOpen {
		return nil
	}
	balances, _ := s.deriveBalancesLocked()
	if !economy.CanCreateTask(balances, t.Creator, t.Reward, s.economyInitialBalance) {
		return fmt.Errorf("task %s: insufficient_funds for creator %s (reward %d)", t.ID, t.Creator, t.Reward)
	}
	return nil
}

// RankSubTaskApplicants orders applicants for a composite task's
// sub-task by skill match against each applicant's declared skills
// profile in channel (spec §3 "Skills profile ... feeds composite-task
// skill-match scoring"). An applicant with no declared profile is
// ranked as if they declared no skills.
func (s *Store) RankSubTaskApplicants(channel string, requiredSkills []string, applicants []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channel]
	if !ok {
		return applicants
	}
	skills := make(map[string][]string, len(applicants))
	for _, node := range applicants {
		var have []string
		if p, ok := ch.Skills[node]; ok {
			have = p.Skills
		}
		skills[node] = have
	}
	return economy.RankApplicants(requiredSkills, skills)
}

// allSubTasksCompleted reports whether every sub-task of a composite
// task has reached completed status, the trigger for atomic reward
// distribution (spec §3 "When all sub-tasks are completed, distribution
// is atomic"). A composite task with no sub-tasks yet is never
// considered complete.
func allSubTasksCompleted(c *CompositeTask) bool {
	if len(c.SubTasks) == 0 {
		return false
	}
	for _, st := range c.SubTasks {
		if st.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// recordCompositeTaskDistributionLocked computes the atomic reward
// distribution for a just-completed composite task (every sub-task
// assignee's reward, plus the coordinator's bonus) and appends it to
// the execution log as a single entry, so the whole distribution is
// bracketed under the one locked apply() call it runs inside of (spec
// §3, §6 "cross-entity transactions ... bracketed under a single
// state-store write") and every node derives the same balances from it
// afterward. Must be called with s.mu already held for writing.
func (s *Store) recordCompositeTaskDistributionLocked(channel string, c *CompositeTask) {
	subRewards := make([]economy.SubTaskReward, 0, len(c.SubTasks))
	for _, st := range c.SubTasks {
		subRewards = append(subRewards, economy.SubTaskReward{Assignee: st.Assignee, Reward: st.Reward})
	}
	payouts := economy.CompositeTaskPayouts(subRewards, c.Coordinator, c.CoordinatorBonus)
	if len(payouts) == 0 {
		return
	}
	cost := economy.CompositeTaskCost(subRewards, c.CoordinatorBonus)
	payoutParams := make(map[string]any, len(payouts))
	for node, amount := range payouts {
		payoutParams[node] = amount
	}
	entry := ExecutionLogEntry{
		Sequence: s.nextSequenceLocked(),
		Command: Command{
			Name: "composite_task_distribution",
			Params: map[string]any{
				"channel":           channel,
				"composite_task_id": c.ID,
				"monthly_cost_sp":   cost,
				"payouts":           payoutParams,
			},
		},
		AppendedAt: time.Now().UTC(),
		Result:     "ok",
	}
	s.appendExecutionLogLocked([]ExecutionLogEntry{entry})
}

// AuthorizeToolExecution enforces the tool-execution authorization rule
// (spec §4.7 "Tool execution authorization") for the execute_tool
// inbound operation: the caller must be the task's assignee, the task
// must require the tool, and the tool must be active.
func (s *Store) AuthorizeToolExecution(channel, taskID, toolID, caller string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channel]
	if !ok {
		return false, fmt.Errorf("execute_tool: unknown channel %q", channel)
	}
	task, ok := ch.Tasks[taskID]
	if !ok {
		return false, fmt.Errorf("execute_tool: unknown task %q in channel %q", taskID, channel)
	}
	tool, ok := ch.CommonTools[toolID]
	if !ok {
		return false, fmt.Errorf("execute_tool: unknown tool %q in channel %q", toolID, channel)
	}
	requiresTool := false
	for _, req := range task.RequiredTools {
		if req == toolID {
			requiresTool = true
			break
		}
	}
	isAssignee := task.Assignee != "" && task.Assignee == caller
	return economy.CanExecuteTool(isAssignee, requiresTool, tool.Status == ToolActive), nil
}
