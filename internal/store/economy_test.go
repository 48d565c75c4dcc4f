package store

import (
	"testing"
	"time"
)

func TestApplyLocalRejectsInsolventTaskCreation(t *testing.T) {
	s := New(nil)
	s.SetEconomyParams(100, 0.02)

	task := &Task{ID: "t1", Channel: "dev", Status: TaskOpen, Creator: "n1", Reward: 200, UpdatedAt: time.Now().UTC(), UpdatedBy: "n1"}
	if err := s.ApplyLocal(Delta{Channel: "dev", Tasks: []*Task{task}}); err == nil {
		t.Fatalf("expected task creation to be rejected: reward exceeds creator's initial balance")
	}
}

func TestApplyLocalAdmitsSolventTaskCreation(t *testing.T) {
	s := New(nil)
	s.SetEconomyParams(1000, 0.02)

	task := &Task{ID: "t1", Channel: "dev", Status: TaskOpen, Creator: "n1", Reward: 10, UpdatedAt: time.Now().UTC(), UpdatedBy: "n1"}
	if err := s.ApplyLocal(Delta{Channel: "dev", Tasks: []*Task{task}}); err != nil {
		t.Fatalf("expected solvent task creation to be admitted: %v", err)
	}
}

func TestDeriveBalancesMatchesWorkedExample(t *testing.T) {
	s := New(nil)
	s.SetEconomyParams(1000, 0.02)

	created := time.Now().UTC()
	task := &Task{ID: "t1", Channel: "dev", Status: TaskOpen, Creator: "n1", Reward: 10, CreatedAt: created, UpdatedAt: created, UpdatedBy: "n1"}
	if err := s.ApplyLocal(Delta{Channel: "dev", Tasks: []*Task{task}}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	completed := created.Add(time.Hour)
	done := &Task{ID: "t1", Channel: "dev", Status: TaskCompleted, Creator: "n1", Assignee: "n2", Reward: 10, Tags: []string{"dev"}, CreatedAt: created, UpdatedAt: completed, UpdatedBy: "n2"}
	if err := s.ApplyLocal(Delta{Channel: "dev", Tasks: []*Task{done}}); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	balances, treasury := s.DeriveBalances()
	if balances["n1"] != 990 {
		t.Fatalf("expected n1 balance 990, got %d", balances["n1"])
	}
	if balances["n2"] != 1009 {
		t.Fatalf("expected n2 balance 1009, got %d", balances["n2"])
	}
	if treasury["dev"] != 1 {
		t.Fatalf("expected dev treasury 1, got %d", treasury["dev"])
	}
}

func TestCompositeTaskDistributesOnAllSubTasksComplete(t *testing.T) {
	s := New(nil)
	s.SetEconomyParams(1000, 0.02)

	c := &CompositeTask{
		ID:               "c1",
		Channel:          "dev",
		MaxTeamSize:      3,
		Coordinator:      "coord",
		CoordinatorBonus: 5,
		TeamMembers:      map[string]bool{"coord": true, "worker": true},
		SubTasks: []SubTask{
			{ID: "s1", Reward: 10, Status: TaskCompleted, Assignee: "worker"},
			{ID: "s2", Reward: 20, Status: TaskCompleted, Assignee: "coord"},
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.ApplyLocal(Delta{Channel: "dev", CompositeTasks: []*CompositeTask{c}}); err != nil {
		t.Fatalf("apply composite task: %v", err)
	}

	ch, _ := s.Channel("dev")
	got := ch.CompositeTasks["c1"]
	if !got.RewardsDistributed || got.Status != TaskCompleted {
		t.Fatalf("expected composite task to be marked distributed and completed, got %+v", got)
	}

	balances, treasury := s.DeriveBalances()
	if balances["worker"] != 1010 {
		t.Fatalf("expected worker to collect their sub-task reward, got %d", balances["worker"])
	}
	if balances["coord"] != 1025 {
		t.Fatalf("expected coord to collect sub-task reward plus coordinator bonus, got %d", balances["coord"])
	}
	if treasury["dev"] != -35 {
		t.Fatalf("expected dev treasury debited by the full distribution cost, got %d", treasury["dev"])
	}

	// re-applying the same composite task must not double-distribute.
	if err := s.ApplyLocal(Delta{Channel: "dev", CompositeTasks: []*CompositeTask{got}}); err != nil {
		t.Fatalf("reapply composite task: %v", err)
	}
	balancesAgain, _ := s.DeriveBalances()
	if balancesAgain["worker"] != balances["worker"] {
		t.Fatalf("expected no double payout on reapply, got %d then %d", balances["worker"], balancesAgain["worker"])
	}
}

func TestRankSubTaskApplicantsOrdersBySkillMatch(t *testing.T) {
	s := New(nil)
	now := time.Now().UTC()
	if err := s.ApplyLocal(Delta{Channel: "dev", Skills: map[string]*SkillsProfile{
		"go-expert": {Skills: []string{"go", "distributed-systems"}, UpdatedAt: now},
		"novice":    {Skills: []string{"html"}, UpdatedAt: now},
	}}); err != nil {
		t.Fatalf("apply skills: %v", err)
	}

	ranked := s.RankSubTaskApplicants("dev", []string{"go", "distributed-systems"}, []string{"novice", "go-expert", "no-profile"})
	if ranked[0] != "go-expert" {
		t.Fatalf("expected go-expert ranked first, got %v", ranked)
	}
}

func TestAuthorizeToolExecutionRequiresAssigneeAndActiveTool(t *testing.T) {
	s := New(nil)
	now := time.Now().UTC()
	task := &Task{ID: "t1", Channel: "dev", Status: TaskClaimed, Assignee: "worker", RequiredTools: []string{"ci-runner"}, UpdatedAt: now, UpdatedBy: "worker"}
	if err := s.ApplyLocal(Delta{Channel: "dev", Tasks: []*Task{task}}); err != nil {
		t.Fatalf("apply task: %v", err)
	}
	tool := &CommonTool{ToolID: "ci-runner", Status: ToolActive, UpdatedAt: now}
	if err := s.ApplyLocal(Delta{Channel: "dev", CommonTools: []*CommonTool{tool}}); err != nil {
		t.Fatalf("apply tool: %v", err)
	}

	ok, err := s.AuthorizeToolExecution("dev", "t1", "ci-runner", "worker")
	if err != nil || !ok {
		t.Fatalf("expected assignee with an active required tool to be authorized, ok=%v err=%v", ok, err)
	}

	ok, err = s.AuthorizeToolExecution("dev", "t1", "ci-runner", "someone-else")
	if err != nil || ok {
		t.Fatalf("expected a non-assignee to be denied, ok=%v err=%v", ok, err)
	}
}
