package executive

import (
	"testing"
	"time"

	"synapse-ng/internal/config"
	"synapse-ng/internal/store"
)

func TestRatifyReachesQuorumAndExecutes(t *testing.T) {
	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()
	s.EnsureChannel("dev")

	proposal := &store.Proposal{
		ID:           "p1",
		Channel:      "dev",
		ProposalType: store.ProposalCommand,
		Status:       store.ProposalPendingRatification,
		Command: &store.Command{Name: "acquire_common_tool", Params: map[string]any{
			"channel": "dev", "tool_id": "ci", "monthly_cost_sp": int64(10),
		}},
	}
	if err := s.ApplyLocal(store.Delta{Channel: "dev", Proposals: []*store.Proposal{proposal}}); err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
	op := &store.PendingOperation{ProposalID: "p1", Command: *proposal.Command, Ratifications: map[string]bool{}}
	if err := s.ApplyLocal(store.Delta{PendingOps: []*store.PendingOperation{op}}); err != nil {
		t.Fatalf("seed pending op: %v", err)
	}

	now := time.Now().UTC()
	validatorSetSize := 5 // quorum = floor(5/2)+1 = 3
	for i, v := range []string{"v1", "v2"} {
		if err := Ratify(s, nil, d, &cfg, "p1", "dev", v, validatorSetSize, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Ratify %s: %v", v, err)
		}
	}
	if _, ok := s.PendingOperation("p1"); !ok {
		t.Fatalf("expected quorum not yet reached with only 2 of 3 required ratifications")
	}

	if err := Ratify(s, nil, d, &cfg, "p1", "dev", "v3", validatorSetSize, now.Add(2*time.Second)); err != nil {
		t.Fatalf("Ratify v3: %v", err)
	}

	if _, ok := s.PendingOperation("p1"); ok {
		t.Fatalf("expected pending operation to be removed once ratified")
	}
	log := s.ExecutionLog()
	if len(log) != 1 || log[0].Result != "ok" {
		t.Fatalf("expected one successful execution log entry, got %+v", log)
	}
	ch, _ := s.Channel("dev")
	if ch.Proposals["p1"].Status != store.ProposalExecuted {
		t.Fatalf("expected proposal to be marked executed, got %q", ch.Proposals["p1"].Status)
	}
}
