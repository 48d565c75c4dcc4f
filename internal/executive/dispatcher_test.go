package executive

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"synapse-ng/internal/config"
	"synapse-ng/internal/store"
	"synapse-ng/internal/testutil"
)

// minimalWasmModule is the smallest valid wasm binary: the magic
// number and version header with no sections.
var minimalWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestDispatchAcquireCommonTool(t *testing.T) {
	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()

	cmd := store.Command{Name: "acquire_common_tool", Params: map[string]any{
		"channel":         "dev",
		"tool_id":         "ci-runner",
		"type":            "saas",
		"description":     "CI runner",
		"monthly_cost_sp": int64(50),
	}}
	result, errMsg := d.Apply(cmd, &cfg)
	if result != "ok" {
		t.Fatalf("expected ok, got %q (%s)", result, errMsg)
	}
	ch, _ := s.Channel("dev")
	if ch.CommonTools["ci-runner"] == nil || ch.CommonTools["ci-runner"].Status != store.ToolActive {
		t.Fatalf("expected active tool record to be installed")
	}
}

func TestDispatchDeprecateUnknownToolFails(t *testing.T) {
	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()
	s.EnsureChannel("dev")

	cmd := store.Command{Name: "deprecate_common_tool", Params: map[string]any{
		"channel": "dev",
		"tool_id": "missing",
	}}
	result, errMsg := d.Apply(cmd, &cfg)
	if result != "execution_failed" || errMsg == "" {
		t.Fatalf("expected execution_failed with an error, got %q %q", result, errMsg)
	}
}

func TestDispatchUpdateConfig(t *testing.T) {
	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()

	cmd := store.Command{Name: "update_config", Params: map[string]any{
		"economy.decay_rate_daily": 0.05,
	}}
	result, errMsg := d.Apply(cmd, &cfg)
	if result != "ok" {
		t.Fatalf("expected ok, got %q (%s)", result, errMsg)
	}
	if cfg.Economy.DecayRateDaily != 0.05 {
		t.Fatalf("expected decay rate to be patched, got %v", cfg.Economy.DecayRateDaily)
	}
}

func TestDispatchSplitChannelMovesTasks(t *testing.T) {
	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()

	task := &store.Task{ID: "t1", Channel: "dev", Status: store.TaskOpen, UpdatedAt: time.Now().UTC(), UpdatedBy: "a"}
	if err := s.ApplyLocal(store.Delta{Channel: "dev", Tasks: []*store.Task{task}}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	cmd := store.Command{Name: "split_channel", Params: map[string]any{
		"target":       "dev",
		"new_channels": []any{"dev-backend", "dev-frontend"},
	}}
	result, errMsg := d.Apply(cmd, &cfg)
	if result != "ok" {
		t.Fatalf("expected ok, got %q (%s)", result, errMsg)
	}
	dest, _ := s.Channel("dev-backend")
	if dest.Tasks["t1"] == nil {
		t.Fatalf("expected task to move into the first new channel")
	}
	src, _ := s.Channel("dev")
	if !src.Archived {
		t.Fatalf("expected source channel to be archived")
	}
}

func TestDispatchExecuteUpgradeValidModule(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()
	if err := sb.WriteFile("upgrade.wasm", minimalWasmModule, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	packageBytes, err := sb.ReadFile("upgrade.wasm")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()

	sum := sha256.Sum256(packageBytes)
	cmd := store.Command{Name: "execute_upgrade", Params: map[string]any{
		"package_ref": string(packageBytes),
		"hash":        hex.EncodeToString(sum[:]),
	}}
	result, errMsg := d.Apply(cmd, &cfg)
	if result != "ok" {
		t.Fatalf("expected ok, got %q (%s)", result, errMsg)
	}
}

func TestDispatchExecuteUpgradeHashMismatchFails(t *testing.T) {
	s := store.New(nil)
	d := NewDispatcher(s, nil)
	cfg := config.Default()

	cmd := store.Command{Name: "execute_upgrade", Params: map[string]any{
		"package_ref": string(minimalWasmModule),
		"hash":        "not-the-real-hash",
	}}
	result, errMsg := d.Apply(cmd, &cfg)
	if result != "execution_failed" || errMsg == "" {
		t.Fatalf("expected execution_failed with an error, got %q %q", result, errMsg)
	}
}
