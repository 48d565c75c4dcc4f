package executive

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"synapse-ng/internal/config"
	"synapse-ng/internal/store"
)

// Dispatcher consumes the execution log in order and applies each
// command's deterministic effect, per spec §4.6. A command whose
// preconditions no longer hold produces an execution_failed result
// without halting consumption of later entries.
type Dispatcher struct {
	store *store.Store
	log   *logrus.Entry
}

// NewDispatcher constructs a Dispatcher bound to store.
func NewDispatcher(s *store.Store, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{store: s, log: log.WithField("component", "executive-dispatcher")}
}

// Apply executes one command and returns the result string stored
// alongside the execution-log entry ("ok" or "execution_failed").
func (d *Dispatcher) Apply(cmd store.Command, cfg *config.Config) (result string, errMsg string) {
	var err error
	switch cmd.Name {
	case "split_channel":
		err = d.splitChannel(cmd.Params)
	case "merge_channels":
		err = d.mergeChannels(cmd.Params)
	case "update_config":
		err = d.updateConfig(cmd.Params, cfg)
	case "acquire_common_tool":
		err = d.acquireCommonTool(cmd.Params)
	case "deprecate_common_tool":
		err = d.deprecateCommonTool(cmd.Params)
	case "execute_upgrade":
		err = d.executeUpgrade(cmd.Params)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Name)
	}
	if err != nil {
		d.log.WithError(err).WithField("command", cmd.Name).Warn("execution_failed")
		return "execution_failed", err.Error()
	}
	return "ok", ""
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringSliceParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
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

func (d *Dispatcher) splitChannel(params map[string]any) error {
	target, ok := stringParam(params, "target")
	if !ok {
		return fmt.Errorf("split_channel: missing target")
	}
	newChannels := stringSliceParam(params, "new_channels")
	return d.store.SplitChannel(target, newChannels)
}

func (d *Dispatcher) mergeChannels(params map[string]any) error {
	target, ok := stringParam(params, "target")
	if !ok {
		return fmt.Errorf("merge_channels: missing target")
	}
	sources := stringSliceParam(params, "sources")
	return d.store.MergeChannels(sources, target)
}

func (d *Dispatcher) updateConfig(params map[string]any, cfg *config.Config) error {
	patched, err := cfg.ApplyPatch(params)
	if err != nil {
		return fmt.Errorf("update_config: %w", err)
	}
	*cfg = patched
	return nil
}

func (d *Dispatcher) acquireCommonTool(params map[string]any) error {
	channel, ok := stringParam(params, "channel")
	if !ok {
		return fmt.Errorf("acquire_common_tool: missing channel")
	}
	toolID, ok := stringParam(params, "tool_id")
	if !ok {
		return fmt.Errorf("acquire_common_tool: missing tool_id")
	}
	cost, _ := int64Param(params, "monthly_cost_sp")
	toolType, _ := stringParam(params, "type")
	description, _ := stringParam(params, "description")

	if d.store.EconomyEnabled() {
		if balance := d.store.TreasuryBalance(channel); balance < cost {
			return fmt.Errorf("acquire_common_tool: insufficient_funds: channel %q treasury=%d cost=%d", channel, balance, cost)
		}
	}

	tool := &store.CommonTool{
		ToolID:        toolID,
		Description:   description,
		Type:          toolType,
		MonthlyCostSP: cost,
		Status:        store.ToolActive,
		AcquiredAt:    time.Now().UTC(),
		LastPaymentAt: time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("acquire_common_tool: %w", err)
	}
	d.store.AcquireCommonTool(channel, tool)
	return nil
}

func (d *Dispatcher) deprecateCommonTool(params map[string]any) error {
	channel, ok := stringParam(params, "channel")
	if !ok {
		return fmt.Errorf("deprecate_common_tool: missing channel")
	}
	toolID, ok := stringParam(params, "tool_id")
	if !ok {
		return fmt.Errorf("deprecate_common_tool: missing tool_id")
	}
	return d.store.DeprecateCommonTool(channel, toolID)
}

func (d *Dispatcher) executeUpgrade(params map[string]any) error {
	hash, ok := stringParam(params, "hash")
	if !ok {
		return fmt.Errorf("execute_upgrade: missing hash")
	}
	packageRef, ok := stringParam(params, "package_ref")
	if !ok {
		return fmt.Errorf("execute_upgrade: missing package_ref")
	}
	// package_ref is opaque to this core (spec §6 self-upgrade
	// collaborator); here it is treated as the package bytes
	// themselves purely to exercise the hash/module verification step
	// this core is responsible for before handing off.
	return VerifyUpgradePackage([]byte(packageRef), hash)
}
