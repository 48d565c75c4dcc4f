package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"synapse-ng/internal/config"
	"synapse-ng/internal/store"
)

// Metrics exposes the live gauges scraped by the external metrics
// collaborator named in spec §1 (the HTTP/CLI surface is out of
// scope, but the Prometheus registry these gauges attach to is part
// of the ambient stack). Callers set them as observations arrive;
// HealthMonitorLoop reads the same observations through a Snapshot
// function rather than through the registry, since prometheus.Gauge
// does not expose a value-read API by design.
type Metrics struct {
	MeshSize        prometheus.Gauge
	DispatcherLag   prometheus.Gauge
	ValidatorUptime prometheus.Gauge
}

// NewMetrics registers the health-monitor gauges with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		MeshSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse_ng", Name: "mesh_size", Help: "current SynapseSub mesh size",
		}),
		DispatcherLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse_ng", Name: "dispatcher_lag_ms", Help: "execution log dispatch lag in milliseconds",
		}),
		ValidatorUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse_ng", Name: "validator_uptime_ratio", Help: "minimum observed validator uptime ratio",
		}),
	}
	for _, c := range []prometheus.Collector{m.MeshSize, m.DispatcherLag, m.ValidatorUptime} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register health metric: %w", err)
		}
	}
	return m, nil
}

// Snapshot is the health monitor's view of the same observations
// Metrics publishes to Prometheus, read from local state rather than
// scraped back out of the registry.
type Snapshot struct {
	MeshSize        float64
	DispatcherLagMS float64
	ValidatorUptime float64
}

// HealthMonitorLoop compares live metrics against config.health_targets
// and opens a config_change proposal — never mutating state directly —
// when a threshold is exceeded (spec §4.8).
func HealthMonitorLoop(s *store.Store, observe func() Snapshot, cfg *config.Config, selfNode, globalChannel string) LoopFunc {
	return func(ctx context.Context) error {
		snap := observe()

		var patch map[string]any
		switch {
		case snap.MeshSize < float64(cfg.HealthTargets.MinMeshSize):
			patch = map[string]any{"mesh.d_lo": cfg.Mesh.Lo + 1}
		case snap.DispatcherLagMS > float64(cfg.HealthTargets.MaxDispatcherLagMS):
			patch = map[string]any{"heartbeats.dispatcher_ms": cfg.Heartbeats.Dispatcher / 2}
		case snap.ValidatorUptime < cfg.HealthTargets.MinValidatorUptime:
			patch = map[string]any{"executive.validator_set_size": cfg.Executive.ValidatorSetSize + 1}
		default:
			return nil
		}

		proposal := &store.Proposal{
			ID:           uuid.NewString(),
			Channel:      globalChannel,
			Title:        "automated health-threshold remediation",
			ProposalType: store.ProposalConfigChange,
			Creator:      selfNode,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
			Status:       store.ProposalOpen,
			Params:       patch,
		}
		return s.ApplyLocal(store.Delta{Channel: globalChannel, Proposals: []*store.Proposal{proposal}})
	}
}
