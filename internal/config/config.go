// Package config loads the single recognized-option map that backs
// global.config (spec §3, §6). It is the only place a config_change
// proposal's param patch is allowed to touch: unknown keys are rejected
// rather than silently carried, per the "dynamic config dictionaries"
// re-architecture note.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"synapse-ng/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// AuctionWeights are the scoring weights used at auction finalization
// (spec §4.7). They must sum to 1.0.
type AuctionWeights struct {
	Cost       float64 `mapstructure:"cost" json:"cost"`
	Reputation float64 `mapstructure:"reputation" json:"reputation"`
	Time       float64 `mapstructure:"time" json:"time"`
}

// MeshTargets are the SynapseSub mesh bounds (spec §4.2).
type MeshTargets struct {
	D   int `mapstructure:"d" json:"d"`
	Lo  int `mapstructure:"d_lo" json:"d_lo"`
	Hi  int `mapstructure:"d_hi" json:"d_hi"`
}

// HeartbeatIntervals groups the periods of the cooperative loops in
// spec §4.8.
type HeartbeatIntervals struct {
	Transport   int `mapstructure:"transport_ms" json:"transport_ms"`
	Pubsub      int `mapstructure:"pubsub_ms" json:"pubsub_ms"`
	DigestSync  int `mapstructure:"digest_sync_ms" json:"digest_sync_ms"`
	AutoClose   int `mapstructure:"auto_close_ms" json:"auto_close_ms"`
	Auction     int `mapstructure:"auction_sweep_ms" json:"auction_sweep_ms"`
	Rotation    int `mapstructure:"validator_rotation_ms" json:"validator_rotation_ms"`
	Dispatcher  int `mapstructure:"dispatcher_ms" json:"dispatcher_ms"`
	Decay       int `mapstructure:"decay_ms" json:"decay_ms"`
	ToolUpkeep  int `mapstructure:"tool_upkeep_ms" json:"tool_upkeep_ms"`
	HealthCheck int `mapstructure:"health_check_ms" json:"health_check_ms"`
}

// HealthTargets are the thresholds the health monitor (spec §4.8)
// compares live metrics against before opening a config_change proposal.
type HealthTargets struct {
	MinMeshSize        int     `mapstructure:"min_mesh_size" json:"min_mesh_size"`
	MaxDispatcherLagMS int     `mapstructure:"max_dispatcher_lag_ms" json:"max_dispatcher_lag_ms"`
	MinValidatorUptime float64 `mapstructure:"min_validator_uptime" json:"min_validator_uptime"`
}

// Config is the unified, strongly typed configuration that backs
// global.config. Every field here is a recognized option; there is no
// escape hatch for arbitrary keys.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		MaxMissedBeats int      `mapstructure:"max_missed_heartbeats" json:"max_missed_heartbeats"`
		DialTimeoutMS  int      `mapstructure:"dial_timeout_ms" json:"dial_timeout_ms"`
		PeerDeadAfterS int      `mapstructure:"peer_dead_after_s" json:"peer_dead_after_s"`
	} `mapstructure:"network" json:"network"`

	Mesh MeshTargets `mapstructure:"mesh" json:"mesh"`

	Heartbeats HeartbeatIntervals `mapstructure:"heartbeats" json:"heartbeats"`

	Economy struct {
		InitialBalance        int64   `mapstructure:"initial_balance" json:"initial_balance"`
		TaxRate               float64 `mapstructure:"tax_rate" json:"tax_rate"`
		TaskCompletionReward  int64   `mapstructure:"task_completion_reward" json:"task_completion_reward"`
		VoteReward            int64   `mapstructure:"vote_reward" json:"vote_reward"`
		DecayRateDaily        float64 `mapstructure:"decay_rate_daily" json:"decay_rate_daily"`
		MonthlyCadenceHours   int     `mapstructure:"monthly_cadence_hours" json:"monthly_cadence_hours"`
		AuctionWeights        AuctionWeights `mapstructure:"auction_weights" json:"auction_weights"`
	} `mapstructure:"economy" json:"economy"`

	Executive struct {
		ValidatorSetSize        int    `mapstructure:"validator_set_size" json:"validator_set_size"`
		ValidatorRotationPeriodS int   `mapstructure:"validator_rotation_period_s" json:"validator_rotation_period_s"`
		MinUptimeS              int    `mapstructure:"min_uptime_s" json:"min_uptime_s"`
		RatificationQuorumFormula string `mapstructure:"ratification_quorum_formula" json:"ratification_quorum_formula"`
	} `mapstructure:"executive" json:"executive"`

	Governance struct {
		AutoCloseHours          float64            `mapstructure:"auto_close_hours" json:"auto_close_hours"`
		AnonymousVoteBonusAlpha float64            `mapstructure:"anonymous_vote_bonus_alpha" json:"anonymous_vote_bonus_alpha"`
		TierThresholds          []int64            `mapstructure:"tier_thresholds" json:"tier_thresholds"`
		TierWeights             []float64          `mapstructure:"tier_weights" json:"tier_weights"`
	} `mapstructure:"governance" json:"governance"`

	HealthTargets HealthTargets `mapstructure:"health_targets" json:"health_targets"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns the baseline configuration used when no file or
// config_change proposal has overridden a value yet. Values mirror the
// scenarios in spec.md §8.
func Default() Config {
	var c Config
	c.Network.ListenAddr = "/ip4/0.0.0.0/udp/0/webrtc-direct"
	c.Network.DiscoveryTag = "synapse-ng"
	c.Network.MaxPeers = 64
	c.Network.MaxMissedBeats = 3
	c.Network.DialTimeoutMS = 5000
	c.Network.PeerDeadAfterS = 300

	c.Mesh = MeshTargets{D: 6, Lo: 4, Hi: 12}

	c.Heartbeats = HeartbeatIntervals{
		Transport:   10_000,
		Pubsub:      1_000,
		DigestSync:  30_000,
		AutoClose:   60_000,
		Auction:     15_000,
		Rotation:    3_600_000,
		Dispatcher:  500,
		Decay:       86_400_000,
		ToolUpkeep:  3_600_000,
		HealthCheck: 30_000,
	}

	c.Economy.InitialBalance = 1000
	c.Economy.TaxRate = 0.02
	c.Economy.TaskCompletionReward = 10
	c.Economy.VoteReward = 1
	c.Economy.DecayRateDaily = 0.01
	c.Economy.MonthlyCadenceHours = 24 * 30
	c.Economy.AuctionWeights = AuctionWeights{Cost: 0.4, Reputation: 0.4, Time: 0.2}

	c.Executive.ValidatorSetSize = 7
	c.Executive.ValidatorRotationPeriodS = 3600
	c.Executive.MinUptimeS = 600
	c.Executive.RatificationQuorumFormula = "floor(n/2)+1"

	c.Governance.AutoCloseHours = 72
	c.Governance.AnonymousVoteBonusAlpha = 0.5
	c.Governance.TierThresholds = []int64{0, 10, 50, 200}
	c.Governance.TierWeights = []float64{0.5, 1, 2, 4}

	c.HealthTargets = HealthTargets{MinMeshSize: 3, MaxDispatcherLagMS: 5000, MinValidatorUptime: 0.8}

	c.Logging.Level = "info"
	return c
}

// Load reads the recognized configuration file (if present) and any
// SYNAPSE_-prefixed environment overrides, merging them on top of
// Default(). An environment variable names a key with dots replaced by
// underscores (SYNAPSE_ECONOMY_TAX_RATE for economy.tax_rate). It never
// accepts unrecognized keys: viper.UnmarshalExact fails on any key not
// declared on Config.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	base, err := json.Marshal(cfg)
	if err != nil {
		return nil, utils.Wrap(err, "encode default config")
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, utils.Wrap(err, "load default config")
	}
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, "load config")
		}
	}
	v.SetEnvPrefix("SYNAPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, utils.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the system assumes hold
// for config at all times (auction weights summing to 1, mesh bounds
// ordered, at least one tier).
func (c Config) Validate() error {
	sum := c.Economy.AuctionWeights.Cost + c.Economy.AuctionWeights.Reputation + c.Economy.AuctionWeights.Time
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("auction_weights must sum to 1.0, got %f", sum)
	}
	if c.Mesh.Lo > c.Mesh.D || c.Mesh.D > c.Mesh.Hi {
		return fmt.Errorf("mesh targets must satisfy d_lo <= d <= d_hi, got %+v", c.Mesh)
	}
	if len(c.Governance.TierThresholds) != len(c.Governance.TierWeights) {
		return fmt.Errorf("tier_thresholds and tier_weights must be the same length")
	}
	if len(c.Governance.TierThresholds) == 0 {
		return fmt.Errorf("at least one reputation tier is required")
	}
	return nil
}

// ApplyPatch deep-merges a recognized-option patch (the payload of a
// ratified update_config command, spec §4.6) into a copy of c. Unknown
// keys cause a validation-kind error rather than being silently carried.
func (c Config) ApplyPatch(patch map[string]any) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	base, err := json.Marshal(c)
	if err != nil {
		return c, err
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return c, err
	}
	for k, val := range patch {
		v.Set(k, val)
	}
	var out Config
	if err := v.UnmarshalExact(&out); err != nil {
		return c, utils.Wrap(err, "apply config patch")
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}
