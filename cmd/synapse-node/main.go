// Command synapse-node runs a single Synapse-NG node: it loads
// identity and configuration, joins the transport and pub/sub layers,
// replays its durable journal, and starts the cooperative background
// loops named in SPEC_FULL.md §4.8. The HTTP surface below is the
// illustrative, non-core boundary named in SPEC_FULL.md §1/§6 — a
// health/metrics endpoint, not a governance or economy API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	libp2pps "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"synapse-ng/internal/config"
	"synapse-ng/internal/economy"
	"synapse-ng/internal/executive"
	"synapse-ng/internal/governance"
	"synapse-ng/internal/identity"
	"synapse-ng/internal/journal"
	"synapse-ng/internal/pubsub"
	"synapse-ng/internal/scheduler"
	"synapse-ng/internal/store"
	"synapse-ng/internal/transport"
)

const globalChannel = "global"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, SYNAPSE_ env vars also apply)")
	dataDir := flag.String("data-dir", "./data", "directory holding this node's identity, journal, and snapshot")
	httpAddr := flag.String("http-addr", ":8080", "address for the illustrative health/metrics HTTP boundary")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)
	sugar := zap.L().Sugar()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		sugar.Fatalw("create data dir", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		sugar.Fatalw("load config", "error", err)
	}

	logrus.SetLevel(parseLevel(cfg.Logging.Level))
	log := logrus.NewEntry(logrus.StandardLogger())

	id, err := identity.LoadOrCreate(*dataDir + "/identity.json")
	if err != nil {
		sugar.Fatalw("load or create identity", "error", err)
	}
	sugar.Infow("node identity ready", "node_id", id.NodeID())

	s := store.New(log)
	s.SetEconomyParams(cfg.Economy.InitialBalance, cfg.Economy.TaxRate)
	reg := prometheus.NewRegistry()
	metrics, err := scheduler.NewMetrics(reg)
	if err != nil {
		sugar.Fatalw("register metrics", "error", err)
	}

	j, err := journal.Open(*dataDir)
	if err != nil {
		sugar.Fatalw("open journal", "error", err)
	}
	defer j.Close()
	if err := journal.Recover(j, s); err != nil {
		sugar.Fatalw("recover from journal", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := transport.NewHost(ctx, id, *cfg, log)
	if err != nil {
		sugar.Fatalw("construct transport host", "error", err)
	}
	defer host.Close()

	router, err := pubsub.NewRouter(ctx, host.Host, cfg.Mesh, membershipVerifier(s), log)
	if err != nil {
		sugar.Fatalw("construct pubsub router", "error", err)
	}

	dispatcher := executive.NewDispatcher(s, log)

	sched := scheduler.New(log)
	loopCtx := sched.WithCancel(ctx)

	reputation := func(node string) (int64, map[string]int64) {
		rep := deriveReputations(s, cfg)
		r, ok := rep[node]
		if !ok {
			return 0, nil
		}
		return r.Total, r.Tags
	}

	sched.Register(loopCtx, "auto_close", time.Duration(cfg.Heartbeats.AutoClose)*time.Millisecond,
		scheduler.AutoCloseLoop(s, governance.ReputationLookup(reputation), cfg))
	sched.Register(loopCtx, "auction_sweep", time.Duration(cfg.Heartbeats.Auction)*time.Millisecond,
		scheduler.AuctionSweepLoop(s, cfg))
	sched.Register(loopCtx, "validator_rotation", time.Duration(cfg.Executive.ValidatorRotationPeriodS)*time.Second,
		scheduler.ValidatorRotationLoop(s, func() []executive.NodeStatus { return candidateNodes(s, cfg) }, cfg))

	var lastPersisted uint64
	sched.Register(loopCtx, "dispatcher_drain", time.Duration(cfg.Heartbeats.Dispatcher)*time.Millisecond,
		scheduler.DispatcherDrainLoop(s, j, &lastPersisted))

	// decayingReputations is the long-lived, decay-bearing reputation
	// cache: unlike the always-fresh reputation() lookup above, entries
	// here persist decay applied by prior ticks. rawReputations tracks
	// the last-observed undecayed totals so each tick can credit only
	// the gain accrued since the previous tick onto the decayed cache.
	decayingReputations := map[string]*economy.Reputation{}
	rawReputations := map[string]*economy.Reputation{}
	sched.Register(loopCtx, "decay", time.Duration(cfg.Heartbeats.Decay)*time.Millisecond,
		func(ctx context.Context) error {
			creditReputationGains(decayingReputations, rawReputations, deriveReputations(s, cfg))
			return scheduler.DecayLoop(decayingReputations, cfg.Economy.DecayRateDaily)(ctx)
		})

	sched.Register(loopCtx, "tool_maintenance", time.Duration(cfg.Heartbeats.ToolUpkeep)*time.Millisecond,
		scheduler.ToolMaintenanceLoop(s, time.Duration(cfg.Economy.MonthlyCadenceHours)*time.Hour,
			s.TreasuryBalance, toolMaintenanceDebit(s)))

	sched.Register(loopCtx, "health_monitor", time.Duration(cfg.Heartbeats.HealthCheck)*time.Millisecond,
		scheduler.HealthMonitorLoop(s, func() scheduler.Snapshot {
			meshSize := float64(len(host.Peers.Snapshot()))
			uptime := minValidatorUptime(candidateNodes(s, cfg))
			execLog := s.ExecutionLog()
			lag := float64(0)
			if n := len(execLog); n > 0 && execLog[n-1].Sequence > lastPersisted {
				lag = float64(execLog[n-1].Sequence-lastPersisted) * float64(cfg.Heartbeats.Dispatcher)
			}
			metrics.MeshSize.Set(meshSize)
			metrics.ValidatorUptime.Set(uptime)
			metrics.DispatcherLag.Set(lag)
			return scheduler.Snapshot{MeshSize: meshSize, DispatcherLagMS: lag, ValidatorUptime: uptime}
		}, cfg, string(id.NodeID()), globalChannel))

	globalSub, err := router.Join(globalChannel)
	if err != nil {
		sugar.Fatalw("join global topic", "error", err)
	}
	go ingestGlobalTopic(ctx, globalSub, s, j, dispatcher, cfg, sugar)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *httpAddr, Handler: r}
	go func() {
		sugar.Infow("http boundary listening", "addr", *httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Errorw("http server exited", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()

	snap := s.TakeSnapshot()
	if err := j.SaveSnapshot(snap); err != nil {
		sugar.Errorw("save final snapshot", "error", err)
	}
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// deriveReputations replays completed tasks and cast votes across
// every channel into the deterministic event history
// economy.DeriveReputations folds over (spec §4.7) — reputation is
// never pointwise-merged state, so every node recomputes it the same
// way from the same replicated records.
func deriveReputations(s *store.Store, cfg *config.Config) map[string]*economy.Reputation {
	var history []economy.Event
	for _, name := range s.ChannelNames() {
		ch, ok := s.Channel(name)
		if !ok {
			continue
		}
		for _, t := range ch.Tasks {
			if t.Status == store.TaskCompleted && t.Assignee != "" {
				history = append(history, economy.Event{
					Kind: economy.EventTaskCompleted, Node: t.Assignee, Channel: name,
					Amount: t.Reward, Tags: t.Tags, Timestamp: t.UpdatedAt,
				})
			}
		}
		for _, p := range ch.Proposals {
			for voter := range p.Votes {
				history = append(history, economy.Event{
					Kind: economy.EventVoteCast, Node: voter, Channel: name, Timestamp: p.UpdatedAt,
				})
			}
		}
	}
	return economy.DeriveReputations(history, cfg.Economy.TaskCompletionReward, cfg.Economy.VoteReward)
}

// creditReputationGains folds the gain each node accrued since the last
// tick (fresh minus the last-observed raw snapshot) onto cache, which
// may already carry decay applied by prior ticks, then records fresh as
// the new raw baseline. This lets reputation decay (a wall-clock
// process) coexist with reputation totals that are otherwise always
// recomputed fresh from the replicated task/vote history (spec §4.7).
func creditReputationGains(cache, lastRaw map[string]*economy.Reputation, fresh map[string]*economy.Reputation) {
	for node, f := range fresh {
		prev := lastRaw[node]
		gainTotal := f.Total
		gainTags := map[string]int64{}
		if prev != nil {
			gainTotal -= prev.Total
			for tag, v := range f.Tags {
				gainTags[tag] = v - prev.Tags[tag]
			}
		} else {
			for tag, v := range f.Tags {
				gainTags[tag] = v
			}
		}

		c, ok := cache[node]
		if !ok {
			c = &economy.Reputation{Tags: map[string]int64{}}
			cache[node] = c
		}
		c.Total += gainTotal
		for tag, v := range gainTags {
			c.Tags[tag] += v
		}
		if f.LastUpdated.After(c.LastUpdated) {
			c.LastUpdated = f.LastUpdated
		}

		rawCopy := *f
		rawCopy.Tags = make(map[string]int64, len(f.Tags))
		for tag, v := range f.Tags {
			rawCopy.Tags[tag] = v
		}
		lastRaw[node] = &rawCopy
	}
}

// toolMaintenanceDebit appends an execution-log entry recording a
// monthly common-tool debit so Store.DeriveBalances folds it into the
// channel's treasury balance on every subsequent derivation, the same
// way an acquire_common_tool command already does (spec §4.7, §4.8
// "Common-tool maintenance").
func toolMaintenanceDebit(s *store.Store) func(channel string, amount int64) {
	return func(channel string, amount int64) {
		entry := store.ExecutionLogEntry{
			Sequence: s.NextSequence(),
			Command: store.Command{
				Name:   "tool_maintenance_debit",
				Params: map[string]any{"channel": channel, "monthly_cost_sp": amount},
			},
			AppendedAt: time.Now().UTC(),
			Result:     "ok",
		}
		_ = s.ApplyLocal(store.Delta{ExecutionLog: []store.ExecutionLogEntry{entry}})
	}
}

func candidateNodes(s *store.Store, cfg *config.Config) []executive.NodeStatus {
	nodes := s.Nodes()
	rep := deriveReputations(s, cfg)
	out := make([]executive.NodeStatus, 0, len(nodes))
	for id, n := range nodes {
		uptime := 0.0
		if n.Peer.LivenessState == "connected" {
			uptime = 1.0
		}
		total := int64(0)
		if r, ok := rep[id]; ok {
			total = r.Total
		}
		out = append(out, executive.NodeStatus{NodeID: id, ReputationTotal: total, UptimeRatio: uptime})
	}
	return out
}

// globalEnvelope is the wire shape carried on the global topic: either
// a CRDT delta to merge, or a validator's ratification of a pending
// operation (spec §4.3 replication, §4.6 ratification).
type globalEnvelope struct {
	Kind         string              `json:"kind"`
	Delta        *store.Delta        `json:"delta,omitempty"`
	Ratification *ratificationNotice `json:"ratification,omitempty"`
}

type ratificationNotice struct {
	ProposalID       string `json:"proposal_id"`
	Channel          string `json:"channel"`
	ValidatorID      string `json:"validator_id"`
	ValidatorSetSize int    `json:"validator_set_size"`
}

// ingestGlobalTopic applies every inbound delta to the local replica
// and drives the ratify-to-execute pipeline for ratification notices,
// for as long as ctx is alive.
func ingestGlobalTopic(ctx context.Context, sub *libp2pps.Subscription, s *store.Store, j *journal.Journal, d *executive.Dispatcher, cfg *config.Config, sugar *zap.SugaredLogger) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		var env globalEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			sugar.Warnw("discard malformed global message", "error", err)
			continue
		}
		switch env.Kind {
		case "delta":
			if env.Delta == nil {
				continue
			}
			if err := s.ApplyRemote(*env.Delta); err != nil {
				sugar.Warnw("reject remote delta", "error", err)
			}
		case "ratification":
			if env.Ratification == nil {
				continue
			}
			r := env.Ratification
			if err := executive.Ratify(s, j, d, cfg, r.ProposalID, r.Channel, r.ValidatorID, r.ValidatorSetSize, time.Now().UTC()); err != nil {
				sugar.Warnw("ratification failed", "error", err)
			}
		}
	}
}

// minValidatorUptime is the lowest uptime ratio among validator-set
// candidates, the signal the health monitor compares against
// health_targets.min_validator_uptime (spec §4.8).
func minValidatorUptime(candidates []executive.NodeStatus) float64 {
	if len(candidates) == 0 {
		return 1
	}
	min := candidates[0].UptimeRatio
	for _, c := range candidates[1:] {
		if c.UptimeRatio < min {
			min = c.UptimeRatio
		}
	}
	return min
}

// membershipVerifier gates forwarded SynapseSub messages on the
// sender node currently being a known participant of the channel the
// topic names (spec §4.2 failure semantics). Message signatures are
// verified by GossipSub's default strict signing policy before this
// validator runs; this check only enforces membership.
func membershipVerifier(s *store.Store) pubsub.Verifier {
	return func(topic string, from peer.ID, _ []byte) bool {
		ch, ok := s.Channel(topic)
		if !ok {
			return false
		}
		return ch.Participants[from.String()]
	}
}
