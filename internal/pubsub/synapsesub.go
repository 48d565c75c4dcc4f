// Package pubsub implements SynapseSub (spec §4.2): a topic-based
// gossip protocol built on libp2p's GossipSub, configured to the
// spec's interest-driven mesh bounds (D / D_lo / D_hi), with message
// deduplication and a per-topic Verifier gating forward-and-deliver.
// Message signatures are checked by GossipSub's default strict signing
// policy before the Verifier runs.
package pubsub

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"synapse-ng/internal/config"
)

// Verifier decides whether a message on a topic is forwarded and
// delivered; a false result drops it (spec §4.2 failure semantics). It
// runs after GossipSub has verified the message signature.
type Verifier func(topic string, from peer.ID, data []byte) bool

// Router wraps a libp2p GossipSub instance configured to the mesh
// bounds of spec §4.2, with an LRU cache of already-seen message ids
// used to drop duplicates. GossipSub keeps its own message cache for
// its IHAVE/IWANT gossip; this cache is separate from it.
type Router struct {
	ps       *pubsub.PubSub
	seen     *lru.Cache[string, struct{}]
	verifier Verifier
	log      *logrus.Entry

	topics map[string]*pubsub.Topic
	subs   map[string]*pubsub.Subscription
}

// NewRouter constructs a Router bound to h, applying the configured
// mesh targets to GossipSub's D/D_lo/D_hi parameters.
func NewRouter(ctx context.Context, h host.Host, cfg config.MeshTargets, verifier Verifier, log *logrus.Entry) (*Router, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "synapsesub")

	params := pubsub.DefaultGossipSubParams()
	params.D = cfg.D
	params.Dlo = cfg.Lo
	params.Dhi = cfg.Hi

	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithGossipSubParams(params))
	if err != nil {
		return nil, fmt.Errorf("construct gossipsub router: %w", err)
	}

	cache, err := lru.New[string, struct{}](4096)
	if err != nil {
		return nil, fmt.Errorf("construct dedup cache: %w", err)
	}

	return &Router{
		ps:       ps,
		seen:     cache,
		verifier: verifier,
		log:      log,
		topics:   map[string]*pubsub.Topic{},
		subs:     map[string]*pubsub.Subscription{},
	}, nil
}

// msgID is the dedup key: a topic-scoped content hash, standing in for
// the fringe's seen-cache membership test (spec §4.2).
func msgID(topic string, data []byte) string {
	h := sha256.Sum256(append([]byte(topic), data...))
	return string(h[:])
}

// Seen reports whether a (topic, payload) pair has already been
// observed, registering it if not — the gate every inbound message
// passes through before being forwarded or delivered.
func (r *Router) Seen(topic string, data []byte) bool {
	id := msgID(topic, data)
	if _, ok := r.seen.Get(id); ok {
		return true
	}
	r.seen.Add(id, struct{}{})
	return false
}

// Join subscribes to topic, registering Router's validator so that
// unsigned or non-member messages are dropped by GossipSub itself
// before reaching the application (spec §4.2 failure semantics).
func (r *Router) Join(topic string) (*pubsub.Subscription, error) {
	if sub, ok := r.subs[topic]; ok {
		return sub, nil
	}
	t, err := r.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("join topic %s: %w", topic, err)
	}
	if r.verifier != nil {
		validator := func(_ context.Context, from peer.ID, msg *pubsub.Message) bool {
			if r.Seen(topic, msg.Data) {
				return false
			}
			return r.verifier(topic, from, msg.Data)
		}
		if err := r.ps.RegisterTopicValidator(topic, validator); err != nil {
			return nil, fmt.Errorf("register validator for topic %s: %w", topic, err)
		}
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe to topic %s: %w", topic, err)
	}
	r.topics[topic] = t
	r.subs[topic] = sub
	return sub, nil
}

// Publish sends data on topic, joining it first if necessary.
func (r *Router) Publish(ctx context.Context, topic string, data []byte) error {
	t, ok := r.topics[topic]
	if !ok {
		if _, err := r.Join(topic); err != nil {
			return err
		}
		t = r.topics[topic]
	}
	return t.Publish(ctx, data)
}

// Leave unsubscribes from and closes a topic's handle.
func (r *Router) Leave(topic string) {
	if sub, ok := r.subs[topic]; ok {
		sub.Cancel()
		delete(r.subs, topic)
	}
	if t, ok := r.topics[topic]; ok {
		_ = t.Close()
		delete(r.topics, topic)
	}
}
