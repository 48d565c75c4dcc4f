package store

import (
	"encoding/json"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Digest is a compact per-channel fingerprint used by the periodic
// anti-entropy sync (spec §4.3 "digest sync"): two peers exchange
// digests, and only request full records for entries whose hash
// disagrees, instead of re-gossiping the entire state on every tick.
type Digest struct {
	Channel      string            `json:"channel"`
	TaskHashes   map[string]string `json:"task_hashes"`
	ProposalHash map[string]string `json:"proposal_hashes"`
	CompositeHash map[string]string `json:"composite_hashes"`
	ToolHash     map[string]string `json:"tool_hashes"`
}

func hashOf(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(raw)
	return string(sum[:8])
}

// ChannelDigest computes the Digest for one channel.
func (s *Store) ChannelDigest(name string) Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := Digest{
		Channel:       name,
		TaskHashes:    map[string]string{},
		ProposalHash:  map[string]string{},
		CompositeHash: map[string]string{},
		ToolHash:      map[string]string{},
	}
	ch, ok := s.channels[name]
	if !ok {
		return d
	}
	for id, t := range ch.Tasks {
		d.TaskHashes[id] = hashOf(t)
	}
	for id, p := range ch.Proposals {
		d.ProposalHash[id] = hashOf(p)
	}
	for id, c := range ch.CompositeTasks {
		d.CompositeHash[id] = hashOf(c)
	}
	for id, c := range ch.CommonTools {
		d.ToolHash[id] = hashOf(c)
	}
	return d
}

// Diff reports the record ids in a peer's digest that are missing
// locally or whose local hash differs from the peer's — the set the
// local node should request in full from that peer.
func (s *Store) Diff(remote Digest) []string {
	local := s.ChannelDigest(remote.Channel)
	var want []string
	for id, h := range remote.TaskHashes {
		if local.TaskHashes[id] != h {
			want = append(want, "task:"+id)
		}
	}
	for id, h := range remote.ProposalHash {
		if local.ProposalHash[id] != h {
			want = append(want, "proposal:"+id)
		}
	}
	for id, h := range remote.CompositeHash {
		if local.CompositeHash[id] != h {
			want = append(want, "composite:"+id)
		}
	}
	for id, h := range remote.ToolHash {
		if local.ToolHash[id] != h {
			want = append(want, "tool:"+id)
		}
	}
	sort.Strings(want)
	return want
}
