package store

import "fmt"

// The methods in this file are the only store mutations not reached
// through ApplyLocal/ApplyRemote: they are invoked exclusively by the
// executive command dispatcher after a command has cleared
// ratification, so they bypass the LWW merge rule by design — the
// execution log is already the single totally-ordered source of truth
// for these effects (spec §4.6).

// EnsureChannel returns (creating if absent) the named channel.
func (s *Store) EnsureChannel(name string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelLocked(name)
}

// SplitChannel implements the split_channel command: creates each new
// channel, moves every task and proposal into the first new channel
// listed, and archives the source with back-references (spec §4.6).
// The command's split_logic and split_params are not read: nothing is
// distributed to the other new channels, by tag or otherwise.
func (s *Store) SplitChannel(target string, newChannels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.channels[target]
	if !ok {
		return fmt.Errorf("split_channel: unknown channel %q", target)
	}
	if len(newChannels) == 0 {
		return fmt.Errorf("split_channel: no destination channels given")
	}
	for _, name := range newChannels {
		s.channelLocked(name)
	}
	dest := s.channels[newChannels[0]]
	for id, t := range src.Tasks {
		t.Channel = dest.Name
		dest.Tasks[id] = t
	}
	for id, p := range src.Proposals {
		p.Channel = dest.Name
		dest.Proposals[id] = p
	}
	src.Archived = true
	src.ArchivedInto = append([]string{}, newChannels...)
	return nil
}

// MergeChannels implements the merge_channels command: unions every
// source channel's tasks, proposals and common tools into target
// (composite tasks, participants and skills are not carried over;
// later sources losing to
// earlier ones on id collision, a deterministic and stable rule since
// sources is an ordered list) and archives the sources.
func (s *Store) MergeChannels(sources []string, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dest := s.channelLocked(target)
	for _, name := range sources {
		src, ok := s.channels[name]
		if !ok {
			continue
		}
		for id, t := range src.Tasks {
			if _, exists := dest.Tasks[id]; !exists {
				t.Channel = dest.Name
				dest.Tasks[id] = t
			}
		}
		for id, p := range src.Proposals {
			if _, exists := dest.Proposals[id]; !exists {
				p.Channel = dest.Name
				dest.Proposals[id] = p
			}
		}
		for id, c := range src.CommonTools {
			if _, exists := dest.CommonTools[id]; !exists {
				dest.CommonTools[id] = c
			}
		}
		src.Archived = true
		src.ArchivedInto = []string{target}
	}
	return nil
}

// AcquireCommonTool installs a new active common tool record in
// channel. It is a raw mutation, like the rest of this file: it does
// not itself check treasury affordability. The dispatcher's
// acquireCommonTool confirms the channel treasury can afford the
// monthly cost, via Store.TreasuryBalance, before calling this.
func (s *Store) AcquireCommonTool(channel string, tool *CommonTool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channelLocked(channel)
	ch.CommonTools[tool.ToolID] = tool
}

// DeprecateCommonTool implements the deprecate_common_tool command.
func (s *Store) DeprecateCommonTool(channel, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channel]
	if !ok {
		return fmt.Errorf("deprecate_common_tool: unknown channel %q", channel)
	}
	tool, ok := ch.CommonTools[toolID]
	if !ok {
		return fmt.Errorf("deprecate_common_tool: unknown tool %q in channel %q", toolID, channel)
	}
	tool.Status = ToolDeprecated
	return nil
}

// SetProposalStatus directly sets a proposal's terminal status,
// used by the dispatcher to record executed/execution_failed after
// replaying the proposal's command (spec §4.6).
func (s *Store) SetProposalStatus(channel, proposalID string, status ProposalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", channel)
	}
	p, ok := ch.Proposals[proposalID]
	if !ok {
		return fmt.Errorf("unknown proposal %q", proposalID)
	}
	p.Status = status
	return nil
}
