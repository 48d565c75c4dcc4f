// Package store holds the merged, replicated application state (spec
// §3, §4.3): channels, tasks, auctions, proposals, composite tasks,
// skills, reputation, common tools, and the global registries. It
// implements the CRDT merge rule and the schema validation gate that
// both apply_local and apply_remote pass every delta through.
package store

import "time"

// TaskStatus is the lifecycle state of a Task (spec §3).
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskClaimed    TaskStatus = "claimed"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// AuctionStatus is the lifecycle state of an embedded Auction.
type AuctionStatus string

const (
	AuctionOpen      AuctionStatus = "open"
	AuctionFinalized AuctionStatus = "finalized"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Bid is one bidder's entry in an Auction. Bids are LWW per bidder.
type Bid struct {
	Amount             int64     `json:"amount"`
	EstimatedDays      int       `json:"estimated_days"`
	ReputationSnapshot int64     `json:"reputation_snapshot"`
	Timestamp          time.Time `json:"timestamp"`
}

// Auction is embedded in a Task when the task is sold by sealed bid
// rather than claimed directly (spec §3 "Auction").
type Auction struct {
	Status       AuctionStatus  `json:"status"`
	MaxReward    int64          `json:"max_reward"`
	MaxDays      int            `json:"max_days"`
	Deadline     time.Time      `json:"deadline"`
	MinIncrement int64          `json:"min_increment"`
	Bids         map[string]Bid `json:"bids"` // bidder node_id -> bid
	Winner       string         `json:"winner,omitempty"`
	WinningBid   *Bid           `json:"winning_bid,omitempty"`
}

// Task is the unit of work tracked per channel (spec §3 "Task").
type Task struct {
	ID             string     `json:"id"`
	Channel        string     `json:"channel"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Tags           []string   `json:"tags"`
	Reward         int64      `json:"reward"`
	Status         TaskStatus `json:"status"`
	Creator        string     `json:"creator"`
	Assignee       string     `json:"assignee,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RequiredTools  []string   `json:"required_tools"`
	Auction        *Auction   `json:"auction,omitempty"`
	UpdatedBy      string     `json:"updated_by"`
}

// VoteChoice is a public or anonymous ballot's value.
type VoteChoice string

const (
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
)

// PublicVote is one voter's LWW public ballot.
type PublicVote struct {
	Vote      VoteChoice `json:"vote"`
	Timestamp time.Time  `json:"timestamp"`
}

// AnonymousVote is one append-only anonymous ballot, deduplicated by
// Nullifier (spec §4.4).
type AnonymousVote struct {
	Vote      VoteChoice `json:"vote"`
	Tier      int        `json:"tier"`
	Nullifier string     `json:"nullifier"`
	Timestamp time.Time  `json:"timestamp"`
}

// ProposalType selects which state-machine path a Proposal follows on
// approval (spec §3, §4.5).
type ProposalType string

const (
	ProposalGeneric         ProposalType = "generic"
	ProposalConfigChange    ProposalType = "config_change"
	ProposalNetworkOp       ProposalType = "network_operation"
	ProposalCodeUpgrade     ProposalType = "code_upgrade"
	ProposalCommand         ProposalType = "command"
)

// ProposalStatus is the proposal's position in the governance/executive
// state machine (spec §4.5, §4.6).
type ProposalStatus string

const (
	ProposalOpen               ProposalStatus = "open"
	ProposalClosed             ProposalStatus = "closed"
	ProposalPendingRatification ProposalStatus = "pending_ratification"
	ProposalExecuted           ProposalStatus = "executed"
	ProposalExecutionFailed    ProposalStatus = "execution_failed"
	ProposalArchived           ProposalStatus = "archived"
)

// Outcome is the tally result of a closed Proposal.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Command names a ratified executive operation and its parameters
// (spec §4.6). Params is interpreted per Name by the dispatcher.
type Command struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Proposal is a governance item (spec §3 "Proposal").
type Proposal struct {
	ID              string                   `json:"id"`
	Channel         string                   `json:"channel"`
	Title           string                   `json:"title"`
	Description     string                   `json:"description"`
	ProposalType    ProposalType             `json:"proposal_type"`
	Tags            []string                 `json:"tags"`
	Creator         string                   `json:"creator"`
	CreatedAt       time.Time                `json:"created_at"`
	Status          ProposalStatus           `json:"status"`
	Votes           map[string]PublicVote    `json:"votes"`
	AnonymousVotes  []AnonymousVote          `json:"anonymous_votes"`
	Outcome         Outcome                  `json:"outcome"`
	ClosedAt        *time.Time               `json:"closed_at,omitempty"`
	Params          map[string]any           `json:"params,omitempty"`
	Command         *Command                 `json:"command,omitempty"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// SubTask is one role within a CompositeTask.
type SubTask struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	RequiredSkills []string `json:"required_skills"`
	Reward         int64    `json:"reward"`
	Status         TaskStatus `json:"status"`
	Assignee       string   `json:"assignee,omitempty"`
}

// CompositeTask is a coordinator-led multi-role task (spec §3).
type CompositeTask struct {
	ID                 string     `json:"id"`
	Channel            string     `json:"channel"`
	Title              string     `json:"title"`
	SubTasks           []SubTask  `json:"sub_tasks"`
	MaxTeamSize        int        `json:"max_team_size"`
	CoordinatorBonus   int64      `json:"coordinator_bonus"`
	Coordinator        string     `json:"coordinator,omitempty"`
	Applicants         []string   `json:"applicants"`
	TeamMembers        map[string]bool `json:"team_members"` // grow-only set w/ tombstones (false = removed)
	WorkspaceChannel   string     `json:"workspace_channel,omitempty"`
	Status             TaskStatus `json:"status"`
	RewardsDistributed bool       `json:"rewards_distributed"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SkillsProfile is a per-node, per-channel declaration feeding
// composite-task skill-match scoring.
type SkillsProfile struct {
	Skills    []string  `json:"skills"`
	Bio       string    `json:"bio"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReputationRecord is the cache of a deterministically-derived
// reputation (spec §3, §4.7). `_total` and each tag are non-negative.
type ReputationRecord struct {
	Total        int64            `json:"_total"`
	Tags         map[string]int64 `json:"tags"`
	LastUpdated  time.Time        `json:"_last_updated"`
}

// ToolStatus is the lifecycle of a CommonTool.
type ToolStatus string

const (
	ToolActive     ToolStatus = "active"
	ToolDeprecated ToolStatus = "deprecated"
)

// CommonTool is a channel-owned, treasury-funded resource (spec §3).
type CommonTool struct {
	ToolID               string     `json:"tool_id"`
	Description          string     `json:"description"`
	Type                 string     `json:"type"`
	MonthlyCostSP        int64      `json:"monthly_cost_sp"`
	EncryptedCredentials []byte     `json:"encrypted_credentials"`
	Status               ToolStatus `json:"status"`
	AcquiredAt           time.Time  `json:"acquired_at"`
	LastPaymentAt        time.Time  `json:"last_payment_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Channel is a named logical shard (spec §3 "Channel").
type Channel struct {
	Name           string                    `json:"name"`
	Participants   map[string]bool           `json:"participants"` // grow-only set w/ tombstones
	Tasks          map[string]*Task          `json:"tasks"`
	Proposals      map[string]*Proposal      `json:"proposals"`
	CompositeTasks map[string]*CompositeTask `json:"composite_tasks"`
	CommonTools    map[string]*CommonTool    `json:"common_tools"`
	Skills         map[string]*SkillsProfile `json:"skills"` // node_id -> declared skills profile
	Archived       bool                      `json:"archived"`
	ArchivedInto   []string                  `json:"archived_into,omitempty"`
	SchemaOverride map[string]any            `json:"schema_override,omitempty"`
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:           name,
		Participants:   map[string]bool{},
		Tasks:          map[string]*Task{},
		Proposals:      map[string]*Proposal{},
		CompositeTasks: map[string]*CompositeTask{},
		CommonTools:    map[string]*CommonTool{},
		Skills:         map[string]*SkillsProfile{},
	}
}

// PeerRecord tracks a node's transport-layer liveness (spec §3 "Peer
// record"). Mutated only by the transport layer.
type PeerRecord struct {
	NodeID            string    `json:"node_id"`
	TransportAddrs    []string  `json:"transport_addresses"`
	LastSeen          time.Time `json:"last_seen"`
	LivenessState     string    `json:"liveness_state"` // discovered|connecting|connected|dead
}

// NodeRecord is an entry in the global `nodes` registry.
type NodeRecord struct {
	NodeID     string     `json:"node_id"`
	PublicKey  []byte     `json:"public_key"`
	Peer       PeerRecord `json:"peer"`
	JoinedAt   time.Time  `json:"joined_at"`
}

// PendingOperation is an approved executive command awaiting validator
// ratification before it is dispatched (spec §3, §4.6).
type PendingOperation struct {
	ProposalID    string          `json:"proposal_id"`
	Command       Command         `json:"command"`
	Ratifications map[string]bool `json:"ratifications"` // validator node_id -> true
	CreatedAt     time.Time       `json:"created_at"`
}

// ExecutionLogEntry is one append-only, totally-ordered, ratified
// command (spec §3, §4.6). The only strongly-ordered surface.
type ExecutionLogEntry struct {
	Sequence       uint64    `json:"sequence"`
	Command        Command   `json:"command"`
	OriginProposal string    `json:"origin_proposal_id"`
	Ratifiers      []string  `json:"ratifiers"`
	AppendedAt     time.Time `json:"appended_at"`
	Result         string    `json:"result"` // "ok" | "execution_failed"
	Error          string    `json:"error,omitempty"`
}

// Global holds network-wide entities living in the special `global`
// channel (spec §3).
type Global struct {
	Nodes             map[string]*NodeRecord       `json:"nodes"`
	ValidatorSet      []string                     `json:"validator_set"`
	PendingOperations map[string]*PendingOperation `json:"pending_operations"`
	ExecutionLog      []ExecutionLogEntry          `json:"execution_log"`
}

func newGlobal() *Global {
	return &Global{
		Nodes:             map[string]*NodeRecord{},
		PendingOperations: map[string]*PendingOperation{},
	}
}
