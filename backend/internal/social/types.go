package social

import (
	"time"
)

// EventKind distinguishes the chat events the recorder understands
type EventKind int

const (
	// EventMessage is a regular guild text message
	EventMessage EventKind = iota
	// EventReaction is an emoji reaction added to a message
	EventReaction
)

// AddresseeSource records how an addressee was inferred from an event
type AddresseeSource int

const (
	// SourceMention means the addressee was explicitly mentioned
	SourceMention AddresseeSource = iota
	// SourceReply means the addressee authored the replied-to message
	SourceReply
	// SourceAmbient means the addressee recently spoke in the same channel
	SourceAmbient
	// SourceReaction means the addressee authored the reacted-to message
	SourceReaction
)

func (s AddresseeSource) String() string {
	switch s {
	case SourceMention:
		return "mention"
	case SourceReply:
		return "reply"
	case SourceAmbient:
		return "ambient"
	case SourceReaction:
		return "reaction"
	}
	return "unknown"
}

// InteractionEvent is a raw chat event as delivered by the gateway collaborator.
// Addressee inference happens inside the engine; the gateway only fills in what
// it saw on the wire.
type InteractionEvent struct {
	Kind      EventKind
	GuildID   string
	ChannelID string
	SpeakerID string
	Mentions  []string
	ReplyToID string // author of the replied-to (or reacted-to) message, if any
	Timestamp time.Time
}

// Addressee is one inferred recipient of an interaction
type Addressee struct {
	UserID string
	Source AddresseeSource
	Share  float64 // fraction of the source's base weight credited to this user
}

// MutationSummary reports what a recorded event changed
type MutationSummary struct {
	GuildID      string
	SpeakerID    string
	Addressees   []Addressee
	EdgesCreated int
	NodesCreated int
}

// Node is one guild member in the interaction graph
type Node struct {
	UserID   string
	Activity float64
	LastSeen time.Time
	// Last-known layout position, persisted across renders for stability
	X, Y   float64
	HasPos bool
}

// Edge is the undirected relationship between two users of one guild.
// UserA < UserB lexicographically; CountAB counts interactions initiated by
// UserA toward UserB and CountBA the reverse.
type Edge struct {
	UserA      string
	UserB      string
	Weight     float64
	CountAB    int64
	CountBA    int64
	LastUpdate time.Time
}

type edgeKey struct {
	a, b string
}

func newEdgeKey(u1, u2 string) edgeKey {
	if u1 < u2 {
		return edgeKey{a: u1, b: u2}
	}
	return edgeKey{a: u2, b: u1}
}

// Snapshot is an immutable point-in-time copy of one guild's graph. Edge
// weights are decayed as-of TakenAt. Never mutated after creation.
type Snapshot struct {
	GuildID string
	TakenAt time.Time
	Nodes   []Node
	Edges   []Edge
}

// EdgeStats are the accumulated statistics classification operates on
type EdgeStats struct {
	Weight  float64
	Age     time.Duration // elapsed since the edge's last update
	CountAB int64
	CountBA int64
}

// SymmetryRatio is min(countAB, countBA) / max(countAB, countBA), or zero when
// either direction has never fired.
func (s EdgeStats) SymmetryRatio() float64 {
	lo, hi := s.CountAB, s.CountBA
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 || lo == 0 {
		return 0
	}
	return float64(lo) / float64(hi)
}

// Position is a 2D coordinate in normalized layout space
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Layout maps node ids to normalized positions and cluster ids. It is paired
// with the snapshot it was computed from via GuildID and TakenAt.
type Layout struct {
	GuildID    string              `json:"guild_id"`
	TakenAt    time.Time           `json:"taken_at"`
	Positions  map[string]Position `json:"positions"`
	Clusters   map[string]string   `json:"clusters"`
	Converged  bool                `json:"converged"`
	Iterations int                 `json:"iterations"`
}

// PruneReport summarizes one pruning sweep
type PruneReport struct {
	Guilds       int
	EdgesRemoved int
	NodesRemoved int
}

// NodeRecord is the persistence form of a Node
type NodeRecord struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
	Activity float64   `json:"activity"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	HasPos   bool      `json:"has_pos"`
}

// EdgeRecord is the persistence form of an Edge
type EdgeRecord struct {
	UserA      string    `json:"user_a"`
	UserB      string    `json:"user_b"`
	Weight     float64   `json:"weight"`
	CountAB    int64     `json:"count_ab"`
	CountBA    int64     `json:"count_ba"`
	LastUpdate time.Time `json:"last_update"`
}

// GuildRecords is everything needed to reconstruct one guild graph and seed
// the next layout without discontinuity
type GuildRecords struct {
	GuildID string       `json:"guild_id"`
	Nodes   []NodeRecord `json:"nodes"`
	Edges   []EdgeRecord `json:"edges"`
}

// LabeledEdge pairs an edge with its classification for the render hand-off
type LabeledEdge struct {
	UserA  string  `json:"user_a"`
	UserB  string  `json:"user_b"`
	Weight float64 `json:"weight"`
	Label  Label   `json:"label"`
}

// RenderResult is the full render hand-off: the layout plus labeled edges.
// The engine never produces pixels; an external renderer consumes this.
type RenderResult struct {
	JobID     string        `json:"job_id"`
	GuildID   string        `json:"guild_id"`
	NodeCount int           `json:"node_count"`
	Layout    *Layout       `json:"layout"`
	Edges     []LabeledEdge `json:"edges"`
}
