package social

import (
	"math"
	"time"

	"go.uber.org/zap"

	"sociogram/backend/internal/constants"
	apperrors "sociogram/backend/pkg/errors"
)

// RecorderConfig tunes addressee inference and weight contributions. The
// qualitative contract is fixed (explicit signals dominate, ambient inference
// only applies absent them); everything numeric is configuration.
type RecorderConfig struct {
	MentionWeight  float64
	ReplyWeight    float64
	AmbientWeight  float64
	ReactionWeight float64

	// AmbientSpeakers is K: how many distinct recent speakers are credited
	AmbientSpeakers int
	// AmbientWindow is T: how far back a recent speaker still counts
	AmbientWindow time.Duration
	// HistorySize bounds the per-channel history ring
	HistorySize int
}

// DefaultRecorderConfig returns the stock inference tuning
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MentionWeight:   2.0,
		ReplyWeight:     1.5,
		AmbientWeight:   0.5,
		ReactionWeight:  0.25,
		AmbientSpeakers: 3,
		AmbientWindow:   2 * time.Minute,
		HistorySize:     constants.ChannelHistorySize,
	}
}

// Recorder converts raw chat events into graph mutations
type Recorder struct {
	cfg    RecorderConfig
	logger *zap.Logger
}

// NewRecorder creates a recorder with the given tuning
func NewRecorder(cfg RecorderConfig, logger *zap.Logger) *Recorder {
	return &Recorder{cfg: cfg, logger: logger}
}

type historyEntry struct {
	speakerID string
	at        time.Time
}

// channelHistory is inference state, not graph state: it advances even when an
// event is rejected, so rejection still leaves the graph untouched.
type channelHistory struct {
	// Newest entries first
	entries []historyEntry
}

func (h *channelHistory) push(speakerID string, at time.Time, limit int) {
	h.entries = append([]historyEntry{{speakerID: speakerID, at: at}}, h.entries...)
	if len(h.entries) > limit {
		h.entries = h.entries[:limit]
	}
}

// record validates the event, infers addressees, and applies decay-then-add to
// the guild graph. The caller holds the guild lock, which makes the whole
// mutation atomic relative to other mutations on the same guild.
func (r *Recorder) record(g *guildGraph, ev *InteractionEvent) (*MutationSummary, error) {
	if ev.SpeakerID == "" {
		return nil, apperrors.NewInvalidEvent("missing speaker")
	}
	if ev.GuildID == "" {
		return nil, apperrors.NewInvalidEvent("missing guild")
	}

	addressees := r.inferAddressees(g, ev)

	// The speaker joins the channel history whether or not anything was
	// inferred; their message is context for whoever speaks next.
	if ev.Kind == EventMessage && ev.ChannelID != "" {
		g.channelHistory(ev.ChannelID).push(ev.SpeakerID, ev.Timestamp, r.cfg.HistorySize)
	}

	if len(addressees) == 0 {
		return nil, apperrors.NewInvalidEvent("no resolvable addressee")
	}

	summary := &MutationSummary{
		GuildID:    ev.GuildID,
		SpeakerID:  ev.SpeakerID,
		Addressees: addressees,
	}

	speaker, created := g.node(ev.SpeakerID)
	if created {
		summary.NodesCreated++
	}
	touch(speaker, ev.Timestamp)

	for _, a := range addressees {
		contribution := r.baseWeight(a.Source) * a.Share

		target, created := g.node(a.UserID)
		if created {
			summary.NodesCreated++
		}
		touch(target, ev.Timestamp)
		speaker.Activity += contribution
		target.Activity += contribution

		key := newEdgeKey(ev.SpeakerID, a.UserID)
		edge, ok := g.edges[key]
		if !ok {
			edge = &Edge{UserA: key.a, UserB: key.b, LastUpdate: ev.Timestamp}
			g.edges[key] = edge
			summary.EdgesCreated++
		}

		// Lazy decay: catch the edge up to the event's instant before adding,
		// so idle graphs never need a global decay sweep.
		if dt := ev.Timestamp.Sub(edge.LastUpdate); dt > 0 {
			edge.Weight = decayedWeight(edge.Weight, dt, g.halfLife)
			edge.LastUpdate = ev.Timestamp
		}

		edge.Weight += contribution
		if edge.Weight > g.weightCap {
			edge.Weight = g.weightCap
		}

		if ev.SpeakerID == key.a {
			edge.CountAB++
		} else {
			edge.CountBA++
		}
	}

	g.layoutStale = true

	return summary, nil
}

// inferAddressees resolves who an event was directed at, in precedence order:
// explicit mentions, then the reply target, then ambient proximity.
func (r *Recorder) inferAddressees(g *guildGraph, ev *InteractionEvent) []Addressee {
	if ev.Kind == EventReaction {
		if ev.ReplyToID == "" || ev.ReplyToID == ev.SpeakerID {
			return nil
		}
		return []Addressee{{UserID: ev.ReplyToID, Source: SourceReaction, Share: 1}}
	}

	var out []Addressee
	seen := map[string]bool{ev.SpeakerID: true}

	for _, id := range ev.Mentions {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Addressee{UserID: id, Source: SourceMention, Share: 1})
	}
	if len(out) > 0 {
		return out
	}

	if ev.ReplyToID != "" && ev.ReplyToID != ev.SpeakerID {
		return []Addressee{{UserID: ev.ReplyToID, Source: SourceReply, Share: 1}}
	}

	return r.ambientAddressees(g, ev)
}

// ambientAddressees credits the most recent K distinct speakers in the channel
// within the sliding window, each at share 1/(rank+1) of the ambient weight.
func (r *Recorder) ambientAddressees(g *guildGraph, ev *InteractionEvent) []Addressee {
	if ev.ChannelID == "" || r.cfg.AmbientSpeakers <= 0 {
		return nil
	}
	hist, ok := g.history[ev.ChannelID]
	if !ok {
		return nil
	}

	var out []Addressee
	seen := map[string]bool{ev.SpeakerID: true}

	for _, entry := range hist.entries {
		if len(out) >= r.cfg.AmbientSpeakers {
			break
		}
		if seen[entry.speakerID] {
			continue
		}
		if ev.Timestamp.Sub(entry.at) > r.cfg.AmbientWindow {
			// Entries are newest-first; everything further back is older still.
			break
		}
		seen[entry.speakerID] = true
		out = append(out, Addressee{
			UserID: entry.speakerID,
			Source: SourceAmbient,
			Share:  1 / float64(len(out)+1),
		})
	}

	return out
}

func (r *Recorder) baseWeight(source AddresseeSource) float64 {
	switch source {
	case SourceMention:
		return r.cfg.MentionWeight
	case SourceReply:
		return r.cfg.ReplyWeight
	case SourceAmbient:
		return r.cfg.AmbientWeight
	case SourceReaction:
		return r.cfg.ReactionWeight
	}
	return 0
}

func touch(n *Node, at time.Time) {
	if at.After(n.LastSeen) {
		n.LastSeen = at
	}
}

// decayedWeight applies weight * exp(-Δt/τ). τ <= 0 disables decay.
func decayedWeight(weight float64, dt time.Duration, tau time.Duration) float64 {
	if dt <= 0 || tau <= 0 {
		return weight
	}
	return weight * math.Exp(-dt.Seconds()/tau.Seconds())
}
