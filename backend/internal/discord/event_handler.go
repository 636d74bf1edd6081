package discord

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"sociogram/backend/internal/constants"
	"sociogram/backend/internal/render"
	"sociogram/backend/internal/social"
	apperrors "sociogram/backend/pkg/errors"
)

// renderTimeout bounds one command-triggered render
const renderTimeout = 30 * time.Second

// Renderer turns a render hand-off into an image. The engine itself never
// produces pixels; a nil renderer falls back to attaching the DOT document.
type Renderer interface {
	Render(ctx context.Context, result *social.RenderResult) ([]byte, error)
}

// Handler feeds Discord gateway events into the engine and serves the
// command surface
type Handler struct {
	engine   *social.Engine
	renderer Renderer
	prefix   string
	logger   *zap.Logger
}

// NewHandler creates a new Discord event handler. renderer may be nil.
func NewHandler(engine *social.Engine, renderer Renderer, prefix string, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		renderer: renderer,
		prefix:   prefix,
		logger:   logger,
	}
}

// HandleMessageCreate records a guild message as an interaction, or runs a
// command when the message starts with the command prefix
func (h *Handler) HandleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	// DMs have no guild and no graph.
	if m.GuildID == "" {
		return
	}

	content := strings.TrimSpace(m.Content)
	if fields := strings.Fields(content); len(fields) > 0 && fields[0] == h.prefix {
		h.handleCommand(s, m, fields[1:])
		return
	}

	ev := eventFromMessage(s, m)
	if _, err := h.engine.HandleEvent(ev); err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeEvent) {
			// Nothing inferable from this message; common and uninteresting.
			h.logger.Debug("skipped message",
				zap.String("guild_id", m.GuildID),
				zap.Error(err),
			)
			return
		}
		h.logger.Error("failed to record interaction",
			zap.String("guild_id", m.GuildID),
			zap.String("user_id", m.Author.ID),
			zap.Error(err),
		)
	}
}

// HandleReactionAdd records an emoji reaction as a low-weight interaction with
// the reacted-to message's author
func (h *Handler) HandleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" || r.UserID == s.State.User.ID {
		return
	}

	author := messageAuthor(s, r.ChannelID, r.MessageID)
	if author == nil || author.Bot {
		return
	}

	ev := &social.InteractionEvent{
		Kind:      social.EventReaction,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		SpeakerID: r.UserID,
		ReplyToID: author.ID,
		Timestamp: time.Now(),
	}
	if _, err := h.engine.HandleEvent(ev); err != nil && !apperrors.IsErrorType(err, apperrors.ErrorTypeEvent) {
		h.logger.Error("failed to record reaction",
			zap.String("guild_id", r.GuildID),
			zap.String("user_id", r.UserID),
			zap.Error(err),
		)
	}
}

// HandleGuildDelete tears down the graph when the bot leaves a guild
func (h *Handler) HandleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	// Unavailable means an outage, not a departure.
	if g.Unavailable {
		return
	}
	h.logger.Info("left guild, removing graph", zap.String("guild_id", g.ID))
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()
	h.engine.ResetGraph(ctx, g.ID)
}

func (h *Handler) handleCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	sub := "render"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "render":
		h.commandRender(s, m)
	case "reset":
		ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
		defer cancel()
		h.engine.ResetGraph(ctx, m.GuildID)
		h.reply(s, m.ChannelID, "Relationship graph reset.")
	case "halflife":
		if len(args) < 2 {
			h.reply(s, m.ChannelID, fmt.Sprintf("Usage: %s halflife <duration>, e.g. %s halflife 6h", h.prefix, h.prefix))
			return
		}
		tau, err := time.ParseDuration(args[1])
		if err != nil || tau <= 0 {
			h.reply(s, m.ChannelID, "Half-life must be a positive duration like 90m or 6h.")
			return
		}
		h.engine.SetDecayHalfLife(m.GuildID, tau)
		h.reply(s, m.ChannelID, fmt.Sprintf("Decay half-life set to %s.", tau))
	case "cap":
		if len(args) < 2 {
			h.reply(s, m.ChannelID, fmt.Sprintf("Usage: %s cap <weight>", h.prefix))
			return
		}
		weightCap, err := strconv.ParseFloat(args[1], 64)
		if err != nil || weightCap <= 0 {
			h.reply(s, m.ChannelID, "Weight cap must be a positive number.")
			return
		}
		h.engine.SetWeightCap(m.GuildID, weightCap)
		h.reply(s, m.ChannelID, fmt.Sprintf("Weight cap set to %g.", weightCap))
	default:
		h.reply(s, m.ChannelID, fmt.Sprintf("Commands: %s [render|reset|halflife <duration>|cap <weight>]", h.prefix))
	}
}

func (h *Handler) commandRender(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	result, err := h.engine.RenderGraph(ctx, m.GuildID)
	if err != nil {
		h.logger.Error("render failed",
			zap.String("guild_id", m.GuildID),
			zap.Error(err),
		)
		h.reply(s, m.ChannelID, "Sorry, I couldn't render the graph.")
		return
	}
	if result.NodeCount == 0 {
		h.reply(s, m.ChannelID, "Nothing to draw yet - I haven't seen anyone talk to each other.")
		return
	}

	summary := fmt.Sprintf("%d members, %d relationships, %d clusters",
		result.NodeCount, len(result.Edges), clusterCount(result.Layout))

	if h.renderer != nil {
		image, err := h.renderer.Render(ctx, result)
		if err == nil {
			h.sendFile(s, m.ChannelID, summary, "graph.png", image)
			return
		}
		h.logger.Warn("external renderer failed, falling back to DOT",
			zap.String("guild_id", m.GuildID),
			zap.Error(err),
		)
	}

	h.sendFile(s, m.ChannelID, summary, "graph.gv", []byte(render.DOT(result)))
}

func (h *Handler) sendFile(s *discordgo.Session, channelID, content, name string, data []byte) {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{
			{Name: name, Reader: bytes.NewReader(data)},
		},
	})
	if err != nil {
		h.logger.Error("failed to send graph",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

func (h *Handler) reply(s *discordgo.Session, channelID, content string) {
	if len(content) > constants.DiscordMaxMessageLength {
		content = content[:constants.DiscordMaxMessageLength]
	}
	if _, err := s.ChannelMessageSend(channelID, content); err != nil {
		h.logger.Error("failed to send message",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

// eventFromMessage maps a gateway message onto the engine's event shape. The
// engine does its own addressee inference; this only carries what was on the
// wire, minus the bot itself.
func eventFromMessage(s *discordgo.Session, m *discordgo.MessageCreate) *social.InteractionEvent {
	ev := &social.InteractionEvent{
		Kind:      social.EventMessage,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		SpeakerID: m.Author.ID,
		Timestamp: m.Timestamp,
	}

	for _, mention := range m.Mentions {
		if mention == nil || mention.Bot || mention.ID == s.State.User.ID {
			continue
		}
		ev.Mentions = append(ev.Mentions, mention.ID)
	}

	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && !ref.Author.Bot {
		ev.ReplyToID = ref.Author.ID
	}

	return ev
}

// messageAuthor resolves who wrote a message, preferring the state cache over
// a REST round-trip
func messageAuthor(s *discordgo.Session, channelID, messageID string) *discordgo.User {
	if msg, err := s.State.Message(channelID, messageID); err == nil && msg.Author != nil {
		return msg.Author
	}
	msg, err := s.ChannelMessage(channelID, messageID)
	if err != nil || msg == nil {
		return nil
	}
	return msg.Author
}

func clusterCount(layout *social.Layout) int {
	seen := make(map[string]bool)
	for _, cluster := range layout.Clusters {
		seen[cluster] = true
	}
	return len(seen)
}
