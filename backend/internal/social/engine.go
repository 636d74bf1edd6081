package social

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sociogram/backend/pkg/logger"
)

// Persistence is the backend collaborator the engine saves to and loads from.
// Failures are never fatal to ingestion; the engine logs and continues
// in-memory-only.
type Persistence interface {
	SaveGuild(ctx context.Context, records *GuildRecords) error
	LoadGuild(ctx context.Context, guildID string) (*GuildRecords, error)
	DeleteGuild(ctx context.Context, guildID string) error
	ListGuilds(ctx context.Context) ([]string, error)
}

// Engine ties the store, classifier, and layout engine together behind the
// operations the command layer consumes
type Engine struct {
	store        *Store
	classifier   *Classifier
	layoutEngine *LayoutEngine
	persistence  Persistence // nil means in-memory only
	logger       *zap.Logger

	mu      sync.Mutex
	layouts map[string]*Layout // last computed layout per guild, for seeding
}

// NewEngine wires up the engine. persistence may be nil.
func NewEngine(store *Store, classifier *Classifier, layoutEngine *LayoutEngine, persistence Persistence) *Engine {
	return &Engine{
		store:        store,
		classifier:   classifier,
		layoutEngine: layoutEngine,
		persistence:  persistence,
		logger:       logger.Get(),
		layouts:      make(map[string]*Layout),
	}
}

// HandleEvent records one chat event. Invalid events are rejected without any
// graph mutation.
func (e *Engine) HandleEvent(ev *InteractionEvent) (*MutationSummary, error) {
	summary, err := e.store.Apply(ev)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("recorded interaction",
		zap.String("guild_id", summary.GuildID),
		zap.String("speaker_id", summary.SpeakerID),
		zap.Int("addressees", len(summary.Addressees)),
		zap.Int("edges_created", summary.EdgesCreated),
	)
	return summary, nil
}

// RenderGraph produces the render hand-off for one guild: a normalized layout
// plus classified edges. It operates on an immutable snapshot, so it can be
// cancelled mid-computation without corrupting the store. A guild with no
// recorded events yields an empty result, not an error.
func (e *Engine) RenderGraph(ctx context.Context, guildID string) (*RenderResult, error) {
	jobID := uuid.NewString()
	now := time.Now()
	snap := e.store.Snapshot(guildID, now)
	previous := e.lastLayout(guildID)

	var layout *Layout
	if previous != nil && !e.store.LayoutStale(guildID) {
		// Nothing changed since the last pass; reuse it.
		layout = previous
	} else {
		computed, err := e.layoutEngine.Layout(ctx, snap, previous)
		if err != nil {
			return nil, err
		}
		layout = computed
		e.setLastLayout(guildID, layout)
		e.store.RecordPositions(guildID, layout.Positions)
		e.store.MarkLayoutFresh(guildID)
	}

	edges := make([]LabeledEdge, 0, len(snap.Edges))
	for _, edge := range snap.Edges {
		stats := EdgeStats{
			Weight:  edge.Weight,
			Age:     now.Sub(edge.LastUpdate),
			CountAB: edge.CountAB,
			CountBA: edge.CountBA,
		}
		edges = append(edges, LabeledEdge{
			UserA:  edge.UserA,
			UserB:  edge.UserB,
			Weight: edge.Weight,
			Label:  e.classifier.Classify(stats),
		})
	}

	e.logger.Info("rendered relationship graph",
		zap.String("job_id", jobID),
		zap.String("guild_id", guildID),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("edges", len(edges)),
		zap.Bool("converged", layout.Converged),
	)

	return &RenderResult{
		JobID:     jobID,
		GuildID:   guildID,
		NodeCount: len(snap.Nodes),
		Layout:    layout,
		Edges:     edges,
	}, nil
}

// Classify exposes the classifier for callers that already hold edge stats
func (e *Engine) Classify(stats EdgeStats) Label {
	return e.classifier.Classify(stats)
}

// Snapshot exposes a consistent copy of one guild graph
func (e *Engine) Snapshot(guildID string) *Snapshot {
	return e.store.Snapshot(guildID, time.Now())
}

// ResetGraph destroys the guild's graph and any persisted copy. Persistence
// failures are logged, not propagated; the in-memory reset always happens.
func (e *Engine) ResetGraph(ctx context.Context, guildID string) {
	e.store.Remove(guildID)

	e.mu.Lock()
	delete(e.layouts, guildID)
	e.mu.Unlock()

	if e.persistence == nil {
		return
	}
	if err := e.persistence.DeleteGuild(ctx, guildID); err != nil {
		e.logger.Error("failed to delete persisted guild graph",
			zap.String("guild_id", guildID),
			zap.Error(err),
		)
	}
}

// SetDecayHalfLife overrides τ for one guild
func (e *Engine) SetDecayHalfLife(guildID string, tau time.Duration) {
	e.store.SetHalfLife(guildID, tau)
	e.logger.Info("updated decay half-life",
		zap.String("guild_id", guildID),
		zap.Duration("half_life", tau),
	)
}

// SetWeightCap overrides W_max for one guild
func (e *Engine) SetWeightCap(guildID string, weightCap float64) {
	e.store.SetWeightCap(guildID, weightCap)
	e.logger.Info("updated weight cap",
		zap.String("guild_id", guildID),
		zap.Float64("weight_cap", weightCap),
	)
}

// Prune runs one memory-reclamation sweep
func (e *Engine) Prune(now time.Time) PruneReport {
	report := e.store.Prune(now)
	if report.EdgesRemoved > 0 || report.NodesRemoved > 0 {
		e.logger.Info("pruned stale graph entries",
			zap.Int("guilds", report.Guilds),
			zap.Int("edges_removed", report.EdgesRemoved),
			zap.Int("nodes_removed", report.NodesRemoved),
		)
	}
	return report
}

// RunPruneLoop prunes on the given interval until the context is cancelled
func (e *Engine) RunPruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Prune(now)
		}
	}
}

// SaveAll persists every in-memory guild graph, guilds in parallel
func (e *Engine) SaveAll(ctx context.Context) error {
	if e.persistence == nil {
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, guildID := range e.store.GuildIDs() {
		records := e.store.ExportRecords(guildID)
		group.Go(func() error {
			if err := e.persistence.SaveGuild(ctx, records); err != nil {
				e.logger.Error("failed to save guild graph",
					zap.String("guild_id", records.GuildID),
					zap.Error(err),
				)
				return err
			}
			return nil
		})
	}
	return group.Wait()
}

// LoadAll restores every persisted guild graph into memory
func (e *Engine) LoadAll(ctx context.Context) error {
	if e.persistence == nil {
		return nil
	}

	guildIDs, err := e.persistence.ListGuilds(ctx)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, guildID := range guildIDs {
		guildID := guildID
		group.Go(func() error {
			records, err := e.persistence.LoadGuild(ctx, guildID)
			if err != nil {
				e.logger.Error("failed to load guild graph",
					zap.String("guild_id", guildID),
					zap.Error(err),
				)
				return err
			}
			if records != nil {
				e.store.ImportRecords(records)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	e.logger.Info("loaded persisted guild graphs", zap.Int("guilds", len(guildIDs)))
	return nil
}

// RunAutosaveLoop saves on the given interval until the context is cancelled
func (e *Engine) RunAutosaveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Persistence failures are already logged per guild; the loop
			// keeps running regardless.
			_ = e.SaveAll(ctx)
		}
	}
}

func (e *Engine) lastLayout(guildID string) *Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layouts[guildID]
}

func (e *Engine) setLastLayout(guildID string, layout *Layout) {
	e.mu.Lock()
	e.layouts[guildID] = layout
	e.mu.Unlock()
}
