package social

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StoreConfig holds the store-level lifecycle tuning. DecayHalfLife and
// WeightCap are defaults; both can be overridden per guild at runtime.
type StoreConfig struct {
	DecayHalfLife   time.Duration
	WeightCap       float64
	PruneEpsilon    float64
	RetentionWindow time.Duration
}

// DefaultStoreConfig returns the stock lifecycle tuning
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DecayHalfLife:   6 * time.Hour,
		WeightCap:       10,
		PruneEpsilon:    0.05,
		RetentionWindow: 7 * 24 * time.Hour,
	}
}

// Store owns one interaction graph per guild. Guilds are independent shards,
// each guarded by its own mutex, so mutations within a guild are serialized
// while unrelated guilds proceed in parallel.
type Store struct {
	mu     sync.RWMutex
	guilds map[string]*guildGraph

	cfg      StoreConfig
	recorder *Recorder
	logger   *zap.Logger
}

// NewStore creates an empty store
func NewStore(cfg StoreConfig, recorder *Recorder, logger *zap.Logger) *Store {
	return &Store{
		guilds:   make(map[string]*guildGraph),
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

type guildGraph struct {
	mu      sync.Mutex
	guildID string
	nodes   map[string]*Node
	edges   map[edgeKey]*Edge
	history map[string]*channelHistory

	halfLife    time.Duration
	weightCap   float64
	layoutStale bool
}

func (g *guildGraph) node(userID string) (*Node, bool) {
	n, ok := g.nodes[userID]
	if ok {
		return n, false
	}
	n = &Node{UserID: userID}
	g.nodes[userID] = n
	return n, true
}

func (g *guildGraph) channelHistory(channelID string) *channelHistory {
	h, ok := g.history[channelID]
	if !ok {
		h = &channelHistory{}
		g.history[channelID] = h
	}
	return h
}

// getOrCreate returns the guild's graph, creating a fresh empty one for an
// unknown guild. Unknown guilds are never an error.
func (s *Store) getOrCreate(guildID string) *guildGraph {
	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok = s.guilds[guildID]; ok {
		return g
	}
	g = &guildGraph{
		guildID:   guildID,
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]*Edge),
		history:   make(map[string]*channelHistory),
		halfLife:  s.cfg.DecayHalfLife,
		weightCap: s.cfg.WeightCap,
	}
	s.guilds[guildID] = g
	s.logger.Debug("created guild graph", zap.String("guild_id", guildID))
	return g
}

// GetOrCreate materializes the guild's graph without mutating it
func (s *Store) GetOrCreate(guildID string) {
	s.getOrCreate(guildID)
}

// Apply records one event against its guild graph. Decay-then-add runs under
// the guild lock, so readers never observe a partially-applied mutation.
func (s *Store) Apply(ev *InteractionEvent) (*MutationSummary, error) {
	g := s.getOrCreate(ev.GuildID)

	g.mu.Lock()
	defer g.mu.Unlock()
	return s.recorder.record(g, ev)
}

// Snapshot copies the guild's current state with edge weights decayed as-of
// now. An unknown guild yields an empty snapshot.
func (s *Store) Snapshot(guildID string, now time.Time) *Snapshot {
	snap := &Snapshot{GuildID: guildID, TakenAt: now}

	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return snap
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	snap.Nodes = make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, *n)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].UserID < snap.Nodes[j].UserID })

	snap.Edges = make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		copied := *e
		copied.Weight = decayedWeight(copied.Weight, now.Sub(copied.LastUpdate), g.halfLife)
		snap.Edges = append(snap.Edges, copied)
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].UserA != snap.Edges[j].UserA {
			return snap.Edges[i].UserA < snap.Edges[j].UserA
		}
		return snap.Edges[i].UserB < snap.Edges[j].UserB
	})

	return snap
}

// Prune removes edges whose decayed weight fell below epsilon and whose last
// update is older than the retention window, then nodes left with no incident
// edge and no activity within the window. Decay correctness never depends on
// this sweep; it exists to bound memory on idle guilds.
func (s *Store) Prune(now time.Time) PruneReport {
	s.mu.RLock()
	guilds := make([]*guildGraph, 0, len(s.guilds))
	for _, g := range s.guilds {
		guilds = append(guilds, g)
	}
	s.mu.RUnlock()

	var report PruneReport
	report.Guilds = len(guilds)

	for _, g := range guilds {
		g.mu.Lock()

		for key, e := range g.edges {
			stale := now.Sub(e.LastUpdate) > s.cfg.RetentionWindow
			faded := decayedWeight(e.Weight, now.Sub(e.LastUpdate), g.halfLife) < s.cfg.PruneEpsilon
			if stale && faded {
				delete(g.edges, key)
				report.EdgesRemoved++
			}
		}

		connected := make(map[string]bool, len(g.nodes))
		for key, e := range g.edges {
			if decayedWeight(e.Weight, now.Sub(e.LastUpdate), g.halfLife) >= s.cfg.PruneEpsilon {
				connected[key.a] = true
				connected[key.b] = true
			}
		}
		for id, n := range g.nodes {
			if connected[id] || now.Sub(n.LastSeen) <= s.cfg.RetentionWindow {
				continue
			}
			delete(g.nodes, id)
			report.NodesRemoved++
		}

		if report.EdgesRemoved > 0 || report.NodesRemoved > 0 {
			g.layoutStale = true
		}

		g.mu.Unlock()
	}

	return report
}

// Remove destroys the guild's graph. A later event for the same guild id
// starts a fresh lifecycle.
func (s *Store) Remove(guildID string) {
	s.mu.Lock()
	delete(s.guilds, guildID)
	s.mu.Unlock()
	s.logger.Info("removed guild graph", zap.String("guild_id", guildID))
}

// SetHalfLife overrides the decay half-life for one guild
func (s *Store) SetHalfLife(guildID string, tau time.Duration) {
	g := s.getOrCreate(guildID)
	g.mu.Lock()
	g.halfLife = tau
	g.mu.Unlock()
}

// SetWeightCap overrides W_max for one guild. Existing weights above the new
// cap are clamped so the invariant holds immediately.
func (s *Store) SetWeightCap(guildID string, weightCap float64) {
	g := s.getOrCreate(guildID)
	g.mu.Lock()
	g.weightCap = weightCap
	for _, e := range g.edges {
		if e.Weight > weightCap {
			e.Weight = weightCap
		}
	}
	g.mu.Unlock()
}

// GuildIDs lists guilds currently held in memory
func (s *Store) GuildIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LayoutStale reports whether the guild graph changed since the last time
// MarkLayoutFresh was called for it
func (s *Store) LayoutStale(guildID string) bool {
	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layoutStale
}

// MarkLayoutFresh records that a layout was computed for the guild's current state
func (s *Store) MarkLayoutFresh(guildID string) {
	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	g.layoutStale = false
	g.mu.Unlock()
}

// RecordPositions writes computed layout positions back onto the nodes so the
// next layout (and a persisted restart) seeds from them.
func (s *Store) RecordPositions(guildID string, positions map[string]Position) {
	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	for id, pos := range positions {
		if n, ok := g.nodes[id]; ok {
			n.X, n.Y = pos.X, pos.Y
			n.HasPos = true
		}
	}
	g.mu.Unlock()
}

// ExportRecords serializes one guild graph for the persistence collaborator
func (s *Store) ExportRecords(guildID string) *GuildRecords {
	s.mu.RLock()
	g, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return &GuildRecords{GuildID: guildID}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec := &GuildRecords{GuildID: guildID}
	rec.Nodes = make([]NodeRecord, 0, len(g.nodes))
	for _, n := range g.nodes {
		rec.Nodes = append(rec.Nodes, NodeRecord{
			UserID:   n.UserID,
			LastSeen: n.LastSeen,
			Activity: n.Activity,
			X:        n.X,
			Y:        n.Y,
			HasPos:   n.HasPos,
		})
	}
	sort.Slice(rec.Nodes, func(i, j int) bool { return rec.Nodes[i].UserID < rec.Nodes[j].UserID })

	rec.Edges = make([]EdgeRecord, 0, len(g.edges))
	for _, e := range g.edges {
		rec.Edges = append(rec.Edges, EdgeRecord{
			UserA:      e.UserA,
			UserB:      e.UserB,
			Weight:     e.Weight,
			CountAB:    e.CountAB,
			CountBA:    e.CountBA,
			LastUpdate: e.LastUpdate,
		})
	}
	sort.Slice(rec.Edges, func(i, j int) bool {
		if rec.Edges[i].UserA != rec.Edges[j].UserA {
			return rec.Edges[i].UserA < rec.Edges[j].UserA
		}
		return rec.Edges[i].UserB < rec.Edges[j].UserB
	})

	return rec
}

// ImportRecords reconstructs one guild graph from persisted records,
// replacing any in-memory state for that guild.
func (s *Store) ImportRecords(rec *GuildRecords) {
	g := &guildGraph{
		guildID:     rec.GuildID,
		nodes:       make(map[string]*Node, len(rec.Nodes)),
		edges:       make(map[edgeKey]*Edge, len(rec.Edges)),
		history:     make(map[string]*channelHistory),
		halfLife:    s.cfg.DecayHalfLife,
		weightCap:   s.cfg.WeightCap,
		layoutStale: true,
	}

	for _, n := range rec.Nodes {
		g.nodes[n.UserID] = &Node{
			UserID:   n.UserID,
			LastSeen: n.LastSeen,
			Activity: n.Activity,
			X:        n.X,
			Y:        n.Y,
			HasPos:   n.HasPos,
		}
	}
	for _, e := range rec.Edges {
		key := newEdgeKey(e.UserA, e.UserB)
		g.edges[key] = &Edge{
			UserA:      key.a,
			UserB:      key.b,
			Weight:     e.Weight,
			CountAB:    e.CountAB,
			CountBA:    e.CountBA,
			LastUpdate: e.LastUpdate,
		}
	}

	s.mu.Lock()
	s.guilds[rec.GuildID] = g
	s.mu.Unlock()
}
