package social

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "sociogram/backend/pkg/errors"
	"sociogram/backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	os.Exit(m.Run())
}

// fakePersistence is an in-memory Persistence with injectable failures
type fakePersistence struct {
	mu      sync.Mutex
	saved   map[string]*GuildRecords
	deleted []string

	saveErr   error
	loadErr   error
	deleteErr error
	listErr   error
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{saved: make(map[string]*GuildRecords)}
}

func (f *fakePersistence) SaveGuild(_ context.Context, records *GuildRecords) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[records.GuildID] = records
	return nil
}

func (f *fakePersistence) LoadGuild(_ context.Context, guildID string) (*GuildRecords, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if rec, ok := f.saved[guildID]; ok {
		return rec, nil
	}
	return &GuildRecords{GuildID: guildID}, nil
}

func (f *fakePersistence) DeleteGuild(_ context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, guildID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.saved, guildID)
	return nil
}

func (f *fakePersistence) ListGuilds(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.saved))
	for id := range f.saved {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestEngine(persistence Persistence) *Engine {
	recorder := NewRecorder(DefaultRecorderConfig(), zap.NewNop())
	store := NewStore(DefaultStoreConfig(), recorder, zap.NewNop())
	classifier := NewClassifier(DefaultClassifierConfig())
	layoutEngine := NewLayoutEngine(DefaultLayoutConfig(), zap.NewNop())
	return NewEngine(store, classifier, layoutEngine, persistence)
}

func mention(guildID, speaker, target string, at time.Time) *InteractionEvent {
	return &InteractionEvent{
		Kind:      EventMessage,
		GuildID:   guildID,
		ChannelID: "c1",
		SpeakerID: speaker,
		Mentions:  []string{target},
		Timestamp: at,
	}
}

func TestEngineRecordAndRender(t *testing.T) {
	engine := newTestEngine(nil)
	now := time.Now()

	summary, err := engine.HandleEvent(mention("g1", "alice", "bob", now))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NodesCreated)
	assert.Equal(t, 1, summary.EdgesCreated)

	result, err := engine.RenderGraph(context.Background(), "g1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, "g1", result.GuildID)
	assert.Equal(t, 2, result.NodeCount)

	require.Len(t, result.Edges, 1)
	assert.Equal(t, CategoryAcquainted, result.Edges[0].Label.Category)
	assert.Equal(t, QualifierOneDirectional, result.Edges[0].Label.Qualifier)

	require.Contains(t, result.Layout.Positions, "alice")
	require.Contains(t, result.Layout.Positions, "bob")
	assert.Equal(t, result.Layout.Clusters["alice"], result.Layout.Clusters["bob"])
}

func TestEngineSustainedConversationBecomesCloseMutual(t *testing.T) {
	engine := newTestEngine(nil)
	start := time.Now().Add(-400 * time.Second)

	for i := 0; i < 400; i++ {
		at := start.Add(time.Duration(i) * time.Second)
		var ev *InteractionEvent
		if i%2 == 0 {
			ev = mention("g1", "alice", "bob", at)
		} else {
			ev = mention("g1", "bob", "alice", at)
		}
		_, err := engine.HandleEvent(ev)
		require.NoError(t, err)
	}

	result, err := engine.RenderGraph(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, CategoryClose, result.Edges[0].Label.Category)
	assert.Equal(t, QualifierMutual, result.Edges[0].Label.Qualifier)
}

func TestEngineRenderEmptyGuild(t *testing.T) {
	engine := newTestEngine(nil)

	result, err := engine.RenderGraph(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, 0, result.NodeCount)
	assert.Empty(t, result.Edges)
	assert.True(t, result.Layout.Converged)
}

func TestEngineReusesLayoutUntilGraphChanges(t *testing.T) {
	engine := newTestEngine(nil)
	now := time.Now()

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", now))
	require.NoError(t, err)

	first, err := engine.RenderGraph(context.Background(), "g1")
	require.NoError(t, err)
	second, err := engine.RenderGraph(context.Background(), "g1")
	require.NoError(t, err)
	assert.Same(t, first.Layout, second.Layout, "an unchanged graph reuses the cached layout")

	_, err = engine.HandleEvent(mention("g1", "alice", "carol", now.Add(time.Second)))
	require.NoError(t, err)
	third, err := engine.RenderGraph(context.Background(), "g1")
	require.NoError(t, err)
	assert.NotSame(t, second.Layout, third.Layout, "a mutation forces a fresh layout")
	assert.Contains(t, third.Layout.Positions, "carol")
}

func TestEngineRenderCancelled(t *testing.T) {
	engine := newTestEngine(nil)
	_, err := engine.HandleEvent(mention("g1", "alice", "bob", time.Now()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.RenderGraph(ctx, "g1")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeContext))
}

func TestEngineInvalidEventLeavesGraphUntouched(t *testing.T) {
	engine := newTestEngine(nil)

	_, err := engine.HandleEvent(&InteractionEvent{
		Kind:      EventMessage,
		GuildID:   "g1",
		ChannelID: "c1",
		SpeakerID: "alice",
		Timestamp: time.Now(),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeEvent))
	assert.Empty(t, engine.Snapshot("g1").Nodes)
}

func TestEngineResetGraph(t *testing.T) {
	persistence := newFakePersistence()
	engine := newTestEngine(persistence)
	now := time.Now()

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", now))
	require.NoError(t, err)
	require.NoError(t, engine.SaveAll(context.Background()))

	engine.ResetGraph(context.Background(), "g1")
	assert.Empty(t, engine.Snapshot("g1").Nodes)
	assert.Contains(t, persistence.deleted, "g1")

	// A new event after reset starts a fresh graph.
	_, err = engine.HandleEvent(mention("g1", "alice", "carol", now.Add(time.Second)))
	require.NoError(t, err)
	snap := engine.Snapshot("g1")
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, "carol", snap.Edges[0].UserB)
}

func TestEngineResetToleratesPersistenceFailure(t *testing.T) {
	persistence := newFakePersistence()
	persistence.deleteErr = errors.New("connection refused")
	engine := newTestEngine(persistence)

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", time.Now()))
	require.NoError(t, err)

	engine.ResetGraph(context.Background(), "g1")
	assert.Empty(t, engine.Snapshot("g1").Nodes, "in-memory reset must happen even when the backend fails")
}

func TestEngineSaveLoadRoundTrip(t *testing.T) {
	persistence := newFakePersistence()
	engine := newTestEngine(persistence)
	now := time.Now()

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", now))
	require.NoError(t, err)
	_, err = engine.HandleEvent(mention("g2", "carol", "dave", now))
	require.NoError(t, err)
	require.NoError(t, engine.SaveAll(context.Background()))

	restored := newTestEngine(persistence)
	require.NoError(t, restored.LoadAll(context.Background()))

	for _, guildID := range []string{"g1", "g2"} {
		want := engine.Snapshot(guildID)
		got := restored.Snapshot(guildID)
		require.Len(t, got.Nodes, len(want.Nodes), "guild %s", guildID)
		require.Len(t, got.Edges, len(want.Edges), "guild %s", guildID)
	}
}

func TestEngineSaveAllPropagatesFailure(t *testing.T) {
	persistence := newFakePersistence()
	persistence.saveErr = errors.New("neo4j down")
	engine := newTestEngine(persistence)

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", time.Now()))
	require.NoError(t, err)
	assert.Error(t, engine.SaveAll(context.Background()))
}

func TestEngineWithoutPersistence(t *testing.T) {
	engine := newTestEngine(nil)
	assert.NoError(t, engine.SaveAll(context.Background()))
	assert.NoError(t, engine.LoadAll(context.Background()))
	// Reset with no backend is purely in-memory.
	engine.ResetGraph(context.Background(), "g1")
}

func TestEnginePrune(t *testing.T) {
	engine := newTestEngine(nil)
	now := time.Now()
	retention := DefaultStoreConfig().RetentionWindow

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", now.Add(-retention-time.Hour)))
	require.NoError(t, err)

	report := engine.Prune(now)
	assert.Equal(t, 1, report.Guilds)
	assert.Equal(t, 1, report.EdgesRemoved)
	assert.Equal(t, 2, report.NodesRemoved)
	assert.Empty(t, engine.Snapshot("g1").Nodes)
}

func TestEngineConfigOverrides(t *testing.T) {
	engine := newTestEngine(nil)
	t0 := time.Now()

	_, err := engine.HandleEvent(mention("g1", "alice", "bob", t0))
	require.NoError(t, err)

	engine.SetWeightCap("g1", 1.0)
	snap := engine.Snapshot("g1")
	require.Len(t, snap.Edges, 1)
	assert.LessOrEqual(t, snap.Edges[0].Weight, 1.0)

	engine.SetDecayHalfLife("g1", time.Minute)
	after := engine.Snapshot("g1")
	require.Len(t, after.Edges, 1)
	assert.LessOrEqual(t, after.Edges[0].Weight, snap.Edges[0].Weight)

	label := engine.Classify(EdgeStats{Weight: snap.Edges[0].Weight, CountAB: 1})
	assert.Equal(t, CategoryAcquainted, label.Category)
}
