package persist

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"sociogram/backend/internal/social"
)

// These tests require a running Neo4j instance on localhost with the
// default test credentials. Run with -short to skip them.

func TestRepository_SaveLoadGuild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	guildID := "test-guild-" + time.Now().Format("20060102150405")
	defer func() {
		_ = repo.DeleteGuild(ctx, guildID)
	}()

	lastSeen := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	records := &social.GuildRecords{
		GuildID: guildID,
		Nodes: []social.NodeRecord{
			{UserID: "alice", LastSeen: lastSeen, Activity: 4.5, X: -0.25, Y: 0.75, HasPos: true},
			{UserID: "bob", LastSeen: lastSeen, Activity: 2},
		},
		Edges: []social.EdgeRecord{
			{UserA: "alice", UserB: "bob", Weight: 3.5, CountAB: 4, CountBA: 2, LastUpdate: lastSeen},
		},
	}

	if err := repo.SaveGuild(ctx, records); err != nil {
		t.Fatalf("SaveGuild failed: %v", err)
	}

	loaded, err := repo.LoadGuild(ctx, guildID)
	if err != nil {
		t.Fatalf("LoadGuild failed: %v", err)
	}
	if len(loaded.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(loaded.Nodes))
	}
	if len(loaded.Edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(loaded.Edges))
	}

	alice := loaded.Nodes[0]
	if alice.UserID != "alice" {
		t.Errorf("Expected first node 'alice', got '%s'", alice.UserID)
	}
	if !alice.HasPos || alice.X != -0.25 || alice.Y != 0.75 {
		t.Errorf("Position not round-tripped: %+v", alice)
	}
	if !alice.LastSeen.Equal(lastSeen) {
		t.Errorf("Expected last_seen %v, got %v", lastSeen, alice.LastSeen)
	}

	edge := loaded.Edges[0]
	if edge.UserA != "alice" || edge.UserB != "bob" {
		t.Errorf("Edge endpoints wrong: %+v", edge)
	}
	if edge.Weight != 3.5 || edge.CountAB != 4 || edge.CountBA != 2 {
		t.Errorf("Edge statistics not round-tripped: %+v", edge)
	}
	if !edge.LastUpdate.Equal(lastSeen) {
		t.Errorf("Expected last_update %v, got %v", lastSeen, edge.LastUpdate)
	}
}

func TestRepository_SaveGuildReplacesState(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	guildID := "test-guild-" + time.Now().Format("20060102150405")
	defer func() {
		_ = repo.DeleteGuild(ctx, guildID)
	}()

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := &social.GuildRecords{
		GuildID: guildID,
		Nodes: []social.NodeRecord{
			{UserID: "alice", LastSeen: now},
			{UserID: "bob", LastSeen: now},
			{UserID: "carol", LastSeen: now},
		},
		Edges: []social.EdgeRecord{
			{UserA: "alice", UserB: "bob", Weight: 2, CountAB: 1, LastUpdate: now},
			{UserA: "bob", UserB: "carol", Weight: 2, CountAB: 1, LastUpdate: now},
		},
	}
	if err := repo.SaveGuild(ctx, first); err != nil {
		t.Fatalf("SaveGuild failed: %v", err)
	}

	// carol left and her edge with bob faded out; the next save must not
	// leave either behind.
	second := &social.GuildRecords{
		GuildID: guildID,
		Nodes: []social.NodeRecord{
			{UserID: "alice", LastSeen: now},
			{UserID: "bob", LastSeen: now},
		},
		Edges: []social.EdgeRecord{
			{UserA: "alice", UserB: "bob", Weight: 1.5, CountAB: 2, LastUpdate: now},
		},
	}
	if err := repo.SaveGuild(ctx, second); err != nil {
		t.Fatalf("SaveGuild failed: %v", err)
	}

	loaded, err := repo.LoadGuild(ctx, guildID)
	if err != nil {
		t.Fatalf("LoadGuild failed: %v", err)
	}
	if len(loaded.Nodes) != 2 {
		t.Errorf("Expected 2 nodes after replace, got %d", len(loaded.Nodes))
	}
	if len(loaded.Edges) != 1 {
		t.Errorf("Expected 1 edge after replace, got %d", len(loaded.Edges))
	}
	if len(loaded.Edges) == 1 && loaded.Edges[0].Weight != 1.5 {
		t.Errorf("Expected replaced weight 1.5, got %v", loaded.Edges[0].Weight)
	}
}

func TestRepository_LoadGuildEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	loaded, err := repo.LoadGuild(ctx, "never-saved-guild")
	if err != nil {
		t.Fatalf("LoadGuild failed: %v", err)
	}
	if len(loaded.Nodes) != 0 || len(loaded.Edges) != 0 {
		t.Errorf("Expected empty records, got %d nodes, %d edges", len(loaded.Nodes), len(loaded.Edges))
	}
}

func TestRepository_DeleteGuild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	guildID := "test-guild-" + time.Now().Format("20060102150405")

	now := time.Now().UTC()
	records := &social.GuildRecords{
		GuildID: guildID,
		Nodes: []social.NodeRecord{
			{UserID: "alice", LastSeen: now},
			{UserID: "bob", LastSeen: now},
		},
		Edges: []social.EdgeRecord{
			{UserA: "alice", UserB: "bob", Weight: 2, CountAB: 1, LastUpdate: now},
		},
	}
	if err := repo.SaveGuild(ctx, records); err != nil {
		t.Fatalf("SaveGuild failed: %v", err)
	}

	if err := repo.DeleteGuild(ctx, guildID); err != nil {
		t.Fatalf("DeleteGuild failed: %v", err)
	}

	loaded, err := repo.LoadGuild(ctx, guildID)
	if err != nil {
		t.Fatalf("LoadGuild failed: %v", err)
	}
	if len(loaded.Nodes) != 0 {
		t.Errorf("Expected no nodes after delete, got %d", len(loaded.Nodes))
	}

	guilds, err := repo.ListGuilds(ctx)
	if err != nil {
		t.Fatalf("ListGuilds failed: %v", err)
	}
	for _, id := range guilds {
		if id == guildID {
			t.Errorf("Deleted guild %s still listed", guildID)
		}
	}
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := "bolt://localhost:7687"
	user := "neo4j"
	password := "password"

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}
