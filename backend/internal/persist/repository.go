// Package persist stores guild graphs in Neo4j. Members are (:Member) nodes
// keyed by (guild_id, user_id); relationships are [:INTERACTS] with the edge
// statistics as properties.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"sociogram/backend/internal/social"
	"sociogram/backend/pkg/logger"
)

// Repository handles all Neo4j database operations
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// SaveGuild replaces the persisted graph for one guild with the given records
func (r *Repository) SaveGuild(ctx context.Context, records *social.GuildRecords) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	nodeParams := make([]map[string]interface{}, 0, len(records.Nodes))
	nodeIDs := make([]string, 0, len(records.Nodes))
	for _, n := range records.Nodes {
		nodeIDs = append(nodeIDs, n.UserID)
		nodeParams = append(nodeParams, map[string]interface{}{
			"user_id":   n.UserID,
			"last_seen": n.LastSeen.UTC().Format(time.RFC3339Nano),
			"activity":  n.Activity,
			"x":         n.X,
			"y":         n.Y,
			"has_pos":   n.HasPos,
		})
	}

	edgeParams := make([]map[string]interface{}, 0, len(records.Edges))
	for _, e := range records.Edges {
		edgeParams = append(edgeParams, map[string]interface{}{
			"user_a":      e.UserA,
			"user_b":      e.UserB,
			"weight":      e.Weight,
			"count_ab":    e.CountAB,
			"count_ba":    e.CountBA,
			"last_update": e.LastUpdate.UTC().Format(time.RFC3339Nano),
		})
	}

	// Drop members that left the graph, then upsert the rest and rewrite the
	// relationship set so stale edges do not linger.
	queries := []struct {
		query  string
		params map[string]interface{}
	}{
		{
			query: `
				MATCH (m:Member {guild_id: $guildID})
				WHERE NOT m.user_id IN $userIDs
				DETACH DELETE m
			`,
			params: map[string]interface{}{"guildID": records.GuildID, "userIDs": nodeIDs},
		},
		{
			query: `
				UNWIND $nodes AS n
				MERGE (m:Member {guild_id: $guildID, user_id: n.user_id})
				SET m.last_seen = datetime(n.last_seen),
				    m.activity = n.activity,
				    m.x = n.x,
				    m.y = n.y,
				    m.has_pos = n.has_pos
			`,
			params: map[string]interface{}{"guildID": records.GuildID, "nodes": nodeParams},
		},
		{
			query: `
				MATCH (:Member {guild_id: $guildID})-[r:INTERACTS]->()
				DELETE r
			`,
			params: map[string]interface{}{"guildID": records.GuildID},
		},
		{
			query: `
				UNWIND $edges AS e
				MATCH (a:Member {guild_id: $guildID, user_id: e.user_a})
				MATCH (b:Member {guild_id: $guildID, user_id: e.user_b})
				MERGE (a)-[r:INTERACTS]->(b)
				SET r.weight = e.weight,
				    r.count_ab = e.count_ab,
				    r.count_ba = e.count_ba,
				    r.last_update = datetime(e.last_update)
			`,
			params: map[string]interface{}{"guildID": records.GuildID, "edges": edgeParams},
		},
	}

	for _, q := range queries {
		if _, err := session.Run(ctx, q.query, q.params); err != nil {
			return fmt.Errorf("failed to save guild %s: %w", records.GuildID, err)
		}
	}

	r.logger.Debug("saved guild graph",
		zap.String("guild_id", records.GuildID),
		zap.Int("nodes", len(records.Nodes)),
		zap.Int("edges", len(records.Edges)),
	)
	return nil
}

// LoadGuild reconstructs the persisted records for one guild. A guild with no
// persisted members yields empty records, not an error.
func (r *Repository) LoadGuild(ctx context.Context, guildID string) (*social.GuildRecords, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records := &social.GuildRecords{GuildID: guildID}

	nodeResult, err := session.Run(ctx, `
		MATCH (m:Member {guild_id: $guildID})
		RETURN m.user_id AS user_id,
		       m.last_seen AS last_seen,
		       m.activity AS activity,
		       m.x AS x,
		       m.y AS y,
		       m.has_pos AS has_pos
		ORDER BY user_id
	`, map[string]interface{}{"guildID": guildID})
	if err != nil {
		return nil, fmt.Errorf("failed to load members for guild %s: %w", guildID, err)
	}
	for nodeResult.Next(ctx) {
		record := nodeResult.Record()
		records.Nodes = append(records.Nodes, social.NodeRecord{
			UserID:   getString(record, "user_id", ""),
			LastSeen: getTime(record, "last_seen"),
			Activity: getFloat64(record, "activity", 0),
			X:        getFloat64(record, "x", 0),
			Y:        getFloat64(record, "y", 0),
			HasPos:   getBool(record, "has_pos"),
		})
	}
	if err := nodeResult.Err(); err != nil {
		return nil, fmt.Errorf("failed to read members for guild %s: %w", guildID, err)
	}

	edgeResult, err := session.Run(ctx, `
		MATCH (a:Member {guild_id: $guildID})-[r:INTERACTS]->(b:Member)
		RETURN a.user_id AS user_a,
		       b.user_id AS user_b,
		       r.weight AS weight,
		       r.count_ab AS count_ab,
		       r.count_ba AS count_ba,
		       r.last_update AS last_update
		ORDER BY user_a, user_b
	`, map[string]interface{}{"guildID": guildID})
	if err != nil {
		return nil, fmt.Errorf("failed to load edges for guild %s: %w", guildID, err)
	}
	for edgeResult.Next(ctx) {
		record := edgeResult.Record()
		records.Edges = append(records.Edges, social.EdgeRecord{
			UserA:      getString(record, "user_a", ""),
			UserB:      getString(record, "user_b", ""),
			Weight:     getFloat64(record, "weight", 0),
			CountAB:    getInt64(record, "count_ab", 0),
			CountBA:    getInt64(record, "count_ba", 0),
			LastUpdate: getTime(record, "last_update"),
		})
	}
	if err := edgeResult.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edges for guild %s: %w", guildID, err)
	}

	return records, nil
}

// DeleteGuild removes everything persisted for one guild
func (r *Repository) DeleteGuild(ctx context.Context, guildID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MATCH (m:Member {guild_id: $guildID})
		DETACH DELETE m
	`, map[string]interface{}{"guildID": guildID})
	if err != nil {
		return fmt.Errorf("failed to delete guild %s: %w", guildID, err)
	}

	r.logger.Info("deleted persisted guild graph", zap.String("guild_id", guildID))
	return nil
}

// ListGuilds returns every guild id with persisted members
func (r *Repository) ListGuilds(ctx context.Context) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Member)
		RETURN DISTINCT m.guild_id AS guild_id
		ORDER BY guild_id
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	var guildIDs []string
	for result.Next(ctx) {
		if id := getString(result.Record(), "guild_id", ""); id != "" {
			guildIDs = append(guildIDs, id)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read guild list: %w", err)
	}
	return guildIDs, nil
}

// Helper functions

func getString(record *neo4j.Record, key string, defaultValue string) string {
	val, ok := record.Get(key)
	if !ok {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getFloat64(record *neo4j.Record, key string, defaultValue float64) float64 {
	val, ok := record.Get(key)
	if !ok {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return defaultValue
}

func getInt64(record *neo4j.Record, key string, defaultValue int64) int64 {
	val, ok := record.Get(key)
	if !ok {
		return defaultValue
	}
	if i, ok := val.(int64); ok {
		return i
	}
	return defaultValue
}

func getBool(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

func getTime(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok {
		return time.Time{}
	}
	// Neo4j datetime values come back as time.Time
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}
