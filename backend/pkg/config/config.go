package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Discord
	DiscordBotToken string
	CommandPrefix   string

	// Neo4j (optional; the engine runs in-memory-only without it)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Interaction weights
	MentionWeight  float64
	ReplyWeight    float64
	AmbientWeight  float64
	ReactionWeight float64

	// Ambient proximity inference
	AmbientSpeakers int           // Max distinct recent speakers credited per message
	AmbientWindow   time.Duration // How far back a recent speaker still counts

	// Graph lifecycle
	DecayHalfLife   time.Duration // τ in weight' = weight * exp(-Δt/τ)
	WeightCap       float64
	PruneEpsilon    float64
	RetentionWindow time.Duration
	PruneInterval   time.Duration
	SaveInterval    time.Duration

	// Layout
	LayoutIterations  int
	LayoutConvergence float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DiscordBotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		CommandPrefix:   getEnv("COMMAND_PREFIX", "!graph"),
		Neo4jURI:        getEnv("NEO4J_URI", ""),
		Neo4jUser:       getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:   getEnv("NEO4J_PASSWORD", ""),

		MentionWeight:  getEnvFloat("MENTION_WEIGHT", 2.0),
		ReplyWeight:    getEnvFloat("REPLY_WEIGHT", 1.5),
		AmbientWeight:  getEnvFloat("AMBIENT_WEIGHT", 0.5),
		ReactionWeight: getEnvFloat("REACTION_WEIGHT", 0.25),

		AmbientSpeakers: getEnvInt("AMBIENT_SPEAKERS", 3),
		AmbientWindow:   getEnvDuration("AMBIENT_WINDOW", 2*time.Minute),

		DecayHalfLife:   getEnvDuration("DECAY_HALF_LIFE", 6*time.Hour),
		WeightCap:       getEnvFloat("WEIGHT_CAP", 10),
		PruneEpsilon:    getEnvFloat("PRUNE_EPSILON", 0.05),
		RetentionWindow: getEnvDuration("RETENTION_WINDOW", 7*24*time.Hour),
		PruneInterval:   getEnvDuration("PRUNE_INTERVAL", 10*time.Minute),
		SaveInterval:    getEnvDuration("SAVE_INTERVAL", 5*time.Minute),

		LayoutIterations:  getEnvInt("LAYOUT_ITERATIONS", 200),
		LayoutConvergence: getEnvFloat("LAYOUT_CONVERGENCE", 0.001),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.DecayHalfLife <= 0 {
		return fmt.Errorf("DECAY_HALF_LIFE must be positive")
	}
	if c.WeightCap <= 0 {
		return fmt.Errorf("WEIGHT_CAP must be positive")
	}
	if c.PruneEpsilon < 0 || c.PruneEpsilon >= c.WeightCap {
		return fmt.Errorf("PRUNE_EPSILON must be in [0, WEIGHT_CAP)")
	}
	if c.AmbientSpeakers < 0 {
		return fmt.Errorf("AMBIENT_SPEAKERS must not be negative")
	}
	if c.LayoutIterations <= 0 {
		return fmt.Errorf("LAYOUT_ITERATIONS must be positive")
	}
	if c.Neo4jURI != "" && c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required when NEO4J_URI is set")
	}
	// Discord token is optional for development and for the HTTP server
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
