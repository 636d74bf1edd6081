package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"sociogram/backend/internal/discord"
	"sociogram/backend/internal/persist"
	"sociogram/backend/internal/social"
	"sociogram/backend/pkg/config"
	"sociogram/backend/pkg/logger"
)

func main() {
	// Load configuration first so the logger knows the environment
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting relationship graph bot...")

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	// Persistence is optional: without Neo4j the engine runs in-memory only
	var persistence social.Persistence
	if cfg.Neo4jURI != "" {
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			log.Fatal("Failed to create Neo4j driver", zap.Error(err))
		}
		defer driver.Close(context.Background())

		if err := driver.VerifyConnectivity(context.Background()); err != nil {
			log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
		}
		persistence = persist.NewRepository(driver)
	} else {
		log.Warn("NEO4J_URI not set, running in-memory only")
	}

	engine := buildEngine(cfg, persistence)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore persisted graphs; failure is not fatal to ingestion
	if err := engine.LoadAll(ctx); err != nil {
		log.Error("Failed to load persisted graphs, continuing in-memory", zap.Error(err))
	}

	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}

	handler := discord.NewHandler(engine, nil, cfg.CommandPrefix, log)
	session.AddHandler(handler.HandleMessageCreate)
	session.AddHandler(handler.HandleReactionAdd)
	session.AddHandler(handler.HandleGuildDelete)

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	if err := session.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}
	defer session.Close()

	go engine.RunPruneLoop(ctx, cfg.PruneInterval)
	go engine.RunAutosaveLoop(ctx, cfg.SaveInterval)

	log.Info("Bot is running",
		zap.String("command_prefix", cfg.CommandPrefix),
		zap.Duration("prune_interval", cfg.PruneInterval),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()

	// Final save so the next start resumes without discontinuity
	saveCtx, saveCancel := context.WithTimeout(context.Background(), cfg.SaveInterval)
	defer saveCancel()
	if err := engine.SaveAll(saveCtx); err != nil {
		log.Error("Final save failed", zap.Error(err))
	}
}

func buildEngine(cfg *config.Config, persistence social.Persistence) *social.Engine {
	log := logger.Get()

	recorderCfg := social.DefaultRecorderConfig()
	recorderCfg.MentionWeight = cfg.MentionWeight
	recorderCfg.ReplyWeight = cfg.ReplyWeight
	recorderCfg.AmbientWeight = cfg.AmbientWeight
	recorderCfg.ReactionWeight = cfg.ReactionWeight
	recorderCfg.AmbientSpeakers = cfg.AmbientSpeakers
	recorderCfg.AmbientWindow = cfg.AmbientWindow

	storeCfg := social.StoreConfig{
		DecayHalfLife:   cfg.DecayHalfLife,
		WeightCap:       cfg.WeightCap,
		PruneEpsilon:    cfg.PruneEpsilon,
		RetentionWindow: cfg.RetentionWindow,
	}

	layoutCfg := social.DefaultLayoutConfig()
	layoutCfg.Iterations = cfg.LayoutIterations
	layoutCfg.Convergence = cfg.LayoutConvergence

	recorder := social.NewRecorder(recorderCfg, log)
	store := social.NewStore(storeCfg, recorder, log)
	classifier := social.NewClassifier(social.DefaultClassifierConfig())
	layoutEngine := social.NewLayoutEngine(layoutCfg, log)

	return social.NewEngine(store, classifier, layoutEngine, persistence)
}
