package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"sociogram/backend/internal/persist"
	"sociogram/backend/internal/render"
	"sociogram/backend/internal/social"
	"sociogram/backend/pkg/config"
	"sociogram/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting relationship graph API server...")

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
		log.Warn("NEO4J_URI not set, serving in-memory state only")
	}

	engine := buildEngine(cfg, persistence)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.LoadAll(ctx); err != nil {
		log.Error("Failed to load persisted graphs", zap.Error(err))
	}
	go engine.RunPruneLoop(ctx, cfg.PruneInterval)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Render hand-off: layout, cluster ids, labeled edges
		api.GET("/guilds/:id/graph", func(c *gin.Context) {
			result, err := engine.RenderGraph(c.Request.Context(), c.Param("id"))
			if err != nil {
				log.Error("Failed to render graph", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render graph"})
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Same hand-off as a DOT document
		api.GET("/guilds/:id/graph.dot", func(c *gin.Context) {
			result, err := engine.RenderGraph(c.Request.Context(), c.Param("id"))
			if err != nil {
				log.Error("Failed to render graph", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render graph"})
				return
			}
			c.Data(http.StatusOK, "text/vnd.graphviz", []byte(render.DOT(result)))
		})

		// Raw snapshot, mostly for debugging and tuning
		api.GET("/guilds/:id/snapshot", func(c *gin.Context) {
			c.JSON(http.StatusOK, engine.Snapshot(c.Param("id")))
		})

		api.POST("/guilds/:id/reset", func(c *gin.Context) {
			engine.ResetGraph(c.Request.Context(), c.Param("id"))
			c.JSON(http.StatusOK, gin.H{"status": "reset"})
		})

		api.PUT("/guilds/:id/config", func(c *gin.Context) {
			var req struct {
				DecayHalfLife string   `json:"decay_half_life"`
				WeightCap     *float64 `json:"weight_cap"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			guildID := c.Param("id")
			if req.DecayHalfLife != "" {
				tau, err := time.ParseDuration(req.DecayHalfLife)
				if err != nil || tau <= 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "decay_half_life must be a positive duration"})
					return
				}
				engine.SetDecayHalfLife(guildID, tau)
			}
			if req.WeightCap != nil {
				if *req.WeightCap <= 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "weight_cap must be positive"})
					return
				}
				engine.SetWeightCap(guildID, *req.WeightCap)
			}
			c.JSON(http.StatusOK, gin.H{"status": "updated"})
		})
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
}

// ginLogger adapts zap to gin's middleware chain
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
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
