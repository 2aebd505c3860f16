package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/config"
	"docqa-platform/internal/database"
	"docqa-platform/internal/logger"
	"docqa-platform/internal/telemetry"
	"docqa-platform/internal/vectorstore"
	"docqa-platform/middleware"
	"docqa-platform/routes"
	"docqa-platform/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer("docqa-platform")
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Connect to Redis (embedding cache, rate limiting, task queue)
	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	// Process-wide backend clients; all are safe for concurrent use.
	vectorIndex := vectorstore.NewClient(vectorstore.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		VectorSize: cfg.VectorDim,
		BatchSize:  cfg.UpsertBatchSize,
		Timeout:    time.Duration(cfg.QdrantTimeout) * time.Second,
	})
	embedder := ai.NewEmbeddingClient(cfg, redisClient)
	grounded := ai.NewCompletionClient("grounded", cfg.GroundedBaseURL, cfg.GroundedAPIKey,
		cfg.GroundedModel, time.Duration(cfg.GroundedTimeout)*time.Second)
	general := ai.NewCompletionClient("general", cfg.GeneralBaseURL, cfg.GeneralAPIKey,
		cfg.GeneralModel, time.Duration(cfg.GeneralTimeout)*time.Second)

	visionClient, err := ai.NewVisionClient(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal("Failed to initialize vision client:", err)
	}
	defer visionClient.Close()

	// Core services
	store := database.NewMetadataStore(mongoClient, cfg.DBName)
	chunker := services.NewChunker(cfg.MaxChunkWords, cfg.MinChunkWords)
	ingestion := services.NewIngestionService(cfg, chunker, services.NewExtractor(),
		embedder, vectorIndex, store, visionClient)
	answers := services.NewAnswerService(cfg, embedder,
		services.NewRetriever(cfg, vectorIndex), services.NewReranker(cfg),
		grounded, general, store)

	// Queue client for oversized uploads
	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit(redisClient, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupUploadRoutes(router, cfg, ingestion, queueClient)
	routes.SetupChatRoutes(router, answers, store, cfg.MaxHistoryTurns)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
