package main

import (
	"context"
	"log"
	"time"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/config"
	"docqa-platform/internal/database"
	"docqa-platform/internal/logger"
	"docqa-platform/internal/queue"
	"docqa-platform/internal/vectorstore"
	"docqa-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	vectorIndex := vectorstore.NewClient(vectorstore.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		VectorSize: cfg.VectorDim,
		BatchSize:  cfg.UpsertBatchSize,
		Timeout:    time.Duration(cfg.QdrantTimeout) * time.Second,
	})

	embedder := ai.NewEmbeddingClient(cfg, redisClient)

	visionClient, err := ai.NewVisionClient(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal("Failed to initialize vision client:", err)
	}
	defer visionClient.Close()

	store := database.NewMetadataStore(mongoClient, cfg.DBName)
	chunker := services.NewChunker(cfg.MaxChunkWords, cfg.MinChunkWords)
	ingestion := services.NewIngestionService(cfg, chunker, services.NewExtractor(), embedder, vectorIndex, store, visionClient)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestion)
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.HandleIngestDocument)

	logger.Info("starting ingestion worker",
		"concurrency", 20, "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Worker failed:", err)
	}
}
