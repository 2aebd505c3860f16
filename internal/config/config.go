package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	MongoURI string
	DBName   string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Qdrant (tenant vector index)
	QdrantURL       string
	QdrantAPIKey    string
	QdrantTimeout   int // seconds; longest of the three backends, covers the batch loop
	VectorDim       int
	UpsertBatchSize int

	// Embedding gateway (OpenAI-compatible, multimodal)
	EmbedBaseURL      string
	EmbedAPIKey       string
	EmbedModel        string
	EmbedBatchSize    int
	EmbedTimeout      int // seconds
	EmbedCacheTTLSecs int

	// Completion backends: grounded (document mode) and general (open chat)
	GroundedBaseURL string
	GroundedAPIKey  string
	GroundedModel   string
	GroundedTimeout int // seconds
	GeneralBaseURL  string
	GeneralAPIKey   string
	GeneralModel    string
	GeneralTimeout  int // seconds
	MaxOutputTokens int

	// Vision transcription (image uploads, scanned pages)
	GeminiAPIKey string

	// Chunking
	MaxChunkWords int
	MinChunkWords int

	// Retrieval and reranking
	RetrievalK           int
	RetrievalKMin        int
	RetrievalKMax        int
	MaxContextChunks     int
	RerankFloorMin       float64
	RerankFloorRatio     float64
	RerankSemanticWeight float64
	RerankLexicalWeight  float64

	// Uploads
	MaxFileSize         int64
	SyncProcessingLimit int64
	FileStorageDir      string
	AllowedTypes        []string

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Chat history
	MaxHistoryTurns int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/docqa"),
		DBName:   getEnv("DB_NAME", "docqa"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QdrantURL:       getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:    getEnv("QDRANT_KEY", ""),
		QdrantTimeout:   getEnvInt("QDRANT_TIMEOUT", 60),
		VectorDim:       getEnvInt("VECTOR_DIM", 2048),
		UpsertBatchSize: getEnvInt("UPSERT_BATCH_SIZE", 10),

		EmbedBaseURL:      getEnv("EMBED_BASE_URL", "https://integrate.api.nvidia.com/v1"),
		EmbedAPIKey:       getEnv("EMBED_API_KEY", ""),
		EmbedModel:        getEnv("EMBED_MODEL", "nvidia/llama-nemotron-embed-vl-1b-v2"),
		EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedTimeout:      getEnvInt("EMBED_TIMEOUT", 30),
		EmbedCacheTTLSecs: getEnvInt("EMBED_CACHE_TTL", 300),

		GroundedBaseURL: getEnv("GROUNDED_BASE_URL", "https://api.groq.com/openai/v1"),
		GroundedAPIKey:  getEnv("GROUNDED_API_KEY", ""),
		GroundedModel:   getEnv("GROUNDED_MODEL", "llama-3.3-70b-versatile"),
		GroundedTimeout: getEnvInt("GROUNDED_TIMEOUT", 60),
		GeneralBaseURL:  getEnv("GENERAL_BASE_URL", "https://integrate.api.nvidia.com/v1"),
		GeneralAPIKey:   getEnv("GENERAL_API_KEY", ""),
		GeneralModel:    getEnv("GENERAL_MODEL", "moonshotai/kimi-k2-instruct"),
		GeneralTimeout:  getEnvInt("GENERAL_TIMEOUT", 120),
		MaxOutputTokens: getEnvInt("MAX_OUTPUT_TOKENS", 1024),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		MaxChunkWords: getEnvInt("MAX_CHUNK_WORDS", 320),
		MinChunkWords: getEnvInt("MIN_CHUNK_WORDS", 25),

		RetrievalK:           getEnvInt("RETRIEVAL_K", 12),
		RetrievalKMin:        getEnvInt("RETRIEVAL_K_MIN", 4),
		RetrievalKMax:        getEnvInt("RETRIEVAL_K_MAX", 24),
		MaxContextChunks:     getEnvInt("MAX_CONTEXT_CHUNKS", 5),
		RerankFloorMin:       getEnvFloat64("RERANK_FLOOR_MIN", 0.2),
		RerankFloorRatio:     getEnvFloat64("RERANK_FLOOR_RATIO", 0.65),
		RerankSemanticWeight: getEnvFloat64("RERANK_SEMANTIC_WEIGHT", 0.85),
		RerankLexicalWeight:  getEnvFloat64("RERANK_LEXICAL_WEIGHT", 0.15),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520),
		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		AllowedTypes:        strings.Split(getEnv("ALLOWED_FILE_TYPES", ".pdf,.docx,.txt,.csv,.md,.json,.xlsx,.png,.jpg,.jpeg,.webp"), ","),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxHistoryTurns: getEnvInt("MAX_HISTORY_TURNS", 10),
	}

	// Validate required fields
	if cfg.EmbedAPIKey == "" {
		return nil, fmt.Errorf("EMBED_API_KEY is required - set it in .env file")
	}

	if cfg.GroundedAPIKey == "" {
		return nil, fmt.Errorf("GROUNDED_API_KEY is required - set it in .env file")
	}

	if cfg.GeneralAPIKey == "" {
		return nil, fmt.Errorf("GENERAL_API_KEY is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
