package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectID   string
	Region      string
	Port        string
	GinMode     string
	CORSOrigins []string
	MaxFileSize int64

	// Object storage
	StorageBackend string // "local" or "gcs"
	FileStorageDir string
	UploadBucket   string

	// Relational store
	DBDriver           string // "sqlite" or "postgres"
	DBPath             string
	DBHost             string
	DBPort             int
	DBName             string
	DBUser             string
	DBPassword         string
	DBPasswordSecretID string

	// Vector index
	VectorBackend         string // "memory", "pgvector" or "mongo"
	VectorDimensions      int
	MongoURI              string
	MongoDBName           string
	MongoVectorIndex      string
	MongoVectorCollection string

	// Models
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GeminiTier            string
	GoogleEmbeddingsModel string
	OpenAIAPIKey          string
	OpenAIEmbeddingsModel string
	LLMModelName          string
	PDFExtraction         string // "gemini", "local" or "auto"

	// Retrieval and ingestion
	DefaultTopK      int
	ChunkTokens      int
	EmbedConcurrency int
	EmbedBatchSize   int

	// Timeouts for external calls
	EmbedTimeout    time.Duration
	ExtractTimeout  time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration

	// Redis (asynq + ingestion lease)
	RedisURL       string
	RedisPassword  string
	RedisDB        int
	IngestLeaseTTL time.Duration

	ReconcileInterval time.Duration

	// Rate limiting (per client IP and route)
	RateLimitReqs   int
	RateLimitWindow int // seconds

	// OpenTelemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		ProjectID:   getEnv("PROJECT_ID", ""),
		Region:      getEnv("REGION", "europe-west3"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),
		UploadBucket:   getEnv("UPLOAD_BUCKET", "rag-uploads"),

		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DBPath:             getEnv("DB_PATH", "./storage/rag.db"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnvInt("DB_PORT", 5432),
		DBName:             getEnv("DB_NAME", "rag_db"),
		DBUser:             getEnv("DB_USER", "rag_user"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBPasswordSecretID: getEnv("DB_PASSWORD_SECRET_ID", "rag-db-password"),

		VectorBackend:         getEnv("VECTOR_BACKEND", "memory"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),
		MongoURI:              getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:           getEnv("MONGO_DB_NAME", "rag_vectors"),
		MongoVectorIndex:      getEnv("MONGODB_VECTOR_INDEX", "chunk_embeddings_vector"),
		MongoVectorCollection: getEnv("MONGODB_VECTOR_COLLECTION", "chunk_embeddings"),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		LLMModelName:          getEnv("LLM_MODEL_NAME", "gemini-2.0-flash"),
		PDFExtraction:         getEnv("PDF_EXTRACTION", "auto"),

		DefaultTopK:      getEnvInt("DEFAULT_TOP_K", 5),
		ChunkTokens:      getEnvInt("CHUNK_TOKENS", 500),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 4),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 32),

		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		ExtractTimeout:  getEnvDuration("EXTRACT_TIMEOUT", 5*time.Minute),
		SearchTimeout:   getEnvDuration("SEARCH_TIMEOUT", 15*time.Second),
		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 60*time.Second),

		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		IngestLeaseTTL: getEnvDuration("INGEST_LEASE_TTL", 15*time.Minute),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 10*time.Minute),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "local", "gcs":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %s", c.StorageBackend)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown DB_DRIVER: %s", c.DBDriver)
	}
	switch c.VectorBackend {
	case "memory", "pgvector", "mongo":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND: %s", c.VectorBackend)
	}
	if c.VectorBackend == "pgvector" && c.DBDriver != "postgres" {
		return fmt.Errorf("VECTOR_BACKEND=pgvector requires DB_DRIVER=postgres")
	}
	switch c.EmbeddingsProvider {
	case "google", "":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai embeddings")
		}
	default:
		return fmt.Errorf("unknown embeddings provider: %s", c.EmbeddingsProvider)
	}
	switch c.PDFExtraction {
	case "gemini", "local", "auto":
	default:
		return fmt.Errorf("unknown PDF_EXTRACTION: %s", c.PDFExtraction)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("DEFAULT_TOP_K must be a positive integer")
	}
	if c.ChunkTokens <= 0 {
		return fmt.Errorf("CHUNK_TOKENS must be a positive integer")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
