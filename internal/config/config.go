package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BackendWeaviate = "weaviate"
	BackendPgvector = "pgvector"

	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

type Config struct {
	AppName    string `envconfig:"APP_NAME" default:"RAG Microservice"`
	AppVersion string `envconfig:"APP_VERSION" default:"1.0.0"`
	ServerPort int    `envconfig:"SERVER_PORT" default:"8000"`

	DBHost        string `envconfig:"DB_HOST" default:"postgres"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"ragingest"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"ragingest"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Vector store
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"documents"`

	// Embeddings
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiEndpoint   string `envconfig:"GEMINI_ENDPOINT"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbedBatchSize   int    `envconfig:"EMBED_BATCH_SIZE" default:"100"`
	EmbedConcurrency int    `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedCacheSize   int    `envconfig:"EMBED_CACHE_SIZE" default:"1024"`
	EmbedCacheTTLMin int    `envconfig:"EMBED_CACHE_TTL_MINUTES" default:"10"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"100"`

	// Extraction
	FetchTimeoutSeconds int   `envconfig:"FETCH_TIMEOUT_SECONDS" default:"30"`
	MaxFetchSizeMB      int64 `envconfig:"MAX_FETCH_SIZE_MB" default:"50"`
	MaxUploadSizeMB     int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	// Messaging
	NSQLookupd         string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost           string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP           string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableIngestWorker bool   `envconfig:"ENABLE_INGEST_WORKER" default:"true"`

	// Raw document archive
	ArchiveBackend string `envconfig:"ARCHIVE_BACKEND" default:"local"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	S3Bucket       string `envconfig:"S3_BUCKET"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`

	// Query
	QueryLogPath   string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	DefaultTopK    int    `envconfig:"DEFAULT_TOP_K" default:"5"`
	RerankProvider string `envconfig:"RERANK_PROVIDER" default:"none"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`
	RerankModel    string `envconfig:"RERANK_MODEL"`
	RerankURL      string `envconfig:"RERANK_URL"`

	// Answer generation
	EnableAnswers         bool    `envconfig:"ENABLE_ANSWERS" default:"false"`
	GenerationModel       string  `envconfig:"GENERATION_MODEL" default:"gemini-1.5-flash"`
	GenerationMaxTokens   int32   `envconfig:"GENERATION_MAX_TOKENS" default:"500"`
	GenerationTemperature float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.1"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over .env files.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields and enumerated values. Chunk size and overlap
// are checked per ingestion so a bad pair surfaces as a chunk config error.
func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: COLLECTION_NAME", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case BackendWeaviate, BackendPgvector:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND=%q", ErrInvalidValue, c.VectorBackend)
	}

	switch c.ArchiveBackend {
	case ArchiveNone, ArchiveLocal:
	case ArchiveS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: ARCHIVE_BACKEND=%q", ErrInvalidValue, c.ArchiveBackend)
	}

	switch c.RerankProvider {
	case "", "none", "jina", "cohere":
	default:
		return fmt.Errorf("%w: RERANK_PROVIDER=%q", ErrInvalidValue, c.RerankProvider)
	}

	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE=%d", ErrInvalidValue, c.EmbedBatchSize)
	}
	return nil
}

// DSN is the lib/pq connection string for the configured database.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
