package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"ragingest/internal/adapter/gemini"
	"ragingest/internal/adapter/pgvector"
	wstore "ragingest/internal/adapter/weaviate"
	"ragingest/internal/archive"
	"ragingest/internal/config"
)

type Dependencies struct {
	DB          *sql.DB
	VectorStore VectorStore
	Embedder    Embedder
	NSQProducer *nsq.Producer
	Archiver    archive.Archiver
	// Generator is nil unless answer generation is enabled.
	Generator *gemini.Generator

	closers []io.Closer
}

// Close releases what Bootstrap opened.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	deps.DB = db

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}

	// Vector store
	store, err := newVectorStore(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s schema error: %w", cfg.VectorBackend, err)
	}
	deps.VectorStore = store

	// Embeddings
	embedder := gemini.NewEmbedder(gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.EmbeddingModel,
		Endpoint:    cfg.GeminiEndpoint,
		BatchSize:   cfg.EmbedBatchSize,
		Concurrency: cfg.EmbedConcurrency,
	})
	deps.closers = append(deps.closers, embedder)
	deps.Embedder = gemini.WithCache(embedder, cfg.EmbedCacheSize, time.Duration(cfg.EmbedCacheTTLMin)*time.Minute)

	if cfg.EnableAnswers {
		deps.Generator = gemini.NewGenerator(gemini.GeneratorConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GenerationModel,
			Endpoint:        cfg.GeminiEndpoint,
			MaxOutputTokens: cfg.GenerationMaxTokens,
			Temperature:     cfg.GenerationTemperature,
		})
		deps.closers = append(deps.closers, deps.Generator)
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer
	createTopics(cfg.NSQDHTTP)

	// Raw document archive
	deps.Archiver, err = newArchiver(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	return deps, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

func newVectorStore(cfg *config.Config, db *sql.DB) (VectorStore, error) {
	switch cfg.VectorBackend {
	case config.BackendPgvector:
		return pgvector.NewStore(db, cfg.CollectionName), nil
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(client, cfg.CollectionName), nil
	}
	return nil, fmt.Errorf("%w: VECTOR_BACKEND=%q", config.ErrInvalidValue, cfg.VectorBackend)
}

func newArchiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	switch cfg.ArchiveBackend {
	case config.ArchiveLocal:
		return archive.NewLocal(cfg.UploadDir), nil
	case config.ArchiveS3:
		a, err := archive.NewS3(ctx, archive.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 archive error: %w", err)
		}
		return a, nil
	}
	return nil, nil
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestTask)
		create(config.TopicIngestResult)
	}()
}

// StartIngestConsumer subscribes h to the ingest task topic through nsqlookupd.
func StartIngestConsumer(cfg *config.Config, h nsq.Handler) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicIngestTask, config.ChannelIngestion, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	consumer.AddHandler(h)
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return nil, fmt.Errorf("connect to nsqlookupd: %w", err)
	}
	slog.Info("ingest consumer connected", "topic", config.TopicIngestTask, "channel", config.ChannelIngestion)
	return consumer, nil
}

// nsqLogger routes go-nsq's logger into slog.
type nsqLogger struct{}

func (nsqLogger) Output(_ int, s string) error {
	slog.Warn("nsq", "message", s)
	return nil
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store interface {
	EnsureSchema(ctx context.Context) error
}, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
