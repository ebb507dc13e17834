package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"ragingest/features/ingest"
	"ragingest/features/job"
	"ragingest/features/query"
	"ragingest/features/stats"
	"ragingest/internal/adapter/reranker"
	"ragingest/internal/config"
	"ragingest/internal/extract"
	"ragingest/internal/middleware"
	"ragingest/internal/text"
	"ragingest/internal/worker"
)

// VectorStore is the surface every backend provides.
type VectorStore interface {
	ingest.Store
	query.Store
	stats.VectorStore
	EnsureSchema(ctx context.Context) error
}

type Embedder interface {
	ingest.Embedder
	query.Embedder
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

type Option func(*options)

type options struct {
	answerer query.Answerer
}

// WithAnswerer enables generate_answer on the query endpoint.
func WithAnswerer(a query.Answerer) Option {
	return func(o *options) { o.answerer = a }
}

type App struct {
	Handler        http.Handler
	IngestService  *ingest.Service
	IngestConsumer *worker.IngestConsumer

	cfg *config.Config
}

// New wires features onto a router. db, pub and archiver may be nil, which
// disables the ingestion ledger, async ingestion and upload archiving. The
// failed job endpoints need both db and pub.
func New(cfg *config.Config, db *sql.DB, store VectorStore, embedder Embedder, pub Publisher, archiver ingest.Archiver, appOpts ...Option) (*App, error) {
	if store == nil || embedder == nil {
		return nil, errors.New("app: vector store and embedder are required")
	}
	var o options
	for _, opt := range appOpts {
		opt(&o)
	}

	extractor := extract.New(extract.Options{
		FetchTimeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		MaxFetchSize: cfg.MaxFetchSizeMB << 20,
	})

	var (
		opts      []ingest.Option
		statsRepo stats.IngestionRepo
	)
	if db != nil {
		ledger := ingest.NewPostgresRepo(db)
		statsRepo = ledger
		opts = append(opts, ingest.WithRepository(ledger))
	}
	if pub != nil {
		opts = append(opts, ingest.WithPublisher(pub))
	}
	if archiver != nil {
		opts = append(opts, ingest.WithArchiver(archiver))
	}

	// Feature: Ingest
	chunking := text.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	ingestService := ingest.NewService(extractor, embedder, store, chunking, opts...)
	ingestHandler := ingest.NewHandler(ingestService, cfg.MaxUploadSizeMB<<20)

	// Feature: Query
	queryLogger, err := query.NewFileLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, query log disabled", "error", err, "path", cfg.QueryLogPath)
		queryLogger = nil
	}
	var queryOpts []query.Option
	rr := reranker.NewClient(reranker.Config{
		Provider: cfg.RerankProvider,
		APIKey:   cfg.RerankAPIKey,
		Model:    cfg.RerankModel,
		BaseURL:  cfg.RerankURL,
	})
	if rr.Enabled() {
		queryOpts = append(queryOpts, query.WithReranker(rr))
	}
	if o.answerer != nil {
		queryOpts = append(queryOpts, query.WithAnswerer(o.answerer))
	}
	queryHandler := query.NewHandler(query.NewService(embedder, store, cfg.DefaultTopK, queryLogger, queryOpts...))

	// Feature: Stats
	statsHandler := stats.NewHandler(store, statsRepo, cfg.CollectionName)

	// Feature: Job (dead letter for async ingestion)
	consumer := worker.NewIngestConsumer(ingestService, worker.DefaultTaskTimeout)
	var jobHandler *job.Handler
	if db != nil && pub != nil {
		jobService := job.NewService(job.NewPostgresRepo(db), pub)
		jobHandler = job.NewHandler(jobService)
		consumer.WithDeadLetter(jobService)
		statsHandler.WithFailedJobs(jobService)
	}

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rootHandler(cfg))
	mux.HandleFunc("GET /health", healthHandler(cfg))
	mux.HandleFunc("GET /api/v1/health", healthHandler(cfg))

	mux.HandleFunc("POST /api/v1/ingest", ingestHandler.Ingest)
	mux.HandleFunc("POST /api/v1/ingest/file", ingestHandler.IngestFile)
	mux.HandleFunc("POST /api/v1/ingest/async", ingestHandler.IngestAsync)
	mux.HandleFunc("GET /api/v1/ingestions", ingestHandler.ListIngestions)
	mux.HandleFunc("GET /api/v1/ingestions/{id}", ingestHandler.GetIngestion)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", ingestHandler.DeleteDocument)

	mux.HandleFunc("POST /api/v1/query", queryHandler.Query)
	mux.HandleFunc("GET /api/v1/stats", statsHandler.GetStats)

	if jobHandler != nil {
		mux.HandleFunc("GET /api/v1/jobs/failed", jobHandler.List)
		mux.HandleFunc("POST /api/v1/jobs/{id}/retry", jobHandler.Retry)
	}

	var handler http.Handler = mux
	handler = chimw.Recoverer(handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigins)(handler)
	handler = middleware.CorrelationID(handler)

	return &App{
		Handler:        handler,
		IngestService:  ingestService,
		IngestConsumer: consumer,
		cfg:            cfg,
	}, nil
}

func rootHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"message": "Welcome to " + cfg.AppName,
			"version": cfg.AppVersion,
		})
	}
}

func healthHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":   "ok",
			"app_name": cfg.AppName,
			"version":  cfg.AppVersion,
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
