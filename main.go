package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"ragingest/features/ingest"
	"ragingest/internal/app"
	"ragingest/internal/config"
	"ragingest/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "ragingest",
		Short:         "Document ingestion and retrieval service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(logger.New(os.Stdout, level))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingest worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(newIngestCmd())
	return root
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	var opts []app.Option
	if deps.Generator != nil {
		opts = append(opts, app.WithAnswerer(deps.Generator))
	}
	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.Embedder, deps.NSQProducer, deps.Archiver, opts...)
	if err != nil {
		return err
	}

	if cfg.EnableIngestWorker {
		consumer, err := app.StartIngestConsumer(cfg, a.IngestConsumer)
		if err != nil {
			slog.Error("ingest worker disabled", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	return a.Run(ctx)
}

func newIngestCmd() *cobra.Command {
	var (
		docType string
		source  string
		inline  string
		size    int
		overlap int
	)

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest one file or inline content and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && inline == "" {
				return errors.New("pass a file or --content")
			}

			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			deps, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer deps.Close()

			a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.Embedder, nil, deps.Archiver)
			if err != nil {
				return err
			}

			o := &ingest.ChunkOverrides{}
			if cmd.Flags().Changed("chunk-size") {
				o.Size = &size
			}
			if cmd.Flags().Changed("chunk-overlap") {
				o.Overlap = &overlap
			}

			var res *ingest.Result
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				res, err = a.IngestService.IngestFile(ctx, data, filepath.Base(args[0]), docType, "", o)
				if err != nil {
					return err
				}
			} else {
				res, err = a.IngestService.Ingest(ctx, ingest.Document{
					Content: []byte(inline),
					Type:    docType,
					Source:  source,
				}, o)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "document %s: %d chunks\n", res.DocumentID, res.ChunksCreated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type (text, markdown, html, pdf, docx, or url to fetch --content and type it from the response); inferred from the file extension when empty")
	cmd.Flags().StringVar(&source, "source", "", "source label for inline content")
	cmd.Flags().StringVar(&inline, "content", "", "inline content to ingest instead of a file")
	cmd.Flags().IntVar(&size, "chunk-size", 0, "override the configured chunk size")
	cmd.Flags().IntVar(&overlap, "chunk-overlap", 0, "override the configured chunk overlap")
	return cmd
}
