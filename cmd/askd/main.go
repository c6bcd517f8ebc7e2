// Askd is a retrieval-augmented document Q&A daemon.
//
// It ingests uploaded documents (extract → chunk → embed → index),
// stores curated Q&A notes, and answers questions with a
// confidence-gated, citation-annotated streamed completion.
//
// Usage:
//
//	# Start with defaults (embedded chromem index, local stores)
//	askd
//
//	# Custom config file
//	askd -config /etc/askd/config.yaml
//
//	# Configure via environment
//	ASKD_SERVER_PORT=9090 ASKD_VECTORINDEX_PROVIDER=qdrant askd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/answer"
	"github.com/fyrsmithlabs/askd/internal/blob"
	"github.com/fyrsmithlabs/askd/internal/chunker"
	"github.com/fyrsmithlabs/askd/internal/config"
	"github.com/fyrsmithlabs/askd/internal/embedding"
	"github.com/fyrsmithlabs/askd/internal/extract"
	"github.com/fyrsmithlabs/askd/internal/httpapi"
	"github.com/fyrsmithlabs/askd/internal/ingest"
	"github.com/fyrsmithlabs/askd/internal/llm"
	"github.com/fyrsmithlabs/askd/internal/logging"
	"github.com/fyrsmithlabs/askd/internal/metrics"
	"github.com/fyrsmithlabs/askd/internal/notes"
	"github.com/fyrsmithlabs/askd/internal/vectorindex"

	"github.com/prometheus/client_golang/prometheus"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to configuration file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  askd           Start the askd daemon\n")
			fmt.Fprintf(os.Stderr, "  askd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("askd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires all dependencies and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting askd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vector_index", cfg.VectorIndex.Provider),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	embedder, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("initializing embedding client: %w", err)
	}

	index, err := vectorindex.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing vector index: %w", err)
	}
	defer index.Close()

	noteStore, err := notes.NewStore(cfg.Notes.Path)
	if err != nil {
		return fmt.Errorf("initializing note store: %w", err)
	}
	defer noteStore.Close()

	blobs, err := blob.NewStore(cfg.Blob.Path)
	if err != nil {
		return fmt.Errorf("initializing blob store: %w", err)
	}

	model, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing llm client: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	ingestSvc := ingest.NewService(
		extract.NewTextExtractor(),
		chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		embedder,
		index,
		blobs,
		noteStore,
		cfg.Ingest,
		logger.Named("ingest"),
		m,
	)
	defer ingestSvc.Wait()

	engine := answer.NewEngine(
		embedder,
		index,
		noteStore,
		model,
		cfg.Answer,
		logger.Named("answer"),
		m,
	)

	server, err := httpapi.NewServer(ingestSvc, engine, blobs, cfg.Server, logger.Named("http"))
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	logger.Info("server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"),
	)

	return server.Start(ctx)
}
