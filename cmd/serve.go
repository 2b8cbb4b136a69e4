package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/diogotoporcov/Finder2/internal/config"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
	"github.com/diogotoporcov/Finder2/internal/ingest"
	"github.com/diogotoporcov/Finder2/internal/storage"
	"github.com/diogotoporcov/Finder2/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion API server",
	Long: `Start the Finder API server.
The server exposes batch image upload with duplicate detection, asset
retrieval and similarity search over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("hnsw", true, "Build the in-memory HNSW index for similarity search")
}

// initEmbeddingHNSW builds the in-memory HNSW index for fast similarity search.
func initEmbeddingHNSW(ctx context.Context, embeddingRepo *postgres.EmbeddingRepository) {
	fmt.Printf("Building in-memory HNSW index for image embeddings...\n")
	if err := embeddingRepo.EnableHNSW(ctx); err != nil {
		fmt.Printf("Warning: Failed to build embedding HNSW index: %v\n", err)
		fmt.Printf("Similarity search will use PostgreSQL queries (slower)\n")
		return
	}
	fmt.Printf("Embedding HNSW index built with %d embeddings (in-memory only)\n", embeddingRepo.HNSWCount())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	gate := semaphore.NewWeighted(cfg.Storage.MaxConcurrentIO)
	embedder := fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Dim)
	blobs := storage.NewBlobStore(cfg.Storage.Root, cfg.Upload.MaxFileBytes, gate)

	assets := postgres.NewAssetStore()
	collections := postgres.NewCollectionStore(pool)
	users := postgres.NewUserStore(pool)
	embeddingRepo := postgres.NewEmbeddingRepository(pool)

	pipeline := ingest.NewPipeline(cfg, pool, assets, blobs, embedder, gate, logger)
	pipeline.OnCommit(embeddingRepo.NotifyCommitted)

	if mustGetBool(cmd, "hnsw") {
		initEmbeddingHNSW(cmd.Context(), embeddingRepo)
	}

	server := web.NewServer(cfg, web.Deps{
		Pool:        pool,
		Pipeline:    pipeline,
		Assets:      assets,
		Collections: collections,
		Users:       users,
		Embeddings:  embeddingRepo,
		Blobs:       blobs,
		Embedder:    embedder,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Finder API on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
