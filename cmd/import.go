package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/diogotoporcov/Finder2/internal/config"
	"github.com/diogotoporcov/Finder2/internal/database"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
	"github.com/diogotoporcov/Finder2/internal/ingest"
	"github.com/diogotoporcov/Finder2/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <folder-path> [folder-path...]",
	Short: "Bulk-import images from local folders",
	Long: `Import images from one or more folders directly through the ingestion
pipeline, without going through the HTTP API.

By default, only files in the specified folders are imported (non-recursive).
Use -r to search recursively in subdirectories. Duplicate images are skipped
and reported in the summary.

Example:
  finder import --api-key k3y /path/to/photos
  finder import --api-key k3y --collection 1f0e... -r /path/to/archive`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("api-key", "", "API key of the importing account (required)")
	importCmd.Flags().String("collection", "", "Target collection id (defaults to the account's default collection)")
	importCmd.Flags().Int("batch", 10, "Number of files per ingestion batch")
	importCmd.Flags().BoolP("recursive", "r", false, "Search for images recursively in subdirectories")
	importCmd.MarkFlagRequired("api-key")
}

// isImageFile checks if a file has a supported image extension
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".tiff", ".tif", ".bmp":
		return true
	}
	return false
}

// collectImageFiles gathers image paths from the given folders.
func collectImageFiles(folderPaths []string, recursive bool) ([]string, error) {
	var filePaths []string
	for _, folderPath := range folderPaths {
		info, err := os.Stat(folderPath)
		if err != nil {
			return nil, fmt.Errorf("cannot access folder %s: %w", folderPath, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", folderPath)
		}

		if recursive {
			err := filepath.WalkDir(folderPath, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					filePaths = append(filePaths, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", folderPath, err)
			}
			continue
		}

		entries, err := os.ReadDir(folderPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", folderPath, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImageFile(entry.Name()) {
				filePaths = append(filePaths, filepath.Join(folderPath, entry.Name()))
			}
		}
	}
	return filePaths, nil
}

// resolveImportScope maps the api-key and collection flags to an ingestion scope.
func resolveImportScope(ctx context.Context, cmd *cobra.Command, pool *postgres.Pool) (database.Scope, error) {
	users := postgres.NewUserStore(pool)
	owner, err := users.GetByAPIKey(ctx, mustGetString(cmd, "api-key"))
	if err != nil {
		return database.Scope{}, fmt.Errorf("resolving account: %w", err)
	}

	collections := postgres.NewCollectionStore(pool)
	if target := mustGetString(cmd, "collection"); target != "" {
		id, err := uuid.Parse(target)
		if err != nil {
			return database.Scope{}, fmt.Errorf("invalid collection id %q", target)
		}
		collection, err := collections.Get(ctx, owner.ID, id)
		if err != nil {
			return database.Scope{}, fmt.Errorf("resolving collection: %w", err)
		}
		return database.Scope{OwnerID: owner.ID, CollectionID: collection.ID}, nil
	}

	collection, err := collections.GetDefault(ctx, owner.ID)
	if err != nil {
		return database.Scope{}, fmt.Errorf("resolving default collection: %w", err)
	}
	return database.Scope{OwnerID: owner.ID, CollectionID: collection.ID}, nil
}

// loadBatch reads a slice of paths into pipeline input, sniffing media types
// from the file contents.
func loadBatch(paths []string) ([]ingest.File, error) {
	files := make([]ingest.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, ingest.File{
			Filename:  filepath.Base(path),
			MediaType: http.DetectContentType(data),
			Data:      data,
		})
	}
	return files, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	recursive := mustGetBool(cmd, "recursive")
	batchSize := mustGetInt(cmd, "batch")
	if batchSize < 1 {
		return errors.New("--batch must be at least 1")
	}

	cfg := config.Load()
	logger := newLogger()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	filePaths, err := collectImageFiles(args, recursive)
	if err != nil {
		return err
	}
	if len(filePaths) == 0 {
		fmt.Println("No image files found in the specified folders.")
		return nil
	}
	fmt.Printf("Found %d image(s) to import from %d folder(s)\n", len(filePaths), len(args))

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := cmd.Context()
	scope, err := resolveImportScope(ctx, cmd, pool)
	if err != nil {
		return err
	}

	gate := semaphore.NewWeighted(cfg.Storage.MaxConcurrentIO)
	embedder := fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Dim)
	blobs := storage.NewBlobStore(cfg.Storage.Root, cfg.Upload.MaxFileBytes, gate)
	pipeline := ingest.NewPipeline(cfg, pool, postgres.NewAssetStore(), blobs, embedder, gate, logger)

	if batchSize > cfg.Upload.MaxBatchFiles {
		batchSize = cfg.Upload.MaxBatchFiles
	}

	bar := progressbar.NewOptions(len(filePaths),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var accepted, duplicates int
	var failures []string
	for start := 0; start < len(filePaths); start += batchSize {
		end := min(start+batchSize, len(filePaths))
		paths := filePaths[start:end]

		files, err := loadBatch(paths)
		if err != nil {
			failures = append(failures, err.Error())
			bar.Add(len(paths))
			continue
		}

		result, err := pipeline.Ingest(ctx, scope, files, true)
		if err != nil && !errors.Is(err, ingest.ErrAllDuplicates) {
			failures = append(failures, fmt.Sprintf("batch %s..%s: %v", filepath.Base(paths[0]), filepath.Base(paths[len(paths)-1]), err))
			bar.Add(len(paths))
			continue
		}

		accepted += len(result.Accepted)
		duplicates += len(result.Duplicates)
		bar.Add(len(paths))
	}
	fmt.Println()

	for _, msg := range failures {
		fmt.Printf("Failed: %s\n", msg)
	}

	fmt.Printf("\nDone! Imported %d image(s), skipped %d duplicate(s)\n", accepted, duplicates)
	if len(failures) > 0 {
		return fmt.Errorf("%d batch(es) failed", len(failures))
	}
	return nil
}
