package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Upload.MaxFileBytes != 10*1024*1024 {
		t.Errorf("MaxFileBytes = %d; want 10 MiB", cfg.Upload.MaxFileBytes)
	}
	if cfg.Upload.MaxBatchFiles != 50 {
		t.Errorf("MaxBatchFiles = %d; want 50", cfg.Upload.MaxBatchFiles)
	}
	if cfg.Similarity.PHashTolerance != 5 {
		t.Errorf("PHashTolerance = %d; want 5", cfg.Similarity.PHashTolerance)
	}
	if cfg.Similarity.EmbeddingThreshold != 0.9 {
		t.Errorf("EmbeddingThreshold = %f; want 0.9", cfg.Similarity.EmbeddingThreshold)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("Embedding.Dim = %d; want 512", cfg.Embedding.Dim)
	}
	if cfg.Embedding.AllowDegraded {
		t.Error("AllowDegraded should default to false")
	}
	if len(cfg.Upload.AllowedMediaTypes) == 0 {
		t.Error("AllowedMediaTypes should have embedded defaults")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("MAX_UPLOAD_FILES", "3")
	t.Setenv("PHASH_BIT_DIFF_TOLERANCE", "2")
	t.Setenv("EMBEDDING_SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("ALLOW_DEGRADED_DUPLICATE_CHECK", "true")
	t.Setenv("ALLOWED_MEDIA_TYPES", "image/jpeg, image/png")
	t.Setenv("MAX_CONCURRENT_IO", "8")
	t.Setenv("WEB_PORT", "9090")

	cfg := Load()

	if cfg.Upload.MaxFileBytes != 1048576 {
		t.Errorf("MaxFileBytes = %d; want 1048576", cfg.Upload.MaxFileBytes)
	}
	if cfg.Upload.MaxBatchFiles != 3 {
		t.Errorf("MaxBatchFiles = %d; want 3", cfg.Upload.MaxBatchFiles)
	}
	if cfg.Similarity.PHashTolerance != 2 {
		t.Errorf("PHashTolerance = %d; want 2", cfg.Similarity.PHashTolerance)
	}
	if cfg.Similarity.EmbeddingThreshold != 0.75 {
		t.Errorf("EmbeddingThreshold = %f; want 0.75", cfg.Similarity.EmbeddingThreshold)
	}
	if !cfg.Embedding.AllowDegraded {
		t.Error("AllowDegraded should be true")
	}
	if len(cfg.Upload.AllowedMediaTypes) != 2 {
		t.Errorf("AllowedMediaTypes = %v; want 2 entries", cfg.Upload.AllowedMediaTypes)
	}
	if cfg.Storage.MaxConcurrentIO != 8 {
		t.Errorf("MaxConcurrentIO = %d; want 8", cfg.Storage.MaxConcurrentIO)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d; want 9090", cfg.Server.Port)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "not a number")
	t.Setenv("MAX_UPLOAD_FILES", "-4")
	t.Setenv("EMBEDDING_SIMILARITY_THRESHOLD", "1.5")

	cfg := Load()

	if cfg.Upload.MaxFileBytes != 10*1024*1024 {
		t.Errorf("invalid MAX_FILE_SIZE should fall back to default, got %d", cfg.Upload.MaxFileBytes)
	}
	if cfg.Upload.MaxBatchFiles != 50 {
		t.Errorf("negative MAX_UPLOAD_FILES should fall back to default, got %d", cfg.Upload.MaxBatchFiles)
	}
	if cfg.Similarity.EmbeddingThreshold != 0.9 {
		t.Errorf("out-of-range threshold should fall back to default, got %f", cfg.Similarity.EmbeddingThreshold)
	}
}

func TestMediaTypeAllowed(t *testing.T) {
	upload := UploadConfig{
		AllowedMediaTypes: []string{"image/jpeg", "image/png"},
	}

	tests := []struct {
		mediaType string
		expected  bool
	}{
		{"image/jpeg", true},
		{"IMAGE/JPEG", true},
		{"image/png", true},
		{"image/tiff", false},
		{"application/pdf", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := upload.MediaTypeAllowed(tc.mediaType); got != tc.expected {
			t.Errorf("MediaTypeAllowed(%q) = %v; want %v", tc.mediaType, got, tc.expected)
		}
	}
}
