package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database   DatabaseConfig
	Embedding  EmbeddingConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Similarity SimilarityConfig
	Server     ServerConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL string // embedding server base URL, defaults to http://localhost:8000
	Dim int    // embedding dimension, defaults to 512

	// AllowDegraded permits duplicate detection to run without the embedding
	// tier when the embedding server is down. Off by default because skipping
	// the tier raises the false-negative rate.
	AllowDegraded bool
}

type StorageConfig struct {
	Root            string // blob storage root directory
	MaxConcurrentIO int64  // global cap on concurrent file/network operations
}

type UploadConfig struct {
	MaxFileBytes      int64    // per-file size limit (default 10 MiB)
	MaxBatchFiles     int      // per-request file count limit (default 50)
	AllowedMediaTypes []string // accepted declared media types
}

type SimilarityConfig struct {
	PHashTolerance     int     // max Hamming distance for the perceptual tier
	EmbeddingThreshold float64 // min cosine similarity for the embedding tier
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins in addition to localhost
}

// defaultsFile mirrors the structure of the embedded defaults.yaml.
type defaultsFile struct {
	Upload struct {
		AllowedMediaTypes []string `yaml:"allowed_media_types"`
	} `yaml:"upload"`
	Similarity struct {
		PHashTolerance     int     `yaml:"phash_tolerance"`
		EmbeddingThreshold float64 `yaml:"embedding_threshold"`
	} `yaml:"similarity"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 is envInt for 64-bit values (byte sizes).
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envBool treats "1", "true" and "yes" (case-insensitive) as true.
func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// envString returns the env var value or the default when unset.
func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// splitList splits a comma-separated value into trimmed non-empty parts.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded file, so this should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	allowed := defaults.Upload.AllowedMediaTypes
	if v := os.Getenv("ALLOWED_MEDIA_TYPES"); v != "" {
		allowed = splitList(v)
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:           envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim:           envInt("EMBEDDING_DIM", 512),
			AllowDegraded: envBool("ALLOW_DEGRADED_DUPLICATE_CHECK"),
		},
		Storage: StorageConfig{
			Root:            envString("STORAGE_PATH", "storage"),
			MaxConcurrentIO: envInt64("MAX_CONCURRENT_IO", 32),
		},
		Upload: UploadConfig{
			MaxFileBytes:      envInt64("MAX_FILE_SIZE", 10*1024*1024),
			MaxBatchFiles:     envInt("MAX_UPLOAD_FILES", 50),
			AllowedMediaTypes: allowed,
		},
		Similarity: SimilarityConfig{
			PHashTolerance:     envInt("PHASH_BIT_DIFF_TOLERANCE", defaults.Similarity.PHashTolerance),
			EmbeddingThreshold: envFloat("EMBEDDING_SIMILARITY_THRESHOLD", defaults.Similarity.EmbeddingThreshold),
		},
		Server: ServerConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
	}
}

// MediaTypeAllowed reports whether the declared media type is accepted for upload.
func (c *UploadConfig) MediaTypeAllowed(mediaType string) bool {
	for _, mt := range c.AllowedMediaTypes {
		if strings.EqualFold(mt, mediaType) {
			return true
		}
	}
	return false
}
