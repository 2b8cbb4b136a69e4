package ingest

import "errors"

// Error classes surfaced by the pipeline. Validation errors fire before any
// I/O; everything past staging rolls the whole batch back.
var (
	// ErrEmptyBatch means no files were provided.
	ErrEmptyBatch = errors.New("no files provided")

	// ErrTooManyFiles means the batch exceeds the configured file count limit.
	ErrTooManyFiles = errors.New("too many files in one batch")

	// ErrMediaTypeNotAllowed means a declared media type is not accepted.
	ErrMediaTypeNotAllowed = errors.New("unsupported media type")

	// ErrFileTooLarge means a single file exceeds the configured byte limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

	// ErrUndecodable means a file could not be decoded as an image. One
	// corrupt file fails the whole batch; fingerprinting a partially decoded
	// batch is unsafe.
	ErrUndecodable = errors.New("file is not a decodable image")

	// ErrEmbedderUnavailable means the embedding service failed its readiness
	// probe and degraded duplicate checking is not enabled.
	ErrEmbedderUnavailable = errors.New("embedding service is not available")

	// ErrAllDuplicates means every file in the batch matched an existing
	// asset; nothing was ingested.
	ErrAllDuplicates = errors.New("all files already exist in the target collection")
)
