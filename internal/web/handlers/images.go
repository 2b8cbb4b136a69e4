package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/diogotoporcov/Finder2/internal/config"
	"github.com/diogotoporcov/Finder2/internal/database"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/ingest"
	"github.com/diogotoporcov/Finder2/internal/storage"
	"github.com/diogotoporcov/Finder2/internal/web/middleware"
)

// defaultCollectionSentinel selects the owner's default collection in the
// target_collection form field.
const defaultCollectionSentinel = "DEFAULT"

// ImagesHandler handles image ingestion and asset CRUD endpoints.
type ImagesHandler struct {
	pipeline    *ingest.Pipeline
	pool        *postgres.Pool
	assets      *postgres.AssetStore
	collections *postgres.CollectionStore
	embeddings  *postgres.EmbeddingRepository
	blobs       *storage.BlobStore
	upload      config.UploadConfig
	log         zerolog.Logger
}

// NewImagesHandler creates a new images handler.
func NewImagesHandler(
	pipeline *ingest.Pipeline,
	pool *postgres.Pool,
	assets *postgres.AssetStore,
	collections *postgres.CollectionStore,
	embeddings *postgres.EmbeddingRepository,
	blobs *storage.BlobStore,
	upload config.UploadConfig,
	logger zerolog.Logger,
) *ImagesHandler {
	return &ImagesHandler{
		pipeline:    pipeline,
		pool:        pool,
		assets:      assets,
		collections: collections,
		embeddings:  embeddings,
		blobs:       blobs,
		upload:      upload,
		log:         logger,
	}
}

// assetResponse is the public shape of an asset.
type assetResponse struct {
	ID               uuid.UUID `json:"id"`
	CollectionID     uuid.UUID `json:"collection_id"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toAssetResponse(a *database.Asset) assetResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return assetResponse{
		ID:               a.ID,
		CollectionID:     a.CollectionID,
		OriginalFilename: a.OriginalFilename,
		MimeType:         a.MimeType,
		SizeBytes:        a.SizeBytes,
		Tags:             tags,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// resolveCollection maps the target_collection form value to a collection
// owned by the caller. Empty or "DEFAULT" selects the owner's default.
func (h *ImagesHandler) resolveCollection(r *http.Request, ownerID uuid.UUID) (*database.Collection, error) {
	target := r.FormValue("target_collection")
	if target == "" || target == defaultCollectionSentinel {
		return h.collections.GetDefault(r.Context(), ownerID)
	}
	id, err := uuid.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a collection id", postgres.ErrCollectionNotFound, target)
	}
	return h.collections.Get(r.Context(), ownerID, id)
}

// readBatch converts the multipart files into pipeline input. Filenames are
// normalized to NFC so the same name uploaded from different platforms
// compares equal. Reads are capped just above the per-file limit so oversize
// files are rejected by the pipeline with the right error.
func (h *ImagesHandler) readBatch(r *http.Request) ([]ingest.File, error) {
	headers := r.MultipartForm.File["files"]
	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %q: %w", header.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, h.upload.MaxFileBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", header.Filename, err)
		}
		files = append(files, ingest.File{
			Filename:  norm.NFC.String(header.Filename),
			MediaType: header.Header.Get("Content-Type"),
			Data:      data,
		})
	}
	return files, nil
}

// Upload ingests a batch of images. Duplicate detection runs unless the
// detect_duplicates form value disables it.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	maxForm := h.upload.MaxFileBytes * int64(h.upload.MaxBatchFiles)
	if err := r.ParseMultipartForm(maxForm); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	collection, err := h.resolveCollection(r, owner.ID)
	if err != nil {
		if errors.Is(err, postgres.ErrCollectionNotFound) {
			respondError(w, http.StatusNotFound, "collection not found")
			return
		}
		h.log.Error().Err(err).Msg("resolving target collection")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	detect := true
	switch r.FormValue("detect_duplicates") {
	case "false", "0", "no":
		detect = false
	}

	files, err := h.readBatch(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded files")
		return
	}

	scope := database.Scope{OwnerID: owner.ID, CollectionID: collection.ID}
	result, err := h.pipeline.Ingest(r.Context(), scope, files, detect)
	if err != nil {
		h.respondIngestError(w, result, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// respondIngestError maps pipeline errors to HTTP statuses. A fully-duplicate
// batch is a conflict and still carries the per-item outcomes.
func (h *ImagesHandler) respondIngestError(w http.ResponseWriter, result *ingest.Result, err error) {
	switch {
	case errors.Is(err, ingest.ErrAllDuplicates):
		respondJSON(w, http.StatusConflict, result)
	case errors.Is(err, ingest.ErrEmptyBatch), errors.Is(err, ingest.ErrTooManyFiles), errors.Is(err, ingest.ErrUndecodable):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrMediaTypeNotAllowed):
		respondError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ingest.ErrFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ingest.ErrEmbedderUnavailable):
		respondError(w, http.StatusServiceUnavailable, "duplicate detection is unavailable")
	default:
		h.log.Error().Err(err).Msg("ingesting batch")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// assetFromRequest parses the id route parameter and loads the asset for the
// authenticated owner.
func (h *ImagesHandler) assetFromRequest(w http.ResponseWriter, r *http.Request) *database.Asset {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image id")
		return nil
	}

	asset, err := h.assets.GetAsset(r.Context(), h.pool, owner.ID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "image not found")
			return nil
		}
		h.log.Error().Err(err).Str("image", sanitizeForLog(id.String())).Msg("loading asset")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	return asset
}

// Get returns an asset's metadata.
func (h *ImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset := h.assetFromRequest(w, r)
	if asset == nil {
		return
	}
	respondJSON(w, http.StatusOK, toAssetResponse(asset))
}

// GetFile streams an asset's bytes.
func (h *ImagesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	asset := h.assetFromRequest(w, r)
	if asset == nil {
		return
	}

	scope := database.Scope{OwnerID: asset.OwnerID, CollectionID: asset.CollectionID}
	data, err := h.blobs.Read(r.Context(), scope, asset.StoredFilename)
	if err != nil {
		h.log.Error().Err(err).Str("image", asset.ID.String()).Msg("reading blob")
		respondError(w, http.StatusInternalServerError, "failed to read image data")
		return
	}

	w.Header().Set("Content-Type", asset.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", asset.OriginalFilename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// UpdateTags replaces an asset's tag list.
func (h *ImagesHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	asset := h.assetFromRequest(w, r)
	if asset == nil {
		return
	}

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	if err := h.assets.UpdateTags(r.Context(), h.pool, asset.OwnerID, asset.ID, req.Tags); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "image not found")
			return
		}
		h.log.Error().Err(err).Str("image", asset.ID.String()).Msg("updating tags")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	asset.Tags = req.Tags
	respondJSON(w, http.StatusOK, toAssetResponse(asset))
}

// Delete removes an asset: relational row first (fingerprint goes with it via
// cascade), then the blob. A blob that fails to delete is logged and left for
// a later sweep rather than failing the request.
func (h *ImagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	asset := h.assetFromRequest(w, r)
	if asset == nil {
		return
	}

	if err := h.assets.DeleteAsset(r.Context(), h.pool, asset.ID); err != nil {
		h.log.Error().Err(err).Str("image", asset.ID.String()).Msg("deleting asset row")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	scope := database.Scope{OwnerID: asset.OwnerID, CollectionID: asset.CollectionID}
	if err := h.blobs.Delete(r.Context(), scope, asset.StoredFilename); err != nil {
		h.log.Warn().Err(err).Str("image", asset.ID.String()).Msg("orphaned blob left behind")
	}

	h.embeddings.NotifyDeleted(asset.ID)

	w.WriteHeader(http.StatusNoContent)
}
