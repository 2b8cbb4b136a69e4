package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/diogotoporcov/Finder2/internal/database/postgres"
	"github.com/diogotoporcov/Finder2/internal/fingerprint"
	"github.com/diogotoporcov/Finder2/internal/web/middleware"
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 100
	maxProbeImageBytes  = 32 * 1024 * 1024
)

// SimilarHandler answers "which stored images look like this one" queries.
type SimilarHandler struct {
	embedder   *fingerprint.EmbeddingClient
	embeddings *postgres.EmbeddingRepository
	log        zerolog.Logger
}

// NewSimilarHandler creates a new similarity search handler.
func NewSimilarHandler(embedder *fingerprint.EmbeddingClient, embeddings *postgres.EmbeddingRepository, logger zerolog.Logger) *SimilarHandler {
	return &SimilarHandler{
		embedder:   embedder,
		embeddings: embeddings,
		log:        logger,
	}
}

// Search embeds the uploaded probe image and returns the owner's most
// similar stored images.
func (h *SimilarHandler) Search(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	if owner == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxProbeImageBytes); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	limit := defaultSimilarLimit
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSimilarLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxProbeImageBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read probe image")
		return
	}

	img, err := fingerprint.Decode(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "probe image could not be decoded")
		return
	}

	if !h.embedder.Ready(r.Context()) {
		respondError(w, http.StatusServiceUnavailable, "similarity search is unavailable")
		return
	}

	embeddings, err := h.embedder.EmbedBatch(r.Context(), [][]float32{fingerprint.Preprocess(img)})
	if err != nil {
		h.log.Error().Err(err).Msg("embedding probe image")
		respondError(w, http.StatusServiceUnavailable, "similarity search is unavailable")
		return
	}

	results, err := h.embeddings.FindSimilar(r.Context(), owner.ID, embeddings[0], limit)
	if err != nil {
		h.log.Error().Err(err).Msg("similarity search")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
