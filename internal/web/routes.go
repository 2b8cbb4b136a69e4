package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/diogotoporcov/Finder2/internal/web/handlers"
	"github.com/diogotoporcov/Finder2/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	imagesHandler := handlers.NewImagesHandler(
		s.deps.Pipeline,
		s.deps.Pool,
		s.deps.Assets,
		s.deps.Collections,
		s.deps.Embeddings,
		s.deps.Blobs,
		s.config.Upload,
		s.log,
	)
	similarHandler := handlers.NewSimilarHandler(s.deps.Embedder, s.deps.Embeddings, s.log)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(s.deps.Users))

			// Images
			r.Post("/images", imagesHandler.Upload)
			r.Get("/images/{id}", imagesHandler.Get)
			r.Get("/images/{id}/file", imagesHandler.GetFile)
			r.Patch("/images/{id}/tags", imagesHandler.UpdateTags)
			r.Delete("/images/{id}", imagesHandler.Delete)

			// Similarity search
			r.Post("/images/similar", similarHandler.Search)
		})
	})
}
