package routes

import (
	"github.com/go-chi/chi/v5"

	previewhandlers "Artframe/internal/api/handlers/previews"
	"Artframe/internal/api/middleware"
)

// RegisterPreviewRoutes registers the style catalog and preview endpoints.
//
// Routes under /api/previews require the X-Session-ID header and are rate
// limited per session:
//
//	GET    /api/styles
//	GET    /api/previews
//	DELETE /api/previews
//	PUT    /api/previews/orientation
//	POST   /api/previews/{styleID}
//	GET    /api/previews/{styleID}
//	GET    /api/previews/{styleID}/events
func RegisterPreviewRoutes(r chi.Router, handler *previewhandlers.Handler, limiter *middleware.RateLimiter) {
	r.Get("/api/styles", handler.HandleListStyles)

	r.Route("/api/previews", func(r chi.Router) {
		r.Use(middleware.RequireSession)

		r.Get("/", handler.HandleListPreviews)
		r.Delete("/", handler.HandleReset)
		r.Put("/orientation", handler.HandleSetOrientation)
		r.Get("/{styleID}", handler.HandleGetPreview)
		r.Get("/{styleID}/events", handler.HandleEvents)

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/{styleID}", handler.HandleRequestPreview)
		})
	})
}
