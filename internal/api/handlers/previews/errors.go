package previews

import (
	"errors"
	"log/slog"
	"net/http"

	"Artframe/internal/api/handlers"
	"Artframe/internal/core/blobs"
	"Artframe/internal/core/previews"
)

// handleServiceError converts preview errors to appropriate HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, previews.ErrUnknownStyle):
		handlers.WriteError(w, http.StatusNotFound, "UnknownStyle", err.Error())
	case errors.Is(err, previews.ErrInvalidOrientation):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidOrientation", err.Error())
	case errors.Is(err, previews.ErrNoSource):
		handlers.WriteError(w, http.StatusBadRequest, "ImageRequired", "Upload a photo before requesting previews")
	case errors.Is(err, previews.ErrInvalidSource),
		errors.Is(err, blobs.ErrInvalidDataURI),
		errors.Is(err, blobs.ErrUnsupportedType):
		handlers.WriteError(w, http.StatusBadRequest, "InvalidImage", "We couldn't read your photo. Please upload a JPEG, PNG or WebP image.")
	case errors.Is(err, blobs.ErrTooLarge):
		handlers.WriteError(w, http.StatusRequestEntityTooLarge, "ImageTooLarge", "The photo is too large")
	case errors.Is(err, blobs.ErrFetchTimeout), errors.Is(err, blobs.ErrFetchFailed):
		handlers.WriteError(w, http.StatusBadGateway, "ImageFetchFailed", "The photo could not be downloaded")
	case errors.Is(err, previews.ErrClosed):
		handlers.WriteError(w, http.StatusGone, "SessionClosed", "This preview session has ended")
	default:
		slog.Error("[API] preview handler error", "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
	}
}
