package extractor

import (
	"net/http"

	apperrors "github.com/dramastream/backend/internal/errors"
)

// Handler serves GET /video.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Extract handles GET /video?url=<watch-url>.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) error {
	watchURL := r.URL.Query().Get("url")
	if watchURL == "" {
		return apperrors.ValidationError("query parameter 'url' is required")
	}

	result, err := h.service.Extract(r.Context(), watchURL)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, result)
	return nil
}
