package streamer

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/fetchref"
)

// Handler serves GET /download.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// downloadError is the body returned when no segment list could be resolved.
// Pre-resolved links expire, so the tip points the client back to the
// extraction step.
type downloadError struct {
	Error string `json:"error"`
	Tip   string `json:"tip"`
}

// Download handles GET /download?<fetch reference query>.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) error {
	ref, err := fetchref.FromQuery(r.URL.Query())
	if err != nil {
		return err
	}

	if err := h.service.Stream(r.Context(), w, ref); err != nil {
		writeDownloadError(w, r, err)
	}
	return nil
}

func writeDownloadError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	message := "failed to resolve the requested stream"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus
		message = appErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID := apperrors.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(apperrors.RequestIDHeader, requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(downloadError{
		Error: message,
		Tip:   "The download link may have expired. Request the video again to get a fresh one.",
	})
}
