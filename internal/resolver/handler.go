package resolver

import (
	"net/http"
	"strings"

	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/validators"
)

// Handler serves GET /search.
type Handler struct {
	service  *Service
	registry *validators.Registry
}

func NewHandler(service *Service, registry *validators.Registry) *Handler {
	return &Handler{service: service, registry: registry}
}

// Search handles GET /search?q=. When the query is itself a watch URL or
// short link, search is skipped entirely and a single synthetic candidate is
// returned for the extractor to consume.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) error {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		return apperrors.ValidationError("query parameter 'q' is required")
	}

	requestID := apperrors.GetRequestID(r.Context())

	if res := h.registry.Validate(query); res.Valid {
		apperrors.WriteJSON(w, requestID, http.StatusOK, []Candidate{{
			Title: "Direct video link",
			URL:   res.Canonical,
		}})
		return nil
	}

	candidates, err := h.service.Search(r.Context(), query)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, candidates)
	return nil
}
