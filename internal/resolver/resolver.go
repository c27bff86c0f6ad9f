// Package resolver turns free-text queries into ranked video candidates.
// Two strategies run in order: the platform's search API, then a best-effort
// web-search scrape scoped to the platform's domain. The scrape lives behind
// the same Strategy interface so the fragile parser can be swapped without
// touching call sites.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/dramastream/backend/internal/dailymotion"
	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/logger"
	"github.com/dramastream/backend/internal/metrics"
)

// Candidate is one search result. Equality is by URL; nothing is persisted
// past the response that produced it.
type Candidate struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// Strategy resolves a query into candidates. Strategies are stateless and
// independently retryable.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// Options configures the resolver service.
type Options struct {
	Timeout time.Duration
	// SearchHint is appended to fallback web-search queries alongside the
	// platform domain scope.
	SearchHint string
	// Limit caps the candidate count for every strategy.
	Limit int
}

// Service runs the strategy chain.
type Service struct {
	strategies []Strategy
	timeout    time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewService builds the default strategy chain: platform API first, web
// search fallback second.
func NewService(client *dailymotion.Client, webSearchURL string, opts Options, m *metrics.Metrics) *Service {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 12
	}
	return &Service{
		strategies: []Strategy{
			&apiStrategy{client: client},
			&webSearchStrategy{client: client, searchURL: webSearchURL, hint: opts.SearchHint, limit: opts.Limit},
		},
		timeout: timeout,
		log:     logger.Default().WithComponent("resolver"),
		metrics: m,
	}
}

// Search runs the strategies in order. The first strategy that succeeds with
// at least one candidate short-circuits the chain. An empty result from a
// healthy strategy is a legitimate outcome, not a failure; only when every
// strategy errors does Search report a retryable failure.
func (s *Service) Search(ctx context.Context, query string) ([]Candidate, error) {
	var lastErr error
	allFailed := true

	for i, strategy := range s.strategies {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		candidates, err := strategy.Search(attemptCtx, query)
		cancel()

		if err != nil {
			lastErr = err
			s.log.Warn(ctx, "search strategy failed", map[string]interface{}{
				"strategy": strategy.Name(),
				"query":    query,
				"error":    err.Error(),
			})
			continue
		}

		allFailed = false
		if len(candidates) > 0 {
			if i > 0 && s.metrics != nil {
				s.metrics.RecordSearchFallback()
			}
			return candidates, nil
		}
	}

	if allFailed {
		return nil, apperrors.SearchFailed("all search strategies failed").WithCause(lastErr)
	}
	return []Candidate{}, nil
}

// apiStrategy queries the platform's public search endpoint.
type apiStrategy struct {
	client *dailymotion.Client
}

func (s *apiStrategy) Name() string { return "platform-api" }

func (s *apiStrategy) Search(ctx context.Context, query string) ([]Candidate, error) {
	videos, err := s.client.SearchVideos(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(videos))
	for _, v := range videos {
		candidates = append(candidates, Candidate{
			Title:     v.Title,
			URL:       v.URL,
			Thumbnail: v.Thumbnail,
			Duration:  formatDuration(v.Duration),
			Channel:   v.Channel,
		})
	}
	return candidates, nil
}

// formatDuration renders seconds as "M:SS". Minutes do not wrap into hours;
// long dramas read as "61:05".
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
