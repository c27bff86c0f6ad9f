package resolver

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/dramastream/backend/internal/dailymotion"
	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/validators"
)

var (
	// anchorPattern pulls links and their visible text out of a result page.
	anchorPattern = regexp.MustCompile(`(?is)<a[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// webSearchStrategy is the best-effort fallback: a general web search scoped
// to the platform's domain, with watch-URL pattern matching against the raw
// result page. Inherently brittle; isolated here so it can be replaced
// without touching the resolver's call sites.
type webSearchStrategy struct {
	client    *dailymotion.Client
	searchURL string
	hint      string
	limit     int
}

func (s *webSearchStrategy) Name() string { return "web-search" }

func (s *webSearchStrategy) Search(ctx context.Context, query string) ([]Candidate, error) {
	scoped := strings.TrimSpace(query + " " + s.hint + " site:dailymotion.com")

	endpoint, err := url.Parse(s.searchURL)
	if err != nil {
		return nil, apperrors.InternalError("bad web search URL").WithCause(err)
	}
	q := endpoint.Query()
	q.Set("q", scoped)
	endpoint.RawQuery = q.Encode()

	resp, err := s.client.Get(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.UpstreamUnavailable(fmt.Sprintf("web search answered %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, apperrors.UpstreamUnavailable("failed to read web search response").WithCause(err)
	}

	return s.extract(string(body)), nil
}

// extract pattern-matches watch URLs out of the result page, using the
// anchor text as the candidate title. Duplicate URLs and sub-3-character
// titles are discarded as noise.
func (s *webSearchStrategy) extract(page string) []Candidate {
	seen := make(map[string]bool)
	var candidates []Candidate

	for _, m := range anchorPattern.FindAllStringSubmatch(page, -1) {
		href, text := m[1], m[2]

		// Search engines often wrap targets in redirect links.
		if decoded := redirectTarget(href); decoded != "" {
			href = decoded
		}

		watch := validators.WatchURLPattern.FindStringSubmatch(href)
		if watch == nil {
			continue
		}
		canonical := validators.CanonicalWatchURL(watch[1])
		if seen[canonical] {
			continue
		}

		title := cleanTitle(text)
		if len([]rune(title)) < 3 {
			continue
		}

		seen[canonical] = true
		candidates = append(candidates, Candidate{
			Title: title,
			URL:   canonical,
		})
		if len(candidates) >= s.limit {
			break
		}
	}

	return candidates
}

// redirectTarget unwraps a search-engine redirect link, returning the inner
// target URL or "" when the href is not a redirect.
func redirectTarget(href string) string {
	idx := strings.Index(href, "uddg=")
	if idx == -1 {
		return ""
	}
	target := href[idx+len("uddg="):]
	if amp := strings.IndexByte(target, '&'); amp != -1 {
		target = target[:amp]
	}
	decoded, err := url.QueryUnescape(target)
	if err != nil {
		return ""
	}
	return decoded
}

func cleanTitle(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
