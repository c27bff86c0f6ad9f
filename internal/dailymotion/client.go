// Package dailymotion is the HTTP client for the upstream video platform:
// the public search API, the player metadata endpoint, and plain spoofed
// GETs used for manifests and media segments.
package dailymotion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/dramastream/backend/internal/errors"
)

const searchFields = "title,url,thumbnail_240_url,duration,owner.screenname"

// Options configures the client. All values are policy, not protocol: the
// upstream CDN keys some responses to request provenance, so headers are
// forwarded identically on every call in a chain.
type Options struct {
	APIBaseURL      string
	MetadataBaseURL string
	UserAgent       string
	AcceptLanguage  string
	SearchHint      string
	SearchLimit     int
	MinDurationMins int
}

// Client provides access to the platform API
type Client struct {
	httpClient *http.Client
	opts       Options
}

// NewClient creates a new platform API client. The underlying http.Client
// carries no global timeout; callers bound each call with a context so long
// segment reads are not cut off mid-body.
func NewClient(opts Options) *Client {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 12
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
	}
}

// Video is one search result from the platform's /videos endpoint
type Video struct {
	Title     string
	URL       string
	Thumbnail string
	Duration  int
	Channel   string
}

// Metadata is the normalized player metadata for one video
type Metadata struct {
	Title             string
	Thumbnail         string
	Duration          int
	MasterManifestURL string
	// QualityKeys lists the numeric quality labels the metadata declares,
	// used when no master manifest can be fetched.
	QualityKeys []string
}

type searchResponse struct {
	List []searchItem `json:"list"`
}

type searchItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail_240_url"`
	Duration  int    `json:"duration"`
	Owner     string `json:"owner.screenname"`
}

// metadataResponse is the raw player metadata document. The qualities field
// has shipped both as a map of quality -> sources and as a bare list of
// quality keys, so it is decoded leniently.
type metadataResponse struct {
	Title     string            `json:"title"`
	Duration  float64           `json:"duration"`
	Posters   map[string]string `json:"posters"`
	Qualities json.RawMessage   `json:"qualities"`
	Error     *struct {
		Title string `json:"title"`
	} `json:"error"`
}

type qualitySource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// SearchVideos queries the platform's public video-search endpoint with the
// configured genre hint, minimum-duration filter and relevance sort.
func (c *Client) SearchVideos(ctx context.Context, query string) ([]Video, error) {
	endpoint, err := url.Parse(c.opts.APIBaseURL + "/videos")
	if err != nil {
		return nil, apperrors.InternalError("bad API base URL").WithCause(err)
	}

	hinted := query
	if c.opts.SearchHint != "" {
		hinted = query + " " + c.opts.SearchHint
	}

	q := endpoint.Query()
	q.Set("fields", searchFields)
	q.Set("search", hinted)
	q.Set("sort", "relevance")
	q.Set("limit", strconv.Itoa(c.opts.SearchLimit))
	if c.opts.MinDurationMins > 0 {
		q.Set("longer_than", strconv.Itoa(c.opts.MinDurationMins))
	}
	endpoint.RawQuery = q.Encode()

	body, err := c.doRequest(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.UpstreamUnavailable("failed to parse search response").WithCause(err)
	}

	videos := make([]Video, 0, len(resp.List))
	for _, item := range resp.List {
		videos = append(videos, Video{
			Title:     item.Title,
			URL:       item.URL,
			Thumbnail: item.Thumbnail,
			Duration:  item.Duration,
			Channel:   item.Owner,
		})
	}
	return videos, nil
}

// Metadata fetches and normalizes the player metadata for a video ID.
func (c *Client) Metadata(ctx context.Context, videoID string) (*Metadata, error) {
	endpoint := fmt.Sprintf("%s/player/metadata/video/%s", c.opts.MetadataBaseURL, url.PathEscape(videoID))

	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var raw metadataResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.ExtractionFailed("failed to parse video metadata").WithCause(err)
	}
	if raw.Error != nil && raw.Error.Title != "" {
		return nil, apperrors.ExtractionFailed(raw.Error.Title)
	}

	md := &Metadata{
		Title:     raw.Title,
		Duration:  int(raw.Duration),
		Thumbnail: pickPoster(raw.Posters),
	}
	md.MasterManifestURL, md.QualityKeys = decodeQualities(raw.Qualities)
	return md, nil
}

// Get issues a spoofed GET for manifests, variant playlists and segments.
// The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.BadRequest("failed to create request").WithCause(err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.UpstreamUnavailable("request failed").WithCause(err)
	}
	return resp, nil
}

// doRequest performs a GET and reads the whole (small, JSON) body.
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if apperrors.HTTPRetryableStatus(resp.StatusCode) {
			return nil, apperrors.UpstreamUnavailable(fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
		}
		// Hard rejections (404 and friends) are not worth retrying.
		return nil, apperrors.New(apperrors.CodeUpstreamUnavailable,
			fmt.Sprintf("upstream answered %d", resp.StatusCode),
			apperrors.CategoryServer, http.StatusBadGateway)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.UpstreamUnavailable("failed to read response body").WithCause(err)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if c.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.opts.AcceptLanguage)
	}
	req.Header.Set("Accept", "*/*")
}

// pickPoster returns the largest poster by numeric size key.
func pickPoster(posters map[string]string) string {
	if len(posters) == 0 {
		return ""
	}
	keys := make([]int, 0, len(posters))
	byKey := make(map[int]string, len(posters))
	for k, v := range posters {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		keys = append(keys, n)
		byKey[n] = v
	}
	if len(keys) == 0 {
		// Non-numeric keys; return any deterministically
		names := make([]string, 0, len(posters))
		for k := range posters {
			names = append(names, k)
		}
		sort.Strings(names)
		return posters[names[len(names)-1]]
	}
	sort.Ints(keys)
	return byKey[keys[len(keys)-1]]
}

// decodeQualities extracts the "auto" HLS master manifest URL and the list of
// numeric quality keys from the qualities field, whichever shapes are present.
func decodeQualities(raw json.RawMessage) (masterURL string, keys []string) {
	if len(raw) == 0 {
		return "", nil
	}

	var asMap map[string][]qualitySource
	if err := json.Unmarshal(raw, &asMap); err == nil {
		names := make([]string, 0, len(asMap))
		for k := range asMap {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			if name == "auto" {
				for _, src := range asMap[name] {
					if src.URL != "" {
						masterURL = src.URL
						break
					}
				}
				continue
			}
			keys = append(keys, name)
		}
		return masterURL, keys
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, k := range asList {
			if k == "auto" {
				continue
			}
			keys = append(keys, k)
		}
	}
	return "", keys
}
