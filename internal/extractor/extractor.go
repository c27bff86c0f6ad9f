// Package extractor resolves a watch-page URL into video metadata and the
// set of downloadable renditions. Renditions derived from the master
// manifest carry both a pre-resolved variant URL and the id+quality pair, so
// the streamer can re-derive the segment list if the resolved URL turns out
// stale or locked to another origin.
package extractor

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/dramastream/backend/internal/dailymotion"
	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/fetchref"
	"github.com/dramastream/backend/internal/logger"
	"github.com/dramastream/backend/internal/manifest"
	"github.com/dramastream/backend/internal/validators"
)

// Rendition is one downloadable encoded version of a video.
type Rendition struct {
	Quality  string `json:"quality"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FetchRef string `json:"fetchRef"`
}

// Result is the normalized extraction outcome for one video.
type Result struct {
	VideoID           string      `json:"videoId"`
	Title             string      `json:"title"`
	Thumbnail         string      `json:"thumbnail,omitempty"`
	Duration          int         `json:"duration,omitempty"`
	MasterManifestURL string      `json:"masterManifestUrl,omitempty"`
	Streams           []Rendition `json:"streams"`
}

// knownQualities maps the platform's numeric quality keys to pixel
// dimensions for the metadata-fallback path.
var knownQualities = map[string]struct{ Width, Height int }{
	"144":  {256, 144},
	"240":  {426, 240},
	"380":  {640, 380},
	"480":  {854, 480},
	"720":  {1280, 720},
	"1080": {1920, 1080},
}

// Options configures extraction policy.
type Options struct {
	MetadataTimeout  time.Duration
	ManifestTimeout  time.Duration
	MetadataAttempts int
	ManifestAttempts int
	BackoffStep      time.Duration
}

// Service performs extractions.
type Service struct {
	client   *dailymotion.Client
	registry *validators.Registry
	opts     Options
	log      *logger.Logger
}

func NewService(client *dailymotion.Client, registry *validators.Registry, opts Options) *Service {
	if opts.MetadataTimeout == 0 {
		opts.MetadataTimeout = 20 * time.Second
	}
	if opts.ManifestTimeout == 0 {
		opts.ManifestTimeout = 20 * time.Second
	}
	if opts.MetadataAttempts == 0 {
		opts.MetadataAttempts = 3
	}
	if opts.ManifestAttempts == 0 {
		opts.ManifestAttempts = 3
	}
	if opts.BackoffStep == 0 {
		opts.BackoffStep = time.Second
	}
	return &Service{
		client:   client,
		registry: registry,
		opts:     opts,
		log:      logger.Default().WithComponent("extractor"),
	}
}

// Extract resolves a canonical watch URL into metadata and renditions.
func (s *Service) Extract(ctx context.Context, watchURL string) (*Result, error) {
	ref := s.registry.Validate(watchURL)
	if !ref.Valid {
		return nil, apperrors.InvalidReference(ref.Error)
	}

	md, err := s.fetchMetadata(ctx, ref.VideoID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		VideoID:           ref.VideoID,
		Title:             md.Title,
		Thumbnail:         md.Thumbnail,
		Duration:          md.Duration,
		MasterManifestURL: md.MasterManifestURL,
	}

	if md.MasterManifestURL != "" {
		variants, err := s.fetchVariants(ctx, md.MasterManifestURL)
		if err != nil {
			s.log.Warn(ctx, "master manifest unavailable, falling back to metadata qualities", map[string]interface{}{
				"video_id": ref.VideoID,
				"error":    err.Error(),
			})
		}
		for _, v := range variants {
			result.Streams = append(result.Streams, Rendition{
				Quality: v.Label,
				Width:   v.Width,
				Height:  v.Height,
				FetchRef: fetchref.Ref{
					Kind:       fetchref.KindByQuality,
					VideoID:    ref.VideoID,
					Quality:    v.Label,
					Title:      md.Title,
					VariantURL: v.URL,
				}.Encode(),
			})
		}
	}

	if len(result.Streams) == 0 {
		result.Streams = s.renditionsFromQualityKeys(ref.VideoID, md)
	}

	if len(result.Streams) == 0 {
		// Last resort: a single auto rendition carrying only the identifier.
		result.Streams = []Rendition{{
			Quality: "auto",
			FetchRef: fetchref.Ref{
				Kind:    fetchref.KindByQuality,
				VideoID: ref.VideoID,
				Quality: "auto",
				Title:   md.Title,
			}.Encode(),
		}}
	}

	sortRenditions(result.Streams)
	return result, nil
}

func (s *Service) fetchMetadata(ctx context.Context, videoID string) (*dailymotion.Metadata, error) {
	cfg := apperrors.Linear(s.opts.MetadataAttempts, s.opts.BackoffStep)
	md, err := apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) (*dailymotion.Metadata, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.MetadataTimeout)
		defer cancel()
		return s.client.Metadata(attemptCtx, videoID)
	})
	if err != nil {
		// Platform-reported failures (not found, password protected) carry a
		// useful message; only transport-level errors get rewrapped.
		var appErr *apperrors.AppError
		if goerrors.As(err, &appErr) && (apperrors.IsClientError(err) || appErr.Code == apperrors.CodeExtractionFailed) {
			return nil, err
		}
		return nil, apperrors.ExtractionFailed("failed to fetch video metadata").WithCause(err)
	}
	return md, nil
}

func (s *Service) fetchVariants(ctx context.Context, masterURL string) ([]manifest.Variant, error) {
	cfg := apperrors.Linear(s.opts.ManifestAttempts, s.opts.BackoffStep)
	return apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) ([]manifest.Variant, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.ManifestTimeout)
		defer cancel()

		resp, err := s.client.Get(attemptCtx, masterURL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.UpstreamUnavailable(fmt.Sprintf("master manifest answered %d", resp.StatusCode))
		}
		return manifest.ParseMaster(resp.Body, masterURL)
	})
}

// renditionsFromQualityKeys maps the metadata's declared quality keys through
// the fixed dimension table. These references carry no pre-resolved URL; the
// streamer re-derives everything from the identifier.
func (s *Service) renditionsFromQualityKeys(videoID string, md *dailymotion.Metadata) []Rendition {
	var renditions []Rendition
	for _, key := range md.QualityKeys {
		label := key
		width, height := 0, 0
		if dims, ok := knownQualities[key]; ok {
			width, height = dims.Width, dims.Height
		} else if n := parseNumeric(key); n > 0 {
			label = fmt.Sprintf("%dp", n)
			height = n
		} else {
			continue
		}

		renditions = append(renditions, Rendition{
			Quality: label,
			Width:   width,
			Height:  height,
			FetchRef: fetchref.Ref{
				Kind:    fetchref.KindByQuality,
				VideoID: videoID,
				Quality: key,
				Title:   md.Title,
			}.Encode(),
		})
	}
	return renditions
}

// sortRenditions orders by height descending with unknown heights last,
// preserving manifest order among ties.
func sortRenditions(renditions []Rendition) {
	sort.SliceStable(renditions, func(i, j int) bool {
		hi, hj := renditions[i].Height, renditions[j].Height
		if hi == 0 {
			return false
		}
		if hj == 0 {
			return true
		}
		return hi > hj
	})
}

func parseNumeric(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
