// Package streamer turns a fetch reference into one continuous MPEG-TS
// download. Resolution runs in two phases: first the reference is expanded
// into an ordered segment list (retrying each upstream hop with linear
// backoff), then segments are fetched sequentially and copied to the client
// with a flush after each one. Response headers are only written once the
// segment list is known, so resolution failures can still produce a JSON
// error body.
package streamer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dramastream/backend/internal/dailymotion"
	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/fetchref"
	"github.com/dramastream/backend/internal/logger"
	"github.com/dramastream/backend/internal/manifest"
	"github.com/dramastream/backend/internal/metrics"
)

// Options configures resolution and streaming policy.
type Options struct {
	MetadataTimeout time.Duration
	ManifestTimeout time.Duration
	SegmentTimeout  time.Duration

	MetadataAttempts int
	ManifestAttempts int
	PlaylistAttempts int
	SegmentAttempts  int
	BackoffStep      time.Duration
}

// Service resolves fetch references and streams their segments.
type Service struct {
	client  *dailymotion.Client
	opts    Options
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewService(client *dailymotion.Client, m *metrics.Metrics, opts Options) *Service {
	if opts.MetadataTimeout == 0 {
		opts.MetadataTimeout = 20 * time.Second
	}
	if opts.ManifestTimeout == 0 {
		opts.ManifestTimeout = 20 * time.Second
	}
	if opts.SegmentTimeout == 0 {
		opts.SegmentTimeout = 60 * time.Second
	}
	if opts.MetadataAttempts == 0 {
		opts.MetadataAttempts = 3
	}
	if opts.ManifestAttempts == 0 {
		opts.ManifestAttempts = 5
	}
	if opts.PlaylistAttempts == 0 {
		opts.PlaylistAttempts = 3
	}
	if opts.SegmentAttempts == 0 {
		opts.SegmentAttempts = 2
	}
	if opts.BackoffStep == 0 {
		opts.BackoffStep = time.Second
	}
	return &Service{
		client:  client,
		opts:    opts,
		metrics: m,
		log:     logger.Default().WithComponent("streamer"),
	}
}

// plan is a fully resolved stream: the ordered segment URLs plus what is
// needed to name the attachment.
type plan struct {
	segments []string
	title    string
	quality  string
}

// Stream resolves the reference and writes the concatenated segments to w.
// An error return means nothing has been written yet and the caller still
// owns the response. Once headers go out, failures downgrade to skipped
// segments or a silent abort.
func (s *Service) Stream(ctx context.Context, w http.ResponseWriter, ref fetchref.Ref) error {
	s.metrics.IncActiveStreams()
	defer s.metrics.DecActiveStreams()

	p, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}

	s.log.Info(ctx, "streaming segments", map[string]interface{}{
		"video_id": ref.VideoID,
		"quality":  p.quality,
		"segments": len(p.segments),
	})

	writeAttachmentHeaders(w, p.title, p.quality)
	s.streamSegments(ctx, w, p)
	return nil
}

// resolve expands a reference into a segment list. References that carry a
// video identifier are re-derived through the full metadata chain first,
// since pre-resolved URLs go stale; the master-manifest URL and the variant
// URL are tried as progressively cheaper fallbacks.
func (s *Service) resolve(ctx context.Context, ref fetchref.Ref) (*plan, error) {
	p := &plan{title: ref.Title, quality: ref.Quality}
	if p.quality == "" {
		p.quality = "auto"
	}

	if ref.Kind == fetchref.KindDirect {
		segments, err := s.fetchSegmentList(ctx, ref.VariantURL)
		if err != nil {
			return nil, apperrors.StreamFailed("variant playlist is unavailable").WithCause(err)
		}
		p.segments = segments
		return p, nil
	}

	var lastErr error

	if ref.VideoID != "" {
		segments, title, err := s.resolveByID(ctx, ref.VideoID, p.quality)
		if err == nil {
			if p.title == "" {
				p.title = title
			}
			p.segments = segments
			return p, nil
		}
		lastErr = err
		s.log.Warn(ctx, "full-chain resolution failed", map[string]interface{}{
			"video_id": ref.VideoID,
			"error":    err.Error(),
		})
	}

	if ref.ManifestURL != "" {
		segments, err := s.resolveFromMaster(ctx, ref.ManifestURL, p.quality)
		if err == nil {
			p.segments = segments
			return p, nil
		}
		lastErr = err
		s.log.Warn(ctx, "master-manifest resolution failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if ref.VariantURL != "" {
		segments, err := s.fetchSegmentList(ctx, ref.VariantURL)
		if err == nil {
			p.segments = segments
			return p, nil
		}
		lastErr = err
		s.log.Warn(ctx, "pre-resolved variant URL failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return nil, apperrors.StreamFailed("could not resolve a playable segment list").WithCause(lastErr)
}

func (s *Service) resolveByID(ctx context.Context, videoID, quality string) (segments []string, title string, err error) {
	cfg := apperrors.Linear(s.opts.MetadataAttempts, s.opts.BackoffStep)
	md, err := apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) (*dailymotion.Metadata, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.MetadataTimeout)
		defer cancel()
		return s.client.Metadata(attemptCtx, videoID)
	})
	if err != nil {
		return nil, "", err
	}
	if md.MasterManifestURL == "" {
		return nil, "", fmt.Errorf("metadata exposes no master manifest")
	}

	segments, err = s.resolveFromMaster(ctx, md.MasterManifestURL, quality)
	return segments, md.Title, err
}

func (s *Service) resolveFromMaster(ctx context.Context, masterURL, quality string) ([]string, error) {
	cfg := apperrors.Linear(s.opts.ManifestAttempts, s.opts.BackoffStep)
	variants, err := apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) ([]manifest.Variant, error) {
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
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("master manifest lists no variants")
	}

	variant, exact := manifest.SelectVariant(variants, quality)
	if !exact {
		s.log.Info(ctx, "requested quality not present, using fallback variant", map[string]interface{}{
			"requested": quality,
			"selected":  variant.Label,
		})
	}

	return s.fetchSegmentList(ctx, variant.URL)
}

func (s *Service) fetchSegmentList(ctx context.Context, playlistURL string) ([]string, error) {
	cfg := apperrors.Linear(s.opts.PlaylistAttempts, s.opts.BackoffStep)
	return apperrors.RetryWithResult(ctx, cfg, func(ctx context.Context) ([]string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.ManifestTimeout)
		defer cancel()

		resp, err := s.client.Get(attemptCtx, playlistURL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.UpstreamUnavailable(fmt.Sprintf("variant playlist answered %d", resp.StatusCode))
		}

		segments, err := manifest.ParseMedia(resp.Body, playlistURL)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 {
			return nil, fmt.Errorf("variant playlist contains no segments")
		}
		return segments, nil
	})
}

// streamSegments copies segments to the client in playlist order. A segment
// that cannot be fetched is skipped so one bad CDN object does not kill the
// whole download; a write failure means the client is gone and the stream
// stops quietly.
func (s *Service) streamSegments(ctx context.Context, w http.ResponseWriter, p *plan) {
	flusher, _ := w.(http.Flusher)

	for i, segmentURL := range p.segments {
		if ctx.Err() != nil {
			s.log.Info(ctx, "stream cancelled", map[string]interface{}{
				"segment": i, "total": len(p.segments),
			})
			return
		}

		written, err := s.copySegment(ctx, w, segmentURL)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info(ctx, "client disconnected mid-stream", map[string]interface{}{
					"segment": i, "total": len(p.segments),
				})
				return
			}
			s.metrics.RecordSkippedSegment()
			s.log.Warn(ctx, "skipping unfetchable segment", map[string]interface{}{
				"segment": i,
				"error":   err.Error(),
			})
			continue
		}

		s.metrics.RecordSegment(written)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// copySegment fetches one segment (with a short retry) and copies its body
// straight through to the client, never buffering more than io.Copy's chunk.
func (s *Service) copySegment(ctx context.Context, w io.Writer, segmentURL string) (int64, error) {
	segCtx, cancel := context.WithTimeout(ctx, s.opts.SegmentTimeout)
	defer cancel()

	cfg := apperrors.Linear(s.opts.SegmentAttempts, s.opts.BackoffStep)
	resp, err := apperrors.RetryWithResult(segCtx, cfg, func(ctx context.Context) (*http.Response, error) {
		resp, err := s.client.Get(ctx, segmentURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, apperrors.UpstreamUnavailable(fmt.Sprintf("segment answered %d", resp.StatusCode))
		}
		return resp, nil
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return io.Copy(w, resp.Body)
}

func writeAttachmentHeaders(w http.ResponseWriter, title, quality string) {
	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Content-Disposition", attachmentDisposition(title, quality))
	w.WriteHeader(http.StatusOK)
}
