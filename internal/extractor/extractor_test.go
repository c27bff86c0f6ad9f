package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/dramastream/backend/internal/dailymotion"
	apperrors "github.com/dramastream/backend/internal/errors"
	"github.com/dramastream/backend/internal/fetchref"
	"github.com/dramastream/backend/internal/validators"
)

func mustParseQuery(t *testing.T, encoded string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(encoded)
	if err != nil {
		t.Fatalf("bad fetch reference query %q: %v", encoded, err)
	}
	return v
}

const testMaster = `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2500000,RESOLUTION=1280x720,NAME="720"
720/manifest.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=5000000,RESOLUTION=1920x1080,NAME="1080"
https://cdn.example.com/1080/manifest.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=800000
low/manifest.m3u8
`

type upstream struct {
	server       *httptest.Server
	metadataHits int
	manifestHits int
	metadata     func(base string) string
	manifestFail bool
}

// newUpstream serves the player metadata document and the master manifest
// from a single test server.
func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/player/metadata/video/x8abc12":
			u.metadataHits++
			fmt.Fprint(w, u.metadata(u.server.URL))
		case r.URL.Path == "/master.m3u8":
			u.manifestHits++
			if u.manifestFail {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, testMaster)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newTestService(u *upstream) *Service {
	client := dailymotion.NewClient(dailymotion.Options{
		APIBaseURL:      u.server.URL,
		MetadataBaseURL: u.server.URL,
	})
	return NewService(client, validators.DefaultRegistry(), Options{
		MetadataAttempts: 1,
		ManifestAttempts: 2,
		BackoffStep:      time.Millisecond,
	})
}

func metadataWithMaster(base string) string {
	doc := map[string]interface{}{
		"title":    "Crash Landing 1",
		"duration": 3600.0,
		"posters":  map[string]string{"240": "https://img.example.com/240.jpg", "720": "https://img.example.com/720.jpg"},
		"qualities": map[string]interface{}{
			"auto": []map[string]string{{"type": "application/x-mpegURL", "url": base + "/master.m3u8"}},
			"380":  []map[string]string{{"type": "video/mp4", "url": "https://cdn.example.com/380.mp4"}},
			"720":  []map[string]string{{"type": "video/mp4", "url": "https://cdn.example.com/720.mp4"}},
		},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

func TestExtract_MasterManifestRenditions(t *testing.T) {
	u := newUpstream(t)
	u.metadata = metadataWithMaster
	svc := newTestService(u)

	result, err := svc.Extract(context.Background(), "https://www.dailymotion.com/video/x8abc12")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if result.VideoID != "x8abc12" {
		t.Errorf("expected video id x8abc12, got %q", result.VideoID)
	}
	if result.Title != "Crash Landing 1" {
		t.Errorf("expected title from metadata, got %q", result.Title)
	}
	if result.Thumbnail != "https://img.example.com/720.jpg" {
		t.Errorf("expected largest poster, got %q", result.Thumbnail)
	}
	if result.Duration != 3600 {
		t.Errorf("expected duration 3600, got %d", result.Duration)
	}
	if result.MasterManifestURL == "" {
		t.Error("expected master manifest URL to be reported")
	}

	if len(result.Streams) != 3 {
		t.Fatalf("expected 3 renditions, got %d: %+v", len(result.Streams), result.Streams)
	}

	// Height descending, unknown height last.
	if result.Streams[0].Quality != "1080" || result.Streams[0].Height != 1080 {
		t.Errorf("expected 1080 first, got %+v", result.Streams[0])
	}
	if result.Streams[1].Quality != "720" || result.Streams[1].Width != 1280 {
		t.Errorf("expected 720 second, got %+v", result.Streams[1])
	}
	if result.Streams[2].Height != 0 {
		t.Errorf("expected unknown-height rendition last, got %+v", result.Streams[2])
	}

	// Manifest-derived references carry both the resolved variant URL and
	// the id+quality pair.
	ref, err := fetchref.FromQuery(mustParseQuery(t, result.Streams[0].FetchRef))
	if err != nil {
		t.Fatalf("fetch reference does not round-trip: %v", err)
	}
	if ref.VideoID != "x8abc12" || ref.Quality != "1080" || ref.Title != "Crash Landing 1" {
		t.Errorf("unexpected reference contents: %+v", ref)
	}
	if ref.VariantURL != "https://cdn.example.com/1080/manifest.m3u8" {
		t.Errorf("expected absolute variant URL, got %q", ref.VariantURL)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	u := newUpstream(t)
	u.metadata = metadataWithMaster
	svc := newTestService(u)

	first, err := svc.Extract(context.Background(), "https://dai.ly/x8abc12")
	if err != nil {
		t.Fatalf("first Extract failed: %v", err)
	}
	second, err := svc.Extract(context.Background(), "https://dai.ly/x8abc12")
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExtract_QualityKeyFallbackWhenManifestDown(t *testing.T) {
	u := newUpstream(t)
	u.metadata = metadataWithMaster
	u.manifestFail = true
	svc := newTestService(u)

	result, err := svc.Extract(context.Background(), "https://www.dailymotion.com/video/x8abc12")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if u.manifestHits != 2 {
		t.Errorf("expected 2 manifest attempts, got %d", u.manifestHits)
	}
	if len(result.Streams) != 2 {
		t.Fatalf("expected 2 fallback renditions, got %+v", result.Streams)
	}
	if result.Streams[0].Quality != "720" || result.Streams[0].Height != 720 || result.Streams[0].Width != 1280 {
		t.Errorf("expected known 720 dimensions, got %+v", result.Streams[0])
	}
	if result.Streams[1].Quality != "380" || result.Streams[1].Height != 380 {
		t.Errorf("expected 380 second, got %+v", result.Streams[1])
	}

	ref, err := fetchref.FromQuery(mustParseQuery(t, result.Streams[0].FetchRef))
	if err != nil {
		t.Fatalf("fetch reference does not round-trip: %v", err)
	}
	if ref.VariantURL != "" {
		t.Errorf("fallback reference must not carry a variant URL, got %q", ref.VariantURL)
	}
	if ref.VideoID != "x8abc12" || ref.Quality != "720" {
		t.Errorf("unexpected reference contents: %+v", ref)
	}
}

func TestExtract_UnknownQualityKey(t *testing.T) {
	u := newUpstream(t)
	u.metadata = func(string) string {
		return `{"title":"Old Show","duration":1200,"qualities":["380","999"]}`
	}
	svc := newTestService(u)

	result, err := svc.Extract(context.Background(), "https://www.dailymotion.com/video/x8abc12")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Streams) != 2 {
		t.Fatalf("expected 2 renditions, got %+v", result.Streams)
	}
	if result.Streams[0].Quality != "999p" || result.Streams[0].Height != 999 || result.Streams[0].Width != 0 {
		t.Errorf("unrecognized key should become <n>p with bare height, got %+v", result.Streams[0])
	}
}

func TestExtract_AutoFallback(t *testing.T) {
	u := newUpstream(t)
	u.metadata = func(string) string {
		return `{"title":"Mystery Clip","duration":900}`
	}
	svc := newTestService(u)

	result, err := svc.Extract(context.Background(), "https://www.dailymotion.com/video/x8abc12")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Streams) != 1 {
		t.Fatalf("expected single auto rendition, got %+v", result.Streams)
	}
	if result.Streams[0].Quality != "auto" {
		t.Errorf("expected auto quality, got %q", result.Streams[0].Quality)
	}
	ref, err := fetchref.FromQuery(mustParseQuery(t, result.Streams[0].FetchRef))
	if err != nil {
		t.Fatalf("fetch reference does not round-trip: %v", err)
	}
	if ref.VideoID != "x8abc12" || ref.Quality != "auto" {
		t.Errorf("unexpected reference contents: %+v", ref)
	}
}

func TestExtract_InvalidWatchURL(t *testing.T) {
	u := newUpstream(t)
	u.metadata = metadataWithMaster
	svc := newTestService(u)

	_, err := svc.Extract(context.Background(), "https://example.com/watch?v=123")
	if err == nil {
		t.Fatal("expected error for unsupported URL")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeInvalidReference {
		t.Errorf("expected invalid reference error, got %v", err)
	}
	if u.metadataHits != 0 {
		t.Error("validation must fail before any upstream call")
	}
}

func TestExtract_MetadataUnavailable(t *testing.T) {
	u := newUpstream(t)
	u.metadata = metadataWithMaster
	svc := newTestService(u)
	u.server.Close()

	_, err := svc.Extract(context.Background(), "https://www.dailymotion.com/video/x8abc12")
	if err == nil {
		t.Fatal("expected error when metadata endpoint is unreachable")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeExtractionFailed {
		t.Errorf("expected extraction failure, got %v", err)
	}
}
