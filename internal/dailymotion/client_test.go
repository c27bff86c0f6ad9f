package dailymotion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/dramastream/backend/internal/errors"
)

func newTestClient(apiURL, metadataURL string) *Client {
	return NewClient(Options{
		APIBaseURL:      apiURL,
		MetadataBaseURL: metadataURL,
		UserAgent:       "test-agent/1.0",
		AcceptLanguage:  "en-US,en;q=0.9",
		SearchHint:      "drama full episode",
		SearchLimit:     12,
		MinDurationMins: 15,
	})
}

func TestClient_SearchVideos(t *testing.T) {
	var gotQuery map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent/1.0" {
			t.Errorf("expected spoofed user agent, got %q", ua)
		}
		gotQuery = map[string]string{
			"search":      r.URL.Query().Get("search"),
			"sort":        r.URL.Query().Get("sort"),
			"limit":       r.URL.Query().Get("limit"),
			"longer_than": r.URL.Query().Get("longer_than"),
		}
		json.NewEncoder(w).Encode(map[string]any{
			"list": []map[string]any{
				{
					"title":             "Vincenzo Episode 1",
					"url":               "https://www.dailymotion.com/video/x8k2m4q",
					"thumbnail_240_url": "https://s.dmcdn.net/thumb1.jpg",
					"duration":          3720,
					"owner.screenname":  "kdrama-hub",
				},
				{
					"title":    "Vincenzo Episode 2",
					"url":      "https://www.dailymotion.com/video/x8k2m4r",
					"duration": 3650,
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	videos, err := c.SearchVideos(context.Background(), "Vincenzo")
	if err != nil {
		t.Fatalf("SearchVideos: %v", err)
	}

	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if videos[0].Title != "Vincenzo Episode 1" || videos[0].Channel != "kdrama-hub" {
		t.Errorf("unexpected first result: %+v", videos[0])
	}
	if videos[0].Duration != 3720 {
		t.Errorf("expected duration 3720, got %d", videos[0].Duration)
	}

	if gotQuery["search"] != "Vincenzo drama full episode" {
		t.Errorf("expected genre-hinted query, got %q", gotQuery["search"])
	}
	if gotQuery["sort"] != "relevance" || gotQuery["limit"] != "12" || gotQuery["longer_than"] != "15" {
		t.Errorf("unexpected query params: %v", gotQuery)
	}
}

func TestClient_SearchVideos_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.SearchVideos(context.Background(), "Vincenzo")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsRetryable(err) {
		t.Errorf("503 should map to a retryable error, got %v", err)
	}
}

func TestClient_Metadata_MapQualities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player/metadata/video/x8k2m4q" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"title":    "Vincenzo Episode 1",
			"duration": 3720.0,
			"posters": map[string]string{
				"240": "https://s.dmcdn.net/small.jpg",
				"720": "https://s.dmcdn.net/big.jpg",
			},
			"qualities": map[string]any{
				"auto": []map[string]string{
					{"type": "application/x-mpegURL", "url": "https://cdn.example.com/master.m3u8"},
				},
				"380": []map[string]string{{"type": "video/mp4", "url": "https://cdn.example.com/380.mp4"}},
				"720": []map[string]string{{"type": "video/mp4", "url": "https://cdn.example.com/720.mp4"}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	md, err := c.Metadata(context.Background(), "x8k2m4q")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if md.Title != "Vincenzo Episode 1" || md.Duration != 3720 {
		t.Errorf("unexpected metadata: %+v", md)
	}
	if md.Thumbnail != "https://s.dmcdn.net/big.jpg" {
		t.Errorf("expected largest poster, got %q", md.Thumbnail)
	}
	if md.MasterManifestURL != "https://cdn.example.com/master.m3u8" {
		t.Errorf("expected auto master manifest URL, got %q", md.MasterManifestURL)
	}
	if len(md.QualityKeys) != 2 {
		t.Errorf("expected 2 quality keys, got %v", md.QualityKeys)
	}
}

func TestClient_Metadata_ListQualities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"title":     "Old Format Video",
			"duration":  1800.0,
			"qualities": []string{"auto", "240", "480"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	md, err := c.Metadata(context.Background(), "x7abc12")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if md.MasterManifestURL != "" {
		t.Errorf("list-shaped qualities carry no manifest URL, got %q", md.MasterManifestURL)
	}
	if len(md.QualityKeys) != 2 || md.QualityKeys[0] != "240" || md.QualityKeys[1] != "480" {
		t.Errorf("unexpected quality keys: %v", md.QualityKeys)
	}
}

func TestClient_Metadata_UpstreamErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"title": "Content rejected"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.Metadata(context.Background(), "x8k2m4q")
	if err == nil {
		t.Fatal("expected error for rejected content")
	}
}
