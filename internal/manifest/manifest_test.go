package manifest

import (
	"strings"
	"testing"
)

const masterFixture = `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=5000000,RESOLUTION=1920x1080,NAME="1080"
https://cdn.example.com/video/1080/playlist.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2400000,RESOLUTION=1280x720,NAME="720"
720/playlist.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1200000,RESOLUTION=854x480,NAME="480"
480/playlist.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=600000
lowest/playlist.m3u8
`

const mediaFixture = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.9,
frag(1).ts
#EXTINF:10.0,
frag(2).ts
#EXTINF:4.2,
https://other-cdn.example.com/frag(3).ts
#EXT-X-ENDLIST
`

func TestParseMaster(t *testing.T) {
	base := "https://cdn.example.com/video/master.m3u8"

	variants, err := ParseMaster(strings.NewReader(masterFixture), base)
	if err != nil {
		t.Fatalf("ParseMaster: %v", err)
	}

	// One variant per EXT-X-STREAM-INF line, in manifest order.
	if len(variants) != 4 {
		t.Fatalf("expected 4 variants, got %d", len(variants))
	}

	if variants[0].URL != "https://cdn.example.com/video/1080/playlist.m3u8" {
		t.Errorf("absolute URL should pass through, got %s", variants[0].URL)
	}
	if variants[1].URL != "https://cdn.example.com/video/720/playlist.m3u8" {
		t.Errorf("relative URL should resolve against the manifest directory, got %s", variants[1].URL)
	}

	for i, v := range variants {
		if !strings.HasPrefix(v.URL, "https://") {
			t.Errorf("variant %d URL not absolute: %s", i, v.URL)
		}
	}

	if variants[0].Width != 1920 || variants[0].Height != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", variants[0].Width, variants[0].Height)
	}
	if variants[0].Label != "1080" {
		t.Errorf("expected label from NAME attribute, got %q", variants[0].Label)
	}

	// No resolution and no name: label falls back to "auto", dimensions unknown.
	last := variants[3]
	if last.Width != 0 || last.Height != 0 {
		t.Errorf("expected unknown dimensions, got %dx%d", last.Width, last.Height)
	}
	if last.Label != "auto" {
		t.Errorf("expected fallback label auto, got %q", last.Label)
	}
}

func TestParseMaster_RejectsMediaPlaylist(t *testing.T) {
	if _, err := ParseMaster(strings.NewReader(mediaFixture), "https://cdn.example.com/x/p.m3u8"); err == nil {
		t.Fatal("expected error for media playlist input")
	}
}

func TestParseMedia(t *testing.T) {
	base := "https://cdn.example.com/video/720/playlist.m3u8"

	segments, err := ParseMedia(strings.NewReader(mediaFixture), base)
	if err != nil {
		t.Fatalf("ParseMedia: %v", err)
	}

	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0] != "https://cdn.example.com/video/720/frag(1).ts" {
		t.Errorf("relative segment should resolve against the playlist directory, got %s", segments[0])
	}
	if segments[2] != "https://other-cdn.example.com/frag(3).ts" {
		t.Errorf("absolute segment should pass through, got %s", segments[2])
	}
}

func TestParseMedia_RejectsMasterPlaylist(t *testing.T) {
	if _, err := ParseMedia(strings.NewReader(masterFixture), "https://cdn.example.com/master.m3u8"); err == nil {
		t.Fatal("expected error for master playlist input")
	}
}

func TestSelectVariant(t *testing.T) {
	variants := []Variant{
		{Label: "1080", Height: 1080},
		{Label: "720", Height: 720},
		{Label: "480", Height: 480},
	}

	tests := []struct {
		quality   string
		wantLabel string
		wantExact bool
	}{
		{"720", "720", true},
		{"720p", "720", true},
		{"1080", "1080", true},
		{"144", "480", false}, // no match: last variant
		{"best", "480", false},
		{"", "480", false},
	}

	for _, tt := range tests {
		got, exact := SelectVariant(variants, tt.quality)
		if got.Label != tt.wantLabel || exact != tt.wantExact {
			t.Errorf("SelectVariant(%q) = (%s, %v), want (%s, %v)",
				tt.quality, got.Label, exact, tt.wantLabel, tt.wantExact)
		}
	}

	if _, ok := SelectVariant(nil, "720"); ok {
		t.Error("empty variant list must not report a match")
	}
}

func TestSortByHeight(t *testing.T) {
	variants := []Variant{
		{Label: "480", Height: 480},
		{Label: "auto"},
		{Label: "1080", Height: 1080},
		{Label: "720", Height: 720},
	}

	SortByHeight(variants)

	wantOrder := []string{"1080", "720", "480", "auto"}
	if len(variants) != len(wantOrder) {
		t.Fatalf("sort lost entries: %d", len(variants))
	}
	for i, want := range wantOrder {
		if variants[i].Label != want {
			t.Errorf("position %d: got %s, want %s", i, variants[i].Label, want)
		}
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
	}{
		{"1920x1080", 1920, 1080},
		{"854x480", 854, 480},
		{"", 0, 0},
		{"garbage", 0, 0},
		{"640x", 0, 0},
	}

	for _, tt := range tests {
		w, h := parseResolution(tt.in)
		if w != tt.w || h != tt.h {
			t.Errorf("parseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}
