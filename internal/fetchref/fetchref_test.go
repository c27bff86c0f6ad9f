package fetchref

import (
	"encoding/base64"
	"net/url"
	"testing"
)

func TestRef_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
	}{
		{
			name: "full dual reference",
			ref: Ref{
				Kind:       KindByQuality,
				VideoID:    "x8k2m4q",
				Quality:    "720",
				Title:      "Vincenzo Episode 1",
				VariantURL: "https://cdn.example.com/video/720/playlist.m3u8?auth=abc%3D%3D",
			},
		},
		{
			name: "by quality only",
			ref:  Ref{Kind: KindByQuality, VideoID: "x8k2m4q", Quality: "auto"},
		},
		{
			name: "direct variant URL only",
			ref: Ref{
				Kind:       KindDirect,
				Quality:    "480",
				VariantURL: "https://cdn.example.com/480.m3u8",
			},
		},
		{
			name: "metadata fallback with master manifest",
			ref: Ref{
				Kind:        KindByQuality,
				VideoID:     "x7abc12",
				Quality:     "1080",
				Title:       "사랑의 불시착 1화", // non-ASCII titles must survive the trip
				ManifestURL: "https://cdn.example.com/master.m3u8",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.ref.Encode()

			values, err := url.ParseQuery(encoded)
			if err != nil {
				t.Fatalf("encoded form is not a parseable query: %v", err)
			}

			got, err := FromQuery(values)
			if err != nil {
				t.Fatalf("FromQuery: %v", err)
			}
			if got != tt.ref {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, tt.ref)
			}
		})
	}
}

func TestFromQuery_QualityAlias(t *testing.T) {
	v := url.Values{}
	v.Set("quality", "720")
	v.Set("m", base64.RawURLEncoding.EncodeToString([]byte("https://cdn.example.com/master.m3u8")))

	ref, err := FromQuery(v)
	if err != nil {
		t.Fatalf("FromQuery: %v", err)
	}
	if ref.Quality != "720" {
		t.Errorf("expected quality from alias parameter, got %q", ref.Quality)
	}
	if ref.Kind != KindByQuality {
		t.Errorf("manifest-bearing refs resolve through the full chain, got kind %v", ref.Kind)
	}
}

func TestFromQuery_PaddedBase64(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("My Show"))

	v := url.Values{}
	v.Set("id", "x8k2m4q")
	v.Set("t", padded)

	ref, err := FromQuery(v)
	if err != nil {
		t.Fatalf("FromQuery: %v", err)
	}
	if ref.Title != "My Show" {
		t.Errorf("expected padded base64 to decode, got %q", ref.Title)
	}
}

func TestFromQuery_Invalid(t *testing.T) {
	tests := []struct {
		name string
		v    url.Values
	}{
		{"empty", url.Values{}},
		{"quality only", url.Values{"q": {"720"}}},
		{"garbage variant URL", url.Values{"u": {"%%%not-base64%%%"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromQuery(tt.v); err == nil {
				t.Error("expected error")
			}
		})
	}
}
