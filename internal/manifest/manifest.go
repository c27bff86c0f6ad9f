// Package manifest parses HLS master and media playlists into the flat
// shapes the extractor and streamer work with. Every URL it surfaces is
// absolute: relative URIs are resolved against the playlist's own location.
package manifest

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

// Variant is one rendition entry from a master playlist.
type Variant struct {
	// Label is the declared NAME attribute, or the height as a bare number
	// when no name is declared.
	Label     string
	URL       string
	Width     int
	Height    int
	Bandwidth int
}

// ParseMaster decodes a master playlist and returns one Variant per
// EXT-X-STREAM-INF entry, in manifest order.
func ParseMaster(r io.Reader, baseURL string) ([]Variant, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}
	if listType != m3u8.MASTER {
		return nil, fmt.Errorf("expected master playlist, got media playlist")
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	variants := make([]Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}

		absolute, err := resolveURL(baseURL, v.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve variant URL: %w", err)
		}

		width, height := parseResolution(v.Resolution)
		label := v.Name
		if label == "" && height > 0 {
			label = strconv.Itoa(height)
		}
		if label == "" {
			label = "auto"
		}

		variants = append(variants, Variant{
			Label:     label,
			URL:       absolute,
			Width:     width,
			Height:    height,
			Bandwidth: int(v.Bandwidth),
		})
	}

	return variants, nil
}

// ParseMedia decodes a media (segment) playlist and returns the ordered,
// absolute segment URLs.
func ParseMedia(r io.Reader, baseURL string) ([]string, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("expected media playlist, got master playlist")
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	var segments []string
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		absolute, err := resolveURL(baseURL, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve segment URL: %w", err)
		}
		segments = append(segments, absolute)
	}

	return segments, nil
}

// SelectVariant picks the variant whose label or height matches the requested
// quality, falling back to the last (lowest-priority) variant when nothing
// matches. The boolean reports whether the match was exact.
func SelectVariant(variants []Variant, quality string) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}

	want := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "p")
	wantHeight, _ := strconv.Atoi(want)

	for _, v := range variants {
		if strings.TrimSuffix(strings.ToLower(v.Label), "p") == want {
			return v, true
		}
		if wantHeight > 0 && v.Height == wantHeight {
			return v, true
		}
	}

	return variants[len(variants)-1], false
}

// SortByHeight orders variants by height descending; unknown heights sort
// last and manifest order breaks ties.
func SortByHeight(variants []Variant) {
	sort.SliceStable(variants, func(i, j int) bool {
		hi, hj := variants[i].Height, variants[j].Height
		if hi == 0 {
			return false
		}
		if hj == 0 {
			return true
		}
		return hi > hj
	})
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}

// parseResolution splits a "WxH" attribute into pixel dimensions.
func parseResolution(s string) (width, height int) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return w, h
}
