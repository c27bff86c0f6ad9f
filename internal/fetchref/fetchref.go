// Package fetchref defines the opaque reference the extractor hands to the
// streamer. It is the only context that crosses stage boundaries: everything
// travels base64url-encoded in query parameters so the pipeline stays
// stateless across requests and instances.
package fetchref

import (
	"encoding/base64"
	"net/url"
	"strings"

	apperrors "github.com/dramastream/backend/internal/errors"
)

// Kind tags the two reference shapes the streamer can resolve.
type Kind int

const (
	// KindByQuality re-derives the segment list from the video identifier
	// and quality label (the full-chain path).
	KindByQuality Kind = iota
	// KindDirect carries a pre-resolved variant-playlist URL (the fast
	// path, used as fallback when the full chain yields nothing).
	KindDirect
)

// Ref carries enough information for the streamer to reproduce a rendition's
// segment list without re-contacting the extractor.
type Ref struct {
	Kind        Kind
	VideoID     string
	Quality     string
	Title       string
	VariantURL  string // pre-resolved segment-playlist URL
	ManifestURL string // master manifest URL from the metadata-fallback path
}

// Values encodes the reference into download-endpoint query parameters.
func (r Ref) Values() url.Values {
	v := url.Values{}
	if r.VideoID != "" {
		v.Set("id", r.VideoID)
	}
	if r.Quality != "" {
		v.Set("q", r.Quality)
	}
	if r.Title != "" {
		v.Set("t", encode(r.Title))
	}
	if r.VariantURL != "" {
		v.Set("u", encode(r.VariantURL))
	}
	if r.ManifestURL != "" {
		v.Set("m", encode(r.ManifestURL))
	}
	return v
}

// Encode renders the reference as a query string.
func (r Ref) Encode() string {
	return r.Values().Encode()
}

// FromQuery decodes a reference from download-endpoint query parameters.
// Both parameter forms are accepted: the direct form (id/u/t/q) and the
// metadata-fallback form (quality/m).
func FromQuery(v url.Values) (Ref, error) {
	r := Ref{
		VideoID: strings.TrimSpace(v.Get("id")),
		Quality: strings.TrimSpace(v.Get("q")),
	}
	if r.Quality == "" {
		r.Quality = strings.TrimSpace(v.Get("quality"))
	}

	var err error
	if r.Title, err = decodeParam(v.Get("t")); err != nil {
		return Ref{}, apperrors.InvalidReference("malformed title parameter").WithCause(err)
	}
	if r.VariantURL, err = decodeParam(v.Get("u")); err != nil {
		return Ref{}, apperrors.InvalidReference("malformed variant URL parameter").WithCause(err)
	}
	if r.ManifestURL, err = decodeParam(v.Get("m")); err != nil {
		return Ref{}, apperrors.InvalidReference("malformed manifest URL parameter").WithCause(err)
	}

	if r.VideoID == "" && r.VariantURL == "" && r.ManifestURL == "" {
		return Ref{}, apperrors.InvalidReference("reference carries no video id, variant URL, or manifest URL")
	}

	if r.VariantURL != "" && r.VideoID == "" && r.ManifestURL == "" {
		r.Kind = KindDirect
	} else {
		r.Kind = KindByQuality
	}
	return r, nil
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// decodeParam tolerates both padded and unpadded base64url input.
func decodeParam(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
