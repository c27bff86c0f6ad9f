package streamer

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// attachmentName builds the download filename: "<title> <quality>.ts", with
// bare numeric qualities rendered as "<n>p".
func attachmentName(title, quality string) string {
	name := sanitizeFilename(title)
	if name == "" {
		name = "video"
	}
	label := strings.TrimSpace(quality)
	if label == "" {
		label = "auto"
	}
	if isNumeric(label) {
		label += "p"
	}
	return name + " " + label + ".ts"
}

// attachmentDisposition renders the Content-Disposition header. Non-ASCII
// titles get an ASCII fallback in filename plus the real name in filename*.
func attachmentDisposition(title, quality string) string {
	name := attachmentName(title, quality)
	ascii := asciiFallback(name)
	if ascii == name {
		return fmt.Sprintf("attachment; filename=%q", name)
	}
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", ascii, url.PathEscape(name))
}

// sanitizeFilename NFKC-normalizes the title and replaces path separators,
// header-breaking characters and control bytes, collapsing runs of
// whitespace afterwards.
func sanitizeFilename(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune(' ')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// asciiFallback substitutes underscores for anything outside printable ASCII.
func asciiFallback(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
