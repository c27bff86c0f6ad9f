package validators

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// WatchURLPattern matches Dailymotion watch URLs inside arbitrary text and
// captures the video identifier. The web-search fallback uses it to pull
// candidate links out of a result page.
var WatchURLPattern = regexp.MustCompile(`https?://(?:www\.)?dailymotion\.com/video/(x[a-z0-9]+)`)

// DailymotionValidator validates Dailymotion URLs
type DailymotionValidator struct {
	// videoIDPattern matches Dailymotion video IDs ("x" followed by base36)
	videoIDPattern *regexp.Regexp
}

// NewDailymotionValidator creates a new Dailymotion URL validator
func NewDailymotionValidator() *DailymotionValidator {
	return &DailymotionValidator{
		videoIDPattern: regexp.MustCompile(`^x[a-z0-9]+$`),
	}
}

// SourceType returns the source type for this validator
func (v *DailymotionValidator) SourceType() SourceType {
	return SourceDailymotion
}

// parseURL parses a watch URL, tolerating pasted scheme-less input like
// "www.dailymotion.com/video/x..." by assuming https.
func parseURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Host == "" && !strings.Contains(rawURL, "://") {
		return url.Parse("https://" + rawURL)
	}
	return parsed, nil
}

// CanHandle returns true if the URL appears to be a Dailymotion URL
func (v *DailymotionValidator) CanHandle(rawURL string) bool {
	parsed, err := parseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	return host == "dailymotion.com" || host == "dai.ly"
}

// Validate validates a Dailymotion URL and extracts the video ID
func (v *DailymotionValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := parseURL(rawURL)
	if err != nil {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceDailymotion,
			URL:        rawURL,
			Error:      "invalid URL format",
		}
	}
	rawURL = parsed.String()

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceDailymotion,
			URL:        rawURL,
			Error:      "invalid URL scheme",
		}
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	var videoID string

	switch host {
	case "dai.ly":
		// Short link format: dai.ly/VIDEO_ID
		videoID = strings.TrimPrefix(parsed.Path, "/")

	case "dailymotion.com":
		// Watch URL format: /video/VIDEO_ID or /video/VIDEO_ID_some-slug
		if strings.HasPrefix(parsed.Path, "/video/") {
			videoID = strings.TrimPrefix(parsed.Path, "/video/")
		}

	default:
		return ValidationResult{
			Valid:      false,
			SourceType: SourceDailymotion,
			URL:        rawURL,
			Error:      "not a Dailymotion URL",
		}
	}

	// Strip slug and query noise after the identifier
	if idx := strings.IndexAny(videoID, "_/?"); idx != -1 {
		videoID = videoID[:idx]
	}

	if videoID == "" {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceDailymotion,
			URL:        rawURL,
			Error:      "could not extract video ID from URL",
		}
	}

	if !v.videoIDPattern.MatchString(videoID) {
		return ValidationResult{
			Valid:      false,
			SourceType: SourceDailymotion,
			URL:        rawURL,
			VideoID:    videoID,
			Error:      "invalid video ID format",
		}
	}

	return ValidationResult{
		Valid:      true,
		SourceType: SourceDailymotion,
		VideoID:    videoID,
		URL:        rawURL,
		Canonical:  CanonicalWatchURL(videoID),
	}
}

// CanonicalWatchURL builds the canonical watch-page URL for a video ID.
func CanonicalWatchURL(videoID string) string {
	return fmt.Sprintf("https://www.dailymotion.com/video/%s", videoID)
}
