// Package identifier resolves the canonical book identifier (ASIN) from
// reader, store and library URLs.
package identifier

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultReaderBase is the cloud reader entry point used when building
// reader URLs from an identifier.
const DefaultReaderBase = "https://read.amazon.com/reader"

// Length is the fixed length of an identifier.
const Length = 10

var tokenRe = regexp.MustCompile(`B[0-9A-Z]{9}`)

// Resolve extracts a book identifier from rawURL. The second return value
// is false when no identifier could be found; callers treat that as an
// unknown book, not as an error.
func Resolve(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	if u, err := url.Parse(rawURL); err == nil {
		if asin := strings.TrimSpace(u.Query().Get("asin")); asin != "" {
			return asin, true
		}

		for _, part := range strings.Split(u.Path, "/") {
			if isPathIdentifier(part) {
				return part, true
			}
		}
	}

	if m := tokenRe.FindString(rawURL); m != "" {
		return m, true
	}

	return "", false
}

func isPathIdentifier(s string) bool {
	if len(s) != Length || !strings.HasPrefix(s, "B0") {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

// ReaderURL builds the reader URL for id. An empty base selects
// DefaultReaderBase.
func ReaderURL(base, id string) string {
	if base == "" {
		base = DefaultReaderBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?asin=" + url.QueryEscape(id)
	}
	q := u.Query()
	q.Set("asin", id)
	u.RawQuery = q.Encode()
	return u.String()
}

// Target is what a user handed us: a URL, a bare identifier, or both.
type Target struct {
	URL string
	ID  string
}

// ParseTarget accepts either a URL or a bare identifier. A bare identifier
// is expanded into a reader URL.
func ParseTarget(base, s string) Target {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}
	}
	if !strings.Contains(s, "/") && !strings.Contains(s, "?") {
		if tokenRe.MatchString(s) && len(s) == Length {
			return Target{URL: ReaderURL(base, s), ID: s}
		}
	}
	t := Target{URL: s}
	if id, ok := Resolve(s); ok {
		t.ID = id
	}
	return t
}
