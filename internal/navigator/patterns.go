// Package navigator detects page turns on the live reader and drives the
// capture loop.
package navigator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// DefaultVolatilePatterns match text that changes without a page turn:
// clocks, dates, "Page N of M" counters and reading percentages.
var DefaultVolatilePatterns = []string{
	`\d{2}:\d{2}:\d{2}`,
	`\d{1,2}/\d{1,2}/\d{2,4}`,
	`(?i)(Стр\.|Страница|Page)\s*\d+\s*(из|of)\s*\d+`,
	`\d+\s*%`,
}

// DefaultRelevanceMarkers flag network calls that usually accompany a turn.
var DefaultRelevanceMarkers = []string{"api", "content", "page"}

// Normalizer reduces visible text to the part that identifies a page.
type Normalizer struct {
	patterns []*regexp.Regexp
}

// NewNormalizer compiles patterns. A nil slice selects the defaults.
func NewNormalizer(patterns []string) (*Normalizer, error) {
	if patterns == nil {
		patterns = DefaultVolatilePatterns
	}
	n := &Normalizer{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid volatile pattern %q: %w", p, err)
		}
		n.patterns = append(n.patterns, re)
	}
	return n, nil
}

// Normalize strips volatile substrings and collapses whitespace.
func (n *Normalizer) Normalize(text string) string {
	for _, re := range n.patterns {
		text = re.ReplaceAllString(text, " ")
	}
	return formatter.CollapseWhitespace(text)
}

// Hash returns the hex SHA-256 of the normalized text.
func (n *Normalizer) Hash(text string) string {
	sum := sha256.Sum256([]byte(n.Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// IsRelevantURL reports whether url contains any of markers.
func IsRelevantURL(url string, markers []string) bool {
	lower := strings.ToLower(url)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
