package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// URLClass says what a captured response is expected to hold.
type URLClass int

const (
	ClassNone URLClass = iota
	ClassMetadata
	ClassContent
	ClassTOC
)

var classMarkers = []struct {
	class   URLClass
	markers []string
}{
	{ClassMetadata, []string{"/metadata", "/lookup"}},
	{ClassTOC, []string{"/chapters", "/toc"}},
	{ClassContent, []string{"/content", "/pages", "reader"}},
}

// ClassifyURL maps a response URL to its class.
func ClassifyURL(url string) URLClass {
	lower := strings.ToLower(url)
	for _, c := range classMarkers {
		for _, m := range c.markers {
			if strings.Contains(lower, m) {
				return c.class
			}
		}
	}
	return ClassNone
}

// CaptureMarkers extends markers with every URL class marker, so that a
// narrowed capture still sees metadata and content. Empty markers mean no
// narrowing and are returned as nil.
func CaptureMarkers(markers []string) []string {
	if len(markers) == 0 {
		return nil
	}
	out := append([]string(nil), markers...)
	for _, c := range classMarkers {
		out = append(out, c.markers...)
	}
	return out
}

var pageURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[?&](?:page|pageNumber|pageNum)=(\d+)`),
	regexp.MustCompile(`(?i)/pages?/(\d+)(?:[/?#]|$)`),
}

// PageFromURL returns the page number a content request asked for.
func PageFromURL(url string) (int, bool) {
	for _, re := range pageURLPatterns {
		if m := re.FindStringSubmatch(url); len(m) > 1 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// NetworkProbe parses captured API responses.
type NetworkProbe struct {
	Shapes []ShapeStrategy
	Logger *slog.Logger
}

// NewNetworkProbe returns a probe trying the default JSON shapes.
func NewNetworkProbe(opts *Options, logger *slog.Logger) *NetworkProbe {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NetworkProbe{Shapes: DefaultShapes(opts.MinScanTextLength), Logger: logger}
}

func (p *NetworkProbe) Name() string    { return "network" }
func (p *NetworkProbe) Tier() book.Tier { return book.TierNetworkJSON }

func (p *NetworkProbe) Probe(ctx context.Context, view *View) ([]book.Candidate, error) {
	var cands []book.Candidate
	var errs []error
	for _, ev := range view.Events {
		got, err := p.ParseEvent(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.URL, err))
			continue
		}
		cands = append(cands, got...)
	}
	return cands, errors.Join(errs...)
}

// ParseEvent turns one response into candidates. Responses outside the
// known URL classes and empty bodies yield nothing.
func (p *NetworkProbe) ParseEvent(ev browser.NetworkEvent) ([]book.Candidate, error) {
	class := ClassifyURL(ev.URL)
	if class == ClassNone || len(ev.Body) == 0 {
		return nil, nil
	}

	var payload any
	if err := json.Unmarshal(ev.Body, &payload); err != nil {
		if class == ClassContent && !ev.IsJSON() {
			if text := formatter.ExtractTextContent(string(ev.Body)); text != "" {
				return []book.Candidate{keyFromURL(ev.URL, book.Unkeyed(text, book.TierNetworkJSON))}, nil
			}
			return nil, nil
		}
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	var cands []book.Candidate
	switch class {
	case ClassMetadata, ClassTOC:
		if meta := ExtractMetadataJSON(payload); !meta.IsZero() {
			cands = append(cands, book.Candidate{Meta: &meta, Tier: book.TierNetworkJSON})
		}
		return cands, nil
	}

	pages, shape := TryShapes(p.Shapes, payload)
	if len(pages) == 0 {
		return cands, nil
	}
	p.Logger.Debug("parsed content response", "url", ev.URL, "shape", shape, "pages", len(pages))
	var loose []string
	for _, pt := range pages {
		if pt.Key != nil {
			cands = append(cands, book.Keyed(*pt.Key, pt.Text, book.TierNetworkJSON))
			continue
		}
		loose = append(loose, pt.Text)
	}
	// Unnumbered parts of one response are a single page.
	if len(loose) > 0 {
		joined := book.Unkeyed(strings.Join(loose, "\n"), book.TierNetworkJSON)
		if len(cands) == 0 {
			joined = keyFromURL(ev.URL, joined)
		}
		cands = append(cands, joined)
	}
	return cands, nil
}

// keyFromURL pins a lone unkeyed page to the page its request named.
func keyFromURL(url string, c book.Candidate) book.Candidate {
	if n, ok := PageFromURL(url); ok {
		key := book.IntKey(n)
		c.Key = &key
	}
	return c
}
