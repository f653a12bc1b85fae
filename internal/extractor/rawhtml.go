package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// RawHTMLProbe runs readability over the raw page source. It is the last
// text source before giving up on a view.
type RawHTMLProbe struct {
	Options *Options
}

// NewRawHTMLProbe returns a RawHTMLProbe.
func NewRawHTMLProbe(opts *Options) *RawHTMLProbe {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &RawHTMLProbe{Options: opts}
}

func (p *RawHTMLProbe) Name() string    { return "raw_html" }
func (p *RawHTMLProbe) Tier() book.Tier { return book.TierRawHTML }

func (p *RawHTMLProbe) Probe(ctx context.Context, view *View) ([]book.Candidate, error) {
	source, err := view.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page source: %w", err)
	}
	text, err := ReadableText(source)
	if err != nil {
		return nil, err
	}
	if len(text) < p.Options.MinContentLength {
		return nil, fmt.Errorf("text too short (%d chars)", len(text))
	}
	return []book.Candidate{book.Unkeyed(text, book.TierRawHTML)}, nil
}

// ReadableText returns the main text of an HTML document.
func ReadableText(source string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(source), nil)
	if err != nil {
		return "", fmt.Errorf("readability failed: %w", err)
	}
	return formatter.NewTextProcessor().Process(article.TextContent), nil
}
