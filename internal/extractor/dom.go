package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

// DOMProbe runs the selector strategies over the page source.
type DOMProbe struct {
	Options  *Options
	Strategy DetectionStrategy
}

// NewDOMProbe returns a probe using opts.ContentSelectors.
func NewDOMProbe(opts *Options) *DOMProbe {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &DOMProbe{
		Options:  opts,
		Strategy: NewHybridStrategy(opts.ContentSelectors, []string{"script", "style", "noscript"}),
	}
}

func (p *DOMProbe) Name() string    { return "dom" }
func (p *DOMProbe) Tier() book.Tier { return book.TierDOM }

func (p *DOMProbe) Probe(ctx context.Context, view *View) ([]book.Candidate, error) {
	source, err := view.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page source: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page source: %w", err)
	}

	var cands []book.Candidate
	if meta := ExtractMetadata(doc, p.Options); !meta.IsZero() {
		cands = append(cands, book.Candidate{Meta: &meta, Tier: book.TierDOM})
	}

	text, err := p.Strategy.Extract(doc, p.Options)
	if err != nil {
		return cands, err
	}
	if len(text) < p.Options.MinContentLength {
		return cands, fmt.Errorf("text too short (%d chars)", len(text))
	}
	return append(cands, book.Unkeyed(text, book.TierDOM)), nil
}
