package extractor

import (
	"context"
	"fmt"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/evidence"
)

// ScreenshotProbe saves a raster of the view as a debugging artifact. It
// never produces candidates.
type ScreenshotProbe struct {
	Evidence *evidence.Store
}

// NewScreenshotProbe returns a probe writing into store.
func NewScreenshotProbe(store *evidence.Store) *ScreenshotProbe {
	return &ScreenshotProbe{Evidence: store}
}

func (p *ScreenshotProbe) Name() string    { return "screenshot" }
func (p *ScreenshotProbe) Tier() book.Tier { return book.TierScreenshot }

func (p *ScreenshotProbe) Probe(ctx context.Context, view *View) ([]book.Candidate, error) {
	if p.Evidence == nil {
		return nil, nil
	}
	data, err := view.Browser.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	if _, err := p.Evidence.PageScreenshot(view.Page, data); err != nil {
		return nil, err
	}
	return nil, nil
}
