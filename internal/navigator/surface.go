package navigator

import (
	"context"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// VisibleTextScript returns the rendered text of the page body.
const VisibleTextScript = `(() => document.body ? document.body.innerText : "")()`

// Surface is what the detector watches.
type Surface interface {
	VisibleText(ctx context.Context) (string, error)
	DrainNetwork() []browser.NetworkEvent
}

// BrowserSurface watches a live browser.
type BrowserSurface struct {
	Browser browser.Browser
}

// VisibleText evaluates VisibleTextScript, falling back to the text of the
// page source when scripts cannot run.
func (s BrowserSurface) VisibleText(ctx context.Context) (string, error) {
	var text string
	if err := s.Browser.Evaluate(ctx, VisibleTextScript, &text); err == nil {
		return text, nil
	}
	source, err := s.Browser.HTML(ctx)
	if err != nil {
		return "", err
	}
	return formatter.ExtractTextContent(source), nil
}

func (s BrowserSurface) DrainNetwork() []browser.NetworkEvent {
	return s.Browser.DrainNetwork()
}
