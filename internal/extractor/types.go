// Package extractor provides the content probes run against the current
// reader view.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// View is the reading surface at one moment, shared by every probe of one
// pass.
type View struct {
	Browser browser.Browser
	// Page is the detector's page counter for this view.
	Page int
	// Events are the responses captured since the previous pass.
	Events []browser.NetworkEvent

	htmlOnce sync.Once
	html     string
	htmlErr  error
}

// HTML returns the page source, fetching it once per view.
func (v *View) HTML(ctx context.Context) (string, error) {
	if v.Browser == nil {
		return "", fmt.Errorf("no browser attached to view")
	}
	v.htmlOnce.Do(func() {
		v.html, v.htmlErr = v.Browser.HTML(ctx)
	})
	return v.html, v.htmlErr
}

// Probe is one best-effort extraction strategy.
type Probe interface {
	Name() string
	Tier() book.Tier
	Probe(ctx context.Context, view *View) ([]book.Candidate, error)
}

// ProbeError wraps a failure local to one probe.
type ProbeError struct {
	Probe string
	Err   error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe %s: %v", e.Probe, e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

// Options provides options for probes
type Options struct {
	MinContentLength  int
	MinScanTextLength int
	ContentSelectors  []string
	TitleSelectors    []string
	AuthorSelectors   []string
	ImageSelectors    []string
	ScriptContainers  []string
	DumpContainers    []string
}

// DefaultOptions returns the selectors known to match the reader.
func DefaultOptions() *Options {
	return &Options{
		MinContentLength:  20,
		MinScanTextLength: 50,
		ContentSelectors: []string{
			"div.textLayer", "div.kcrPage", "div.bookReaderContainer", "div.kindleReaderPage", "div.kb-viewarea",
			".kindleReader-content", ".kindle-book-content", "#kindleReader-content", ".bookContent",
			"#book-content", ".book-container", ".bookTextView", "#bookTextView",
		},
		TitleSelectors:  []string{".bookTitle", ".book-title"},
		AuthorSelectors: []string{".bookAuthor", ".book-author"},
		ImageSelectors:  []string{"img.kfx-image", "img.kc-kindle-image", "img.kb-image", "img:not(.ui-icon)", "canvas"},
		ScriptContainers: []string{
			".page-content", ".book-content", ".kindle-content", "main", ".app-reader", ".app-view",
		},
		DumpContainers: []string{
			".book-view", ".pageContainer", `[data-testid="book-container"]`, ".page", ".app-reader",
		},
	}
}

// Result contains the outcome of one pass over the probes
type Result struct {
	Candidates []book.Candidate
	Used       []string
	Errors     []*ProbeError
}

// ProbeSet runs probes in tier order. A failing probe never stops the
// others.
type ProbeSet struct {
	probes []Probe
	logger *slog.Logger
}

// NewProbeSet creates a set from probes, kept in the given order.
func NewProbeSet(logger *slog.Logger, probes ...Probe) *ProbeSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbeSet{probes: probes, logger: logger}
}

// AddProbe appends a probe.
func (s *ProbeSet) AddProbe(p Probe) {
	s.probes = append(s.probes, p)
}

// Names lists the probes in run order.
func (s *ProbeSet) Names() []string {
	out := make([]string, len(s.probes))
	for i, p := range s.probes {
		out[i] = p.Name()
	}
	return out
}

// ProbeCurrentView runs every probe against view. A probe may return
// partial candidates along with its error; both are kept. Unkeyed text
// from different probes is collapsed to the best one, since a view shows
// a single page.
func (s *ProbeSet) ProbeCurrentView(ctx context.Context, view *View) Result {
	var res Result
	for _, p := range s.probes {
		if ctx.Err() != nil {
			break
		}
		cands, err := s.run(ctx, p, view)
		if err != nil {
			perr := &ProbeError{Probe: p.Name(), Err: err}
			res.Errors = append(res.Errors, perr)
			s.logger.Debug("probe failed", "probe", p.Name(), "page", view.Page, "err", err)
		}
		if len(cands) == 0 {
			continue
		}
		for i := range cands {
			if cands[i].Tier == book.TierUnknown {
				cands[i].Tier = p.Tier()
			}
		}
		res.Used = append(res.Used, p.Name())
		res.Candidates = append(res.Candidates, cands...)
	}
	res.Candidates = CollapseUnkeyed(res.Candidates)
	return res
}

func (s *ProbeSet) run(ctx context.Context, p Probe, view *View) (cands []book.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Probe(ctx, view)
}

// CollapseUnkeyed keeps a single unkeyed text candidate: the highest tier,
// then the longest text. It is dropped entirely when keyed text of the
// same or a higher tier exists. Keyed, image and metadata candidates pass
// through.
func CollapseUnkeyed(cands []book.Candidate) []book.Candidate {
	best := -1
	keyedTier := book.TierUnknown
	out := make([]book.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Key != nil || c.Text == "" {
			if c.Key != nil && c.Text != "" && c.Tier > keyedTier {
				keyedTier = c.Tier
			}
			out = append(out, c)
			continue
		}
		if c.Image != nil || c.Meta != nil {
			side := c
			side.Text = ""
			out = append(out, side)
		}
		textOnly := book.Candidate{Text: c.Text, Tier: c.Tier}
		switch {
		case best < 0:
			best = len(out)
			out = append(out, textOnly)
		case c.Tier > out[best].Tier || (c.Tier == out[best].Tier && len(c.Text) > len(out[best].Text)):
			out[best] = textOnly
		}
	}
	if best >= 0 && keyedTier != book.TierUnknown && keyedTier >= out[best].Tier {
		out = append(out[:best], out[best+1:]...)
	}
	return out
}
