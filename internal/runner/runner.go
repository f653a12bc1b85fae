// Package runner drives one extraction run from target to written output,
// and manages concurrent runs for the control surface.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/config"
	"github.com/marcosevegrand/kindle-extract/internal/evidence"
	"github.com/marcosevegrand/kindle-extract/internal/extractor"
	"github.com/marcosevegrand/kindle-extract/internal/identifier"
	"github.com/marcosevegrand/kindle-extract/internal/navigator"
	"github.com/marcosevegrand/kindle-extract/internal/output"
	"github.com/marcosevegrand/kindle-extract/internal/readerapi"
	"github.com/marcosevegrand/kindle-extract/internal/reconcile"
	"github.com/marcosevegrand/kindle-extract/internal/session"
)

// Terminal states a Report can carry besides the detector's own.
const (
	StateFailed = "failed"

	ReasonAuthFailed    = "auth_failed"
	ReasonRequestFailed = "request_failed"
	ReasonDegraded      = "degraded"
)

// Params are the per-run inputs. Zero values fall back to the config.
type Params struct {
	Target      string
	Credentials session.Credentials
	MaxPages    int
	SettleDelay time.Duration
	Mode        string
	// Light requests pages over HTTP with the session cookies instead of
	// driving the browser.
	Light bool
	// Steps feeds the step pacer.
	Steps <-chan struct{}
	// OnAdvance is called after every captured page.
	OnAdvance func(page, total int)
}

// Report describes a finished run.
type Report struct {
	ASIN       string
	Title      string
	Author     string
	State      string
	Reason     string
	Pages      int
	Words      int
	Conflicts  int
	Degraded   bool
	Outputs    []string
	StartedAt  time.Time
	FinishedAt time.Time
	Document   *book.Document
}

// Runner owns everything one run touches. Runners are not reused.
type Runner struct {
	Config  *config.Config
	Browser browser.Browser
	Session *session.Session
	// HTTPClient serves light mode; one is built from the session cookies
	// when nil.
	HTTPClient *resty.Client
	Evidence   *evidence.Store
	Progress   *Progress
	Logger     *slog.Logger

	reconciler *reconcile.Reconciler
	conflicts  int
}

// New creates a Runner. b may be nil for light mode.
func New(cfg *config.Config, b browser.Browser, sess *session.Session, logger *slog.Logger) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Config: cfg, Browser: b, Session: sess, Logger: logger}
}

// Run extracts the target. Whatever was captured is written even when the
// run is cancelled; the returned Report is never nil.
func (r *Runner) Run(ctx context.Context, p Params) (*Report, error) {
	if r.Progress == nil {
		r.Progress = NewProgress(DefaultMaxLogs)
	}
	r.reconciler = reconcile.New(r.Logger)

	cfg := r.Config
	maxPages := cfg.Detection.MaxPages
	if p.MaxPages > 0 {
		maxPages = p.MaxPages
	}
	report := &Report{StartedAt: time.Now()}

	target := identifier.ParseTarget(cfg.Reader.ReaderURL, p.Target)
	if target.URL == "" {
		return r.fail(report, "", fmt.Errorf("no target given"))
	}
	if target.ID == "" {
		r.Logger.Warn("no book identifier in target, continuing without one",
			"err", &NavigationError{Kind: IdentifierUnresolvable, URL: target.URL})
	}
	report.ASIN = target.ID
	doc := book.NewDocument(target.ID)
	report.Document = doc

	r.Progress.Start(maxPages)
	r.Logger.Info("starting extraction", "target", target.URL, "asin", target.ID, "max_pages", maxPages)

	if r.Session == nil {
		return r.fail(report, ReasonAuthFailed, fmt.Errorf("no session configured"))
	}
	if _, err := r.Session.Authenticate(ctx, p.Credentials); err != nil {
		return r.fail(report, ReasonAuthFailed, err)
	}

	var outcome navigator.Outcome
	if p.Light || r.Browser == nil {
		outcome = r.runLight(ctx, target, doc, maxPages, p.OnAdvance)
	} else {
		outcome = r.runBrowser(ctx, target, doc, maxPages, p, report)
	}
	report.State = outcome.State.String()
	report.Reason = outcome.Reason
	if outcome.Err != nil && !errors.Is(outcome.Err, context.Canceled) {
		r.Logger.Warn("extraction ended early", "reason", outcome.Reason, "err", outcome.Err)
	}

	return r.finish(report, doc)
}

// fail ends a run before any extraction happened.
func (r *Runner) fail(report *Report, reason string, err error) (*Report, error) {
	report.State = StateFailed
	report.Reason = reason
	report.FinishedAt = time.Now()
	r.Logger.Error("extraction failed", "reason", reason, "err", err)
	r.Progress.Finish(StateFailed, nil, err)
	return report, err
}

func (r *Runner) finish(report *Report, doc *book.Document) (*Report, error) {
	report.ASIN = doc.ID
	report.Title = doc.Title
	report.Author = doc.Author
	report.Pages = doc.Len()
	report.Words = doc.WordCount()
	report.Conflicts = r.conflicts

	if doc.Len() == 0 {
		report.State = StateFailed
		report.FinishedAt = time.Now()
		r.Logger.Error("no pages captured", "reason", report.Reason)
		r.Progress.Finish(StateFailed, nil, ErrExtractionEmpty)
		return report, ErrExtractionEmpty
	}

	outputs, err := r.write(doc)
	report.Outputs = outputs
	report.FinishedAt = time.Now()
	if err != nil {
		report.State = StateFailed
		r.Logger.Error("writing output failed", "err", err)
		r.Progress.Finish(StateFailed, outputs, err)
		return report, err
	}

	r.Logger.Info("extraction finished", "state", report.State, "reason", report.Reason,
		"pages", report.Pages, "words", report.Words, "conflicts", report.Conflicts)
	r.Progress.Finish(report.State, outputs, nil)
	return report, nil
}

func (r *Runner) write(doc *book.Document) ([]string, error) {
	out := r.Config.Output
	w := output.NewWriter(out.OutputPath, out.Formats, r.Logger)
	if out.EPUBMetadata.Lang != "" {
		w.EPUB.Lang = out.EPUBMetadata.Lang
	}
	written, err := w.Write(doc)
	if err != nil {
		return written, &PersistenceError{Path: out.OutputPath, Err: err}
	}
	return written, nil
}

// runBrowser opens the reader and runs the page-turn detector. Navigation
// problems fall back to a single pass over whatever is on screen.
func (r *Runner) runBrowser(ctx context.Context, target identifier.Target, doc *book.Document, maxPages int, p Params, report *Report) navigator.Outcome {
	cfg := r.Config
	probes := extractor.NewDefaultProbeSet(ProbeOptions(cfg.Probes), cfg.Probes.Enabled, r.screenshots(), r.Logger)

	if navErr := r.open(ctx, target.URL); navErr != nil {
		if ctx.Err() != nil {
			return navigator.Outcome{State: navigator.StateAborted, Reason: navigator.ReasonCancelled, Err: ctx.Err()}
		}
		r.Logger.Warn("reader unavailable, falling back to the visible page", "err", navErr)
		report.Degraded = true
		return r.degraded(ctx, probes, doc, p.OnAdvance)
	}

	if cfg.Debug.DumpHTML && r.Evidence != nil {
		if source, err := r.Browser.HTML(ctx); err == nil {
			if path, err := r.Evidence.HTML("reader_loaded", source); err == nil {
				r.Logger.Info("saved page source", "path", path)
			}
		}
	}

	detCfg := DetectorConfig(cfg.Detection)
	detCfg.MaxPages = maxPages
	if p.SettleDelay > 0 {
		detCfg.SettleDelay = p.SettleDelay
	}
	normalizer, err := navigator.NewNormalizer(cfg.Detection.VolatilePatterns)
	if err != nil {
		r.Logger.Warn("invalid volatile patterns, using defaults", "err", err)
		normalizer = nil
	}
	mode := p.Mode
	if mode == "" {
		mode = cfg.Detection.Mode
	}
	turner := navigator.NewTurner(r.Browser, cfg.Detection.NextSelectors, r.Logger)
	pacer, err := navigator.NewPacer(mode, turner, p.Steps)
	if err != nil {
		r.Logger.Warn("falling back to automatic page turns", "err", err)
		pacer = &navigator.Auto{Turner: turner}
	}

	capture := func(ctx context.Context, page int, events []browser.NetworkEvent) error {
		view := &extractor.View{Browser: r.Browser, Page: page, Events: events}
		r.merge(probes.ProbeCurrentView(ctx, view), doc, page)
		return nil
	}

	det := navigator.NewDetector(detCfg, navigator.BrowserSurface{Browser: r.Browser}, pacer, normalizer, capture, r.Logger)
	det.OnAdvance = r.onAdvance(p.OnAdvance)
	r.Logger.Info("watching for page turns", "mode", pacer.Name())

	outcome := det.Run(ctx)
	if doc.Len() == 0 && ctx.Err() == nil {
		r.Logger.Warn("detector captured nothing, falling back to the visible page")
		report.Degraded = true
		if fallback := r.degraded(ctx, probes, doc, p.OnAdvance); doc.Len() > 0 {
			return fallback
		}
	}
	return outcome
}

// open navigates to the reader and confirms the service did not send the
// browser back to sign-in.
func (r *Runner) open(ctx context.Context, url string) error {
	if err := r.Browser.Navigate(ctx, url); err != nil {
		return &NavigationError{Kind: TargetUnreachable, URL: url, Err: err}
	}
	current, err := r.Browser.CurrentURL(ctx)
	if err != nil {
		return &NavigationError{Kind: TargetUnreachable, URL: url, Err: err}
	}
	if session.IsSignInRedirect(current) {
		r.Session.Expire()
		return &NavigationError{Kind: UnexpectedRedirect, URL: current}
	}
	r.Logger.Info("reader opened", "url", current)
	return nil
}

// degraded probes the current view once as page 1.
func (r *Runner) degraded(ctx context.Context, probes *extractor.ProbeSet, doc *book.Document, cb func(page, total int)) navigator.Outcome {
	view := &extractor.View{Browser: r.Browser, Page: 1, Events: r.Browser.DrainNetwork()}
	r.merge(probes.ProbeCurrentView(ctx, view), doc, 1)
	if doc.Len() == 0 {
		return navigator.Outcome{State: navigator.StateAborted, Reason: ReasonDegraded}
	}
	r.onAdvance(cb)(1, 1)
	return navigator.Outcome{State: navigator.StateDone, Pages: doc.Len(), Reason: ReasonDegraded}
}

func (r *Runner) merge(res extractor.Result, doc *book.Document, page int) {
	merged := r.reconciler.Merge(res.Candidates, doc)
	r.conflicts += len(merged.Conflicts)
	r.Logger.Info("page captured", "page", page, "probes", res.Used,
		"inserted", len(merged.Inserted), "replaced", len(merged.Replaced), "images", merged.Images)
	for _, perr := range res.Errors {
		r.Logger.Debug("probe error", "page", page, "probe", perr.Probe, "err", perr.Err)
	}
}

func (r *Runner) onAdvance(cb func(page, total int)) func(page, total int) {
	return func(page, total int) {
		r.Progress.Advance(page, total)
		if cb != nil {
			cb(page, total)
		}
	}
}

func (r *Runner) screenshots() *evidence.Store {
	if !r.Config.Debug.Screenshots {
		return nil
	}
	return r.Evidence
}

// runLight requests metadata and pages straight from the service.
func (r *Runner) runLight(ctx context.Context, target identifier.Target, doc *book.Document, maxPages int, cb func(page, total int)) navigator.Outcome {
	if target.ID == "" {
		err := &NavigationError{Kind: IdentifierUnresolvable, URL: target.URL}
		return navigator.Outcome{State: navigator.StateAborted, Reason: ReasonRequestFailed, Err: err}
	}

	client := r.HTTPClient
	if client == nil {
		c, err := session.NewHTTPClient(r.Config.Browser.UserAgent, r.Session.Cookies(),
			time.Duration(r.Config.HTTP.Timeout)*time.Second)
		if err != nil {
			return navigator.Outcome{State: navigator.StateAborted, Reason: ReasonRequestFailed, Err: err}
		}
		client = c
	}
	api := readerapi.New(client, r.Config.Reader.BaseURL, time.Duration(r.Config.HTTP.DelayMS)*time.Millisecond, r.Logger)
	parser := extractor.NewNetworkProbe(ProbeOptions(r.Config.Probes), r.Logger)
	advance := r.onAdvance(cb)

	for _, fetch := range []func(context.Context, string) (browser.NetworkEvent, error){api.Metadata, api.TOC} {
		ev, err := fetch(ctx, target.ID)
		if err != nil {
			if ctx.Err() != nil {
				return navigator.Outcome{State: navigator.StateAborted, Reason: navigator.ReasonCancelled, Err: ctx.Err()}
			}
			r.Logger.Warn("book details unavailable", "err", err)
			continue
		}
		r.parse(parser, ev, doc, 0)
	}

	pages := 0
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		if ctx.Err() != nil {
			return navigator.Outcome{State: navigator.StateAborted, Pages: pages, Reason: navigator.ReasonCancelled, Err: ctx.Err()}
		}
		ev, err := api.Page(ctx, target.ID, page)
		switch {
		case errors.Is(err, readerapi.ErrEndOfBook):
			return navigator.Outcome{State: navigator.StateDone, Pages: pages, Reason: navigator.ReasonEndOfBook}
		case ctx.Err() != nil:
			return navigator.Outcome{State: navigator.StateAborted, Pages: pages, Reason: navigator.ReasonCancelled, Err: ctx.Err()}
		case err != nil:
			return navigator.Outcome{State: navigator.StateAborted, Pages: pages, Reason: ReasonRequestFailed, Err: err}
		}
		r.parse(parser, ev, doc, page)
		pages++
		advance(page, maxPages)
	}
	return navigator.Outcome{State: navigator.StateDone, Pages: pages, Reason: navigator.ReasonMaxPages}
}

func (r *Runner) parse(parser *extractor.NetworkProbe, ev browser.NetworkEvent, doc *book.Document, page int) {
	cands, err := parser.ParseEvent(ev)
	if err != nil {
		r.Logger.Warn("unparseable response", "url", ev.URL, "err", &extractor.ProbeError{Probe: parser.Name(), Err: err})
	}
	if len(cands) == 0 {
		return
	}
	r.merge(extractor.Result{Candidates: extractor.CollapseUnkeyed(cands), Used: []string{parser.Name()}}, doc, page)
}

// ProbeOptions applies configured selectors over the defaults.
func ProbeOptions(c config.ProbesConfig) *extractor.Options {
	opts := extractor.DefaultOptions()
	if len(c.ContentSelectors) > 0 {
		opts.ContentSelectors = c.ContentSelectors
	}
	if len(c.TitleSelectors) > 0 {
		opts.TitleSelectors = c.TitleSelectors
	}
	if len(c.AuthorSelectors) > 0 {
		opts.AuthorSelectors = c.AuthorSelectors
	}
	if len(c.ImageSelectors) > 0 {
		opts.ImageSelectors = c.ImageSelectors
	}
	if c.MinContentLength > 0 {
		opts.MinContentLength = c.MinContentLength
	}
	if c.MinScanTextLength > 0 {
		opts.MinScanTextLength = c.MinScanTextLength
	}
	return opts
}

// DetectorConfig converts the detection section into detector settings.
func DetectorConfig(d config.DetectionConfig) navigator.Config {
	c := navigator.DefaultConfig()
	c.MaxPages = d.MaxPages
	if d.PollIntervalMS > 0 {
		c.PollInterval = time.Duration(d.PollIntervalMS) * time.Millisecond
	}
	if d.SettleDelayMS >= 0 {
		c.SettleDelay = time.Duration(d.SettleDelayMS) * time.Millisecond
	}
	if d.TurnTimeoutMS > 0 {
		c.TurnTimeout = time.Duration(d.TurnTimeoutMS) * time.Millisecond
	}
	c.MaxStalls = d.MaxStalls
	if d.LookupRetries > 0 {
		c.LookupRetries = d.LookupRetries
	}
	if len(d.RelevanceMarkers) > 0 {
		c.RelevanceMarkers = d.RelevanceMarkers
	}
	return c
}
