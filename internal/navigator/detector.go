package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// State of the page-turn detector.
type State int32

const (
	StateIdle State = iota
	StateAwaitingChange
	StateAdvancing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingChange:
		return "awaiting_change"
	case StateAdvancing:
		return "advancing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

// Reasons reported in Outcome.
const (
	ReasonMaxPages  = "max_pages"
	ReasonEndOfBook = "end_of_book"
	ReasonStopped   = "stopped"
	ReasonCancelled = "cancelled"
	ReasonLookup    = "lookup_failed"
)

// ErrLookupBudget means element lookups kept failing past the retry
// budget.
var ErrLookupBudget = errors.New("navigator: lookup retry budget exhausted")

// Capture is invoked once per detected page with the network events seen
// since the previous page. It probes the view and commits the results.
type Capture func(ctx context.Context, page int, events []browser.NetworkEvent) error

// Config tunes the detector.
type Config struct {
	MaxPages     int
	PollInterval time.Duration
	SettleDelay  time.Duration
	// TurnTimeout bounds how long one turn attempt waits for a change.
	TurnTimeout time.Duration
	// MaxStalls consecutive turns without change end the book. Zero
	// disables the rule.
	MaxStalls        int
	LookupRetries    int
	RelevanceMarkers []string
}

// DefaultConfig mirrors the reader defaults.
func DefaultConfig() Config {
	return Config{
		MaxPages:         50,
		PollInterval:     500 * time.Millisecond,
		SettleDelay:      3 * time.Second,
		TurnTimeout:      10 * time.Second,
		MaxStalls:        3,
		LookupRetries:    5,
		RelevanceMarkers: DefaultRelevanceMarkers,
	}
}

// Outcome is the terminal result of Run.
type Outcome struct {
	State  State
	Pages  int
	Reason string
	Err    error
}

// Detector runs the page-turn state machine against a Surface.
type Detector struct {
	cfg        Config
	surface    Surface
	pacer      Pacer
	normalizer *Normalizer
	capture    Capture
	logger     *slog.Logger

	// OnAdvance is called after each captured page.
	OnAdvance func(page, total int)

	state     atomic.Int32
	page      atomic.Int32
	committed string
	seen      map[string]bool
	pending   []browser.NetworkEvent
	failures  int
}

// NewDetector wires a detector. A nil normalizer selects the defaults.
func NewDetector(cfg Config, surface Surface, pacer Pacer, normalizer *Normalizer, capture Capture, logger *slog.Logger) *Detector {
	if normalizer == nil {
		normalizer, _ = NewNormalizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RelevanceMarkers == nil {
		cfg.RelevanceMarkers = DefaultRelevanceMarkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Detector{
		cfg:        cfg,
		surface:    surface,
		pacer:      pacer,
		normalizer: normalizer,
		capture:    capture,
		logger:     logger,
		seen:       make(map[string]bool),
	}
}

// State returns the current state. Safe for concurrent use.
func (d *Detector) State() State { return State(d.state.Load()) }

// Page returns the number of pages captured so far. Safe for concurrent
// use.
func (d *Detector) Page() int { return int(d.page.Load()) }

func (d *Detector) setState(s State) {
	prev := State(d.state.Swap(int32(s)))
	if prev != s {
		d.logger.Debug("detector state", "from", prev.String(), "to", s.String(), "page", d.Page())
	}
}

func (d *Detector) finish(s State, reason string, err error) Outcome {
	d.setState(s)
	d.logger.Info("detector finished", "state", s.String(), "reason", reason, "pages", d.Page())
	return Outcome{State: s, Pages: d.Page(), Reason: reason, Err: err}
}

func (d *Detector) cancelled(ctx context.Context) Outcome {
	return d.finish(StateAborted, ReasonCancelled, ctx.Err())
}

// Run drives the state machine until Done or Aborted. The first snapshot
// is captured as page 1.
func (d *Detector) Run(ctx context.Context) Outcome {
	d.setState(StateIdle)

	hash, err := d.snapshot(ctx)
	for err != nil {
		if errors.Is(err, ErrLookupBudget) {
			return d.finish(StateAborted, ReasonLookup, err)
		}
		if sleep(ctx, d.cfg.PollInterval) != nil {
			return d.cancelled(ctx)
		}
		hash, err = d.snapshot(ctx)
	}
	d.collect(d.surface.DrainNetwork())
	if err := d.advance(ctx, hash); err != nil {
		return d.cancelled(ctx)
	}

	attempt, stalls := 0, 0
	for {
		if d.cfg.MaxPages > 0 && d.Page() >= d.cfg.MaxPages {
			return d.finish(StateDone, ReasonMaxPages, nil)
		}
		if ctx.Err() != nil {
			return d.cancelled(ctx)
		}

		if err := d.pacer.Turn(ctx, attempt); err != nil {
			switch {
			case ctx.Err() != nil:
				return d.cancelled(ctx)
			case errors.Is(err, ErrStopped):
				return d.finish(StateDone, ReasonStopped, nil)
			}
			d.logger.Warn("page turn failed", "attempt", attempt, "err", err)
			if d.lookupFailed() {
				return d.finish(StateAborted, ReasonLookup, fmt.Errorf("%w: %v", ErrLookupBudget, err))
			}
			continue
		}

		hash, changed, err := d.await(ctx)
		switch {
		case ctx.Err() != nil:
			return d.cancelled(ctx)
		case errors.Is(err, ErrLookupBudget):
			return d.finish(StateAborted, ReasonLookup, err)
		}

		if changed {
			attempt, stalls = 0, 0
			if err := d.advance(ctx, hash); err != nil {
				return d.cancelled(ctx)
			}
			continue
		}

		attempt++
		if attempt < d.pacer.Attempts() {
			continue
		}
		attempt = 0
		stalls++
		d.logger.Info("no page change", "page", d.Page(), "stalls", stalls)
		if d.cfg.MaxStalls > 0 && stalls >= d.cfg.MaxStalls {
			return d.finish(StateDone, ReasonEndOfBook, nil)
		}
	}
}

// snapshot hashes the visible text, counting failures against the lookup
// budget.
func (d *Detector) snapshot(ctx context.Context) (string, error) {
	text, err := d.surface.VisibleText(ctx)
	if err != nil {
		d.logger.Debug("visible text unavailable", "err", err)
		if d.lookupFailed() {
			return "", fmt.Errorf("%w: %v", ErrLookupBudget, err)
		}
		return "", err
	}
	d.failures = 0
	return d.normalizer.Hash(text), nil
}

func (d *Detector) lookupFailed() bool {
	d.failures++
	return d.failures > d.cfg.LookupRetries
}

// collect buffers events for the next capture and reports whether any
// unseen URL looks like page traffic.
func (d *Detector) collect(events []browser.NetworkEvent) bool {
	relevant := false
	for _, ev := range events {
		d.pending = append(d.pending, ev)
		if d.seen[ev.URL] {
			continue
		}
		d.seen[ev.URL] = true
		if IsRelevantURL(ev.URL, d.cfg.RelevanceMarkers) {
			relevant = true
		}
	}
	return relevant
}

// await polls until the view changes or the turn timeout passes.
func (d *Detector) await(ctx context.Context) (string, bool, error) {
	d.setState(StateAwaitingChange)
	deadline := time.Now().Add(d.cfg.TurnTimeout)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-ticker.C:
		}

		relevant := d.collect(d.surface.DrainNetwork())
		hash, err := d.snapshot(ctx)
		if err != nil {
			if errors.Is(err, ErrLookupBudget) || ctx.Err() != nil {
				return "", false, err
			}
		} else if hash != d.committed || relevant {
			return hash, true, nil
		}

		if !time.Now().Before(deadline) {
			return d.committed, false, nil
		}
	}
}

// advance settles, captures the page and commits its hash.
func (d *Detector) advance(ctx context.Context, hash string) error {
	d.setState(StateAdvancing)
	if err := sleep(ctx, d.cfg.SettleDelay); err != nil {
		return err
	}

	d.collect(d.surface.DrainNetwork())
	if settled, err := d.snapshot(ctx); err == nil {
		hash = settled
	}

	page := int(d.page.Add(1))
	events := d.pending
	d.pending = nil
	if err := d.capture(ctx, page, events); err != nil {
		d.logger.Warn("page capture failed", "page", page, "err", err)
	}
	d.committed = hash
	if d.OnAdvance != nil {
		d.OnAdvance(page, d.cfg.MaxPages)
	}
	d.setState(StateAwaitingChange)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
