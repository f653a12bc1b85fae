package navigator

import (
	"context"
	"errors"
	"fmt"
)

// ErrStopped is returned by a Pacer that will not request more pages.
var ErrStopped = errors.New("navigator: pacing stopped")

// Pacer decides when and how the next page is requested. attempt is 0 for
// a fresh turn and grows while the view has not changed.
type Pacer interface {
	Name() string
	Attempts() int
	Turn(ctx context.Context, attempt int) error
}

// Pacer modes.
const (
	ModeWatch = "watch"
	ModeAuto  = "auto"
	ModeStep  = "step"
)

// Watch never turns; someone else flips the pages.
type Watch struct{}

func (Watch) Name() string                          { return ModeWatch }
func (Watch) Attempts() int                         { return 1 }
func (Watch) Turn(ctx context.Context, _ int) error { return ctx.Err() }

// Auto turns as soon as a page has been captured.
type Auto struct {
	Turner *Turner
}

func (a *Auto) Name() string  { return ModeAuto }
func (a *Auto) Attempts() int { return a.Turner.Methods() }

func (a *Auto) Turn(ctx context.Context, attempt int) error {
	_, err := a.Turner.Turn(ctx, attempt)
	return err
}

// Step turns once per value received on Steps. Retries after an unchanged
// view do not wait for another step. A closed channel stops the run.
type Step struct {
	Turner *Turner
	Steps  <-chan struct{}
}

func (s *Step) Name() string  { return ModeStep }
func (s *Step) Attempts() int { return s.Turner.Methods() }

func (s *Step) Turn(ctx context.Context, attempt int) error {
	if attempt == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-s.Steps:
			if !ok {
				return ErrStopped
			}
		}
	}
	_, err := s.Turner.Turn(ctx, attempt)
	return err
}

// NewPacer returns the pacer for mode. steps is only used by ModeStep.
func NewPacer(mode string, turner *Turner, steps <-chan struct{}) (Pacer, error) {
	switch mode {
	case ModeWatch:
		return Watch{}, nil
	case ModeAuto, "":
		return &Auto{Turner: turner}, nil
	case ModeStep:
		if steps == nil {
			return nil, errors.New("step mode needs a step channel")
		}
		return &Step{Turner: turner, Steps: steps}, nil
	}
	return nil, fmt.Errorf("unknown pacing mode %q", mode)
}
