package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// DefaultNextSelectors locate the reader's next-page controls.
var DefaultNextSelectors = []string{
	"#kindleReader_pageTurnAreaRight",
	".pageTurnRight",
	`button[aria-label*="Next"]`,
}

// Turn methods, in escalation order.
const (
	MethodArrowKey   = "arrow_key"
	MethodNextButton = "next_button"
	MethodEdgeClick  = "edge_click"
)

var turnMethods = []string{MethodArrowKey, MethodNextButton, MethodEdgeClick}

// Turner asks the reader for the next page.
type Turner struct {
	Browser       browser.Browser
	NextSelectors []string
	// EdgeOffset is the distance from the right edge of the last-resort
	// click.
	EdgeOffset float64
	Logger     *slog.Logger
}

// NewTurner returns a Turner with the default selectors.
func NewTurner(b browser.Browser, selectors []string, logger *slog.Logger) *Turner {
	if len(selectors) == 0 {
		selectors = DefaultNextSelectors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Turner{Browser: b, NextSelectors: selectors, EdgeOffset: 100, Logger: logger}
}

// Methods returns the number of turn methods.
func (t *Turner) Methods() int { return len(turnMethods) }

// Turn tries the turn methods starting at index from and returns the name
// of the first one that could be performed.
func (t *Turner) Turn(ctx context.Context, from int) (string, error) {
	if from < 0 || from >= len(turnMethods) {
		from = 0
	}
	var errs []error
	for _, m := range turnMethods[from:] {
		err := t.perform(ctx, m)
		if err == nil {
			t.Logger.Debug("page turn requested", "method", m)
			return m, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", m, err))
	}
	return "", errors.Join(errs...)
}

func (t *Turner) perform(ctx context.Context, method string) error {
	switch method {
	case MethodArrowKey:
		return t.Browser.PressKey(ctx, browser.KeyArrowRight)
	case MethodNextButton:
		for _, sel := range t.NextSelectors {
			ok, err := t.Browser.Exists(ctx, sel)
			if err != nil || !ok {
				continue
			}
			return t.Browser.Click(ctx, sel)
		}
		return errors.New("no next-page control found")
	case MethodEdgeClick:
		w, h, err := t.Browser.Viewport(ctx)
		if err != nil {
			return err
		}
		if w <= 0 || h <= 0 {
			return fmt.Errorf("unusable viewport %dx%d", w, h)
		}
		return t.Browser.ClickAt(ctx, float64(w)-t.EdgeOffset, float64(h)/2)
	}
	return fmt.Errorf("unknown turn method %q", method)
}
