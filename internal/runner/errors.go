package runner

import (
	"errors"
	"fmt"
)

// ErrExtractionEmpty is returned when a run ends without a single page.
var ErrExtractionEmpty = errors.New("runner: extraction produced no pages")

// NavigationKind classifies a NavigationError.
type NavigationKind string

const (
	IdentifierUnresolvable NavigationKind = "identifier_unresolvable"
	TargetUnreachable      NavigationKind = "target_unreachable"
	UnexpectedRedirect     NavigationKind = "unexpected_redirect"
)

// NavigationError means the reader could not be opened as asked. The run
// falls back to extracting whatever is visible.
type NavigationError struct {
	Kind NavigationKind
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	msg := fmt.Sprintf("navigation %s", e.Kind)
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NavigationError) Unwrap() error { return e.Err }

// PersistenceError means output could not be written. It ends the run.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to write output to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
