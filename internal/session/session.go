package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// AuthState is the lifecycle of a Session.
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticating
	Authenticated
	Failed
)

func (s AuthState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Strategy is one way of obtaining an authenticated cookie set.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) ([]browser.Cookie, error)
}

// Session owns the authentication state of one run.
type Session struct {
	replay      Strategy
	interactive Strategy
	store       *CookieStore
	userAgent   string
	logger      *slog.Logger

	mu      sync.RWMutex
	state   AuthState
	reason  AuthErrorKind
	cookies []browser.Cookie
}

// Options wires a Session. Either strategy may be nil.
type Options struct {
	Replay      Strategy
	Interactive Strategy
	Store       *CookieStore
	UserAgent   string
	Logger      *slog.Logger
}

// New creates an unauthenticated Session.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		replay:      opts.Replay,
		interactive: opts.Interactive,
		store:       opts.Store,
		userAgent:   opts.UserAgent,
		logger:      opts.Logger,
	}
}

// Authenticate tries cookie replay first and falls back to the
// interactive strategy. A timeout from the interactive strategy is retried
// once; MFA and CAPTCHA challenges are returned immediately.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) (AuthState, error) {
	s.setState(Authenticating, "")

	if s.replay != nil {
		cookies, err := s.replay.Authenticate(ctx, creds)
		if err == nil {
			s.logger.Info("session restored", "strategy", s.replay.Name(), "cookies", len(cookies))
			s.succeed(cookies)
			return Authenticated, nil
		}
		if errors.Is(err, context.Canceled) {
			s.setState(Failed, Timeout)
			return Failed, err
		}
		s.logger.Info("cookie replay unavailable, falling back", "err", err)
	}

	if s.interactive == nil {
		s.setState(Failed, InvalidCredentials)
		return Failed, fmt.Errorf("%w: saved session unusable and no sign-in strategy", ErrNoStrategy)
	}

	var (
		cookies []browser.Cookie
		err     error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		cookies, err = s.interactive.Authenticate(ctx, creds)
		if err == nil {
			break
		}
		var ae *AuthError
		if attempt == 1 && errors.As(err, &ae) && ae.Retryable() && ctx.Err() == nil {
			s.logger.Warn("sign-in timed out, retrying once", "err", err)
			continue
		}
		break
	}
	if err != nil {
		kind, ok := KindOf(err)
		if !ok {
			kind = Timeout
		}
		s.setState(Failed, kind)
		return Failed, err
	}

	s.succeed(cookies)
	if s.store != nil {
		if err := s.store.Save(cookies); err != nil {
			s.logger.Warn("could not persist cookies", "path", s.store.Path, "err", err)
		} else {
			s.logger.Info("cookies saved", "path", s.store.Path)
		}
	}
	return Authenticated, nil
}

func (s *Session) succeed(cookies []browser.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Authenticated
	s.reason = ""
	s.cookies = cookies
}

func (s *Session) setState(st AuthState, reason AuthErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.reason = reason
}

// State returns the current state and, for Failed, its reason.
func (s *Session) State() (AuthState, AuthErrorKind) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.reason
}

// IsAuthenticated reports whether the session is usable.
func (s *Session) IsAuthenticated() bool {
	st, _ := s.State()
	return st == Authenticated
}

// Expire records that the service sent us back to sign-in.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticated {
		s.state = Unauthenticated
		s.logger.Warn("session expired")
	}
}

// Cookies returns the authenticated cookie set.
func (s *Session) Cookies() []browser.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]browser.Cookie(nil), s.cookies...)
}

// Data returns cookie name/value pairs and the user agent, or nil when not
// authenticated.
func (s *Session) Data() *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Authenticated {
		return nil
	}
	d := &Data{Cookies: make(map[string]string, len(s.cookies)), UserAgent: s.userAgent}
	for _, c := range s.cookies {
		d.Cookies[c.Name] = c.Value
	}
	return d
}
