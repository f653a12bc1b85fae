package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// DefaultSignInURL is the account sign-in surface.
const DefaultSignInURL = "https://www.amazon.com/ap/signin"

// Credentials identify an account.
type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
}

// SignInSelectors locate the sign-in form and its failure markers.
type SignInSelectors struct {
	Email      string
	Continue   string
	Password   string
	RememberMe string
	Submit     string
	Captcha    string
	AuthError  string
}

// DefaultSignInSelectors returns the selectors of the standard form.
func DefaultSignInSelectors() SignInSelectors {
	return SignInSelectors{
		Email:      "#ap_email",
		Continue:   "#continue",
		Password:   "#ap_password",
		RememberMe: "input[name=rememberMe]",
		Submit:     "#signInSubmit",
		Captcha:    "#auth-captcha-image",
		AuthError:  "#auth-error-message-box",
	}
}

// Interactive signs in by filling the form in a live browser.
type Interactive struct {
	Browser      browser.Browser
	SignInURL    string
	Selectors    SignInSelectors
	Timeout      time.Duration
	FieldTimeout time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// NewInteractive returns an Interactive strategy with default settings.
func NewInteractive(b browser.Browser, logger *slog.Logger) *Interactive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interactive{
		Browser:      b,
		SignInURL:    DefaultSignInURL,
		Selectors:    DefaultSignInSelectors(),
		Timeout:      30 * time.Second,
		FieldTimeout: 10 * time.Second,
		PollInterval: 500 * time.Millisecond,
		Logger:       logger,
	}
}

func (s *Interactive) Name() string { return "interactive" }

// Authenticate fills the email and password steps, then waits until the
// browser leaves the sign-in pages.
func (s *Interactive) Authenticate(ctx context.Context, creds Credentials) ([]browser.Cookie, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, &AuthError{Kind: InvalidCredentials, Err: errors.New("email and password are required")}
	}

	sel := s.Selectors
	s.Logger.Info("signing in", "url", s.SignInURL)
	if err := s.Browser.Navigate(ctx, s.SignInURL); err != nil {
		return nil, &AuthError{Kind: Timeout, Err: fmt.Errorf("open sign-in page: %w", err)}
	}

	if err := s.fill(ctx, sel.Email, creds.Email); err != nil {
		return nil, err
	}
	if ok, _ := s.Browser.Exists(ctx, sel.Continue); ok {
		if err := s.Browser.Click(ctx, sel.Continue); err != nil {
			return nil, &AuthError{Kind: Timeout, Err: fmt.Errorf("submit email: %w", err)}
		}
	}

	if err := s.fill(ctx, sel.Password, creds.Password); err != nil {
		return nil, err
	}
	if creds.RememberMe {
		if ok, _ := s.Browser.Exists(ctx, sel.RememberMe); ok {
			if err := s.Browser.Click(ctx, sel.RememberMe); err != nil {
				s.Logger.Debug("could not tick remember me", "selector", sel.RememberMe, "err", err)
			}
		}
	}
	if err := s.Browser.Click(ctx, sel.Submit); err != nil {
		return nil, &AuthError{Kind: Timeout, Err: fmt.Errorf("submit password: %w", err)}
	}

	return s.await(ctx)
}

func (s *Interactive) fill(ctx context.Context, selector, value string) error {
	if err := s.Browser.WaitVisible(ctx, selector, s.FieldTimeout); err != nil {
		if kerr := s.blocked(ctx); kerr != nil {
			return kerr
		}
		return &AuthError{Kind: Timeout, Err: fmt.Errorf("field %s: %w", selector, err)}
	}
	if err := s.Browser.SendKeys(ctx, selector, value); err != nil {
		return &AuthError{Kind: Timeout, Err: fmt.Errorf("type into %s: %w", selector, err)}
	}
	return nil
}

// blocked reports a challenge that needs a human.
func (s *Interactive) blocked(ctx context.Context) error {
	if u, err := s.Browser.CurrentURL(ctx); err == nil && strings.Contains(u, "ap/mfa") {
		return &AuthError{Kind: MFARequired}
	}
	if ok, _ := s.Browser.Exists(ctx, s.Selectors.Captcha); ok {
		return &AuthError{Kind: CaptchaRequired}
	}
	return nil
}

func (s *Interactive) await(ctx context.Context) ([]browser.Cookie, error) {
	deadline := time.Now().Add(s.Timeout)
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.blocked(ctx); err != nil {
			return nil, err
		}
		if ok, _ := s.Browser.Exists(ctx, s.Selectors.AuthError); ok {
			return nil, &AuthError{Kind: InvalidCredentials}
		}
		if u, err := s.Browser.CurrentURL(ctx); err == nil && SignedIn(u) {
			s.Logger.Info("signed in", "url", u)
			cookies, err := s.Browser.Cookies(ctx)
			if err != nil {
				return nil, fmt.Errorf("read cookies: %w", err)
			}
			return cookies, nil
		}
		if time.Now().After(deadline) {
			return nil, &AuthError{Kind: Timeout, Err: fmt.Errorf("still on sign-in after %s", s.Timeout)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SignedIn reports whether u is an authenticated page of the service.
func SignedIn(u string) bool {
	return strings.Contains(u, "amazon.") &&
		!strings.Contains(u, "ap/signin") &&
		!strings.Contains(u, "ap/mfa") &&
		!strings.Contains(u, "ap/cvf")
}

// IsSignInRedirect reports whether u is a sign-in page.
func IsSignInRedirect(u string) bool {
	return strings.Contains(u, "ap/signin")
}
