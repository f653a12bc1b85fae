package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/config"
	"github.com/marcosevegrand/kindle-extract/internal/evidence"
	"github.com/marcosevegrand/kindle-extract/internal/extractor"
	"github.com/marcosevegrand/kindle-extract/internal/session"
)

// CookieStore returns the cookie file for account: the configured file
// when set, otherwise one file per account in the cookie directory.
func CookieStore(cfg *config.Config, account string) *session.CookieStore {
	if cfg.Auth.CookieFile != "" {
		return &session.CookieStore{Path: cfg.Auth.CookieFile, Domain: session.DefaultCookieDomain}
	}
	return session.StoreForAccount(cfg.Auth.CookieDir, account)
}

// NewSession wires cookie replay and, when a browser is available,
// interactive sign-in. Without a browser cookies are verified over HTTP.
func NewSession(cfg *config.Config, b browser.Browser, store *session.CookieStore, logger *slog.Logger) *session.Session {
	opts := session.Options{Store: store, UserAgent: cfg.Browser.UserAgent, Logger: logger}

	var verifier session.Verifier
	if b != nil {
		verifier = &session.BrowserVerifier{Browser: b, VerifyURL: cfg.Auth.VerifyURL}
		interactive := session.NewInteractive(b, logger)
		if cfg.Auth.SignInURL != "" {
			interactive.SignInURL = cfg.Auth.SignInURL
		}
		if cfg.Auth.WaitSeconds > 0 {
			interactive.Timeout = time.Duration(cfg.Auth.WaitSeconds) * time.Second
		}
		opts.Interactive = interactive
		opts.UserAgent = b.UserAgent()
	} else {
		verifier = &session.HTTPVerifier{
			UserAgent: cfg.Browser.UserAgent,
			VerifyURL: cfg.Auth.VerifyURL,
			Timeout:   time.Duration(cfg.HTTP.Timeout) * time.Second,
		}
	}
	opts.Replay = &session.Replay{Store: store, Verifier: verifier, Logger: logger}
	return session.New(opts)
}

// BrowserOptions converts the browser section into Chrome options.
func BrowserOptions(cfg *config.Config, logger *slog.Logger) browser.Options {
	return browser.Options{
		Headless:     cfg.Browser.Headless,
		Width:        cfg.Browser.Width,
		Height:       cfg.Browser.Height,
		UserAgent:    cfg.Browser.UserAgent,
		ExecPath:     cfg.Browser.ExecPath,
		UserDataDir:  cfg.Browser.UserDataDir,
		CaptureMatch: extractor.CaptureMarkers(cfg.Probes.CaptureMarkers),
		Logger:       logger,
	}
}

// Request is what the control surface asks for.
type Request struct {
	Target        string           `json:"target"`
	Email         string           `json:"email,omitempty"`
	Password      string           `json:"password,omitempty"`
	Cookies       []browser.Cookie `json:"cookies,omitempty"`
	MaxPages      int              `json:"maxPages,omitempty"`
	SettleDelayMS int              `json:"settleDelayMs,omitempty"`
	Mode          string           `json:"mode,omitempty"`
	Light         bool             `json:"light,omitempty"`
}

// Params converts the request into run parameters.
func (q Request) Params() Params {
	return Params{
		Target:      q.Target,
		Credentials: session.Credentials{Email: q.Email, Password: q.Password, RememberMe: true},
		MaxPages:    q.MaxPages,
		SettleDelay: time.Duration(q.SettleDelayMS) * time.Millisecond,
		Mode:        q.Mode,
		Light:       q.Light,
	}
}

// Factory builds the Runner for one request. cleanup releases whatever
// the runner holds and is called once the run ends.
type Factory func(ctx context.Context, req Request, logger *slog.Logger) (r *Runner, cleanup func(), err error)

// NewFactory returns a Factory that starts a Chrome per run, or none in
// light mode. Cookies in the request replace the account's saved ones.
func NewFactory(cfg *config.Config) Factory {
	return func(ctx context.Context, req Request, logger *slog.Logger) (*Runner, func(), error) {
		store := CookieStore(cfg, req.Email)
		if len(req.Cookies) > 0 {
			if err := store.Save(req.Cookies); err != nil {
				return nil, nil, fmt.Errorf("failed to save supplied cookies: %w", err)
			}
			logger.Info("using supplied cookies", "count", len(req.Cookies), "path", store.Path)
		}

		var b browser.Browser
		cleanup := func() {}
		if !req.Light {
			chrome, err := browser.NewChrome(ctx, BrowserOptions(cfg, logger))
			if err != nil {
				return nil, nil, err
			}
			b = chrome
			cleanup = func() { chrome.Close() }
		}

		r := New(cfg, b, NewSession(cfg, b, store, logger), logger)
		if cfg.Debug.LogsDir != "" {
			r.Evidence = evidence.New(filepath.Clean(cfg.Debug.LogsDir))
		}
		return r, cleanup, nil
	}
}
