package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// DefaultVerifyURL is requested to prove a replayed session works.
const DefaultVerifyURL = "https://read.amazon.com"

// LibraryMarkers are present only for signed-in readers.
var LibraryMarkers = []string{"#library", ".library", "#kindle-library", "#cover"}

// LibraryURLMarkers identify library pages by URL.
var LibraryURLMarkers = []string{"read.amazon.com/your_content", "read.amazon.com/kindle-library"}

// Verifier checks that cookies open the protected surface.
type Verifier interface {
	Verify(ctx context.Context, cookies []browser.Cookie) error
}

// Replay is the fast path: load saved cookies and verify them.
type Replay struct {
	Store    *CookieStore
	Verifier Verifier
	Logger   *slog.Logger
}

func (s *Replay) Name() string { return "cookie_replay" }

// Authenticate ignores creds; saved cookies are the only input.
func (s *Replay) Authenticate(ctx context.Context, _ Credentials) ([]browser.Cookie, error) {
	cookies, err := s.Store.Load()
	if err != nil {
		return nil, err
	}
	if err := s.Verifier.Verify(ctx, cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func libraryURL(u string) bool {
	for _, m := range LibraryURLMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

// BrowserVerifier injects cookies into the browser and opens the library.
type BrowserVerifier struct {
	Browser   browser.Browser
	VerifyURL string
}

func (v *BrowserVerifier) Verify(ctx context.Context, cookies []browser.Cookie) error {
	if err := v.Browser.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("%w: inject cookies: %v", ErrReplayRejected, err)
	}
	target := v.VerifyURL
	if target == "" {
		target = DefaultVerifyURL
	}
	if err := v.Browser.Navigate(ctx, target); err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrReplayRejected, target, err)
	}

	u, err := v.Browser.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReplayRejected, err)
	}
	if IsSignInRedirect(u) {
		return fmt.Errorf("%w: redirected to sign-in", ErrReplayRejected)
	}
	if libraryURL(u) {
		return nil
	}
	for _, m := range LibraryMarkers {
		if ok, _ := v.Browser.Exists(ctx, m); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: no library marker on %s", ErrReplayRejected, u)
}

// NewHTTPClient builds the resty client used for every direct request to
// the service: cookie jar, browser user agent, and the anti-bot transport.
func NewHTTPClient(userAgent string, cookies []browser.Cookie, timeout time.Duration) (*resty.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = browser.DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	if len(cookies) > 0 {
		for _, host := range []string{"https://www.amazon.com/", "https://read.amazon.com/"} {
			u, _ := url.Parse(host)
			jar.SetCookies(u, HTTPCookies(cookies))
		}
	}
	return client, nil
}

// HTTPVerifier checks cookies with a plain HTTP request, no browser needed.
type HTTPVerifier struct {
	UserAgent string
	VerifyURL string
	Timeout   time.Duration
	// Client overrides the client built from the cookies.
	Client *resty.Client
}

func (v *HTTPVerifier) Verify(ctx context.Context, cookies []browser.Cookie) error {
	client := v.Client
	if client == nil {
		c, err := NewHTTPClient(v.UserAgent, cookies, v.Timeout)
		if err != nil {
			return err
		}
		client = c
	} else {
		client.SetCookies(HTTPCookies(cookies))
	}

	target := v.VerifyURL
	if target == "" {
		target = DefaultVerifyURL
	}
	res, err := client.R().SetContext(ctx).Get(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReplayRejected, err)
	}

	final := target
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL.String()
	}
	if IsSignInRedirect(final) {
		return fmt.Errorf("%w: redirected to sign-in", ErrReplayRejected)
	}
	if libraryURL(final) {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fmt.Errorf("%w: parse response: %v", ErrReplayRejected, err)
	}
	if doc.Find(`form[name="signIn"]`).Length() > 0 {
		return fmt.Errorf("%w: sign-in form served", ErrReplayRejected)
	}
	for _, m := range LibraryMarkers {
		if doc.Find(m).Length() > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: no library marker on %s", ErrReplayRejected, final)
}
