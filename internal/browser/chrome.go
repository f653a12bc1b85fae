package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// DefaultUserAgent is sent by both the browser and the HTTP client so the
// service sees one consistent client.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Options configures a Chrome instance.
type Options struct {
	Headless     bool
	Width        int
	Height       int
	UserAgent    string
	ExecPath     string
	UserDataDir  string
	// CaptureMatch limits response capture to URLs containing one of
	// these markers. Empty captures every XHR and fetch response.
	CaptureMatch []string
	Logger       *slog.Logger
}

// Chrome drives a Chrome process over the DevTools protocol.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	userAgent   string
	logger      *slog.Logger
	match       []string

	mu      sync.Mutex
	pending map[network.RequestID]NetworkEvent
	events  []NetworkEvent
}

// NewChrome starts a browser. The returned Chrome must be closed.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(opts.Width, opts.Height),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	logger := opts.Logger
	bctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	c := &Chrome{
		ctx:         bctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		userAgent:   opts.UserAgent,
		logger:      logger,
		match:       opts.CaptureMatch,
		pending:     make(map[network.RequestID]NetworkEvent),
	}

	chromedp.ListenTarget(bctx, c.onEvent)

	if err := chromedp.Run(bctx, network.Enable()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return c, nil
}

func (c *Chrome) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeXHR && e.Type != network.ResourceTypeFetch {
			return
		}
		if !c.wanted(e.Response.URL) {
			return
		}
		c.mu.Lock()
		c.pending[e.RequestID] = NetworkEvent{
			URL:         e.Response.URL,
			ContentType: e.Response.MimeType,
			Status:      int(e.Response.Status),
		}
		c.mu.Unlock()
	case *network.EventLoadingFinished:
		c.mu.Lock()
		ne, ok := c.pending[e.RequestID]
		delete(c.pending, e.RequestID)
		c.mu.Unlock()
		if !ok {
			return
		}
		go c.fetchBody(e.RequestID, ne)
	case *network.EventLoadingFailed:
		c.mu.Lock()
		delete(c.pending, e.RequestID)
		c.mu.Unlock()
	}
}

func (c *Chrome) wanted(url string) bool {
	return len(c.match) == 0 || matchesAny(url, c.match)
}

// matchesAny reports whether url contains one of markers, ignoring case.
func matchesAny(url string, markers []string) bool {
	lower := strings.ToLower(url)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func (c *Chrome) fetchBody(id network.RequestID, ne NetworkEvent) {
	err := chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		body, err := network.GetResponseBody(id).Do(ctx)
		if err != nil {
			return err
		}
		ne.Body = body
		return nil
	}))
	if err != nil {
		c.logger.Debug("response body unavailable", "url", ne.URL, "err", err)
	}
	c.mu.Lock()
	c.events = append(c.events, ne)
	c.mu.Unlock()
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := mergeDeadline(c.ctx, ctx)
	defer cancel()
	return chromedp.Run(rctx, actions...)
}

// mergeDeadline keeps the browser context as the executor while honoring
// the caller's cancellation.
func mergeDeadline(browserCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	var (
		rctx   context.Context
		cancel context.CancelFunc
	)
	if dl, ok := callerCtx.Deadline(); ok {
		rctx, cancel = context.WithDeadline(browserCtx, dl)
	} else {
		rctx, cancel = context.WithCancel(browserCtx)
	}
	stop := context.AfterFunc(callerCtx, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := c.run(ctx, chromedp.Location(&u))
	return u, err
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var t string
	err := c.run(ctx, chromedp.Title(&t))
	return t, err
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var s string
	err := c.run(ctx, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

func (c *Chrome) Exists(ctx context.Context, selector string) (bool, error) {
	sel, _ := json.Marshal(selector)
	var ok bool
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%s) !== null", sel), &ok))
	return ok, err
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.run(wctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (c *Chrome) SendKeys(ctx context.Context, selector, text string) error {
	return c.run(ctx, chromedp.Clear(selector, chromedp.ByQuery), chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (c *Chrome) ClickAt(ctx context.Context, x, y float64) error {
	return c.run(ctx, chromedp.MouseClickXY(x, y))
}

func (c *Chrome) PressKey(ctx context.Context, key Key) error {
	var k string
	switch key {
	case KeyArrowRight:
		k = kb.ArrowRight
	case KeyArrowLeft:
		k = kb.ArrowLeft
	case KeyEnter:
		k = kb.Enter
	default:
		k = string(key)
	}
	return c.run(ctx, chromedp.KeyEvent(k))
}

func (c *Chrome) Evaluate(ctx context.Context, script string, out any) error {
	return c.run(ctx, chromedp.Evaluate(script, out))
}

func (c *Chrome) Viewport(ctx context.Context) (int, int, error) {
	var size []int
	if err := c.run(ctx, chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &size)); err != nil {
		return 0, 0, err
	}
	if len(size) != 2 {
		return 0, 0, fmt.Errorf("unexpected viewport result %v", size)
	}
	return size[0], size[1], nil
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (c *Chrome) Cookies(ctx context.Context) ([]Cookie, error) {
	var out []Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			cookie := Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			}
			if !ck.Session && ck.Expires > 0 {
				exp := int64(ck.Expires)
				cookie.Expiry = &exp
			}
			out = append(out, cookie)
		}
		return nil
	}))
	return out, err
}

func (c *Chrome) SetCookies(ctx context.Context, cookies []Cookie) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			path := ck.Path
			if path == "" {
				path = "/"
			}
			p := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(path).
				WithSecure(ck.Secure).
				WithHTTPOnly(ck.HTTPOnly)
			if ck.Expiry != nil {
				exp := cdp.TimeSinceEpoch(time.Unix(*ck.Expiry, 0))
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

func (c *Chrome) DrainNetwork() []NetworkEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *Chrome) UserAgent() string { return c.userAgent }

func (c *Chrome) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}
