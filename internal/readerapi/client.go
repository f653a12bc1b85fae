// Package readerapi requests book data from the reading service directly,
// without a browser, using a replayed session.
package readerapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// DefaultBaseURL is the reading service host.
const DefaultBaseURL = "https://read.amazon.com"

// Endpoint paths. None of them is documented; content is tried on each
// path until one answers.
const (
	MetadataPath = "/service/metadata"
	TOCPath      = "/service/toc"
)

// ContentPaths are tried in order for page content.
var ContentPaths = []string{"/service/reader/content", "/api/book/content", "/kp/notebook/content"}

// ErrEndOfBook is returned when the service reports no further pages.
var ErrEndOfBook = errors.New("readerapi: end of book")

var endOfBookMarker = []byte("end of book")

// Client fetches service responses as browser.NetworkEvents so they go
// through the same parsing as intercepted traffic.
type Client struct {
	http    *resty.Client
	baseURL string
	delay   time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	lastRequest time.Time
	contentPath string
}

// New wraps an authenticated resty client. delay spaces out requests.
func New(client *resty.Client, baseURL string, delay time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	client.SetBaseURL(baseURL)
	client.SetHeader("Accept", "application/json, text/plain, */*")
	client.SetHeader("Accept-Language", "en-US,en;q=0.5")
	client.SetHeader("X-Requested-With", "XMLHttpRequest")
	return &Client{http: client, baseURL: baseURL, delay: delay, logger: logger}
}

// Metadata fetches the book metadata response.
func (c *Client) Metadata(ctx context.Context, asin string) (browser.NetworkEvent, error) {
	ev, err := c.get(ctx, MetadataPath, map[string]string{"asin": asin})
	if err != nil {
		return ev, err
	}
	if ev.Status != http.StatusOK {
		return ev, fmt.Errorf("metadata: unexpected status code: %d", ev.Status)
	}
	return ev, nil
}

// TOC fetches the table of contents response.
func (c *Client) TOC(ctx context.Context, asin string) (browser.NetworkEvent, error) {
	ev, err := c.get(ctx, TOCPath, map[string]string{"asin": asin})
	if err != nil {
		return ev, err
	}
	if ev.Status != http.StatusOK {
		return ev, fmt.Errorf("toc: unexpected status code: %d", ev.Status)
	}
	return ev, nil
}

// Page fetches the content of page. Once a content path has answered it
// is used for every later page.
func (c *Client) Page(ctx context.Context, asin string, page int) (browser.NetworkEvent, error) {
	params := map[string]string{"asin": asin, "page": strconv.Itoa(page)}

	c.mu.Lock()
	known := c.contentPath
	c.mu.Unlock()

	paths := ContentPaths
	if known != "" {
		paths = []string{known}
	}

	var lastErr error
	notFound := 0
	for _, path := range paths {
		ev, err := c.get(ctx, path, params)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case ev.Status == http.StatusNotFound:
			notFound++
			continue
		case ev.Status != http.StatusOK:
			lastErr = fmt.Errorf("%s: unexpected status code: %d", path, ev.Status)
			continue
		case bytes.Contains(bytes.ToLower(ev.Body), endOfBookMarker):
			return ev, ErrEndOfBook
		}

		if known == "" {
			c.mu.Lock()
			c.contentPath = path
			c.mu.Unlock()
			c.logger.Info("content endpoint found", "path", path)
		}
		return ev, nil
	}

	if notFound == len(paths) {
		return browser.NetworkEvent{}, ErrEndOfBook
	}
	return browser.NetworkEvent{}, lastErr
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (browser.NetworkEvent, error) {
	if err := c.waitForRateLimit(ctx); err != nil {
		return browser.NetworkEvent{}, err
	}

	res, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get(path)
	if err != nil {
		return browser.NetworkEvent{}, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug("service response", "url", res.Request.URL, "status", res.StatusCode(), "bytes", len(res.Body()))

	return browser.NetworkEvent{
		URL:         res.Request.URL,
		ContentType: res.Header().Get("Content-Type"),
		Status:      res.StatusCode(),
		Body:        res.Body(),
	}, nil
}

func (c *Client) waitForRateLimit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.delay {
		timer := time.NewTimer(c.delay - elapsed)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.lastRequest = time.Now()
	return nil
}
