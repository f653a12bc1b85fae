// Package browser defines the browser capability the extractor drives and
// a Chrome implementation of it.
package browser

import (
	"context"
	"strings"
	"time"
)

// Browser is the automation surface a run needs. Implementations are owned
// by one run and are not shared.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// HTML returns the outer HTML of the current document.
	HTML(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	SendKeys(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, x, y float64) error
	PressKey(ctx context.Context, key Key) error
	// Evaluate runs script in the page and decodes its result into out.
	Evaluate(ctx context.Context, script string, out any) error
	Viewport(ctx context.Context) (width, height int, err error)
	Screenshot(ctx context.Context) ([]byte, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	// DrainNetwork returns responses captured since the previous call.
	DrainNetwork() []NetworkEvent
	UserAgent() string
	Close() error
}

// Key is a named keyboard key.
type Key string

const (
	KeyArrowRight Key = "ArrowRight"
	KeyArrowLeft  Key = "ArrowLeft"
	KeyEnter      Key = "Enter"
)

// Cookie mirrors the persisted cookie format.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	Expiry   *int64 `json:"expiry,omitempty"`
}

// NetworkEvent is a response captured from the page's own traffic.
type NetworkEvent struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Status      int    `json:"status,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// IsJSON reports whether the event looks like a JSON payload.
func (e NetworkEvent) IsJSON() bool {
	if strings.Contains(strings.ToLower(e.ContentType), "json") {
		return true
	}
	b := strings.TrimSpace(string(e.Body))
	return strings.HasPrefix(b, "{") || strings.HasPrefix(b, "[")
}
