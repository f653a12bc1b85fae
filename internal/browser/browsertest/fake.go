// Package browsertest provides a scripted in-memory browser.Browser.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// View is one state of the reading surface.
type View struct {
	Title     string
	HTML      string
	Selectors []string
	// Eval maps a script fragment to the value returned for any script
	// containing it.
	Eval    map[string]any
	Network []browser.NetworkEvent
}

// Fake is a browser.Browser driven entirely by test data.
type Fake struct {
	mu sync.Mutex

	views   []View
	index   int
	url     string
	present map[string]bool
	eval    map[string]any
	cookies []browser.Cookie
	pending []browser.NetworkEvent

	typed   map[string]string
	clicks  []string
	keys    []browser.Key
	points  [][2]float64
	visited []string
	closed  bool

	// AdvanceOnTurn moves to the next view on an arrow key, a click on a
	// selector the current view lists, or a coordinate click.
	AdvanceOnTurn bool
	Width, Height int
	Shot          []byte
	UA            string

	NavigateFunc func(f *Fake, url string) error
	ClickFunc    func(f *Fake, selector string) error
	KeyFunc      func(f *Fake, key browser.Key) error
}

// New returns a Fake showing views in order.
func New(views ...View) *Fake {
	f := &Fake{
		views:         views,
		present:       make(map[string]bool),
		eval:          make(map[string]any),
		typed:         make(map[string]string),
		AdvanceOnTurn: true,
		Width:         1280,
		Height:        800,
		UA:            browser.DefaultUserAgent,
	}
	if len(views) > 0 {
		f.pending = append(f.pending, views[0].Network...)
	}
	return f
}

var _ browser.Browser = (*Fake)(nil)

func (f *Fake) view() View {
	if len(f.views) == 0 {
		return View{}
	}
	return f.views[f.index]
}

// Advance shows the next view, if any, and queues its network events.
func (f *Fake) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceLocked()
}

func (f *Fake) advanceLocked() {
	if f.index+1 >= len(f.views) {
		return
	}
	f.index++
	f.pending = append(f.pending, f.views[f.index].Network...)
}

// SetURL changes the current URL without navigating.
func (f *Fake) SetURL(u string) {
	f.mu.Lock()
	f.url = u
	f.mu.Unlock()
}

// SetPresent marks selector as present (or absent) on every view.
func (f *Fake) SetPresent(selector string, ok bool) {
	f.mu.Lock()
	f.present[selector] = ok
	f.mu.Unlock()
}

// SetEval registers a result for any script containing fragment.
func (f *Fake) SetEval(fragment string, v any) {
	f.mu.Lock()
	f.eval[fragment] = v
	f.mu.Unlock()
}

// ViewIndex returns the index of the current view.
func (f *Fake) ViewIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Typed returns what was typed into selector.
func (f *Fake) Typed(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typed[selector]
}

// Clicks returns the clicked selectors in order.
func (f *Fake) Clicks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicks...)
}

// Keys returns the pressed keys in order.
func (f *Fake) Keys() []browser.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Key(nil), f.keys...)
}

// Points returns coordinate clicks in order.
func (f *Fake) Points() [][2]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]float64(nil), f.points...)
}

// Visited returns every URL passed to Navigate.
func (f *Fake) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.visited = append(f.visited, url)
	hook := f.NavigateFunc
	if hook == nil {
		f.url = url
	}
	f.mu.Unlock()
	if hook != nil {
		return hook(f, url)
	}
	return nil
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *Fake) Title(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view().Title, nil
}

func (f *Fake) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view().HTML, nil
}

func (f *Fake) existsLocked(selector string) bool {
	if ok, set := f.present[selector]; set {
		return ok
	}
	for _, s := range f.view().Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

func (f *Fake) Exists(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existsLocked(selector), nil
}

func (f *Fake) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsLocked(selector) {
		return nil
	}
	return fmt.Errorf("browsertest: %s not visible: %w", selector, context.DeadlineExceeded)
}

func (f *Fake) SendKeys(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.existsLocked(selector) {
		return fmt.Errorf("browsertest: no element %s", selector)
	}
	f.typed[selector] = text
	return nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	f.clicks = append(f.clicks, selector)
	hook := f.ClickFunc
	if hook == nil {
		defer f.mu.Unlock()
		if !f.existsLocked(selector) {
			return fmt.Errorf("browsertest: no element %s", selector)
		}
		if f.AdvanceOnTurn {
			f.advanceLocked()
		}
		return nil
	}
	f.mu.Unlock()
	return hook(f, selector)
}

func (f *Fake) ClickAt(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, [2]float64{x, y})
	if f.AdvanceOnTurn {
		f.advanceLocked()
	}
	return nil
}

func (f *Fake) PressKey(ctx context.Context, key browser.Key) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	hook := f.KeyFunc
	if hook == nil {
		defer f.mu.Unlock()
		if f.AdvanceOnTurn && key == browser.KeyArrowRight {
			f.advanceLocked()
		}
		return nil
	}
	f.mu.Unlock()
	return hook(f, key)
}

func (f *Fake) Evaluate(ctx context.Context, script string, out any) error {
	f.mu.Lock()
	v, ok := match(f.view().Eval, script)
	if !ok {
		v, ok = match(f.eval, script)
	}
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("browsertest: no result for script %.40q", script)
	}
	if err, isErr := v.(error); isErr {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// match picks the longest registered fragment contained in script so a
// specific registration wins over a generic one.
func match(m map[string]any, script string) (any, bool) {
	frags := make([]string, 0, len(m))
	for k := range m {
		if strings.Contains(script, k) {
			frags = append(frags, k)
		}
	}
	if len(frags) == 0 {
		return nil, false
	}
	sort.Slice(frags, func(i, j int) bool { return len(frags[i]) > len(frags[j]) })
	return m[frags[0]], true
}

func (f *Fake) Viewport(ctx context.Context) (int, int, error) {
	return f.Width, f.Height, nil
}

// pngHeader is enough for MIME sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func (f *Fake) Screenshot(ctx context.Context) ([]byte, error) {
	if f.Shot != nil {
		return f.Shot, nil
	}
	return pngHeader, nil
}

func (f *Fake) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Cookie(nil), f.cookies...), nil
}

func (f *Fake) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, cookies...)
	return nil
}

func (f *Fake) DrainNetwork() []browser.NetworkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

func (f *Fake) UserAgent() string { return f.UA }

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
