package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// DefaultCookieDomain scopes persisted cookies to the store's domain family.
const DefaultCookieDomain = ".amazon.com"

// CookieStore persists a cookie set as a JSON array.
type CookieStore struct {
	Path   string
	Domain string
}

var accountUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// StoreForAccount returns the store for account inside dir. An empty
// account maps to cookies.json.
func StoreForAccount(dir, account string) *CookieStore {
	name := "cookies.json"
	if a := strings.Trim(accountUnsafe.ReplaceAllString(strings.ToLower(account), "_"), "_"); a != "" {
		name = "cookies_" + a + ".json"
	}
	return &CookieStore{Path: filepath.Join(dir, name), Domain: DefaultCookieDomain}
}

// Load reads the saved cookies. Every failure mode maps to
// ErrNoCachedSession so callers simply fall back to signing in.
func (s *CookieStore) Load() ([]browser.Cookie, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCachedSession, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoCachedSession, s.Path)
	}

	var cookies []browser.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrNoCachedSession, s.Path, err)
	}

	live := dropExpired(cookies, time.Now())
	if len(live) == 0 {
		return nil, fmt.Errorf("%w: %s holds no live cookies", ErrNoCachedSession, s.Path)
	}
	return live, nil
}

// Save writes cookies belonging to the store's domain family.
func (s *CookieStore) Save(cookies []browser.Cookie) error {
	kept := FilterDomain(cookies, s.Domain)
	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}

// FilterDomain keeps cookies whose domain falls under domain. An empty
// domain keeps everything.
func FilterDomain(cookies []browser.Cookie, domain string) []browser.Cookie {
	base := strings.TrimPrefix(strings.ToLower(domain), ".")
	if base == "" {
		return cookies
	}
	out := make([]browser.Cookie, 0, len(cookies))
	for _, c := range cookies {
		d := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if d == base || strings.HasSuffix(d, "."+base) {
			out = append(out, c)
		}
	}
	return out
}

func dropExpired(cookies []browser.Cookie, now time.Time) []browser.Cookie {
	out := cookies[:0:0]
	for _, c := range cookies {
		if c.Expiry != nil && *c.Expiry > 0 && time.Unix(*c.Expiry, 0).Before(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// HTTPCookies converts cookies for use with net/http.
func HTTPCookies(cookies []browser.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if hc.Path == "" {
			hc.Path = "/"
		}
		if c.Expiry != nil {
			hc.Expires = time.Unix(*c.Expiry, 0)
		}
		out = append(out, hc)
	}
	return out
}

// Data is what downstream HTTP consumers need to act as the signed-in user.
type Data struct {
	Cookies   map[string]string `json:"cookies"`
	UserAgent string            `json:"user_agent"`
}
