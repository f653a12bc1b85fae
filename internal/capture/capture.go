// Package capture loads previously recorded service traffic so it can be
// parsed without a live session.
package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chromedp/cdproto/har"

	"github.com/marcosevegrand/kindle-extract/internal/browser"
)

// DefaultHost is the only host whose entries are kept from a HAR file.
const DefaultHost = "read.amazon.com"

// DefaultURLMarkers select the HAR entries that carry book data.
var DefaultURLMarkers = []string{"getFileToken", "content"}

// Filter decides which HAR entries become events.
type Filter struct {
	Host    string
	Markers []string
}

// DefaultFilter keeps reading-service entries that carry book data.
func DefaultFilter() Filter {
	return Filter{Host: DefaultHost, Markers: DefaultURLMarkers}
}

func (f Filter) match(url string) bool {
	if f.Host != "" && !strings.Contains(url, f.Host) {
		return false
	}
	if len(f.Markers) == 0 {
		return true
	}
	for _, m := range f.Markers {
		if strings.Contains(url, m) {
			return true
		}
	}
	return false
}

// LoadHAR reads a HAR archive and returns the matching responses in
// recorded order.
func LoadHAR(path string, filter Filter) ([]browser.NetworkEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read HAR: %w", err)
	}
	var archive har.HAR
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("failed to parse HAR: %w", err)
	}
	if archive.Log == nil {
		return nil, fmt.Errorf("HAR has no log section")
	}

	var events []browser.NetworkEvent
	for _, entry := range archive.Log.Entries {
		if entry == nil || entry.Request == nil || entry.Response == nil {
			continue
		}
		if !filter.match(entry.Request.URL) {
			continue
		}
		ev := browser.NetworkEvent{
			URL:    entry.Request.URL,
			Status: int(entry.Response.Status),
		}
		if c := entry.Response.Content; c != nil {
			ev.ContentType = c.MimeType
			ev.Body = []byte(c.Text)
			if c.Encoding == "base64" {
				decoded, err := base64.StdEncoding.DecodeString(c.Text)
				if err != nil {
					return nil, fmt.Errorf("entry %s: bad base64 body: %w", ev.URL, err)
				}
				ev.Body = decoded
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

type recordedResponse struct {
	URL         string          `json:"url"`
	ContentType string          `json:"contentType"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
}

// LoadResponseFile reads saved responses: either one JSON body, or an
// array of {url, contentType, body} records. A lone body is attributed to
// a synthetic content URL so it is parsed as page content.
func LoadResponseFile(path string) ([]browser.NetworkEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read responses: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	var records []recordedResponse
	if data[0] == '[' && json.Unmarshal(data, &records) == nil && isRecordList(records) {
		events := make([]browser.NetworkEvent, 0, len(records))
		for _, r := range records {
			events = append(events, browser.NetworkEvent{
				URL:         r.URL,
				ContentType: r.ContentType,
				Status:      r.Status,
				Body:        rawBody(r.Body),
			})
		}
		return events, nil
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not JSON", path)
	}
	return []browser.NetworkEvent{{
		URL:         "offline:/content?source=" + filepath.Base(path),
		ContentType: "application/json",
		Body:        data,
	}}, nil
}

func isRecordList(records []recordedResponse) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if r.URL == "" {
			return false
		}
	}
	return true
}

// rawBody unwraps a body stored as a JSON string; other values are kept as
// raw JSON.
func rawBody(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return []byte(s)
	}
	return []byte(raw)
}
