// Package book holds the accumulating result of an extraction run: book
// metadata, keyed page records and image assets.
package book

import (
	"sort"
	"strings"
	"time"
)

// Tier ranks how structured, and therefore how trustworthy, a source is.
type Tier int

const (
	TierUnknown Tier = iota
	TierScreenshot
	TierRawHTML
	TierDOM
	TierScript
	TierNetworkJSON
)

var tierNames = map[Tier]string{
	TierUnknown:     "unknown",
	TierScreenshot:  "screenshot",
	TierRawHTML:     "raw_html",
	TierDOM:         "dom",
	TierScript:      "script",
	TierNetworkJSON: "network_json",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseTier is the inverse of Tier.String.
func ParseTier(s string) Tier {
	for t, name := range tierNames {
		if name == strings.ToLower(s) {
			return t
		}
	}
	return TierUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	*t = ParseTier(string(b))
	return nil
}

// PageRecord is one page of extracted text.
type PageRecord struct {
	Key        PageKey   `json:"pageNumber"`
	Text       string    `json:"text"`
	SourceTier Tier      `json:"sourceTier"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ImageAsset is an image found on a page. Data holds decoded bytes when
// the source was a data URL; Src holds the original reference otherwise.
type ImageAsset struct {
	Key      PageKey `json:"pageNumber"`
	Index    int     `json:"index"`
	MimeType string  `json:"mimeType,omitempty"`
	FileName string  `json:"fileName"`
	Src      string  `json:"src,omitempty"`
	Path     string  `json:"path,omitempty"`
	AltText  string  `json:"altText,omitempty"`
	Data     []byte  `json:"-"`
}

// Metadata carries book level fields reported by a source.
type Metadata struct {
	ID     string
	Title  string
	Author string
}

// IsZero reports whether no field is set.
func (m Metadata) IsZero() bool {
	return m.ID == "" && m.Title == "" && m.Author == ""
}

// Candidate is one probe result for the current view. A candidate carries
// text, an image, metadata, or a combination. A nil Key means the source
// could not tell which page the text belongs to.
type Candidate struct {
	Key   *PageKey
	Text  string
	Image *ImageAsset
	Meta  *Metadata
	Tier  Tier
}

// Keyed returns a candidate pinned to key.
func Keyed(key PageKey, text string, tier Tier) Candidate {
	return Candidate{Key: &key, Text: text, Tier: tier}
}

// Unkeyed returns a candidate without a page key.
func Unkeyed(text string, tier Tier) Candidate {
	return Candidate{Text: text, Tier: tier}
}

// Document is the single source of truth for output. It is owned by one
// run; nothing in it is safe for concurrent mutation.
type Document struct {
	ID     string
	Title  string
	Author string
	Images []ImageAsset

	pages map[string]PageRecord
}

// NewDocument returns an empty document for id. id may be empty when the
// book is unknown.
func NewDocument(id string) *Document {
	return &Document{ID: id, pages: make(map[string]PageRecord)}
}

// Len returns the number of pages.
func (d *Document) Len() int { return len(d.pages) }

// Get returns the record stored under key.
func (d *Document) Get(key PageKey) (PageRecord, bool) {
	rec, ok := d.pages[key.ID()]
	return rec, ok
}

// Put stores rec, replacing any record with the same key identity.
func (d *Document) Put(rec PageRecord) {
	if d.pages == nil {
		d.pages = make(map[string]PageRecord)
	}
	d.pages[rec.Key.ID()] = rec
}

// MaxNumericKey returns the highest numeric page key, or 0.
func (d *Document) MaxNumericKey() int {
	max := 0
	for _, rec := range d.pages {
		if n, ok := rec.Key.Int(); ok && n > max {
			max = n
		}
	}
	return max
}

// Pages returns the page records sorted by key.
func (d *Document) Pages() []PageRecord {
	out := make([]PageRecord, 0, len(d.pages))
	for _, rec := range d.pages {
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// SortedImages returns images ordered by (page key, index).
func (d *Document) SortedImages() []ImageAsset {
	out := append([]ImageAsset(nil), d.Images...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key.ID() != out[j].Key.ID() {
			return out[i].Key.Less(out[j].Key)
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// WordCount returns an approximate word count over all pages.
func (d *Document) WordCount() int {
	n := 0
	for _, rec := range d.pages {
		n += len(strings.Fields(rec.Text))
	}
	return n
}
