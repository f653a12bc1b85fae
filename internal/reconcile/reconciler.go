// Package reconcile merges probe candidates into a book.Document.
package reconcile

import (
	"log/slog"
	"strings"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

// Conflict records two sources claiming the same page.
type Conflict struct {
	Key      book.PageKey
	Kept     book.Tier
	Dropped  book.Tier
	Replaced bool
}

// Result summarizes one Merge call.
type Result struct {
	Inserted  []book.PageKey
	Replaced  []book.PageKey
	Images    int
	Conflicts []Conflict
}

// Changed reports whether the document gained or replaced any page.
func (r Result) Changed() bool {
	return len(r.Inserted) > 0 || len(r.Replaced) > 0
}

// Reconciler is the only writer of a Document's pages, images and metadata.
type Reconciler struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Reconciler. A nil logger selects slog.Default.
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger, now: time.Now}
}

// Merge folds candidates into doc. Keyed text candidates are placed first,
// then unkeyed ones receive synthetic keys in arrival order.
func (r *Reconciler) Merge(candidates []book.Candidate, doc *book.Document) Result {
	var res Result
	var unkeyed []book.Candidate

	for _, c := range candidates {
		if c.Meta != nil {
			r.mergeMeta(*c.Meta, doc)
		}
		if c.Image != nil {
			if r.mergeImage(*c.Image, doc) {
				res.Images++
			}
		}

		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if c.Key == nil || c.Key.IsZero() {
			unkeyed = append(unkeyed, c)
			continue
		}
		r.mergeKeyed(*c.Key, text, c.Tier, doc, &res)
	}

	for _, c := range unkeyed {
		key := book.IntKey(doc.MaxNumericKey() + 1)
		doc.Put(book.PageRecord{
			Key:        key,
			Text:       strings.TrimSpace(c.Text),
			SourceTier: c.Tier,
			CapturedAt: r.now(),
		})
		res.Inserted = append(res.Inserted, key)
	}

	return res
}

func (r *Reconciler) mergeKeyed(key book.PageKey, text string, tier book.Tier, doc *book.Document, res *Result) {
	incoming := book.PageRecord{Key: key, Text: text, SourceTier: tier, CapturedAt: r.now()}

	existing, ok := doc.Get(key)
	if !ok {
		doc.Put(incoming)
		res.Inserted = append(res.Inserted, key)
		return
	}
	if existing.Text == text && existing.SourceTier == tier {
		return
	}

	replace := false
	switch {
	case tier > existing.SourceTier:
		replace = true
	case tier == existing.SourceTier:
		replace = len(text) > len(existing.Text)
	}

	conflict := Conflict{Key: key, Replaced: replace}
	if replace {
		conflict.Kept, conflict.Dropped = tier, existing.SourceTier
		doc.Put(incoming)
		res.Replaced = append(res.Replaced, key)
	} else {
		conflict.Kept, conflict.Dropped = existing.SourceTier, tier
	}
	res.Conflicts = append(res.Conflicts, conflict)

	r.logger.Warn("page conflict",
		"page", key.String(),
		"kept", conflict.Kept.String(),
		"dropped", conflict.Dropped.String(),
		"replaced", replace,
	)
}

func (r *Reconciler) mergeMeta(m book.Metadata, doc *book.Document) {
	if doc.ID == "" && strings.TrimSpace(m.ID) != "" {
		doc.ID = strings.TrimSpace(m.ID)
	}
	if doc.Title == "" && strings.TrimSpace(m.Title) != "" {
		doc.Title = strings.TrimSpace(m.Title)
		r.logger.Info("title set", "title", doc.Title)
	}
	if doc.Author == "" && strings.TrimSpace(m.Author) != "" {
		doc.Author = strings.TrimSpace(m.Author)
		r.logger.Info("author set", "author", doc.Author)
	}
}

func (r *Reconciler) mergeImage(img book.ImageAsset, doc *book.Document) bool {
	ref := imageRef(img)
	for _, have := range doc.Images {
		if have.Key.ID() == img.Key.ID() && imageRef(have) == ref {
			return false
		}
	}
	doc.Images = append(doc.Images, img)
	return true
}

func imageRef(img book.ImageAsset) string {
	if img.FileName != "" {
		return img.FileName
	}
	return img.Src
}
