package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// ExtractTitle returns the first non-empty text matched by selectors,
// falling back to the document title.
func ExtractTitle(doc *goquery.Document, selectors []string) string {
	if text := firstText(doc, selectors); text != "" {
		return text
	}
	title := formatter.CleanTitle(doc.Find("title").First().Text())
	// The bare app title carries no book information.
	if strings.EqualFold(title, "Kindle") || strings.EqualFold(title, "Kindle Cloud Reader") {
		return ""
	}
	return title
}

// ExtractAuthor returns the first non-empty text matched by selectors.
func ExtractAuthor(doc *goquery.Document, selectors []string) string {
	return firstText(doc, selectors)
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		text := formatter.CleanTitle(el.Text())
		if text != "" && len(text) < 200 {
			return text
		}
	}
	return ""
}

// ExtractMetadata reads book metadata visible in the view.
func ExtractMetadata(doc *goquery.Document, opts *Options) book.Metadata {
	return book.Metadata{
		Title:  ExtractTitle(doc, opts.TitleSelectors),
		Author: ExtractAuthor(doc, opts.AuthorSelectors),
	}
}
