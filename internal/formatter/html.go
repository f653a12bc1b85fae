// Package formatter provides HTML and text processing utilities.
package formatter

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// ExtractTextContent extracts plain text from HTML. Block elements become
// line breaks; scripts and styles are dropped.
func ExtractTextContent(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(html.UnescapeString(fragment))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return SelectionText(doc.Selection)
}

// SelectionText renders the text of a selection with block-level breaks.
func SelectionText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		renderText(&b, n)
	}
	return NewTextProcessor().Process(b.String())
}

func renderText(b *strings.Builder, n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		b.WriteString(n.Data)
		return
	case xhtml.ElementNode:
		if skipTags[n.Data] {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}
	if n.Type == xhtml.ElementNode && blockTags[n.Data] {
		b.WriteString("\n")
	}
}

// TextToXHTML escapes plain text and wraps its paragraphs in <p> tags
func TextToXHTML(text string) string {
	var result strings.Builder
	for _, p := range SplitIntoParagraphs(text) {
		result.WriteString("<p>")
		result.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br/>"))
		result.WriteString("</p>\n")
	}
	return result.String()
}
