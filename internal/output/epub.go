package output

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"

	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// EPUBOptions contains options for EPUB generation
type EPUBOptions struct {
	Lang       string
	Identifier string
	// PageTitles adds a "Page N" heading to every section.
	PageTitles bool
}

// DefaultEPUBOptions returns default EPUB generation options
func DefaultEPUBOptions() *EPUBOptions {
	return &EPUBOptions{
		Lang:       "en",
		PageTitles: true,
	}
}

// GenerateEPUB writes f as an EPUB at path, one section per page. Images
// with a written Path are embedded after the text of their page.
func GenerateEPUB(f *File, path string, opts *EPUBOptions) error {
	if opts == nil {
		opts = DefaultEPUBOptions()
	}
	if len(f.Content) == 0 {
		return fmt.Errorf("no pages to include in EPUB")
	}

	title := f.Title
	if title == "" {
		title = "Untitled"
	}
	e, err := epub.NewEpub(title)
	if err != nil {
		return fmt.Errorf("failed to create EPUB: %w", err)
	}

	if f.Author != "" {
		e.SetAuthor(f.Author)
	}
	e.SetDescription(fmt.Sprintf("Kindle book - %d pages", len(f.Content)))
	if opts.Lang != "" {
		e.SetLang(opts.Lang)
	}
	switch {
	case opts.Identifier != "":
		e.SetIdentifier(opts.Identifier)
	case f.BookID != nil:
		e.SetIdentifier("urn:asin:" + *f.BookID)
	default:
		e.SetIdentifier(GenerateUUID())
	}

	images := make(map[string][]string)
	for _, img := range f.Images {
		if img.Path == "" {
			continue
		}
		internal, err := e.AddImage(img.Path, img.FileName)
		if err != nil {
			return fmt.Errorf("failed to add image %s: %w", img.FileName, err)
		}
		tag := fmt.Sprintf(`<p><img src="%s" alt="%s"/></p>`, internal, html.EscapeString(img.AltText))
		id := img.PageNumber.ID()
		images[id] = append(images[id], tag)
	}

	for _, p := range f.Content {
		sectionTitle := "Page " + p.PageNumber.String()
		body := formatter.TextToXHTML(p.Text)
		if tags := images[p.PageNumber.ID()]; len(tags) > 0 {
			body += strings.Join(tags, "\n")
		}
		if opts.PageTitles {
			body = formatPageHTML(sectionTitle, body)
		}
		if _, err := e.AddSection(body, sectionTitle, "", ""); err != nil {
			return fmt.Errorf("failed to add %s: %w", sectionTitle, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := e.Write(path); err != nil {
		return fmt.Errorf("failed to write EPUB: %w", err)
	}
	return nil
}

func formatPageHTML(title, content string) string {
	return fmt.Sprintf(`<h2 class="page-title">%s</h2>
%s`, html.EscapeString(title), content)
}
