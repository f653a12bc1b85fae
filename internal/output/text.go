package output

import (
	"fmt"
	"os"
	"strings"
)

// RenderText renders the plain-text rendition.
func RenderText(f *File) string {
	var b strings.Builder

	if f.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", f.Title)
	}
	if f.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", f.Author)
	}
	if f.BookID != nil {
		fmt.Fprintf(&b, "ASIN: %s\n", *f.BookID)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	for _, p := range f.Content {
		fmt.Fprintf(&b, "=== Page %s ===\n%s\n\n", p.PageNumber.String(), p.Text)
	}

	if len(f.Images) > 0 {
		b.WriteString("=== Images ===\n")
		for i, img := range f.Images {
			fmt.Fprintf(&b, "%d. Page %s: %s\n", i+1, img.PageNumber.String(), img.FileName)
		}
	}

	return b.String()
}

// WriteText writes the plain-text rendition to path.
func WriteText(f *File, path string) error {
	if err := os.WriteFile(path, []byte(RenderText(f)), 0o644); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}
	return nil
}
