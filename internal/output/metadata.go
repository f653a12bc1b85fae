// Package output renders a book.Document as text, JSON and EPUB files.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// File is the structured rendition. Every other rendition is derived from
// it.
type File struct {
	BookID  *string      `json:"bookId"`
	Title   string       `json:"title"`
	Author  string       `json:"author"`
	Content []PageEntry  `json:"content"`
	Images  []ImageEntry `json:"images,omitempty"`
}

// PageEntry is one page in the structured rendition.
type PageEntry struct {
	PageNumber book.PageKey `json:"pageNumber"`
	Text       string       `json:"text"`
}

// ImageEntry is one image in the structured rendition.
type ImageEntry struct {
	PageNumber book.PageKey `json:"pageNumber"`
	FileName   string       `json:"fileName"`
	Path       string       `json:"path,omitempty"`
	AltText    string       `json:"altText,omitempty"`
}

// NewFile snapshots doc. images overrides doc.Images when it carries
// written paths.
func NewFile(doc *book.Document, images []book.ImageAsset) *File {
	f := &File{
		Title:   doc.Title,
		Author:  doc.Author,
		Content: []PageEntry{},
	}
	if doc.ID != "" {
		id := doc.ID
		f.BookID = &id
	}
	for _, p := range doc.Pages() {
		f.Content = append(f.Content, PageEntry{PageNumber: p.Key, Text: p.Text})
	}
	if images == nil {
		images = doc.SortedImages()
	}
	for _, img := range images {
		f.Images = append(f.Images, ImageEntry{
			PageNumber: img.Key,
			FileName:   img.FileName,
			Path:       img.Path,
			AltText:    img.AltText,
		})
	}
	return f
}

// Document rebuilds a book.Document from the structured rendition.
func (f *File) Document() *book.Document {
	id := ""
	if f.BookID != nil {
		id = *f.BookID
	}
	doc := book.NewDocument(id)
	doc.Title = f.Title
	doc.Author = f.Author
	for _, p := range f.Content {
		doc.Put(book.PageRecord{Key: p.PageNumber, Text: p.Text})
	}
	for i, img := range f.Images {
		doc.Images = append(doc.Images, book.ImageAsset{
			Key:      img.PageNumber,
			Index:    i,
			FileName: img.FileName,
			Path:     img.Path,
			AltText:  img.AltText,
		})
	}
	return doc
}

// Stats summarizes a document for reports.
type Stats struct {
	Pages          int
	Words          int
	Images         int
	ReadingMinutes int
	// Preview is the start of the first page on one line.
	Preview string
}

// PreviewLength is how much of the first page Summarize keeps.
const PreviewLength = 80

// Summarize returns the document's stats.
func Summarize(doc *book.Document) Stats {
	words := doc.WordCount()
	s := Stats{
		Pages:          doc.Len(),
		Words:          words,
		Images:         len(doc.Images),
		ReadingMinutes: EstimatedReadingTime(words),
	}
	if pages := doc.Pages(); len(pages) > 0 {
		s.Preview = formatter.Preview(pages[0].Text, PreviewLength)
	}
	return s
}

// EstimatedReadingTime returns estimated reading time in minutes
func EstimatedReadingTime(words int) int {
	minutes := words / 200
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// GenerateUUID generates a unique identifier for the book
func GenerateUUID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("urn:uuid:generated-%d", time.Now().UnixNano())
	}
	return "urn:uuid:" + id.String()
}

// BaseName picks the output file stem: title, then book id, then fallback.
func BaseName(doc *book.Document, fallback string) string {
	switch {
	case strings.TrimSpace(doc.Title) != "":
		return SanitizeFilename(doc.Title)
	case doc.ID != "":
		return SanitizeFilename(doc.ID)
	}
	return SanitizeFilename(fallback)
}

// SanitizeFilename creates a safe filename from a string
func SanitizeFilename(name string) string {
	invalid := []string{"\\", "/", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "")
	}

	result = strings.ReplaceAll(strings.TrimSpace(result), " ", "_")

	if len(result) > 100 {
		result = result[:100]
	}

	if result == "" {
		result = "book"
	}

	return result
}

// FormatFileSize formats a file size in bytes to human-readable format
func FormatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// FormatDuration formats a duration to human-readable format
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := minutes / 60
	mins := minutes % 60

	if mins == 0 {
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d hours %d minutes", hours, mins)
}
