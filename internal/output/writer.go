package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

// Rendition formats.
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatEPUB = "epub"
)

// Writer renders a document into Dir.
type Writer struct {
	Dir     string
	Formats []string
	// BaseName overrides the stem derived from the document.
	BaseName string
	EPUB     *EPUBOptions
	Logger   *slog.Logger
}

// NewWriter returns a Writer for formats under dir.
func NewWriter(dir string, formats []string, logger *slog.Logger) *Writer {
	if len(formats) == 0 {
		formats = []string{FormatText, FormatJSON}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{Dir: dir, Formats: formats, EPUB: DefaultEPUBOptions(), Logger: logger}
}

// Write saves images and every configured rendition of doc and returns
// the paths written. doc is only read. An empty document still produces
// text and JSON; EPUB is skipped.
func (w *Writer) Write(doc *book.Document) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	base := w.BaseName
	if base == "" {
		base = BaseName(doc, "kindle_book")
	}

	var written []string
	images, err := WriteImages(doc, filepath.Join(w.Dir, base+"_images"))
	if err != nil {
		return written, err
	}
	for _, img := range images {
		if img.Path != "" {
			written = append(written, img.Path)
		}
	}

	f := NewFile(doc, images)
	for _, format := range w.Formats {
		path := filepath.Join(w.Dir, base+"."+format)
		switch format {
		case FormatText:
			err = WriteText(f, path)
		case FormatJSON:
			err = WriteJSON(f, path)
		case FormatEPUB:
			if len(f.Content) == 0 {
				w.Logger.Warn("skipping EPUB for empty document")
				continue
			}
			err = GenerateEPUB(f, path, w.EPUB)
		default:
			err = fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
		w.Logger.Info("output written", "format", format, "path", path, "size", fileSize(path))
	}
	return written, nil
}

// HasFormat reports whether the writer produces format.
func (w *Writer) HasFormat(format string) bool {
	return slices.Contains(w.Formats, format)
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return FormatFileSize(info.Size())
}
