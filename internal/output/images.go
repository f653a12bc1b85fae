package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

// WriteImages saves decoded image bytes under dir and returns the sorted
// assets with Path set. Assets without bytes keep their Src and no Path.
func WriteImages(doc *book.Document, dir string) ([]book.ImageAsset, error) {
	images := doc.SortedImages()
	if len(images) == 0 {
		return images, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	for i := range images {
		if len(images[i].Data) == 0 || images[i].FileName == "" {
			continue
		}
		path := filepath.Join(dir, images[i].FileName)
		if err := os.WriteFile(path, images[i].Data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write image %s: %w", images[i].FileName, err)
		}
		images[i].Path = path
	}
	return images, nil
}
