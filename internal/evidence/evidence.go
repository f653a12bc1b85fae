// Package evidence writes debugging artifacts (screenshots and page
// source) next to the run logs.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Store writes artifacts under Dir/screenshots and Dir/html.
type Store struct {
	Dir string
	now func() time.Time
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func (s *Store) stamp(desc string) string {
	desc = strings.Trim(unsafeChars.ReplaceAllString(desc, "_"), "_")
	if desc == "" {
		desc = "snapshot"
	}
	return s.now().Format("20060102_150405") + "_" + desc
}

func (s *Store) write(sub, name string, data []byte) (string, error) {
	dir := filepath.Join(s.Dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Screenshot saves an image as <ts>_<desc>.<ext>.
func (s *Store) Screenshot(desc string, data []byte) (string, error) {
	return s.write("screenshots", s.stamp(desc)+imageExt(data), data)
}

// PageScreenshot saves the screenshot of a page as page_NNNN.<ext>.
func (s *Store) PageScreenshot(page int, data []byte) (string, error) {
	return s.write("screenshots", fmt.Sprintf("page_%04d%s", page, imageExt(data)), data)
}

// HTML saves page source as <ts>_<desc>.html.
func (s *Store) HTML(desc, source string) (string, error) {
	return s.write("html", s.stamp(desc)+".html", []byte(source))
}

func imageExt(data []byte) string {
	m := mimetype.Detect(data)
	if strings.HasPrefix(m.String(), "image/") {
		return m.Extension()
	}
	return ".png"
}
