package output

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func sampleDoc() *book.Document {
	doc := book.NewDocument("B009SE1Z9E")
	doc.Title = "Dune"
	doc.Author = "Frank Herbert"
	doc.Put(book.PageRecord{Key: book.StringKey("10"), Text: "ten", SourceTier: book.TierNetworkJSON})
	doc.Put(book.PageRecord{Key: book.IntKey(2), Text: "two", SourceTier: book.TierDOM})
	doc.Put(book.PageRecord{Key: book.IntKey(1), Text: "one", SourceTier: book.TierScript})
	doc.Images = append(doc.Images, book.ImageAsset{
		Key: book.IntKey(2), Index: 0, FileName: "image_2_0.png", MimeType: "image/png", AltText: "Map", Data: pngBytes,
	})
	return doc
}

func TestRenderText(t *testing.T) {
	f := NewFile(sampleDoc(), nil)
	want := "Title: Dune\n" +
		"Author: Frank Herbert\n" +
		"ASIN: B009SE1Z9E\n\n" +
		"=== Page 1 ===\none\n\n" +
		"=== Page 2 ===\ntwo\n\n" +
		"=== Page 10 ===\nten\n\n" +
		"=== Images ===\n" +
		"1. Page 2: image_2_0.png\n"
	assert.Equal(t, want, RenderText(f))
}

func TestRenderTextWithoutMetadata(t *testing.T) {
	doc := book.NewDocument("")
	doc.Put(book.PageRecord{Key: book.IntKey(1), Text: "only"})
	assert.Equal(t, "=== Page 1 ===\nonly\n\n", RenderText(NewFile(doc, nil)))
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	f := NewFile(sampleDoc(), nil)
	require.NoError(t, WriteJSON(f, path))

	got, err := ReadJSON(path)
	require.NoError(t, err)
	if diff := cmp.Diff(f, got, cmp.AllowUnexported(book.PageKey{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pageNumber": "10"`)
	assert.Contains(t, string(raw), `"pageNumber": 1`)

	doc := got.Document()
	assert.Equal(t, 3, doc.Len())
	assert.Equal(t, "Dune", doc.Title)
}

func TestJSONNullBookID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	require.NoError(t, WriteJSON(NewFile(book.NewDocument(""), nil), path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bookId": null`)
	assert.Contains(t, string(raw), `"content": []`)
}

func TestWriterWritesEveryFormat(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, []string{FormatText, FormatJSON, FormatEPUB}, nil)

	paths, err := w.Write(sampleDoc())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "Dune_images", "image_2_0.png"),
		filepath.Join(dir, "Dune.txt"),
		filepath.Join(dir, "Dune.json"),
		filepath.Join(dir, "Dune.epub"),
	}, paths)

	img, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)

	f, err := ReadJSON(paths[2])
	require.NoError(t, err)
	require.Len(t, f.Images, 1)
	assert.Equal(t, paths[0], f.Images[0].Path)

	zr, err := zip.OpenReader(paths[3])
	require.NoError(t, err)
	defer zr.Close()
	assert.NotEmpty(t, zr.File)
}

func TestWriterEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, []string{FormatText, FormatJSON, FormatEPUB}, nil)
	paths, err := w.Write(book.NewDocument(""))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "kindle_book.txt"), filepath.Join(dir, "kindle_book.json")}, paths)
}

func TestWriterUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err := NewWriter(filepath.Join(file, "out"), nil, nil).Write(sampleDoc())
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Dune_Messiah", SanitizeFilename(" Dune: Messiah "))
	assert.Equal(t, "book", SanitizeFilename("///"))
	assert.Equal(t, "B009SE1Z9E", BaseName(book.NewDocument("B009SE1Z9E"), "x"))
	assert.Equal(t, "x", BaseName(book.NewDocument(""), "x"))
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleDoc())
	assert.Equal(t, Stats{Pages: 3, Words: 3, Images: 1, ReadingMinutes: 1, Preview: "one"}, s)
	assert.Empty(t, Summarize(book.NewDocument("B0")).Preview)

	long := book.NewDocument("B0")
	long.Put(book.PageRecord{Key: book.IntKey(1), Text: strings.Repeat("sand worm\n", 20)})
	preview := Summarize(long).Preview
	assert.LessOrEqual(t, len(preview), PreviewLength)
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.NotContains(t, preview, "\n")
	assert.Equal(t, "1.50 KB", FormatFileSize(1536))
	assert.Equal(t, "2 hours 5 minutes", FormatDuration(125))
}
