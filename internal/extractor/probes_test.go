package extractor

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/browser/browsertest"
	"github.com/marcosevegrand/kindle-extract/internal/evidence"
)

const readerHTML = `<html><head><title>Kindle</title></head><body>
<div class="bookTitle">Dune</div><div class="bookAuthor">Frank Herbert</div>
<div class="kcrPage"><p>A beginning is the time for taking the most delicate care.</p></div>
<div class="kcrPage"><p>That the balances are correct.</p></div>
<script>var x = 1;</script>
</body></html>`

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R', 0, 0, 0, 1}

func newView(f *browsertest.Fake, page int) *View {
	return &View{Browser: f, Page: page, Events: f.DrainNetwork()}
}

func TestClassifyURL(t *testing.T) {
	assert.Equal(t, ClassMetadata, ClassifyURL("https://read.amazon.com/service/metadata?asin=B0"))
	assert.Equal(t, ClassMetadata, ClassifyURL("https://read.amazon.com/api/lookup"))
	assert.Equal(t, ClassTOC, ClassifyURL("https://read.amazon.com/service/toc?asin=B0"))
	assert.Equal(t, ClassContent, ClassifyURL("https://read.amazon.com/api/book/content?page=2"))
	assert.Equal(t, ClassContent, ClassifyURL("https://read.amazon.com/service/reader/x"))
	assert.Equal(t, ClassNone, ClassifyURL("https://fls-na.amazon.com/1/batch/1/OE/"))
}

func TestNetworkProbe(t *testing.T) {
	f := browsertest.New(browsertest.View{Network: []browser.NetworkEvent{
		{URL: "https://read.amazon.com/service/metadata?asin=B009SE1Z9E", ContentType: "application/json",
			Body: []byte(`{"title":"Dune","author":"Frank Herbert"}`)},
		{URL: "https://read.amazon.com/api/book/content?page=3", ContentType: "application/json",
			Body: []byte(`{"content":[{"pageNumber":3,"text":"page three"}]}`)},
		{URL: "https://read.amazon.com/api/book/content?page=4", ContentType: "application/json",
			Body: []byte(`{"content": [`)},
		{URL: "https://images.example.com/cover.jpg", ContentType: "image/jpeg", Body: []byte{0xff, 0xd8}},
	}})

	cands, err := NewNetworkProbe(nil, nil).Probe(context.Background(), newView(f, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed JSON")

	require.Len(t, cands, 2)
	require.NotNil(t, cands[0].Meta)
	assert.Equal(t, "Dune", cands[0].Meta.Title)
	require.NotNil(t, cands[1].Key)
	assert.Equal(t, "3", cands[1].Key.String())
	assert.Equal(t, "page three", cands[1].Text)
	assert.Equal(t, book.TierNetworkJSON, cands[1].Tier)
}

func TestNetworkProbeHTMLContent(t *testing.T) {
	p := NewNetworkProbe(nil, nil)
	cands, err := p.ParseEvent(browser.NetworkEvent{
		URL:         "https://read.amazon.com/pages/7",
		ContentType: "text/html",
		Body:        []byte("<div><p>Rendered text</p></div>"),
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.NotNil(t, cands[0].Key)
	assert.Equal(t, "7", cands[0].Key.String())
	assert.Equal(t, "Rendered text", cands[0].Text)

	cands, err = p.ParseEvent(browser.NetworkEvent{
		URL:         "https://read.amazon.com/service/reader/render",
		ContentType: "application/json",
		Body:        []byte(`{"html":"<p>No page here</p>"}`),
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Nil(t, cands[0].Key)
}

func TestNetworkProbeJoinsUnnumberedParts(t *testing.T) {
	f := browsertest.New(browsertest.View{Network: []browser.NetworkEvent{
		{URL: "https://read.amazon.com/api/book/content", ContentType: "application/json",
			Body: []byte(`[{"text":"First paragraph."},{"text":"Second paragraph that is a bit longer than the first one."}]`)},
	}})
	set := NewProbeSet(nil, NewNetworkProbe(nil, nil))

	res := set.ProbeCurrentView(context.Background(), newView(f, 1))
	require.Empty(t, res.Errors)
	require.Len(t, res.Candidates, 1)
	assert.Nil(t, res.Candidates[0].Key)
	assert.Equal(t, "First paragraph.\nSecond paragraph that is a bit longer than the first one.", res.Candidates[0].Text)
}

func TestNetworkProbeMixedKeys(t *testing.T) {
	p := NewNetworkProbe(nil, nil)

	cands, err := p.ParseEvent(browser.NetworkEvent{
		URL:         "https://read.amazon.com/api/book/content?page=5",
		ContentType: "application/json",
		Body:        []byte(`[{"text":"numbered","pageNumber":5},{"text":"loose one"},{"text":"loose two"}]`),
	})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	require.NotNil(t, cands[0].Key)
	assert.Equal(t, "5", cands[0].Key.String())
	assert.Nil(t, cands[1].Key)
	assert.Equal(t, "loose one\nloose two", cands[1].Text)

	cands, err = p.ParseEvent(browser.NetworkEvent{
		URL:         "https://read.amazon.com/api/book/content?page=6",
		ContentType: "application/json",
		Body:        []byte(`{"content":[{"text":"Short line one."},{"text":"Short line two."}]}`),
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.NotNil(t, cands[0].Key)
	assert.Equal(t, "6", cands[0].Key.String())
	assert.Equal(t, "Short line one.\nShort line two.", cands[0].Text)
}

func TestCaptureMarkers(t *testing.T) {
	assert.Nil(t, CaptureMarkers(nil))

	markers := CaptureMarkers([]string{"renderer"})
	assert.Equal(t, "renderer", markers[0])
	for _, url := range []string{
		"https://read.amazon.com/service/metadata?asin=B0",
		"https://read.amazon.com/service/toc?asin=B0",
		"https://read.amazon.com/api/book/content?page=2",
	} {
		found := false
		for _, m := range markers {
			if strings.Contains(url, m) {
				found = true
				break
			}
		}
		assert.True(t, found, "no capture marker matches %s", url)
	}
}

func TestPageFromURL(t *testing.T) {
	n, ok := PageFromURL("https://read.amazon.com/service/reader/content?asin=B0&page=12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	n, ok = PageFromURL("https://read.amazon.com/pages/7")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = PageFromURL("https://read.amazon.com/service/metadata")
	assert.False(t, ok)
}

func TestDOMProbe(t *testing.T) {
	f := browsertest.New(browsertest.View{HTML: readerHTML})
	cands, err := NewDOMProbe(nil).Probe(context.Background(), newView(f, 1))
	require.NoError(t, err)
	require.Len(t, cands, 2)

	require.NotNil(t, cands[0].Meta)
	assert.Equal(t, "Dune", cands[0].Meta.Title)
	assert.Equal(t, "Frank Herbert", cands[0].Meta.Author)

	assert.Nil(t, cands[1].Key)
	assert.Equal(t, "A beginning is the time for taking the most delicate care.\nThat the balances are correct.", cands[1].Text)
}

func TestDOMProbeFallsBackToBody(t *testing.T) {
	html := `<html><body><nav>Menu</nav><section>Only body text survives in this unusual layout.</section></body></html>`
	f := browsertest.New(browsertest.View{HTML: html})
	cands, err := NewDOMProbe(nil).Probe(context.Background(), newView(f, 1))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Only body text survives in this unusual layout.", cands[0].Text)
}

func TestDOMProbeTooShort(t *testing.T) {
	f := browsertest.New(browsertest.View{HTML: `<html><body><div class="kcrPage">Hi</div></body></html>`})
	_, err := NewDOMProbe(nil).Probe(context.Background(), newView(f, 1))
	assert.ErrorContains(t, err, "too short")
}

func TestScriptProbe(t *testing.T) {
	p := NewScriptProbe(nil)
	assert.Contains(t, p.Script(), `".page-content"`)

	f := browsertest.New()
	f.SetEval("const dumps", map[string]any{"text": "  Visible text from the live reader view.  ", "dump": ""})
	cands, err := p.Probe(context.Background(), newView(f, 1))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Visible text from the live reader view.", cands[0].Text)
	assert.Equal(t, book.TierScript, cands[0].Tier)
}

func TestScriptProbeUsesDumpWhenTextIsShort(t *testing.T) {
	f := browsertest.New()
	f.SetEval("const dumps", map[string]any{"text": "x", "dump": "<div><span>Structure dump carries the real text.</span></div>"})
	cands, err := NewScriptProbe(nil).Probe(context.Background(), newView(f, 1))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Structure dump carries the real text.", cands[0].Text)
}

func TestScriptProbeEvalError(t *testing.T) {
	f := browsertest.New()
	f.SetEval("const dumps", errors.New("context destroyed"))
	_, err := NewScriptProbe(nil).Probe(context.Background(), newView(f, 1))
	assert.ErrorContains(t, err, "context destroyed")
}

func TestRawHTMLProbe(t *testing.T) {
	body := strings.Repeat("<p>The spice must flow through every page of this long and winding story, paragraph after paragraph.</p>", 8)
	f := browsertest.New(browsertest.View{HTML: "<html><head><title>x</title></head><body><article>" + body + "</article></body></html>"})
	cands, err := NewRawHTMLProbe(nil).Probe(context.Background(), newView(f, 1))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Contains(t, cands[0].Text, "The spice must flow")
	assert.Equal(t, book.TierRawHTML, cands[0].Tier)
}

func TestImageProbe(t *testing.T) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	f := browsertest.New()
	f.SetEval("toDataURL", []map[string]string{
		{"src": dataURL, "alt": ""},
		{"src": dataURL, "alt": "duplicate"},
		{"src": "https://m.media-amazon.com/images/cover.jpg?x=1", "alt": "Cover"},
		{"src": "about:blank"},
	})

	cands, err := NewImageProbe(nil).Probe(context.Background(), newView(f, 3))
	require.NoError(t, err)
	require.Len(t, cands, 2)

	first := cands[0].Image
	require.NotNil(t, first)
	assert.Equal(t, "image_3_0.png", first.FileName)
	assert.Equal(t, "image/png", first.MimeType)
	assert.Equal(t, "Image_3_0", first.AltText)
	assert.Equal(t, pngBytes, first.Data)
	assert.Equal(t, "3", cands[0].Key.String())

	second := cands[1].Image
	assert.Equal(t, "image_3_1.jpg", second.FileName)
	assert.Equal(t, "Cover", second.AltText)
	assert.Equal(t, "https://m.media-amazon.com/images/cover.jpg?x=1", second.Src)
}

func TestScreenshotProbe(t *testing.T) {
	dir := t.TempDir()
	f := browsertest.New()
	cands, err := NewScreenshotProbe(evidence.New(dir)).Probe(context.Background(), newView(f, 12))
	require.NoError(t, err)
	assert.Empty(t, cands)

	_, err = os.Stat(filepath.Join(dir, "screenshots", "page_0012.png"))
	assert.NoError(t, err)
}

type panicProbe struct{}

func (panicProbe) Name() string    { return "panic" }
func (panicProbe) Tier() book.Tier { return book.TierScript }
func (panicProbe) Probe(context.Context, *View) ([]book.Candidate, error) {
	panic("boom")
}

type staticProbe struct {
	name  string
	tier  book.Tier
	cands []book.Candidate
}

func (s staticProbe) Name() string    { return s.name }
func (s staticProbe) Tier() book.Tier { return s.tier }
func (s staticProbe) Probe(context.Context, *View) ([]book.Candidate, error) {
	return s.cands, nil
}

func TestProbeSetAbsorbsFailures(t *testing.T) {
	set := NewProbeSet(nil,
		panicProbe{},
		staticProbe{name: "dom", tier: book.TierDOM, cands: []book.Candidate{{Text: "dom text that is fine"}}},
	)
	res := set.ProbeCurrentView(context.Background(), &View{Browser: browsertest.New(), Page: 1})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "panic", res.Errors[0].Probe)
	assert.Equal(t, []string{"dom"}, res.Used)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, book.TierDOM, res.Candidates[0].Tier)
}

func TestCollapseUnkeyed(t *testing.T) {
	got := CollapseUnkeyed([]book.Candidate{
		book.Unkeyed("dom text", book.TierDOM),
		book.Unkeyed("script text", book.TierScript),
		book.Unkeyed("a longer raw html text", book.TierRawHTML),
		{Meta: &book.Metadata{Title: "T"}, Tier: book.TierDOM},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "script text", got[0].Text)
	assert.NotNil(t, got[1].Meta)

	got = CollapseUnkeyed([]book.Candidate{
		book.Keyed(book.IntKey(4), "network page", book.TierNetworkJSON),
		book.Unkeyed("dom text", book.TierDOM),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "network page", got[0].Text)
}

func TestNewDefaultProbeSet(t *testing.T) {
	set := NewDefaultProbeSet(nil, nil, nil, nil)
	assert.Equal(t, []string{"network", "script", "dom", "raw_html", "image"}, set.Names())

	set = NewDefaultProbeSet(nil, []string{"dom", "screenshot"}, evidence.New(t.TempDir()), nil)
	assert.Equal(t, []string{"dom", "screenshot"}, set.Names())
}
