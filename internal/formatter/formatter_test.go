package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTextContent(t *testing.T) {
	in := `<div class="page"><p>First&nbsp;line</p><script>var x = 1;</script><p>Second <b>line</b></p></div>`
	assert.Equal(t, "First line\nSecond line", ExtractTextContent(in))
	assert.Equal(t, "Tom & Jerry", ExtractTextContent("Tom &amp; Jerry"))
}

func TestTextProcessor(t *testing.T) {
	in := "  Chapter 1 \r\n\r\n\r\n\r\n  It was a dark night.\x07 "
	assert.Equal(t, "Chapter 1\n\nIt was a dark night.", NewTextProcessor().Process(in))
}

func TestTextToXHTML(t *testing.T) {
	got := TextToXHTML("A < B\n\nsecond\nline")
	assert.Equal(t, "<p>A &lt; B</p>\n<p>second<br/>line</p>\n", got)
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Quantum Poker", CleanTitle("  <span>Quantum</span>\n Poker "))
	assert.Equal(t, "", CleanTitle(""))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short line", Preview("  short\n  line ", 40))
	assert.Equal(t, "the spice must...", Preview("the spice must flow through every", 20))
}
