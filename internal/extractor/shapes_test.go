package extractor

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatPage struct {
	Key  string
	Text string
}

func flatten(pages []PageText) []flatPage {
	out := make([]flatPage, len(pages))
	for i, p := range pages {
		out[i].Text = p.Text
		if p.Key != nil {
			out[i].Key = p.Key.String()
		}
	}
	return out
}

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestTryShapes(t *testing.T) {
	long := "This is a long passage of text that certainly exceeds the fifty character scan limit."

	tests := []struct {
		name  string
		body  string
		shape string
		want  []flatPage
	}{
		{
			name:  "content list",
			body:  `{"content":[{"pageNumber":1,"text":"one"},{"pageNumber":2,"text":"two"}]}`,
			shape: "content_list",
			want:  []flatPage{{"1", "one"}, {"2", "two"}},
		},
		{
			name:  "content list without page numbers",
			body:  `{"content":[{"text":"Short line one."},"Short line two.",{"content":"Short line three."}]}`,
			shape: "content_list",
			want:  []flatPage{{"", "Short line one.\nShort line two.\nShort line three."}},
		},
		{
			name:  "fractional page number is not a key",
			body:  `{"content":"plain","pageNumber":3.7}`,
			shape: "content_string",
			want:  []flatPage{{"", "plain"}},
		},
		{
			name:  "out of range page number is not a key",
			body:  `{"text":"far","page":1e15}`,
			shape: "text",
			want:  []flatPage{{"", "far"}},
		},
		{
			name:  "content dict keyed by page",
			body:  `{"content":{"10":"ten","9":"nine","x":"ex"}}`,
			shape: "content_dict",
			want:  []flatPage{{"9", "nine"}, {"10", "ten"}, {"x", "ex"}},
		},
		{
			name:  "nested result content",
			body:  `{"result":{"content":[{"page":"4","text":"four"}]}}`,
			shape: "result_content",
			want:  []flatPage{{"4", "four"}},
		},
		{
			name:  "html body is unkeyed",
			body:  `{"html":"<div><p>Hello</p><p>World</p></div>"}`,
			shape: "html_body",
			want:  []flatPage{{"", "Hello\nWorld"}},
		},
		{
			name:  "content string with page",
			body:  `{"content":"plain","pageNumber":7}`,
			shape: "content_string",
			want:  []flatPage{{"7", "plain"}},
		},
		{
			name:  "top level text",
			body:  `{"text":"just text"}`,
			shape: "text",
			want:  []flatPage{{"", "just text"}},
		},
		{
			name:  "data wrapper",
			body:  `{"data":{"text":"wrapped"}}`,
			shape: "data",
			want:  []flatPage{{"", "wrapped"}},
		},
		{
			name:  "top level list",
			body:  `[{"content":"a"},{"text":"b","pageNumber":2}]`,
			shape: "item_list",
			want:  []flatPage{{"", "a"}, {"2", "b"}},
		},
		{
			name:  "deep scan",
			body:  `{"x":{"y":["short","` + long + `"]},"token":"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZWZnaGlqa2xtbm9w"}`,
			shape: "deep_scan",
			want:  []flatPage{{"", long}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, shape := TryShapes(DefaultShapes(50), decode(t, tt.body))
			assert.Equal(t, tt.shape, shape)
			if diff := cmp.Diff(tt.want, flatten(pages)); diff != "" {
				t.Errorf("pages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTryShapesNoMatch(t *testing.T) {
	pages, shape := TryShapes(DefaultShapes(50), decode(t, `{"status":"ok","n":3}`))
	assert.Empty(t, pages)
	assert.Empty(t, shape)
}

func TestExtractMetadataJSON(t *testing.T) {
	m := ExtractMetadataJSON(decode(t, `{"result":{"title":"Dune","authors":["Frank Herbert","Brian Herbert"],"asin":"B009SE1Z9E"}}`))
	assert.Equal(t, "Dune", m.Title)
	assert.Equal(t, "Frank Herbert, Brian Herbert", m.Author)
	assert.Equal(t, "B009SE1Z9E", m.ID)

	m = ExtractMetadataJSON(decode(t, `{"title":"Top","data":{"title":"Inner","author":"A"}}`))
	assert.Equal(t, "Top", m.Title)
	assert.Equal(t, "A", m.Author)

	assert.True(t, ExtractMetadataJSON(decode(t, `[1,2]`)).IsZero())
}
