package extractor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// PageText is a (key, text) pair recovered from a JSON payload. Key is nil
// when the payload does not say which page it holds.
type PageText struct {
	Key  *book.PageKey
	Text string
}

// ShapeStrategy recognizes one JSON layout. The service's schema is not
// documented, so every layout is a guess.
type ShapeStrategy interface {
	Name() string
	TryExtract(v any) ([]PageText, bool)
}

// DefaultShapes returns the layouts in the order they are tried.
func DefaultShapes(minScan int) []ShapeStrategy {
	return []ShapeStrategy{
		contentListShape{},
		contentDictShape{},
		resultContentShape{},
		htmlBodyShape{},
		contentStringShape{},
		topTextShape{},
		dataFieldShape{},
		itemListShape{},
		&deepScanShape{MinLength: minScan},
	}
}

// TryShapes returns the output of the first strategy that recognizes v.
func TryShapes(shapes []ShapeStrategy, v any) ([]PageText, string) {
	for _, s := range shapes {
		if pages, ok := s.TryExtract(v); ok && len(pages) > 0 {
			return pages, s.Name()
		}
	}
	return nil, ""
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func pageKeyOf(v any) (*book.PageKey, bool) {
	switch t := v.(type) {
	case float64:
		k, ok := book.FloatKey(t)
		if !ok {
			return nil, false
		}
		return &k, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		k := book.StringKey(t)
		return &k, true
	}
	return nil, false
}

func textOf(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = formatter.ExtractTextContent(s)
	return s, s != ""
}

// pageItem reads {pageNumber|page, text|content}.
func pageItem(v any) (PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return PageText{}, false
	}
	var text string
	for _, f := range []string{"text", "content"} {
		if t, ok := textOf(obj[f]); ok {
			text = t
			break
		}
	}
	if text == "" {
		return PageText{}, false
	}
	pt := PageText{Text: text}
	for _, f := range []string{"pageNumber", "page", "pageNum"} {
		if k, ok := pageKeyOf(obj[f]); ok {
			pt.Key = k
			break
		}
	}
	return pt, true
}

func itemsOf(list []any, requireKey bool) []PageText {
	var out []PageText
	for _, item := range list {
		pt, ok := pageItem(item)
		if !ok || (requireKey && pt.Key == nil) {
			continue
		}
		out = append(out, pt)
	}
	return out
}

// contentListShape: {"content": [{"pageNumber": 1, "text": "..."}]}. Items
// without page numbers, or bare strings, are joined into one page.
type contentListShape struct{}

func (contentListShape) Name() string { return "content_list" }

func (contentListShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	list, ok := obj["content"].([]any)
	if !ok {
		return nil, false
	}
	if pages := itemsOf(list, true); len(pages) > 0 {
		return pages, true
	}
	var parts []string
	for _, item := range list {
		if text, ok := textOf(item); ok {
			parts = append(parts, text)
		} else if pt, ok := pageItem(item); ok {
			parts = append(parts, pt.Text)
		}
	}
	if len(parts) == 0 {
		return nil, false
	}
	return []PageText{{Text: strings.Join(parts, "\n")}}, true
}

// contentDictShape: {"content": {"12": "...", "13": "..."}}
type contentDictShape struct{}

func (contentDictShape) Name() string { return "content_dict" }

func (contentDictShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	dict, ok := asObject(obj["content"])
	if !ok {
		return nil, false
	}
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return book.StringKey(keys[i]).Less(book.StringKey(keys[j])) })

	var pages []PageText
	for _, k := range keys {
		text, ok := textOf(dict[k])
		if !ok {
			if item, isItem := pageItem(dict[k]); isItem {
				text, ok = item.Text, true
			}
		}
		if !ok {
			continue
		}
		key := book.StringKey(k)
		pages = append(pages, PageText{Key: &key, Text: text})
	}
	return pages, len(pages) > 0
}

// resultContentShape: {"result": {"content": [...]}}
type resultContentShape struct{}

func (resultContentShape) Name() string { return "result_content" }

func (resultContentShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	inner, ok := asObject(obj["result"])
	if !ok {
		return nil, false
	}
	if pages, ok := (contentListShape{}).TryExtract(inner); ok {
		return pages, true
	}
	return contentDictShape{}.TryExtract(inner)
}

// htmlBodyShape: {"html": "<div>...</div>"} or {"body": "..."}
type htmlBodyShape struct{}

func (htmlBodyShape) Name() string { return "html_body" }

func (htmlBodyShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	for _, f := range []string{"html", "body"} {
		if text, ok := textOf(obj[f]); ok {
			return []PageText{{Text: text}}, true
		}
	}
	return nil, false
}

// contentStringShape: {"content": "..."}
type contentStringShape struct{}

func (contentStringShape) Name() string { return "content_string" }

func (contentStringShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	if text, ok := textOf(obj["content"]); ok {
		return []PageText{withPageField(obj, text)}, true
	}
	return nil, false
}

// topTextShape: {"text": "..."}
type topTextShape struct{}

func (topTextShape) Name() string { return "text" }

func (topTextShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	if text, ok := textOf(obj["text"]); ok {
		return []PageText{withPageField(obj, text)}, true
	}
	return nil, false
}

func withPageField(obj map[string]any, text string) PageText {
	pt := PageText{Text: text}
	for _, f := range []string{"pageNumber", "page"} {
		if k, ok := pageKeyOf(obj[f]); ok {
			pt.Key = k
			break
		}
	}
	return pt
}

// dataFieldShape: {"data": {"content": ...}} or {"data": {"text": "..."}}
type dataFieldShape struct{}

func (dataFieldShape) Name() string { return "data" }

func (dataFieldShape) TryExtract(v any) ([]PageText, bool) {
	obj, ok := asObject(v)
	if !ok {
		return nil, false
	}
	data, ok := asObject(obj["data"])
	if !ok {
		return nil, false
	}
	for _, s := range []ShapeStrategy{contentListShape{}, contentDictShape{}, contentStringShape{}, topTextShape{}} {
		if pages, ok := s.TryExtract(data); ok {
			return pages, true
		}
	}
	return nil, false
}

// itemListShape: [{"content": "..."}, {"text": "...", "pageNumber": 3}]
type itemListShape struct{}

func (itemListShape) Name() string { return "item_list" }

func (itemListShape) TryExtract(v any) ([]PageText, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	pages := itemsOf(list, false)
	return pages, len(pages) > 0
}

// deepScanShape walks the payload for long strings. It is the last resort
// and yields unkeyed text only.
type deepScanShape struct {
	MinLength int
}

func (*deepScanShape) Name() string { return "deep_scan" }

func (s *deepScanShape) TryExtract(v any) ([]PageText, bool) {
	min := s.MinLength
	if min <= 0 {
		min = 50
	}
	var found []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if len(t) > min {
				if text := formatter.ExtractTextContent(t); len(text) > min && !looksLikeToken(text) {
					found = append(found, text)
				}
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		}
	}
	walk(v)
	if len(found) == 0 {
		return nil, false
	}
	return []PageText{{Text: strings.Join(found, "\n\n")}}, true
}

// looksLikeToken filters out long opaque values such as base64 or JWTs.
func looksLikeToken(s string) bool {
	if strings.ContainsAny(s, " \n") {
		return false
	}
	return len(s) > 0
}

// metaString reads a string or a list of strings joined with ", ".
func metaString(v any) string {
	switch t := v.(type) {
	case string:
		return formatter.CleanTitle(t)
	case []any:
		var parts []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, formatter.CleanTitle(s))
			}
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// ExtractMetadataJSON reads title, author(s) and asin from a metadata
// payload, looking one level into "result" and "data" wrappers.
func ExtractMetadataJSON(v any) book.Metadata {
	var m book.Metadata
	obj, ok := asObject(v)
	if !ok {
		return m
	}
	objs := []map[string]any{obj}
	for _, w := range []string{"result", "data", "metadata"} {
		if inner, ok := asObject(obj[w]); ok {
			objs = append(objs, inner)
		}
	}
	for _, o := range objs {
		if m.Title == "" {
			m.Title = metaString(o["title"])
		}
		if m.Author == "" {
			m.Author = metaString(o["author"])
		}
		if m.Author == "" {
			m.Author = metaString(o["authors"])
		}
		if m.ID == "" {
			m.ID = metaString(o["asin"])
		}
	}
	return m
}
