package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

const imageScriptTemplate = `(() => {
	const out = [];
	const seen = new Set();
	for (const sel of %s) {
		for (const el of document.querySelectorAll(sel)) {
			if (seen.has(el)) continue;
			seen.add(el);
			let src = "";
			if (el.tagName === "CANVAS") {
				try { src = el.toDataURL("image/png"); } catch (e) { continue; }
			} else {
				src = el.currentSrc || el.src || "";
			}
			if (src) out.push({src: src, alt: el.alt || el.getAttribute("aria-label") || ""});
		}
	}
	return out;
})()`

type imageElement struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// ImageProbe collects images and canvases visible on the page.
type ImageProbe struct {
	Options *Options
	script  string
}

// NewImageProbe builds the image scan script from opts.ImageSelectors.
func NewImageProbe(opts *Options) *ImageProbe {
	if opts == nil {
		opts = DefaultOptions()
	}
	sels, _ := json.Marshal(opts.ImageSelectors)
	return &ImageProbe{Options: opts, script: fmt.Sprintf(imageScriptTemplate, sels)}
}

// Script returns the JavaScript evaluated by the probe.
func (p *ImageProbe) Script() string { return p.script }

func (p *ImageProbe) Name() string    { return "image" }
func (p *ImageProbe) Tier() book.Tier { return book.TierDOM }

func (p *ImageProbe) Probe(ctx context.Context, view *View) ([]book.Candidate, error) {
	var elems []imageElement
	if err := view.Browser.Evaluate(ctx, p.script, &elems); err != nil {
		return nil, fmt.Errorf("image scan failed: %w", err)
	}

	key := book.IntKey(view.Page)
	seen := make(map[string]bool)
	var cands []book.Candidate
	for _, el := range elems {
		if seen[el.Src] {
			continue
		}
		seen[el.Src] = true
		asset, ok := NewImageAsset(view.Page, len(cands), el.Src, el.Alt)
		if !ok {
			continue
		}
		asset.Key = key
		cands = append(cands, book.Candidate{Key: &key, Image: &asset, Tier: book.TierDOM})
	}
	return cands, nil
}

// NewImageAsset describes an image found at src on page. Data URLs are
// decoded; blob and http(s) references are kept as Src. Any other scheme
// is rejected.
func NewImageAsset(page, index int, src, alt string) (book.ImageAsset, bool) {
	asset := book.ImageAsset{
		Key:     book.IntKey(page),
		Index:   index,
		AltText: strings.TrimSpace(alt),
	}
	if asset.AltText == "" {
		asset.AltText = fmt.Sprintf("Image_%d_%d", page, index)
	}

	ext := ".png"
	switch {
	case strings.HasPrefix(src, "data:"):
		du, err := dataurl.DecodeString(src)
		if err != nil || len(du.Data) == 0 {
			return asset, false
		}
		asset.Data = du.Data
		m := mimetype.Detect(du.Data)
		asset.MimeType = m.String()
		if strings.HasPrefix(asset.MimeType, "image/") {
			ext = m.Extension()
		} else if du.ContentType() != "" {
			asset.MimeType = du.ContentType()
			ext = extensionFor(asset.MimeType)
		}
		// Keep the reference short; the bytes are in Data.
		asset.Src = fmt.Sprintf("data:%s;%d bytes", asset.MimeType, len(du.Data))
	case strings.HasPrefix(src, "blob:"), strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		asset.Src = src
		if m := mimetype.Lookup(mimeFromPath(src)); m != nil {
			asset.MimeType = m.String()
			ext = m.Extension()
		}
	default:
		return asset, false
	}

	asset.FileName = fmt.Sprintf("image_%d_%d%s", page, index, ext)
	return asset, true
}

func mimeFromPath(src string) string {
	path := src
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch strings.ToLower(path[strings.LastIndex(path, ".")+1:]) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "png":
		return "image/png"
	}
	return ""
}

func extensionFor(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".png"
}
