package extractor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// scriptTemplate reads innerText of the first containers present and an
// HTML dump of the structural containers. It never mutates the page.
const scriptTemplate = `(() => {
	const containers = %s;
	const dumps = %s;
	const parts = [];
	for (const sel of containers) {
		for (const el of document.querySelectorAll(sel)) {
			const t = (el.innerText || "").trim();
			if (t) parts.push(t);
		}
		if (parts.length) break;
	}
	let dump = "";
	for (const sel of dumps) {
		const el = document.querySelector(sel);
		if (el) { dump = el.innerHTML; break; }
	}
	return {text: parts.join("\n"), dump: dump};
})()`

type scriptResult struct {
	Text string `json:"text"`
	Dump string `json:"dump"`
}

// ScriptProbe extracts text by evaluating a read-only script in the view.
type ScriptProbe struct {
	Options *Options
	script  string
}

// NewScriptProbe builds the injected script from opts.
func NewScriptProbe(opts *Options) *ScriptProbe {
	if opts == nil {
		opts = DefaultOptions()
	}
	containers, _ := json.Marshal(opts.ScriptContainers)
	dumps, _ := json.Marshal(opts.DumpContainers)
	return &ScriptProbe{
		Options: opts,
		script:  fmt.Sprintf(scriptTemplate, containers, dumps),
	}
}

// Script returns the JavaScript evaluated by the probe.
func (p *ScriptProbe) Script() string { return p.script }

func (p *ScriptProbe) Name() string    { return "script" }
func (p *ScriptProbe) Tier() book.Tier { return book.TierScript }

func (p *ScriptProbe) Probe(ctx context.Context, view *View) ([]book.Candidate, error) {
	var res scriptResult
	if err := view.Browser.Evaluate(ctx, p.script, &res); err != nil {
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}

	text := formatter.NewTextProcessor().Process(res.Text)
	if len(text) < p.Options.MinContentLength && res.Dump != "" {
		text = formatter.ExtractTextContent(res.Dump)
	}
	if len(text) < p.Options.MinContentLength {
		return nil, fmt.Errorf("text too short (%d chars)", len(text))
	}
	return []book.Candidate{book.Unkeyed(text, book.TierScript)}, nil
}
