package extractor

import (
	"log/slog"
	"slices"

	"github.com/marcosevegrand/kindle-extract/internal/evidence"
)

// NewDefaultProbeSet returns the enabled probes in tier order, matched by
// Name. An empty enabled list enables every probe. The screenshot probe
// also needs ev.
func NewDefaultProbeSet(opts *Options, enabled []string, ev *evidence.Store, logger *slog.Logger) *ProbeSet {
	if opts == nil {
		opts = DefaultOptions()
	}
	all := []Probe{
		NewNetworkProbe(opts, logger),
		NewScriptProbe(opts),
		NewDOMProbe(opts),
		NewRawHTMLProbe(opts),
		NewImageProbe(opts),
	}
	if ev != nil {
		all = append(all, NewScreenshotProbe(ev))
	}

	set := NewProbeSet(logger)
	for _, p := range all {
		if len(enabled) == 0 || slices.Contains(enabled, p.Name()) {
			set.AddProbe(p)
		}
	}
	return set
}
