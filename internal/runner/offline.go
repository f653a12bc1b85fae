package runner

import (
	"context"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/book"
	"github.com/marcosevegrand/kindle-extract/internal/browser"
	"github.com/marcosevegrand/kindle-extract/internal/extractor"
	"github.com/marcosevegrand/kindle-extract/internal/navigator"
	"github.com/marcosevegrand/kindle-extract/internal/reconcile"
)

// Parse builds a document from recorded responses and writes it, without
// a session or a browser. id may be empty.
func (r *Runner) Parse(ctx context.Context, id string, events []browser.NetworkEvent) (*Report, error) {
	if r.Progress == nil {
		r.Progress = NewProgress(DefaultMaxLogs)
	}
	r.reconciler = reconcile.New(r.Logger)

	report := &Report{ASIN: id, StartedAt: time.Now()}
	doc := book.NewDocument(id)
	report.Document = doc
	r.Progress.Start(len(events))
	r.Logger.Info("parsing recorded responses", "events", len(events))

	parser := extractor.NewNetworkProbe(ProbeOptions(r.Config.Probes), r.Logger)
	report.State = navigator.StateDone.String()
	for i, ev := range events {
		if ctx.Err() != nil {
			report.State = navigator.StateAborted.String()
			report.Reason = navigator.ReasonCancelled
			break
		}
		r.parse(parser, ev, doc, i+1)
		r.Progress.Advance(i+1, len(events))
	}
	return r.finish(report, doc)
}
