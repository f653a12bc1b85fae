package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxLogs caps the log lines a Progress keeps.
const DefaultMaxLogs = 100

// Progress is the status record of one run. The run goroutine writes it;
// any goroutine may read it through Snapshot.
type Progress struct {
	maxLogs int

	running atomic.Bool
	current atomic.Int64
	total   atomic.Int64
	state   atomic.Pointer[string]
	errMsg  atomic.Pointer[string]
	outputs atomic.Pointer[[]string]
	logs    atomic.Pointer[[]string]

	// logMu serializes writers; readers load the slice without locking.
	logMu sync.Mutex
}

// Snapshot is a point-in-time copy of a Progress.
type Snapshot struct {
	Running     bool     `json:"running"`
	Progress    int      `json:"progress"`
	CurrentPage int      `json:"currentPage"`
	TotalPages  int      `json:"totalPages"`
	State       string   `json:"state"`
	Error       string   `json:"error,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
	Log         []string `json:"log"`
}

// NewProgress returns an idle record keeping at most maxLogs lines.
func NewProgress(maxLogs int) *Progress {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	p := &Progress{maxLogs: maxLogs}
	p.SetState("idle")
	empty := []string{}
	p.logs.Store(&empty)
	return p
}

// Start marks the run as running with total planned pages.
func (p *Progress) Start(total int) {
	p.total.Store(int64(total))
	p.current.Store(0)
	p.running.Store(true)
	p.SetState("running")
}

// SetState records a state name.
func (p *Progress) SetState(state string) {
	p.state.Store(&state)
}

// Advance records that page of total has been captured.
func (p *Progress) Advance(page, total int) {
	p.current.Store(int64(page))
	if total > 0 {
		p.total.Store(int64(total))
	}
}

// Finish marks the run as stopped in state with its outputs and error.
func (p *Progress) Finish(state string, outputs []string, err error) {
	out := append([]string(nil), outputs...)
	p.outputs.Store(&out)
	if err != nil {
		msg := err.Error()
		p.errMsg.Store(&msg)
	}
	p.SetState(state)
	p.running.Store(false)
}

// Log appends a line, dropping the oldest past the cap. The slice is
// replaced, never modified in place.
func (p *Progress) Log(line string) {
	p.logMu.Lock()
	defer p.logMu.Unlock()

	prev := *p.logs.Load()
	start := 0
	if len(prev)+1 > p.maxLogs {
		start = len(prev) + 1 - p.maxLogs
	}
	next := make([]string, 0, len(prev)-start+1)
	next = append(next, prev[start:]...)
	next = append(next, line)
	p.logs.Store(&next)
}

// Snapshot returns the current values.
func (p *Progress) Snapshot() Snapshot {
	s := Snapshot{
		Running:     p.running.Load(),
		CurrentPage: int(p.current.Load()),
		TotalPages:  int(p.total.Load()),
		State:       *p.state.Load(),
		Log:         *p.logs.Load(),
	}
	if e := p.errMsg.Load(); e != nil {
		s.Error = *e
	}
	if o := p.outputs.Load(); o != nil {
		s.Outputs = *o
	}
	switch {
	case !s.Running && s.State == "done":
		s.Progress = 100
	case s.TotalPages > 0:
		s.Progress = min(100, s.CurrentPage*100/s.TotalPages)
	}
	return s
}

// progressHandler copies Info and above into a Progress before passing
// records on.
type progressHandler struct {
	next     slog.Handler
	progress *Progress
}

// NewProgressHandler tees records at Info or above into p.
func NewProgressHandler(next slog.Handler, p *Progress) slog.Handler {
	return &progressHandler{next: next, progress: p}
}

func (h *progressHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *progressHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelInfo {
		h.progress.Log(formatRecord(r))
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *progressHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &progressHandler{next: h.next.WithAttrs(attrs), progress: h.progress}
}

func (h *progressHandler) WithGroup(name string) slog.Handler {
	return &progressHandler{next: h.next.WithGroup(name), progress: h.progress}
}

func formatRecord(r slog.Record) string {
	var b strings.Builder
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	fmt.Fprintf(&b, "%s %s %s", t.Format("15:04:05"), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	return b.String()
}
