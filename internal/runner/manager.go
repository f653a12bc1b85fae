package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/marcosevegrand/kindle-extract/internal/store"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("runner: run not found")

// Status is what the control surface reports for a run.
type Status struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"startedAt"`
	Snapshot
}

type managedRun struct {
	id       string
	target   string
	started  time.Time
	progress *Progress
	cancel   context.CancelFunc
	done     chan struct{}

	report *Report
	err    error
}

// Manager runs extractions in the background. Every run gets its own
// Runner, browser and session.
type Manager struct {
	factory Factory
	history *store.Store
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]*managedRun
	wg   sync.WaitGroup
}

// NewManager creates a Manager. history may be nil.
func NewManager(factory Factory, history *store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{factory: factory, history: history, logger: logger, runs: make(map[string]*managedRun)}
}

// Start launches a run and returns its id.
func (m *Manager) Start(req Request) (string, error) {
	if req.Target == "" {
		return "", fmt.Errorf("target is required")
	}
	id := uuid.Must(uuid.NewV4()).String()

	progress := NewProgress(DefaultMaxLogs)
	logger := slog.New(NewProgressHandler(m.logger.Handler(), progress)).With("run", id)

	ctx, cancel := context.WithCancel(context.Background())
	r, cleanup, err := m.factory(ctx, req, logger)
	if err != nil {
		cancel()
		return "", err
	}
	r.Progress = progress
	r.Logger = logger

	run := &managedRun{
		id:       id,
		target:   req.Target,
		started:  time.Now(),
		progress: progress,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.mu.Lock()
	m.runs[id] = run
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(run.done)
		defer cancel()
		defer cleanup()

		report, err := r.Run(ctx, req.Params())
		m.mu.Lock()
		run.report, run.err = report, err
		m.mu.Unlock()
		m.record(id, report, err)
	}()

	m.logger.Info("run started", "run", id, "target", req.Target)
	return id, nil
}

func (m *Manager) record(id string, report *Report, runErr error) {
	if m.history == nil || report == nil {
		return
	}
	entry := store.Run{
		ID:         id,
		ASIN:       report.ASIN,
		Title:      report.Title,
		Author:     report.Author,
		State:      report.State,
		Reason:     report.Reason,
		Pages:      report.Pages,
		Outputs:    report.Outputs,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := m.history.Record(context.Background(), entry); err != nil {
		m.logger.Warn("could not record run", "run", id, "err", err)
	}
}

func (m *Manager) get(id string) (*managedRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Status returns the progress of a run.
func (m *Manager) Status(id string) (Status, error) {
	run, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	return Status{ID: run.id, Target: run.target, StartedAt: run.started, Snapshot: run.progress.Snapshot()}, nil
}

// List returns every run of this process, oldest first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	runs := make([]*managedRun, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].started.Before(runs[j].started) })
	out := make([]Status, 0, len(runs))
	for _, run := range runs {
		out = append(out, Status{ID: run.id, Target: run.target, StartedAt: run.started, Snapshot: run.progress.Snapshot()})
	}
	return out
}

// Stop cancels a run. The run still writes what it captured.
func (m *Manager) Stop(id string) error {
	run, err := m.get(id)
	if err != nil {
		return err
	}
	run.cancel()
	m.logger.Info("stop requested", "run", id)
	return nil
}

// Wait blocks until the run ends and returns its report.
func (m *Manager) Wait(ctx context.Context, id string) (*Report, error) {
	run, err := m.get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-run.done:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return run.report, run.err
}

// Shutdown stops every run and waits for them to finish writing.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, run := range m.runs {
		run.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
