package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLogCap(t *testing.T) {
	p := NewProgress(3)
	for i := 1; i <= 5; i++ {
		p.Log(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, p.Snapshot().Log)
}

func TestProgressSnapshotIsStable(t *testing.T) {
	p := NewProgress(10)
	p.Log("first")
	snap := p.Snapshot()
	p.Log("second")
	assert.Equal(t, []string{"first"}, snap.Log)
}

func TestProgressPercent(t *testing.T) {
	p := NewProgress(0)
	assert.Equal(t, "idle", p.Snapshot().State)

	p.Start(4)
	p.Advance(1, 4)
	s := p.Snapshot()
	assert.True(t, s.Running)
	assert.Equal(t, 25, s.Progress)

	p.Advance(6, 4)
	assert.Equal(t, 100, p.Snapshot().Progress)

	p.Finish("aborted", []string{"out.txt"}, errors.New("stopped"))
	s = p.Snapshot()
	assert.False(t, s.Running)
	assert.Equal(t, "aborted", s.State)
	assert.Equal(t, "stopped", s.Error)
	assert.Equal(t, []string{"out.txt"}, s.Outputs)

	p = NewProgress(0)
	p.Start(50)
	p.Advance(3, 0)
	p.Finish("done", nil, nil)
	assert.Equal(t, 100, p.Snapshot().Progress)
}

func TestProgressConcurrentReaders(t *testing.T) {
	p := NewProgress(DefaultMaxLogs)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p.Log("x")
			p.Advance(i, 500)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s := p.Snapshot()
			assert.LessOrEqual(t, len(s.Log), DefaultMaxLogs)
		}
	}()
	wg.Wait()
	assert.Len(t, p.Snapshot().Log, DefaultMaxLogs)
}

type discardHandler struct{ handled int }

func (h *discardHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= slog.LevelWarn }
func (h *discardHandler) Handle(context.Context, slog.Record) error  { h.handled++; return nil }
func (h *discardHandler) WithAttrs([]slog.Attr) slog.Handler          { return h }
func (h *discardHandler) WithGroup(string) slog.Handler               { return h }

func TestProgressHandlerTeesInfo(t *testing.T) {
	p := NewProgress(10)
	next := &discardHandler{}
	logger := slog.New(NewProgressHandler(next, p)).With("run", "r1")

	logger.Debug("hidden")
	logger.Info("page captured", "page", 2)
	logger.Warn("slow")

	lines := p.Snapshot().Log
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO page captured page=2")
	assert.Contains(t, lines[1], "WARN slow")
	assert.Equal(t, 1, next.handled)
}
