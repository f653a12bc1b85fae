package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	run := Run{
		ID:         "run-1",
		ASIN:       "B009SE1Z9E",
		Title:      "Quantum Poker",
		Author:     "Someone",
		State:      "done",
		Reason:     "max_pages",
		Pages:      3,
		Outputs:    []string{"books/quantum_poker.txt", "books/quantum_poker.json"},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ASIN, got.ASIN)
	assert.Equal(t, run.Title, got.Title)
	assert.Equal(t, run.Reason, got.Reason)
	assert.Equal(t, 3, got.Pages)
	assert.Equal(t, run.Outputs, got.Outputs)
	assert.True(t, run.FinishedAt.Equal(got.FinishedAt))
}

func TestRecordReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, Run{ID: "r", State: "advancing", StartedAt: now, FinishedAt: now}))
	require.NoError(t, s.Record(ctx, Run{ID: "r", State: "aborted", Error: "boom", Pages: 2, StartedAt: now, FinishedAt: now}))

	got, err := s.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "aborted", got.State)
	assert.Equal(t, "boom", got.Error)
	assert.Empty(t, got.Outputs)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Record(context.Background(), Run{State: "done"}))
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Record(ctx, Run{ID: id, State: "done", StartedAt: at, FinishedAt: at}))
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
