package runner

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/kindle-extract/internal/browser/browsertest"
	"github.com/marcosevegrand/kindle-extract/internal/navigator"
	"github.com/marcosevegrand/kindle-extract/internal/store"
)

// fakeFactory serves every request from one never-changing view, so a run
// captures page 1 and then waits until stopped.
func fakeFactory(t *testing.T) (Factory, *browsertest.Fake) {
	cfg := testConfig(t)
	cfg.Detection.MaxStalls = 0
	cfg.Detection.TurnTimeoutMS = 10000
	f := browsertest.New(readerViews("A single page that never turns over.")...)
	f.AdvanceOnTurn = false

	factory := func(ctx context.Context, req Request, logger *slog.Logger) (*Runner, func(), error) {
		return New(cfg, f, cachedSession(t, cfg, f), logger), func() { f.Close() }, nil
	}
	return factory, f
}

func TestManagerStartStopWait(t *testing.T) {
	factory, f := fakeFactory(t)
	history, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer history.Close()

	m := NewManager(factory, history, nil)
	id, err := m.Start(Request{Target: "B009SE1Z9E", MaxPages: 10})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := m.Status(id)
		return err == nil && st.CurrentPage == 1
	}, 5*time.Second, 5*time.Millisecond)

	st, err := m.Status(id)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, 10, st.TotalPages)
	assert.Equal(t, 10, st.Progress)
	assert.NotEmpty(t, st.Log)

	require.NoError(t, m.Stop(id))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := m.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, navigator.StateAborted.String(), report.State)
	assert.Equal(t, 1, report.Pages)
	assert.NotEmpty(t, report.Outputs)
	assert.True(t, f.Closed())

	st, err = m.Status(id)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, report.Outputs, st.Outputs)

	recorded, err := history.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "aborted", recorded.State)
	assert.Equal(t, 1, recorded.Pages)

	require.Len(t, m.List(), 1)
}

func TestManagerUnknownRun(t *testing.T) {
	factory, _ := fakeFactory(t)
	m := NewManager(factory, nil, nil)

	_, err := m.Status("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, m.Stop("missing"), ErrRunNotFound)
	_, err = m.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = m.Start(Request{})
	assert.Error(t, err)
}

func TestManagerShutdownStopsRuns(t *testing.T) {
	factory, _ := fakeFactory(t)
	m := NewManager(factory, nil, nil)
	id, err := m.Start(Request{Target: "B009SE1Z9E"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := m.Status(id)
		return st.CurrentPage == 1
	}, 5*time.Second, 5*time.Millisecond)

	m.Shutdown()
	st, err := m.Status(id)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, "aborted", st.State)
}

func TestRequestParams(t *testing.T) {
	p := Request{Target: "B009SE1Z9E", Email: "a@b.c", Password: "pw", SettleDelayMS: 1500, Mode: "step"}.Params()
	assert.Equal(t, "a@b.c", p.Credentials.Email)
	assert.True(t, p.Credentials.RememberMe)
	assert.Equal(t, 1500*time.Millisecond, p.SettleDelay)
	assert.Equal(t, "step", p.Mode)
}
