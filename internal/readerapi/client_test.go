package readerapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, legacyHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/service/metadata", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"asin":%q,"title":"Dune","authors":["Frank Herbert"]}`, r.URL.Query().Get("asin"))
	})
	mux.HandleFunc("/service/reader/content", func(w http.ResponseWriter, r *http.Request) {
		legacyHits.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/book/content", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "3" {
			fmt.Fprint(w, "End of book reached")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content":[{"pageNumber":%s,"text":"page %s"}]}`, page, page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetchesPagesUntilEndOfBook(t *testing.T) {
	var legacy atomic.Int32
	srv := newServer(t, &legacy)
	c := New(resty.New(), srv.URL, 0, nil)
	ctx := context.Background()

	meta, err := c.Metadata(ctx, "B009SE1Z9E")
	require.NoError(t, err)
	assert.Contains(t, string(meta.Body), `"title":"Dune"`)
	assert.Contains(t, meta.URL, "/service/metadata?asin=B009SE1Z9E")
	assert.True(t, meta.IsJSON())

	ev, err := c.Page(ctx, "B009SE1Z9E", 1)
	require.NoError(t, err)
	assert.Contains(t, ev.URL, "/api/book/content")
	assert.Contains(t, ev.URL, "page=1")
	assert.JSONEq(t, `{"content":[{"pageNumber":1,"text":"page 1"}]}`, string(ev.Body))

	_, err = c.Page(ctx, "B009SE1Z9E", 2)
	require.NoError(t, err)

	_, err = c.Page(ctx, "B009SE1Z9E", 3)
	assert.ErrorIs(t, err, ErrEndOfBook)

	// The endpoint that answered is remembered.
	assert.Equal(t, int32(1), legacy.Load())
}

func TestClientAllNotFoundEndsBook(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := New(resty.New(), srv.URL, 0, nil).Page(context.Background(), "B0", 1)
	assert.ErrorIs(t, err, ErrEndOfBook)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(resty.New(), srv.URL, 0, nil)
	_, err := c.Page(context.Background(), "B0", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEndOfBook)
	assert.Contains(t, err.Error(), "500")

	_, err = c.Metadata(context.Background(), "B0")
	assert.Error(t, err)
}

func TestClientRateLimit(t *testing.T) {
	var legacy atomic.Int32
	srv := newServer(t, &legacy)
	c := New(resty.New(), srv.URL, 40*time.Millisecond, nil)

	start := time.Now()
	_, err := c.Metadata(context.Background(), "B0")
	require.NoError(t, err)
	_, err = c.Metadata(context.Background(), "B0")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	var legacy atomic.Int32
	srv := newServer(t, &legacy)
	c := New(resty.New(), srv.URL, time.Hour, nil)

	_, err := c.Metadata(context.Background(), "B0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Metadata(ctx, "B0")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
