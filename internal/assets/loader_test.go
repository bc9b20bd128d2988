package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cdn(t *testing.T, fail *atomic.Bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte("/* " + r.URL.Path + " */"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadFetchesOnceForConcurrentCallers(t *testing.T) {
	var fail atomic.Bool
	var hits atomic.Int32
	srv := cdn(t, &fail, &hits)
	l := NewLoader(srv.URL+"/", srv.Client(), zap.NewNop())
	assert.Equal(t, Unloaded, l.State())

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Load(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, Ready, l.State())
	assert.EqualValues(t, len(Files), hits.Load())

	require.NoError(t, l.Load(context.Background()))
	assert.EqualValues(t, len(Files), hits.Load(), "ready loader does not fetch again")

	js, ok := l.Get("leaflet.js")
	require.True(t, ok)
	assert.Equal(t, "/* /leaflet.js */", string(js.Body))
}

func TestLoadFailureIsRetriedByNextCaller(t *testing.T) {
	var fail atomic.Bool
	var hits atomic.Int32
	fail.Store(true)
	srv := cdn(t, &fail, &hits)
	l := NewLoader(srv.URL, srv.Client(), zap.NewNop())
	l.retry.MaxAttempts = 1

	require.Error(t, l.Load(context.Background()))
	assert.Equal(t, Failed, l.State())

	fail.Store(false)
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, Ready, l.State())
}

func TestLoadHonoursCallerContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	l := NewLoader(srv.URL, srv.Client(), zap.NewNop())
	l.retry.MaxAttempts = 1

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, l.Load(ctx), context.DeadlineExceeded)
	assert.Equal(t, Loading, l.State())

	l.mu.Lock()
	pending := l.current
	l.mu.Unlock()
	require.NotNil(t, pending)

	close(block)
	select {
	case <-pending.done:
	case <-time.After(5 * time.Second):
		t.Fatal("background load did not finish")
	}
	require.NoError(t, pending.err)
	assert.Equal(t, Ready, l.State())
}

func TestServeHTTP(t *testing.T) {
	var fail atomic.Bool
	var hits atomic.Int32
	srv := cdn(t, &fail, &hits)
	l := NewLoader(srv.URL, srv.Client(), zap.NewNop())

	mux := http.NewServeMux()
	mux.Handle("/assets/{name}", l)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/leaflet.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/other.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
