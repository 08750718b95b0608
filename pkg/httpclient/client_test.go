package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = retries
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return cfg
}

type bodyLog struct {
	mu     sync.Mutex
	bodies []string
}

func (l *bodyLog) add(b string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bodies = append(l.bodies, b)
}

func (l *bodyLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func countingServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32, *bodyLog) {
	t.Helper()
	var calls atomic.Int32
	bodies := &bodyLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		b, _ := io.ReadAll(r.Body)
		bodies.add(string(b))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, bodies
}

func TestDo_Retries5xx(t *testing.T) {
	srv, calls, _ := countingServer(t, 502, 503, 200)

	resp, err := New(fastConfig(3)).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RewindsBodyOnRetry(t *testing.T) {
	srv, calls, bodies := countingServer(t, 500, 200)

	resp, err := New(fastConfig(2)).Post(context.Background(), srv.URL, "application/json", strings.NewReader(`{"session_id":"cs_1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{`{"session_id":"cs_1"}`, `{"session_id":"cs_1"}`}, bodies.all())
}

func TestDo_NoRetries(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		retries int
	}{
		{"501 is final", http.StatusNotImplemented, 3},
		{"4xx is final", http.StatusBadRequest, 3},
		{"retries disabled", http.StatusInternalServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls, _ := countingServer(t, tt.status)

			resp, err := New(fastConfig(tt.retries)).Get(context.Background(), srv.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	srv, _, _ := countingServer(t, 503)
	cfg := fastConfig(5)
	cfg.RetryWaitMin = time.Second
	cfg.RetryWaitMax = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(cfg).Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_InvalidURL(t *testing.T) {
	_, err := New(fastConfig(0)).Get(context.Background(), "://bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create GET request")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(context.DeadlineExceeded))
}

func TestAddJitter(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		got := addJitter(d)
		assert.GreaterOrEqual(t, got, d/2)
		assert.Less(t, got, d)
	}
	assert.Equal(t, time.Duration(0), addJitter(0))
	assert.Equal(t, time.Duration(1), addJitter(1))
}
