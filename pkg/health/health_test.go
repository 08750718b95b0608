package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func down(msg string) Checker {
	return func(context.Context) error { return errors.New(msg) }
}

func ready(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler()
	h.Register("redis", down("connection refused"))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(h *Handler)
		wantCode    int
		wantOverall Status
	}{
		{
			name:        "no checkers",
			setup:       func(*Handler) {},
			wantCode:    http.StatusOK,
			wantOverall: StatusUp,
		},
		{
			name: "all up",
			setup: func(h *Handler) {
				h.RegisterCritical("redis", up)
				h.RegisterNonCritical("kafka", up)
			},
			wantCode:    http.StatusOK,
			wantOverall: StatusUp,
		},
		{
			name: "non-critical down degrades",
			setup: func(h *Handler) {
				h.RegisterCritical("redis", up)
				h.RegisterNonCritical("kafka", down("broker unreachable"))
				h.RegisterNonCritical("backend", down("circuit open"))
			},
			wantCode:    http.StatusOK,
			wantOverall: StatusDegraded,
		},
		{
			name: "critical down fails",
			setup: func(h *Handler) {
				h.RegisterCritical("redis", down("connection refused"))
				h.RegisterNonCritical("kafka", down("broker unreachable"))
			},
			wantCode:    http.StatusServiceUnavailable,
			wantOverall: StatusDown,
		},
		{
			name: "register is critical",
			setup: func(h *Handler) {
				h.Register("redis", down("connection refused"))
			},
			wantCode:    http.StatusServiceUnavailable,
			wantOverall: StatusDown,
		},
		{
			name: "re-register overwrites",
			setup: func(h *Handler) {
				h.Register("redis", down("connection refused"))
				h.Register("redis", up)
			},
			wantCode:    http.StatusOK,
			wantOverall: StatusUp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			tt.setup(h)

			code, resp := ready(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantOverall, resp.Status)
		})
	}
}

func TestReadinessHandler_CheckDetails(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("redis", up)
	h.RegisterNonCritical("kafka", down("broker unreachable"))

	_, resp := ready(t, h)

	require.Contains(t, resp.Checks, "redis")
	assert.Equal(t, StatusUp, resp.Checks["redis"].Status)
	assert.True(t, resp.Checks["redis"].Critical)
	assert.NotEmpty(t, resp.Checks["redis"].Latency)

	require.Contains(t, resp.Checks, "kafka")
	assert.Equal(t, StatusDown, resp.Checks["kafka"].Status)
	assert.False(t, resp.Checks["kafka"].Critical)
	assert.Equal(t, "broker unreachable", resp.Checks["kafka"].Error)
}

func TestReadinessHandler_ChecksRunConcurrently(t *testing.T) {
	h := NewHandler()
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.Register("a", slow)
	h.Register("b", slow)
	h.Register("c", slow)

	start := time.Now()
	code, _ := ready(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}
