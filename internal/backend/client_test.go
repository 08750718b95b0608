package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a Client the way the service does: no retries behind a
// circuit breaker.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	hc := httpclient.New(httpclient.Config{Timeout: 2 * time.Second, MaxRetries: 0, MaxConnsPerHost: 4})
	cbCfg := httpclient.DefaultCircuitBreakerConfig(t.Name())
	cb := httpclient.NewCircuitBreakerClient(hc, cbCfg, testLogger())
	return NewClient(cb, srv.URL+"/", testLogger()), &calls
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestConfirmPayment_Success(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathConfirmPayment, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cs_123", body["session_id"])

		writeJSON(w, http.StatusOK, `{"productIds":["p1","p2"]}`)
	})

	ids, err := c.ConfirmPayment(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
	assert.Equal(t, int32(1), calls.Load())
}

func TestConfirmPayment_EmptyListIsSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	ids, err := c.ConfirmPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestConfirmPayment_ErrorBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"error":"session expired"}`)
	})

	_, err := c.ConfirmPayment(context.Background(), "cs_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "session expired", appErr.Message)
}

func TestConfirmPayment_Rejected(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":"Payment not completed"}`)
	})

	_, err := c.ConfirmPayment(context.Background(), "cs_1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Payment not completed")
}

func TestConfirmPayment_ServerErrorIsNotRetried(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":"stripe unreachable"}`)
	})

	_, err := c.ConfirmPayment(context.Background(), "cs_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe unreachable")
	assert.Equal(t, int32(1), calls.Load(), "confirmation must be sent once")
}

func TestConfirmPayment_Unavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"message":"maintenance"}`)
	})

	_, err := c.ConfirmPayment(context.Background(), "cs_1")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestConfirmPayment_Canceled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"productIds":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ConfirmPayment(ctx, "cs_1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyEsewa(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"success flag", http.StatusOK, `{"success":true}`, nil},
		{"empty body", http.StatusOK, ``, nil},
		{"success false", http.StatusOK, `{"success":false}`, apperrors.ErrPaymentFailed},
		{"error field", http.StatusOK, `{"error":"not found at esewa"}`, apperrors.ErrPaymentFailed},
		{"unprocessable", http.StatusUnprocessableEntity, `{"error":"amount mismatch"}`, apperrors.ErrPaymentFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, PathVerifyEsewa, r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "tx-1", body["transaction_uuid"])
				writeJSON(w, tt.status, tt.body)
			})

			err := c.VerifyEsewa(context.Background(), "tx-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCreateCheckoutSession, r.URL.Path)

		var body createCheckoutSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body.Identity)
		require.Len(t, body.Items, 1)
		assert.Equal(t, "p1", body.Items[0].ProductID)
		assert.True(t, decimal.NewFromInt(250).Equal(body.Total))

		writeJSON(w, http.StatusCreated, `{"id":"cs_9","url":"https://pay.example.com/cs_9"}`)
	})

	sess, err := c.CreateCheckoutSession(context.Background(), domain.ChargeRequest{
		Identity: "u1",
		Items:    []domain.LineItem{{ProductID: "p1", Price: decimal.NewFromInt(100), Quantity: 3}},
		Discount: decimal.NewFromInt(50),
		Total:    decimal.NewFromInt(250),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_9", sess.ID)
	assert.Equal(t, "https://pay.example.com/cs_9", sess.URL)
}

func TestCreateCheckoutSession_MissingID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"url":"https://pay.example.com"}`)
	})

	_, err := c.CreateCheckoutSession(context.Background(), domain.ChargeRequest{Identity: "u1"})
	assert.ErrorContains(t, err, "no session id")
}
