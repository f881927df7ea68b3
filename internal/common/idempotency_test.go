package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/common"
)

func newIdem(t *testing.T) common.Idem {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Minute}
}

func TestIdempotencyMiddlewareBlocksDuplicates(t *testing.T) {
	idem := newIdem(t)
	var handled int
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handled++
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, do("order-1"))
	require.Equal(t, http.StatusConflict, do("order-1"))
	require.Equal(t, 1, handled)

	// Distinct keys pass, and requests without a key are never gated.
	require.Equal(t, http.StatusCreated, do("order-2"))
	require.Equal(t, http.StatusCreated, do(""))
	require.Equal(t, http.StatusCreated, do(""))
	require.Equal(t, 4, handled)
}

func TestIdempotencyMiddlewareWithoutRedisPassesThrough(t *testing.T) {
	idem := common.Idem{}
	var handled int
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handled++
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
	req.Header.Set("Idempotency-Key", "order-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 2, handled)
}
