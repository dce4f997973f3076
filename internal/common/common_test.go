package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func TestIdempotencyRejectsReplay(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, "pay-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusCreated, send("/api/v1/invoices/a/payments").Code)
	replay := send("/api/v1/invoices/a/payments")
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Contains(t, replay.Body.String(), CodeIdempotentRetry)
	require.Equal(t, http.StatusCreated, send("/api/v1/invoices/b/payments").Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	idem, mr := newIdem(t)
	fail := true
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyHeader, "retry-me")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Empty(t, mr.Keys())

	fail = false
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, mr.Keys(), 1)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	idem, mr := newIdem(t)
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, mr.Keys())
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, NewAppError(CodeNotFound, "invoice not found", http.StatusNotFound, nil).WithDetails(map[string]string{"id": "x"}))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"invoice not found","details":{"id":"x"}}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteError(rr, errors.New("db exploded"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "exploded")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"kopi"}`))
	require.NoError(t, DecodeJSON(req, &v))
	require.Equal(t, "kopi", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := DecodeJSON(req, &v)
	require.True(t, IsAppError(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.Error(t, DecodeJSON(req, &v))
}

func TestMerchantMiddlewareAndClientIP(t *testing.T) {
	var merchant string
	handler := MerchantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchant, _ = MerchantID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(MerchantHeader, " toko-sari ")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "toko-sari", merchant)

	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	require.Equal(t, "10.0.0.1", ClientIP(req))
}
