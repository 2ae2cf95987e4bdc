package limiter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

import (
	"github.com/nanjiek/pixiu-score/internal/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func keyByHeader(r *http.Request) string { return r.Header.Get("X-Client") }

func serve(h http.Handler, client string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compute", nil)
	req.Header.Set("X-Client", client)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareHeadersAndDenial(t *testing.T) {
	sw, _, clk := newTestWindow(t)
	h := Middleware(sw, Options{MaxRequests: 2, WindowSeconds: 60, KeyFunc: keyByHeader})(okHandler())

	rec := serve(h, "c1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(clk.Now().UnixMilli()+60_000, 10), rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	rec = serve(h, "c1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(h, "c1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body types.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.IsError)
	assert.Equal(t, DefaultMessage, body.Message)
	assert.Equal(t, float64(60), body.Data)

	// another client has its own budget
	assert.Equal(t, http.StatusOK, serve(h, "c2").Code)
}

func TestMiddlewareSkipAndCustomMessage(t *testing.T) {
	sw, _, _ := newTestWindow(t)
	h := Middleware(sw, Options{
		MaxRequests:   1,
		WindowSeconds: 60,
		KeyFunc:       keyByHeader,
		Skip:          func(r *http.Request) bool { return r.Header.Get("X-Client") == "internal" },
		Message:       "slow down",
	})(okHandler())

	for i := 0; i < 3; i++ {
		rec := serve(h, "internal")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}

	serve(h, "c1")
	rec := serve(h, "c1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body types.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "slow down", body.Message)
}

func TestMiddlewareFailOpenPassesThrough(t *testing.T) {
	sw, mr, _ := newTestWindow(t)
	mr.Close()
	h := Middleware(sw, Options{MaxRequests: 1, WindowSeconds: 60, KeyFunc: keyByHeader})(okHandler())

	for i := 0; i < 3; i++ {
		rec := serve(h, "c1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestHTTPLimiterUpdate(t *testing.T) {
	sw, _, _ := newTestWindow(t)
	hl := NewHTTPLimiter(sw, Options{MaxRequests: 1, WindowSeconds: 60, KeyFunc: keyByHeader})
	h := hl.Wrap(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "c1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "c1").Code)

	prev := hl.Update(Options{MaxRequests: 10, WindowSeconds: 60, KeyFunc: keyByHeader})
	assert.Equal(t, int64(1), prev.MaxRequests)
	assert.Equal(t, int64(10), hl.Options().MaxRequests)
	assert.Equal(t, DefaultMessage, hl.Options().Message)
	assert.Equal(t, http.StatusOK, serve(h, "c1").Code)
}
