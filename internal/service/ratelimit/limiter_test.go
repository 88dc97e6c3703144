package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter() (*Limiter, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := New()
	l.now = c.now
	return l, c
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, c := newTestLimiter()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("k", 3, 1), "request %d", i)
	}
	assert.False(t, l.Allow("k", 3, 1))
	assert.True(t, l.Allow("other", 3, 1))

	c.t = c.t.Add(time.Second)
	assert.True(t, l.Allow("k", 3, 1))
	assert.False(t, l.Allow("k", 3, 1))

	c.t = c.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("k", 3, 1))
	}
	assert.False(t, l.Allow("k", 3, 1))
}

func TestPrune(t *testing.T) {
	l, c := newTestLimiter()
	l.Allow("a", 1, 1)
	c.t = c.t.Add(time.Minute)
	l.Allow("b", 1, 1)

	assert.Equal(t, 1, l.Prune(30*time.Second))
	assert.Equal(t, 1, l.Len())
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter()
	e := echo.New()
	e.GET("/api/recommendations", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, Middleware(l, 2, time.Minute))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/recommendations", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	rec := do("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
}

func TestMiddleware_Disabled(t *testing.T) {
	l, _ := newTestLimiter()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, Middleware(l, 0, time.Minute))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Zero(t, l.Len())
}
