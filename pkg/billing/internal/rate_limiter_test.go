package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRateLimiter_WindowLimit(t *testing.T) {
	clock := quota.NewFakeClock(start)
	limiter := NewRateLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "other IPs have their own bucket")

	clock.Advance(time.Minute)
	assert.True(t, limiter.Allow("10.0.0.1"), "a new window starts at resetAt")
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	clock := quota.NewFakeClock(start)
	limiter := NewRateLimiter(10, time.Minute, clock)

	limiter.requests["192.168.1.100"] = &bucket{count: 5, resetAt: start.Add(-time.Second)}
	limiter.requests["192.168.1.200"] = &bucket{count: 3, resetAt: start.Add(time.Minute)}

	limiter.Cleanup()

	assert.NotContains(t, limiter.requests, "192.168.1.100")
	assert.Contains(t, limiter.requests, "192.168.1.200")
}

func TestRateLimiter_CleanupBoundsMap(t *testing.T) {
	clock := quota.NewFakeClock(start)
	limiter := NewRateLimiter(10, time.Minute, clock)

	for i := 0; i < 150; i++ {
		limiter.Allow(fmt.Sprintf("192.168.1.%d", i))
	}
	require.Len(t, limiter.requests, 150)

	clock.Advance(2 * time.Minute)
	// the 100th request of the next batch triggers a cleanup pass
	for i := 0; i < 100; i++ {
		limiter.Allow("10.0.0.1")
	}

	assert.LessOrEqual(t, len(limiter.requests), 1)
}

func TestRateLimiter_CleanupCounterReset(t *testing.T) {
	limiter := NewRateLimiter(10, time.Minute, quota.NewFakeClock(start))

	for i := 0; i < limiter.cleanupEvery*15; i++ {
		limiter.Allow("192.168.1.1")
	}

	assert.LessOrEqual(t, limiter.requestCount, limiter.cleanupEvery*10)
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, quota.NewFakeClock(start))
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		req.RemoteAddr = "203.0.113.9:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())

	limiter.OnLimited = func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }
	assert.Equal(t, http.StatusTeapot, send())
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "198.51.100.1:443"
	assert.Equal(t, "198.51.100.1", GetClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	assert.Equal(t, "203.0.113.5", GetClientIP(req))
}

func TestReadBodyStrict(t *testing.T) {
	w := httptest.NewRecorder()

	body, err := ReadBodyStrict(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")), 16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	_, err = ReadBodyStrict(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32))), 16)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = ReadBodyStrict(w, httptest.NewRequest(http.MethodPost, "/", http.NoBody), 16)
	assert.ErrorIs(t, err, ErrEmptyBody)
}
