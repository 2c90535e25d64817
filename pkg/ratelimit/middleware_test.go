package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitedRouter(cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(cfg))
	router.GET("/features", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRateLimitMiddlewareAllowsRequestsWithinBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RPS = 1
	cfg.Burst = 3
	router := newRateLimitedRouter(cfg)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/features", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddlewareRejectsBeyondBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RPS = 1
	cfg.Burst = 1
	router := newRateLimitedRouter(cfg)

	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/features", nil))
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/features", nil))
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "0", w2.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w2.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareTracksClientsIndependently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RPS = 1
	cfg.Burst = 1
	router := newRateLimitedRouter(cfg)

	req1 := httptest.NewRequest(http.MethodGet, "/features", nil)
	req1.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, req1)
	assert.Equal(t, http.StatusOK, w1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/features", nil)
	req2.RemoteAddr = "10.0.0.2:5678"
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestDefaultConfigProvidesSaneRates(t *testing.T) {
	cfg := DefaultConfig()
	assert.Positive(t, cfg.RPS)
	assert.Positive(t, cfg.Burst)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
}
