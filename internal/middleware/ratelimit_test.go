package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type rateLimitStoreStub struct {
	count int64
	err   error
}

func (s *rateLimitStoreStub) Increment(_ context.Context, _ string, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.count++
	return s.count, nil
}

func rateLimitedRouter(store *rateLimitStoreStub, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/payments",
		RateLimit(store, RateLimitOptions{Limit: limit, Window: time.Minute}),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"received": true}) })
	return router
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	router := rateLimitedRouter(&rateLimitStoreStub{}, 3)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	router := rateLimitedRouter(&rateLimitStoreStub{}, 2)

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", nil)
		router.ServeHTTP(w, req)
		last = w.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestRateLimitFailsOpenOnStoreError(t *testing.T) {
	router := rateLimitedRouter(&rateLimitStoreStub{err: errors.New("redis down")}, 1)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
