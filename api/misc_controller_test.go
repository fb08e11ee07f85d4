package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ovozber-backend/cache"
	"ovozber-backend/conversation"
	"ovozber-backend/logging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationEvents(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodPost, "/api/conversations/1001/events", gin.H{"kind": "start"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var prompt conversation.Prompt
	decode(t, w, &prompt)
	assert.Equal(t, conversation.PromptPolls, prompt.Kind)
	assert.Equal(t, conversation.StateSelectingPoll, prompt.State)

	w = e.request(t, http.MethodPost, "/api/conversations/1001/events", gin.H{"kind": "choose_district", "id": e.district.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.request(t, http.MethodPost, "/api/conversations/1001/events", gin.H{"kind": "choose_poll", "id": e.poll.ID})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &prompt)
	assert.Equal(t, conversation.StateSelectingRegion, prompt.State)

	assert.Equal(t, http.StatusBadRequest,
		e.request(t, http.MethodPost, "/api/conversations/1001/events", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.request(t, http.MethodPost, "/api/conversations/x/events", gin.H{"kind": "start"}).Code)
}

func TestHealthAndStatus(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info SystemInfo
	decode(t, w, &info)
	assert.Equal(t, "ok", info.DBStatus)
	assert.Equal(t, "disabled", info.RedisStatus)
	assert.Equal(t, "memory", info.EventBus)
	assert.Equal(t, int64(3), info.Queues["published"])
}

func TestAdminRequiresKey(t *testing.T) {
	e := SetupTestEnvironment(t)

	body := gin.H{"keys": []string{"catalog:channels"}}
	assert.Equal(t, http.StatusForbidden, e.request(t, http.MethodPost, "/api/admin/cache/invalidate", body).Code)
	assert.Equal(t, http.StatusForbidden,
		e.request(t, http.MethodPost, "/api/admin/cache/invalidate", body, "X-Admin-Key", "wrong").Code)

	w := e.request(t, http.MethodPost, "/api/admin/cache/invalidate", body, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"catalog:channels"}, e.cache.keys)

	w = e.request(t, http.MethodPost, "/api/admin/cache/invalidate", gin.H{"keys": []string{}}, "X-Admin-Key", adminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, key := range []string{"conversation:session:1001", "lock:vote:1001:1", "api:user:user:7", "catalog:"} {
		w = e.request(t, http.MethodPost, "/api/admin/cache/invalidate",
			gin.H{"keys": []string{"catalog:channels", key}}, "X-Admin-Key", adminKey)
		assert.Equal(t, http.StatusBadRequest, w.Code, key)
	}
	assert.Equal(t, []string{"catalog:channels"}, e.cache.keys)

	w = e.request(t, http.MethodPost, "/api/admin/events/retry-dead-letters", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var moved struct {
		Moved int `json:"moved"`
	}
	decode(t, w, &moved)
	assert.Equal(t, 2, moved.Moved)

	w = e.request(t, http.MethodGet, "/api/admin/events", nil, "X-Admin-Key", adminKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodGet, "/api/admin/ratelimit/stats", nil, "X-Admin-Key", adminKey)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewAdminController("", nil, nil, nil).RegisterRoutes(router.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/events", nil)
	req.Header.Set("X-Admin-Key", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stats := NewRateLimitStats()
	router := gin.New()
	router.Use(RateLimitMiddleware(cache.NewLocalRateLimiter(1, 2), ClientKey, stats, logging.Discard()))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	assert.Equal(t, http.StatusOK, do("bob"))

	snapshot := stats.Snapshot()
	assert.Equal(t, int64(4), snapshot["total"])
	assert.Equal(t, int64(1), snapshot["rejected"])
	assert.Equal(t, int64(1), snapshot["rejected_by_key"].(map[string]int64)["user:alice"])

	broken := gin.New()
	broken.Use(RateLimitMiddleware(brokenLimiter{}, IPKey, nil, logging.Discard()))
	broken.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	w := httptest.NewRecorder()
	broken.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
