package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

func setup(t *testing.T) (*gin.Engine, *queue.RedisQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.NewRedisQueue(client, queue.Config{Name: "notifications"})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	NewHandler(q).RegisterRoutes(r.Group("/api/v1/admin"))
	return r, q
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestFailedJobsAndStats(t *testing.T) {
	r, q := setup(t)
	ctx := context.Background()

	added, err := q.Add(ctx, "new-message", map[string]string{"message_id": "m1"}, queue.Options{Attempts: 1})
	require.NoError(t, err)
	job, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	terminal, err := q.Fail(ctx, job, errors.New("push provider down"))
	require.NoError(t, err)
	require.True(t, terminal)

	w := get(r, "/api/v1/admin/jobs/failed")
	require.Equal(t, http.StatusOK, w.Code)
	var failed struct {
		Data []queue.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	require.Len(t, failed.Data, 1)
	assert.Equal(t, added.ID, failed.Data[0].ID)
	assert.Contains(t, failed.Data[0].FailedReason, "push provider down")

	w = get(r, "/api/v1/admin/jobs/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Data struct {
			Queue  string       `json:"queue"`
			Counts queue.Counts `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "notifications", stats.Data.Queue)
	assert.Equal(t, int64(1), stats.Data.Counts[queue.StateFailed])
	assert.Equal(t, int64(0), stats.Data.Counts[queue.StateWaiting])

	w = get(r, "/api/v1/admin/jobs/"+added.ID)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetJobNotFound(t *testing.T) {
	r, _ := setup(t)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/admin/jobs/missing").Code)
}

func TestListFailedBadParams(t *testing.T) {
	r, _ := setup(t)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/admin/jobs/failed?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/admin/jobs/failed?offset=x").Code)
}
