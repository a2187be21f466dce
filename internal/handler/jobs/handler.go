package jobs

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/chat-api/pkg/errors"
	"github.com/jwalitptl/chat-api/pkg/httputil"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

const maxFailedLimit = 100

type Inspector interface {
	Name() string
	Counts(ctx context.Context) (queue.Counts, error)
	Failed(ctx context.Context, offset, limit int) ([]*queue.Job, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
}

// Handler exposes the notification queue to operators.
type Handler struct {
	queue Inspector
}

func NewHandler(q Inspector) *Handler {
	return &Handler{queue: q}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	jobs := r.Group("/jobs")
	{
		jobs.GET("/stats", h.Stats)
		jobs.GET("/failed", h.ListFailed)
		jobs.GET("/:id", h.GetJob)
	}
}

func (h *Handler) Stats(c *gin.Context) {
	counts, err := h.queue.Counts(c.Request.Context())
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"queue":  h.queue.Name(),
		"counts": counts,
	})
}

func (h *Handler) ListFailed(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.Error(errors.BadRequest("invalid offset", err))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.Error(errors.BadRequest("invalid limit", err))
		return
	}
	if limit > maxFailedLimit {
		limit = maxFailedLimit
	}

	jobs, err := h.queue.Failed(c.Request.Context(), offset, limit)
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, jobs)
}

func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.queue.GetJob(c.Request.Context(), c.Param("id"))
	if stderrors.Is(err, queue.ErrJobNotFound) {
		c.Error(errors.NotFound("job", err))
		return
	}
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, job)
}
