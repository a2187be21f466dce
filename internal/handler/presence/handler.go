package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/pkg/errors"
)

type Tracker interface {
	Touch(ctx context.Context, memberType, id string) error
	Clear(ctx context.Context, memberType, id string) error
}

// Handler lets a client report its own presence. A client heartbeats with
// PUT at least once per presence TTL and calls DELETE when it disconnects.
type Handler struct {
	tracker Tracker
}

func NewHandler(tracker Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.PUT("/presence", h.Heartbeat)
	r.DELETE("/presence", h.Disconnect)
}

func (h *Handler) Heartbeat(c *gin.Context) {
	p, ok := middleware.ParticipantFrom(c)
	if !ok {
		c.Error(errors.Unauthorized(nil))
		return
	}
	if err := h.tracker.Touch(c.Request.Context(), string(p.Type), p.ID.String()); err != nil {
		c.Error(errors.Internal(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Disconnect(c *gin.Context) {
	p, ok := middleware.ParticipantFrom(c)
	if !ok {
		c.Error(errors.Unauthorized(nil))
		return
	}
	if err := h.tracker.Clear(c.Request.Context(), string(p.Type), p.ID.String()); err != nil {
		c.Error(errors.Internal(err))
		return
	}
	c.Status(http.StatusNoContent)
}
