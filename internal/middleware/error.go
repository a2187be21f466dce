package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/chat-api/pkg/errors"
	"github.com/jwalitptl/chat-api/pkg/httputil"
)

// ErrorHandler renders the last error attached with c.Error when nothing
// was written yet.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			event := log.Warn()
			if errors.CodeOf(e.Err) == errors.ErrInternal {
				event = log.Error()
			}
			event.
				Err(e.Err).
				Str("request_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err, traceID)
	}
}
