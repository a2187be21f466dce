package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/pkg/auth"
	"github.com/jwalitptl/chat-api/pkg/errors"
)

const ContextParticipant = "participant"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the caller's
// participant identity in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(errors.Unauthorized(nil))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Error(errors.Unauthorized(nil))
			c.Abort()
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			c.Error(errors.Unauthorized(err))
			c.Abort()
			return
		}

		memberType, err := model.ParseMemberType(claims.ParticipantType)
		if err != nil {
			c.Error(errors.Unauthorized(err))
			c.Abort()
			return
		}

		c.Set(ContextParticipant, model.Participant{ID: claims.ParticipantID, Type: memberType})
		c.Next()
	}
}

// RequireMemberType lets only participants of the given kind through.
func (m *AuthMiddleware) RequireMemberType(t model.MemberType) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := ParticipantFrom(c)
		if !ok {
			c.Error(errors.Unauthorized(nil))
			c.Abort()
			return
		}
		if p.Type != t {
			c.Error(errors.Forbidden(nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ParticipantFrom returns the authenticated caller.
func ParticipantFrom(c *gin.Context) (model.Participant, bool) {
	v, ok := c.Get(ContextParticipant)
	if !ok {
		return model.Participant{}, false
	}
	p, ok := v.(model.Participant)
	return p, ok
}
