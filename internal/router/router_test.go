package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/chat-api/internal/handler/health"
	"github.com/jwalitptl/chat-api/internal/handler/prometheus"
	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/pkg/auth"
)

type pingHandler struct{ path string }

func (h pingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(h.path, func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func TestRouterGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwt := auth.NewJWTService("secret", "chat-api", time.Hour)

	r := NewRouter(
		middleware.NewAuthMiddleware(jwt),
		nil,
		health.NewHandler(nil),
		prometheus.New(prom.NewRegistry()),
		RouterConfig{
			Timeout:   middleware.DefaultTimeoutConfig(),
			SizeLimit: middleware.DefaultSizeLimitConfig(),
		},
	)
	r.Setup([]Handler{pingHandler{"/ping"}}, []Handler{pingHandler{"/ping"}})

	userToken, err := jwt.GenerateAccessToken(uuid.New(), string(model.MemberTypeUser))
	require.NoError(t, err)
	adminToken, err := jwt.GenerateAccessToken(uuid.New(), string(model.MemberTypeAdmin))
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health is public", "/health/live", "", http.StatusOK},
		{"metrics is public", "/metrics", "", http.StatusOK},
		{"api needs token", "/api/v1/ping", "", http.StatusUnauthorized},
		{"user reaches member route", "/api/v1/ping", userToken, http.StatusNoContent},
		{"user blocked from admin route", "/api/v1/admin/ping", userToken, http.StatusForbidden},
		{"admin reaches admin route", "/api/v1/admin/ping", adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.Engine().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
