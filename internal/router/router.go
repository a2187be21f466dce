package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/chat-api/internal/handler/health"
	"github.com/jwalitptl/chat-api/internal/handler/prometheus"
	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/internal/model"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	limiter *middleware.RateLimiter
	health  *health.Handler
	metrics *prometheus.Handler
	config  RouterConfig
}

type RouterConfig struct {
	Timeout   middleware.TimeoutConfig
	SizeLimit middleware.SizeLimitConfig
}

// NewRouter builds the engine with the core middleware chain. limiter may
// be nil to disable rate limiting.
func NewRouter(
	auth *middleware.AuthMiddleware,
	limiter *middleware.RateLimiter,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		limiter: limiter,
		health:  healthH,
		metrics: metricsH,
		config:  config,
	}

	// Add core middlewares
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		metricsH.Middleware(),
		middleware.ErrorHandler(),
		middleware.Timeout(config.Timeout),
		middleware.SizeLimit(config.SizeLimit),
	)

	return r
}

// Setup mounts the member routes and the admin-only routes under /api/v1.
func (r *Router) Setup(member []Handler, admin []Handler) {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())
	if r.limiter != nil {
		api.Use(r.limiter.RateLimit())
	}
	for _, h := range member {
		h.RegisterRoutes(api)
	}

	adminGroup := api.Group("/admin")
	adminGroup.Use(r.auth.RequireMemberType(model.MemberTypeAdmin))
	for _, h := range admin {
		h.RegisterRoutes(adminGroup)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
