package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/chat-api/config"
	"github.com/jwalitptl/chat-api/internal/app"
	chatHandler "github.com/jwalitptl/chat-api/internal/handler/chat"
	"github.com/jwalitptl/chat-api/internal/handler/health"
	"github.com/jwalitptl/chat-api/internal/handler/jobs"
	presenceHandler "github.com/jwalitptl/chat-api/internal/handler/presence"
	"github.com/jwalitptl/chat-api/internal/handler/prometheus"
	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/internal/repository/cache"
	"github.com/jwalitptl/chat-api/internal/repository/postgres"
	"github.com/jwalitptl/chat-api/internal/router"
	"github.com/jwalitptl/chat-api/internal/service/chat"
	"github.com/jwalitptl/chat-api/internal/service/notification"
	"github.com/jwalitptl/chat-api/pkg/auth"
	"github.com/jwalitptl/chat-api/pkg/messaging/redis"
	"github.com/jwalitptl/chat-api/pkg/metrics"
	"github.com/jwalitptl/chat-api/pkg/presence"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := app.SetupLogger(cfg.Log, "chat-api")
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	rdb, err := app.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal(err, "Failed to connect to Redis")
	}
	defer rdb.Close()

	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("chat", registry)

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	conversationRepo := postgres.NewConversationRepository(base)
	messageRepo := postgres.NewMessageRepository(base)
	participantRepo := cache.NewParticipantRepository(postgres.NewParticipantRepository(base), cfg.Cache.ToCacheConfig())

	// Initialize services
	notificationQueue := queue.NewRedisQueue(rdb, cfg.Queue.ToQueueConfig())
	dispatcher := notification.NewDispatcher(notificationQueue, cfg.Queue.ToQueueConfig().DefaultOptions, m)
	oracle := presence.NewRedisOracle(rdb, cfg.Presence.TTL)
	broker := redis.NewRedisBroker(rdb, logger.ZL)
	defer broker.Close()

	chatSvc := chat.NewService(conversationRepo, messageRepo, participantRepo, oracle, dispatcher, broker, m)

	// Initialize middleware
	if err := middleware.RegisterValidation(middleware.ValidationConfig{}); err != nil {
		logger.Fatal(err, "Failed to register validators")
	}
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry))
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.ToRateLimiterConfig())
	}

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		limiter,
		health.NewHandler(app.HealthChecks(db, rdb)),
		prometheus.New(registry),
		router.RouterConfig{
			Timeout:   middleware.TimeoutConfig{Duration: cfg.Server.RequestTimeout},
			SizeLimit: middleware.SizeLimitConfig{MaxBodySize: cfg.Server.MaxBodyBytes},
		},
	)
	r.Setup(
		[]router.Handler{
			chatHandler.NewHandler(chatSvc),
			presenceHandler.NewHandler(oracle),
		},
		[]router.Handler{
			jobs.NewHandler(notificationQueue),
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		logger.Info("Starting API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server forced to shutdown")
	}

	logger.Info("Server exited properly")
}
