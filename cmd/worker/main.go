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
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/chat-api/config"
	"github.com/jwalitptl/chat-api/internal/app"
	"github.com/jwalitptl/chat-api/internal/handler/health"
	"github.com/jwalitptl/chat-api/internal/handler/prometheus"
	"github.com/jwalitptl/chat-api/internal/middleware"
	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository/postgres"
	"github.com/jwalitptl/chat-api/internal/service/audit"
	"github.com/jwalitptl/chat-api/internal/service/notification"
	"github.com/jwalitptl/chat-api/pkg/circuitbreaker"
	"github.com/jwalitptl/chat-api/pkg/metrics"
	"github.com/jwalitptl/chat-api/pkg/presence"
	"github.com/jwalitptl/chat-api/pkg/push"
	"github.com/jwalitptl/chat-api/pkg/queue"
	"github.com/jwalitptl/chat-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := app.SetupLogger(cfg.Log, "chat-worker")
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
	// recipients are re-read for every job so deletions are seen immediately
	participantRepo := postgres.NewParticipantRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)
	auditor := audit.NewService(postgres.NewAuditRepository(base))

	breakerSettings := cfg.Push.ToBreakerSettings()
	breakerSettings.OnStateChange = func(name, from, to string) {
		logger.Warn("Push breaker state changed", "breaker", name, "from", from, "to", to)
	}
	transport := push.NewBreaker(
		push.NewLogTransport(logger.ZL.With().Str("component", "push").Logger()),
		circuitbreaker.NewCircuitBreaker(breakerSettings),
	)

	consumer := notification.NewConsumer(
		participantRepo,
		presence.NewRedisOracle(rdb, cfg.Presence.TTL),
		notificationRepo,
		auditor,
		transport,
		logger,
		m,
	)

	notificationQueue := queue.NewRedisQueue(rdb, cfg.Queue.ToQueueConfig())
	processor := worker.NewProcessor(notificationQueue, cfg.Queue.ToWorkerConfig(), logger, m)
	processor.Handle(model.NewMessageJob, consumer.Handle)

	janitor, err := worker.NewJanitor(notificationQueue, cfg.Queue.ToJanitorConfig(), logger, m)
	if err != nil {
		logger.Fatal(err, "Invalid janitor configuration")
	}

	// Health and metrics
	engine := gin.New()
	engine.Use(middleware.Recovery())
	health.NewHandler(app.HealthChecks(db, rdb)).RegisterRoutes(engine)
	engine.GET("/metrics", prometheus.New(registry).Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Start(gctx)
	})
	g.Go(func() error {
		janitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting health server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err, "Worker stopped with error")
		os.Exit(1)
	}
	logger.Info("Worker exited properly")
}
