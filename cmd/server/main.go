package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/config"
	"github.com/d60-Lab/timeline-fanout/internal/api"
	"github.com/d60-Lab/timeline-fanout/internal/api/handler"
	"github.com/d60-Lab/timeline-fanout/internal/cache"
	"github.com/d60-Lab/timeline-fanout/internal/idgen"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/internal/service"
	"github.com/d60-Lab/timeline-fanout/internal/stream"
	"github.com/d60-Lab/timeline-fanout/pkg/database"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
	"github.com/d60-Lab/timeline-fanout/pkg/tracing"
)

// @title Timeline Fanout API
// @version 1.0
// @description 互关时间线读取与实时推送
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Server.Mode == "debug"); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	gin.SetMode(cfg.Server.Mode)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	defer database.Close(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// 缓存不可用时读路径仍可回源
		logger.Warn("redis unavailable at startup", zap.Error(err))
	}

	hub := stream.NewHub(cfg.Stream.HubQueueSize)
	defer hub.Close()
	var broadcaster service.Broadcaster = hub
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Tracing.ServiceName),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", zap.Error(err))
			}),
		)
		if err != nil {
			logger.Fatal("connect nats", zap.Error(err))
		}
		defer nc.Drain()
		bridge := stream.NewNATSBridge(nc, cfg.NATS.Subject, hub)
		if err := bridge.Start(); err != nil {
			logger.Fatal("start nats bridge", zap.Error(err))
		}
		defer bridge.Close()
		broadcaster = bridge
	}

	posts := repository.NewPostRepository(db)
	follows := repository.NewFollowRepository(db)
	fanoutCache := cache.NewFanoutCache(rdb, cfg.Cache.MaxLen)
	viewers := service.NewViewerService(repository.NewUserRepository(db), follows, repository.NewRelationRepository(db))
	policies := service.NewPolicyResolver(cfg.Policies)
	timeline := service.NewFanoutTimelineService(fanoutCache, posts, cfg.Timeline.DBFallback, cfg.Timeline.FallbackTimeout)
	mutual := service.NewMutualTimelineService(viewers, policies, timeline)
	publisher := service.NewPublisher(db, idgen.New(), posts, broadcaster)

	worker := service.NewFanoutWorker(db, follows, fanoutCache, cfg.Fanout.Workers, cfg.Fanout.BatchSize, cfg.Fanout.ClaimLimit, cfg.Fanout.PollInterval).
		WithLease(cfg.Fanout.Lease)
	stopWorker := worker.Start()
	sweeper := service.NewExpirySweeper(posts, cfg.Expiry.Interval)
	stopSweeper := sweeper.Start()

	h := handler.NewHandler(mutual, publisher, stream.ChannelDeps{
		Hub:       hub,
		Viewers:   viewers,
		Policies:  policies,
		Reactions: repository.NewReactionRepository(db),
	}, cfg.Stream.SendQueueSize)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(cfg, h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := stopWorker(shutdownCtx); err != nil {
		logger.Warn("fanout worker shutdown", zap.Error(err))
	}
	if err := stopSweeper(shutdownCtx); err != nil {
		logger.Warn("expiry sweeper shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
