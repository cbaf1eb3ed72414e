// Package main runs the background scheduler: lifecycle jobs for streams
// plus the live alert delivery worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsecast/live-backend/config"
	"github.com/pulsecast/live-backend/internal/analytics"
	"github.com/pulsecast/live-backend/internal/broadcast"
	"github.com/pulsecast/live-backend/internal/counter"
	"github.com/pulsecast/live-backend/internal/notifications"
	"github.com/pulsecast/live-backend/internal/scheduler"
	"github.com/pulsecast/live-backend/internal/streams"
	"github.com/pulsecast/live-backend/internal/viewers"
	"github.com/pulsecast/live-backend/pkg/database"
	"github.com/pulsecast/live-backend/pkg/queue"
	"github.com/pulsecast/live-backend/pkg/redis"
	"github.com/pulsecast/live-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var archiver analytics.Archiver
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			SummariesBucket:      cfg.AWS.SummariesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, serr := storage.NewS3(ctx, s3Cfg, logger)
		if serr != nil {
			logger.Warn("s3 archive disabled", zap.Error(serr))
		} else {
			archiver = s3Client
		}
	}

	streamRepo := streams.NewRepository(pool)
	viewerRepo := viewers.NewRepository(pool)
	notificationRepo := notifications.NewRepository(pool)
	snapshotRepo := analytics.NewRepository(pool)

	broadcaster := broadcast.NewBroadcaster(rdb.Client, logger)
	viewerCounter := counter.NewRedisStore(rdb.Client, viewerRepo, streamRepo, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	snapshotter := analytics.NewSnapshotter(snapshotRepo, viewerRepo, streamRepo, archiver, logger)

	preLive := scheduler.NewPreLiveJob(streamRepo, notificationRepo, jobQueue, broadcaster, cfg.Scheduler.PreLiveWindow, logger)
	viewerCount := scheduler.NewViewerCountJob(streamRepo, viewerRepo, viewerCounter, snapshotter, broadcaster, logger)
	finalize := scheduler.NewFinalizeJob(streamRepo, viewerRepo, viewerCounter, snapshotter, broadcaster, cfg.Scheduler.EndingGrace, logger)

	sched := scheduler.New(logger,
		&scheduler.Job{Name: "pre_live", Interval: cfg.Scheduler.PreLiveInterval, Run: preLive.Run},
		&scheduler.Job{Name: "viewer_count", Interval: cfg.Scheduler.ViewerCountInterval, Run: viewerCount.Run},
		&scheduler.Job{Name: "finalize", Interval: cfg.Scheduler.FinalizeInterval, Run: finalize.Run},
	)

	alertWorker := notifications.NewAlertProcessor(notificationRepo, jobQueue, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Run(runCtx)
	go alertWorker.Run(runCtx)
	logger.Info("scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("scheduler stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
