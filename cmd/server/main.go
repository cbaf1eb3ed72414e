// Package main runs the live streaming HTTP server with the WebSocket
// gateway and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsecast/live-backend/config"
	"github.com/pulsecast/live-backend/internal/analytics"
	"github.com/pulsecast/live-backend/internal/auth"
	"github.com/pulsecast/live-backend/internal/broadcast"
	"github.com/pulsecast/live-backend/internal/comments"
	"github.com/pulsecast/live-backend/internal/counter"
	"github.com/pulsecast/live-backend/internal/gateway"
	"github.com/pulsecast/live-backend/internal/gifts"
	"github.com/pulsecast/live-backend/internal/middleware"
	"github.com/pulsecast/live-backend/internal/notifications"
	"github.com/pulsecast/live-backend/internal/streams"
	"github.com/pulsecast/live-backend/internal/viewers"
	"github.com/pulsecast/live-backend/pkg/database"
	"github.com/pulsecast/live-backend/pkg/redis"
	"github.com/pulsecast/live-backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			SummariesBucket:      cfg.AWS.SummariesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	broadcaster := broadcast.NewBroadcaster(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Streams and viewer presence
	streamRepo := streams.NewRepository(pool)
	viewerRepo := viewers.NewRepository(pool)
	viewerHandler := viewers.NewHandler(viewerRepo)
	viewerCounter := counter.NewRedisStore(rdb.Client, viewerRepo, streamRepo, logger)
	presence := gateway.NewService(streamRepo, viewerRepo, authRepo, viewerCounter, broadcaster, logger)
	hub := gateway.NewHub(broadcaster, logger)
	streamHandler := streams.NewHandler(streamRepo, presence, broadcaster, logger)

	// Live alert subscriptions
	notificationRepo := notifications.NewRepository(pool)
	notificationHandler := notifications.NewHandler(notificationRepo, logger)

	// Comments and gifts
	commentRepo := comments.NewRepository(pool)
	commentHandler := comments.NewHandler(commentRepo, streamRepo, broadcaster, logger)
	giftRepo := gifts.NewRepository(pool)
	giftHandler := gifts.NewHandler(giftRepo, streamRepo, broadcaster, logger)

	// Analytics
	snapshotRepo := analytics.NewRepository(pool)
	var presigner analytics.SummaryPresigner
	if s3Client != nil {
		presigner = s3Client
	}
	analyticsHandler := analytics.NewHandler(snapshotRepo, streamRepo, presigner, logger)

	wsValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public reads
	router.GET("/streams", streamHandler.List)
	router.GET("/streams/:id", streamHandler.Get)
	router.GET("/streams/:id/comments", commentHandler.List)
	router.GET("/streams/:id/gifts", giftHandler.List)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/streams", streamHandler.Create)
		api.POST("/streams/:id/start", streamHandler.Start)
		api.POST("/streams/:id/end", streamHandler.End)
		api.POST("/streams/:id/join", streamHandler.Join)
		api.POST("/streams/:id/leave", streamHandler.Leave)
		api.POST("/streams/:id/reactions", streamHandler.React)
		api.POST("/streams/:id/like", streamHandler.Like)
		api.POST("/streams/:id/share", streamHandler.Share)

		api.POST("/streams/:id/comments", commentHandler.Create)
		api.POST("/streams/:id/gifts", giftHandler.Send)

		api.GET("/streams/:id/viewers", middleware.RequireRole("admin"), viewerHandler.ListByStream)
		api.GET("/streams/:id/analytics/snapshots", analyticsHandler.ListSnapshots)
		api.GET("/streams/:id/analytics/summary", analyticsHandler.GetSummary)

		api.POST("/broadcasters/:id/alerts", notificationHandler.Subscribe)
		api.DELETE("/broadcasters/:id/alerts", notificationHandler.Unsubscribe)
		api.GET("/notifications", notificationHandler.ListMine)
	}

	// WebSocket (token in query; anonymous viewers allowed)
	router.GET("/ws", gateway.ServeWs(hub, presence, wsValidate, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
