// Package main runs the recordings HTTP server: Mux webhooks and recording status reads.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prepcoach/recordings/config"
	"github.com/prepcoach/recordings/internal/auth"
	"github.com/prepcoach/recordings/internal/middleware"
	"github.com/prepcoach/recordings/internal/realtime"
	"github.com/prepcoach/recordings/internal/recordings"
	"github.com/prepcoach/recordings/internal/worker"
	"github.com/prepcoach/recordings/pkg/database"
	applog "github.com/prepcoach/recordings/pkg/logger"
	"github.com/prepcoach/recordings/pkg/muxhook"
	"github.com/prepcoach/recordings/pkg/queue"
	"github.com/prepcoach/recordings/pkg/redis"
	"github.com/prepcoach/recordings/pkg/response"
	"github.com/prepcoach/recordings/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := applog.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Mux.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:       int32(cfg.Database.MaxConns),
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, logger)
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
	jobQueue := queue.NewQueue(rdb.Client, logger)

	stores, err := recordings.NewStores(pool)
	if err != nil {
		logger.Fatal("recording stores", zap.Error(err))
	}

	// Mux webhooks
	verifier := muxhook.NewVerifier(cfg.Mux.WebhookSecret, cfg.Mux.WebhookTolerance)
	statusPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	reconciler := recordings.NewReconciler(stores, cfg.Mux.StoreTimeout, logger).WithNotifier(statusPubSub)
	webhookHandler := recordings.NewWebhookHandler(verifier, reconciler, jobQueue, cfg.Mux.MaxBodyBytes, logger)

	// Recording status reads
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	recordingHandler := recordings.NewHandler(stores, cfg.Mux.StoreTimeout, logger)
	statusStream := realtime.NewStatusStream(statusPubSub, stores, jwtService, logger, auth.RoleService, auth.RoleAdmin)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (no JWT; authenticated by Mux-Signature)
	router.POST("/webhooks/mux", webhookHandler.Mux)

	// WebSocket (token in query or Authorization header; checked before upgrade)
	router.GET("/recordings/:collection/:id/stream", statusStream.Serve)

	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.RequireRole(auth.RoleService, auth.RoleAdmin))
	{
		api.GET("/recordings/:collection/:id", recordingHandler.Get)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Dead-letter archiving runs in-process when S3 is configured; otherwise cmd/worker does it.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.AWS.ArchiveEnabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:           cfg.AWS.Region,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			DeadLetterBucket: cfg.AWS.DeadLetterBucket,
		}, logger)
		if err != nil {
			logger.Warn("dead letter archive disabled", zap.Error(err))
		} else {
			archiver := worker.NewDeadLetterArchiver(jobQueue, s3Client, "mux", logger)
			go archiver.Run(workerCtx)
			logger.Info("dead letter worker started", zap.String("bucket", s3Client.Bucket()))
		}
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
