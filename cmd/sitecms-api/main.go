package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sitecms-api/api/swagger"
	"github.com/noah-isme/sitecms-api/internal/handler"
	"github.com/noah-isme/sitecms-api/internal/middleware"
	"github.com/noah-isme/sitecms-api/internal/repository"
	"github.com/noah-isme/sitecms-api/internal/service"
	"github.com/noah-isme/sitecms-api/migrations"
	"github.com/noah-isme/sitecms-api/pkg/cache"
	"github.com/noah-isme/sitecms-api/pkg/config"
	"github.com/noah-isme/sitecms-api/pkg/database"
	"github.com/noah-isme/sitecms-api/pkg/jobs"
	"github.com/noah-isme/sitecms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sitecms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sitecms-api/pkg/middleware/requestid"
	"github.com/noah-isme/sitecms-api/pkg/storage"
	"github.com/noah-isme/sitecms-api/pkg/textutil"
)

const shutdownTimeout = 15 * time.Second

// multipart overhead allowed on top of the attachment cap
const replyBodySlack = 1 << 20

// @title Site CMS API
// @version 1.0.0
// @description Contact inquiries and admin replies for the marketing site
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.ApplyMigrations(ctx, db, migrations.Files)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Strings("files", applied))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	files, err := storage.NewLocalStorage(cfg.Attachments.StorageDir, cfg.Attachments.MaxFileSizeBytes)
	if err != nil {
		logr.Fatal("failed to prepare attachment storage", zap.Error(err))
	}
	signingSecret := cfg.Attachments.SignedURLSecret
	if signingSecret == "" {
		logr.Warn("ATTACHMENTS_SIGNED_URL_SECRET not set, signing downloads with JWT secret")
		signingSecret = cfg.JWT.Secret
	}
	signer := storage.NewSignedURLSigner(signingSecret, cfg.Attachments.SignedURLTTL)
	text := textutil.New()

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	inquiryRepo := repository.NewInquiryRepository(db)
	replyRepo := repository.NewReplyRepository(db)

	replySvc := service.NewReplyService(replyRepo, inquiryRepo, files, signer, text, cacheSvc, metricsSvc, nil, logr, service.ReplyServiceConfig{
		MaxFileSize:  cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Attachments.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})
	inquirySvc := service.NewInquiryService(inquiryRepo, replyRepo, files, replySvc, text, cacheSvc, metricsSvc, nil, logr)

	if cfg.Reconcile.Enabled {
		reconciler := service.NewAttachmentReconciler(replyRepo, files, metricsSvc, logr, cfg.Reconcile.OrphanGrace)
		queue := jobs.NewQueue("attachments", reconciler.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Reconcile.Workers,
			MaxRetries: cfg.Reconcile.Retries,
			RetryDelay: time.Minute,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		go queue.Every(ctx, cfg.Reconcile.Interval, jobs.Job{
			ID:   "scheduled",
			Type: service.JobTypeReconcileAttachments,
			Key:  service.JobTypeReconcileAttachments,
		})
	}

	contactHandler := handler.NewContactHandler(inquirySvc, replySvc, logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.MaxMultipartMemory = cfg.Attachments.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, handler.ContactActions...))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	contact := api.Group("/contact")
	contact.Use(
		middleware.BodyLimit(cfg.Attachments.MaxFileSizeBytes+replyBodySlack),
		middleware.OptionalJWT(authSvc),
		middleware.RequireInquiryManager(
			middleware.ActionRoute{Method: http.MethodPost, Action: ""},
			middleware.ActionRoute{Method: http.MethodGet, Action: handler.ActionAttachment},
		),
	)
	contact.GET("", contactHandler.Get)
	contact.POST("", contactHandler.Post)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		logr.Sugar().Errorw("server failed", "error", err)
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
	logr.Info("server stopped")
}
