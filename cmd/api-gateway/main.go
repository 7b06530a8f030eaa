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

	_ "github.com/ScepterCode/class-admission-api/api/swagger"
	"github.com/ScepterCode/class-admission-api/internal/handler"
	"github.com/ScepterCode/class-admission-api/internal/middleware"
	"github.com/ScepterCode/class-admission-api/internal/repository"
	"github.com/ScepterCode/class-admission-api/internal/service"
	"github.com/ScepterCode/class-admission-api/pkg/cache"
	"github.com/ScepterCode/class-admission-api/pkg/config"
	"github.com/ScepterCode/class-admission-api/pkg/database"
	"github.com/ScepterCode/class-admission-api/pkg/logger"
	corsmiddleware "github.com/ScepterCode/class-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ScepterCode/class-admission-api/pkg/middleware/requestid"
	"github.com/ScepterCode/class-admission-api/pkg/storage"
)

// @title Class Admission API
// @version 0.1.0
// @description Capacity-aware class admission and waitlist service
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, waitlist reads will skip the cache", "error", err)
		redisClient = nil
	}

	classes := repository.NewClassRepository(db)
	waitlists := repository.NewWaitlistRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	caches := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()

	notifier := service.NewQueueNotifier(service.NewLogSender(logr), service.QueueNotifierConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
	}, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notifier.Start(rootCtx)
	defer notifier.Stop()

	engine := service.NewEnrollmentService(classes, waitlists, enrollments, caches, notifier, nil, metrics,
		service.EngineConfig{
			ResponseWindow: cfg.Waitlist.ResponseWindow,
			MaxNotifyBatch: cfg.Waitlist.MaxNotifyBatch,
			RiskEnabled:    cfg.Risk.Enabled,
			RiskThreshold:  cfg.Risk.ApprovalThreshold,
		}, nil, logr)
	waitlistSvc := service.NewWaitlistService(waitlists, caches, notifier, metrics, cfg.Waitlist.CacheTTL, nil, logr)
	approvalSvc := service.NewApprovalService(enrollments, engine, notifier, nil, logr)
	sweeper := service.NewExpiryService(waitlists, enrollments, engine, notifier, metrics, cfg.Waitlist.SweepInterval, logr)
	go sweeper.Run(rootCtx)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(classes, waitlists, files, signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}, logr, nil, nil)
	}

	enrollmentHandler := handler.NewEnrollmentHandler(engine)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	waitlistHandler := handler.NewWaitlistHandler(waitlistSvc, engine, sweeper)
	classHandler := handler.NewClassHandler(engine)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		api.POST("/enrollments/request", enrollmentHandler.Request)
		api.POST("/enrollments/bulk", middleware.RBAC("ADMIN", "REGISTRAR"), enrollmentHandler.Bulk)
		api.DELETE("/enrollments/:id", enrollmentHandler.Withdraw)
		api.GET("/enrollments/pending", middleware.RBAC("ADMIN", "REGISTRAR"), approvalHandler.ListPending)
		api.POST("/enrollments/:id/approve", middleware.RBAC("ADMIN", "REGISTRAR"), approvalHandler.Approve)
		api.POST("/enrollments/:id/reject", middleware.RBAC("ADMIN", "REGISTRAR"), approvalHandler.Reject)

		api.GET("/classes/:id/seats", classHandler.Seats)
		api.POST("/classes/:id/waitlist", waitlistHandler.Add)
		api.GET("/classes/:id/waitlist", middleware.RBAC("ADMIN", "REGISTRAR"), waitlistHandler.Roster)
		api.DELETE("/classes/:id/waitlist/:studentId", waitlistHandler.Remove)
		api.GET("/classes/:id/waitlist/:studentId/position", waitlistHandler.Position)
		api.GET("/classes/:id/waitlist/:studentId/probability", waitlistHandler.Probability)
		api.POST("/classes/:id/waitlist/response", waitlistHandler.Respond)
		api.POST("/classes/:id/waitlist/process", middleware.RBAC("ADMIN", "REGISTRAR"), waitlistHandler.Process)
		api.POST("/waitlist/process-expired", middleware.RBAC("ADMIN", "REGISTRAR"), waitlistHandler.ProcessExpired)

		api.POST("/classes/:id/waitlist/export", middleware.RBAC("ADMIN", "REGISTRAR"), exportHandler.Generate)
		api.GET("/exports/:token", exportHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
