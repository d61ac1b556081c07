package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/exam-scheduler-api/api/swagger"
	"github.com/noah-isme/exam-scheduler-api/internal/handler"
	internalmiddleware "github.com/noah-isme/exam-scheduler-api/internal/middleware"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/repository"
	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
	"github.com/noah-isme/exam-scheduler-api/internal/service"
	"github.com/noah-isme/exam-scheduler-api/pkg/cache"
	"github.com/noah-isme/exam-scheduler-api/pkg/config"
	"github.com/noah-isme/exam-scheduler-api/pkg/database"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
	"github.com/noah-isme/exam-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/exam-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/exam-scheduler-api/pkg/middleware/requestid"
	"github.com/noah-isme/exam-scheduler-api/pkg/response"
	"github.com/noah-isme/exam-scheduler-api/pkg/storage"
)

// @title Exam Scheduler API
// @version 1.0.0
// @description Generates, reviews and publishes conflict-free exam timetables.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, generation results will not be cached", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduler.CacheTTL, logr, redisClient != nil)

	policy, err := scheduler.LoadPolicy(cfg.Scheduler.PolicyFile)
	if err != nil {
		logr.Fatal("failed to load scheduling policy", zap.Error(err), zap.String("path", cfg.Scheduler.PolicyFile))
	}

	schedules := service.NewExamScheduleService(
		repository.NewExamOfferingRepository(db),
		repository.NewExamRoomRepository(db),
		repository.NewExamScheduleRepository(db),
		repository.NewExamScheduleEntryRepository(db),
		cacheSvc,
		db,
		scheduler.NewEngine(policy),
		validate,
		metrics,
		logr,
		service.ExamScheduleConfig{
			ProposalTTL: cfg.Scheduler.ProposalTTL,
			CacheTTL:    cfg.Scheduler.CacheTTL,
			RunBudget:   cfg.Scheduler.RunBudget,
			DefaultDays: cfg.Scheduler.DefaultDays,
		},
	)

	jobsSvc := service.NewExamJobService(schedules, validate, metrics, logr, service.ExamJobConfig{
		Workers: cfg.Scheduler.JobWorkers,
		Retries: cfg.Scheduler.JobRetries,
	})

	files, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	exportSvc := service.NewExamExportService(
		schedules,
		files,
		storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL),
		validate,
		metrics,
		logr,
		service.ExamExportConfig{APIPrefix: cfg.APIPrefix, Retention: cfg.Export.Retention},
	)

	maintenance, err := service.NewExamMaintenance(cfg.Export.CleanupSpec, exportSvc, schedules, jobsSvc, logr)
	if err != nil {
		logr.Fatal("failed to schedule maintenance", zap.Error(err))
	}

	if cfg.Scheduler.Enabled {
		jobsSvc.Start(ctx)
		maintenance.Start()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
		"postgres": db,
		"redis":    handler.PingFunc(cacheRepo.Ping),
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authed := api.Group("", internalmiddleware.JWT(tokens))
	authed.GET("/metrics/snapshot", internalmiddleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	examHandler := handler.NewExamScheduleHandler(schedules, jobsSvc, exportSvc, cacheSvc)
	registerExamRoutes(api, authed, examHandler, cfg.Scheduler.Enabled)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "scheduler", cfg.Scheduler.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		maintenance.Stop(shutdownCtx)
		jobsSvc.Stop()
	}
}

func registerExamRoutes(api, authed *gin.RouterGroup, h *handler.ExamScheduleHandler, enabled bool) {
	if !enabled {
		disabled := func(c *gin.Context) { response.Error(c, appErrors.ErrServiceDisabled) }
		api.Any("/exam-schedules", disabled)
		api.Any("/exam-schedules/*rest", disabled)
		return
	}

	api.GET("/exam-schedules/exports/download", h.Download)

	writers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	admins := internalmiddleware.RequireRoles(models.RoleAdmin)

	exams := authed.Group("/exam-schedules")
	exams.POST("/generate", h.Generate)
	exams.POST("/jobs", h.EnqueueJob)
	exams.GET("/jobs/:id", h.JobStatus)
	exams.GET("/proposals/:id", h.Proposal)
	exams.PATCH("/proposals/:id/entries", writers, h.MoveEntry)
	exams.POST("/save", writers, h.Save)
	exams.POST("/export", h.Export)
	exams.GET("", h.List)
	exams.GET("/:id/entries", h.Entries)
	exams.POST("/:id/publish", admins, h.Publish)
	exams.DELETE("/:id", admins, h.Delete)
	exams.DELETE("/cache", admins, h.InvalidateCache)
}
