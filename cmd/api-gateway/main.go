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

	_ "github.com/noah-isme/sma-case-api/api/swagger"
	"github.com/noah-isme/sma-case-api/internal/handler"
	"github.com/noah-isme/sma-case-api/internal/middleware"
	"github.com/noah-isme/sma-case-api/internal/models"
	"github.com/noah-isme/sma-case-api/internal/repository"
	"github.com/noah-isme/sma-case-api/internal/service"
	"github.com/noah-isme/sma-case-api/pkg/cache"
	"github.com/noah-isme/sma-case-api/pkg/config"
	"github.com/noah-isme/sma-case-api/pkg/database"
	"github.com/noah-isme/sma-case-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-case-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-case-api/pkg/middleware/requestid"
)

// @title SMA Case API
// @version 1.0.0
// @description Student case tracking and automated case alerts.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, "sma-case", logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cases.SummaryCacheTTL, logr, redisClient != nil)

	caseRepo := repository.NewCaseRepository(db)
	alertSvc := service.NewAlertService(service.AlertRepositories{
		Courses:        repository.NewCourseRepository(db),
		Enrollments:    repository.NewEnrollmentRepository(db),
		Attendance:     repository.NewAttendanceRepository(db),
		Grades:         repository.NewGradeRepository(db),
		Communications: repository.NewCommunicationRepository(db),
		Cases:          caseRepo,
	}, cacheSvc, metricsSvc, logr.Named("alerts"), service.AlertConfig{ReminderDays: cfg.Alerts.ReminderDays})
	caseSvc := service.NewCaseService(caseRepo, cacheSvc, validate, logr.Named("cases"), service.CaseConfig{
		SummaryCacheTTL: cfg.Cases.SummaryCacheTTL,
		ExportMaxRows:   cfg.Cases.ExportMaxRows,
	})
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, logr)

	if cfg.Alerts.SchedulerEnabled {
		scheduler := service.NewAlertScheduler(alertSvc, service.AlertSchedulerConfig{
			Interval:     cfg.Alerts.SchedulerInterval,
			SystemUserID: cfg.Alerts.SystemUserID,
			MaxRetries:   cfg.Alerts.WorkerRetries,
			RetryDelay:   time.Minute,
		}, logr)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	alertHandler := handler.NewAlertHandler(alertSvc, validate)
	caseHandler := handler.NewCaseHandler(caseSvc, validate)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))

	api.POST("/alerts/run",
		middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin),
		middleware.Audit(logr, "alerts.run"),
		alertHandler.Run)
	api.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	cases := api.Group("/cases", middleware.RequireRoles(models.StaffRoles...))
	cases.GET("", caseHandler.List)
	cases.POST("", middleware.Audit(logr, "cases.create"), caseHandler.Create)
	cases.GET("/summary", caseHandler.Summary)
	cases.GET("/export", middleware.Audit(logr, "cases.export"), caseHandler.Export)
	cases.GET("/:id", caseHandler.Get)
	cases.PATCH("/:id", middleware.Audit(logr, "cases.update"), caseHandler.Update)
	cases.GET("/:id/replies", caseHandler.ListReplies)
	cases.POST("/:id/replies", middleware.Audit(logr, "cases.reply"), caseHandler.Reply)
	cases.POST("/:id/checklist", middleware.Audit(logr, "cases.checklist.add"), caseHandler.AddChecklistItem)
	cases.PATCH("/:id/checklist/:itemId", middleware.Audit(logr, "cases.checklist.toggle"), caseHandler.ToggleChecklist)
	cases.POST("/:id/watchers", middleware.Audit(logr, "cases.watch"), caseHandler.AddWatcher)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
