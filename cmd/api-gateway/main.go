package main

import (
	"context"
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

	_ "github.com/gestionequipos/activos-api/api/swagger"
	"github.com/gestionequipos/activos-api/internal/handler"
	"github.com/gestionequipos/activos-api/internal/middleware"
	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/repository"
	"github.com/gestionequipos/activos-api/internal/service"
	"github.com/gestionequipos/activos-api/pkg/cache"
	"github.com/gestionequipos/activos-api/pkg/config"
	"github.com/gestionequipos/activos-api/pkg/database"
	"github.com/gestionequipos/activos-api/pkg/export"
	"github.com/gestionequipos/activos-api/pkg/jobs"
	"github.com/gestionequipos/activos-api/pkg/logger"
	corsmiddleware "github.com/gestionequipos/activos-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gestionequipos/activos-api/pkg/middleware/requestid"
	"github.com/gestionequipos/activos-api/pkg/storage"
)

// @title Gestion de Equipos API
// @version 1.0.0
// @description Inventory, maintenance and custody tracking for organizational assets
// @BasePath /api
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	cacheEnabled := err == nil
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	}

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	clearanceStore, err := storage.NewLocalStorage(cfg.Clearance.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init clearance storage", "error", err)
	}
	evidenceSigner := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)
	clearanceSigner := storage.NewSignedURLSigner(cfg.Clearance.SignedURLSecret, cfg.Clearance.SignedURLTTL)

	validate := validator.New()

	siteRepo := repository.NewSiteRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	peripheralRepo := repository.NewPeripheralRepository(db)
	licenseRepo := repository.NewLicenseRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	clearanceRepo := repository.NewClearanceRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsService := service.NewMetricsService()
	var cacheService *service.CacheService
	if cacheEnabled {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Dashboard.CacheTTL, logr, true)
	}

	tracker := service.NewAssignmentTracker(assignmentRepo, logr)

	authService := service.NewAuthService(userRepo, validate, logr, cfg.JWT)
	userService := service.NewUserService(userRepo, validate, logr)
	siteService := service.NewSiteService(db, siteRepo, auditRepo, validate, logr)
	employeeService := service.NewEmployeeService(db, employeeRepo, assignmentRepo, auditRepo, validate, logr)
	equipmentService := service.NewEquipmentService(db, equipmentRepo, employeeRepo, auditRepo, tracker, validate, logr)
	peripheralService := service.NewPeripheralService(db, peripheralRepo, equipmentRepo, employeeRepo, auditRepo, tracker, validate, logr)
	licenseService := service.NewLicenseService(db, licenseRepo, equipmentRepo, auditRepo, validate, logr)
	maintenanceService := service.NewMaintenanceService(db, maintenanceRepo, equipmentRepo, auditRepo, evidenceStore, evidenceSigner, cfg.Evidence, validate, logr)
	assignmentService := service.NewAssignmentQueryService(assignmentRepo, logr)
	auditService := service.NewAuditService(auditRepo, logr)
	clearanceService := service.NewClearanceService(clearanceRepo, employeeRepo, assignmentRepo, export.NewPDFExporter(), clearanceStore, clearanceSigner, cfg.Clearance, logr)
	dashboardService := service.NewDashboardService(dashboardRepo, maintenanceRepo, cacheService, cfg.Dashboard.CacheTTL, logr)
	consistencyService := service.NewConsistencyService(maintenanceRepo, assignmentRepo, logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	siteHandler := handler.NewSiteHandler(siteService)
	employeeHandler := handler.NewEmployeeHandler(employeeService)
	equipmentHandler := handler.NewEquipmentHandler(equipmentService)
	peripheralHandler := handler.NewPeripheralHandler(peripheralService)
	licenseHandler := handler.NewLicenseHandler(licenseService)
	maintenanceHandler := handler.NewMaintenanceHandler(maintenanceService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService)
	auditHandler := handler.NewAuditHandler(auditService)
	clearanceHandler := handler.NewClearanceHandler(clearanceService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	consistencyHandler := handler.NewConsistencyHandler(consistencyService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	// Signed-token file downloads carry their own authorization.
	api.GET("/files/evidence", maintenanceHandler.DownloadEvidence)
	api.GET("/files/clearances", clearanceHandler.DownloadDocument)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.PUT("/auth/password", authHandler.ChangePassword)

		authed.GET("/sites", siteHandler.List)
		authed.GET("/sites/:id", siteHandler.Get)

		authed.GET("/employees", employeeHandler.List)
		authed.GET("/employees/:id", employeeHandler.Get)
		authed.POST("/employees", employeeHandler.Create)
		authed.PUT("/employees/:id", employeeHandler.Update)
		authed.DELETE("/employees/:id", employeeHandler.Delete)

		authed.GET("/equipment", equipmentHandler.List)
		authed.GET("/equipment/export", equipmentHandler.Export)
		authed.GET("/equipment/:id", equipmentHandler.Get)
		authed.POST("/equipment", equipmentHandler.Create)
		authed.PUT("/equipment/:id", equipmentHandler.Update)
		authed.DELETE("/equipment/:id", equipmentHandler.Decommission)

		authed.GET("/peripherals", peripheralHandler.List)
		authed.GET("/peripherals/:id", peripheralHandler.Get)
		authed.POST("/peripherals", peripheralHandler.Create)
		authed.PUT("/peripherals/:id", peripheralHandler.Update)
		authed.DELETE("/peripherals/:id", peripheralHandler.Delete)

		authed.GET("/licenses", licenseHandler.List)
		authed.GET("/licenses/:id", licenseHandler.Get)
		authed.POST("/licenses", licenseHandler.Create)
		authed.PUT("/licenses/:id", licenseHandler.Update)
		authed.DELETE("/licenses/:id", licenseHandler.Delete)

		authed.GET("/maintenance", maintenanceHandler.List)
		authed.GET("/maintenance/upcoming", maintenanceHandler.Upcoming)
		authed.GET("/maintenance/:id", maintenanceHandler.Get)
		authed.GET("/maintenance/:id/history", maintenanceHandler.History)
		authed.POST("/maintenance", maintenanceHandler.Create)
		authed.PUT("/maintenance/:id", maintenanceHandler.Update)
		authed.POST("/maintenance/:id/start", maintenanceHandler.Start)
		authed.POST("/maintenance/:id/finish", maintenanceHandler.Finish)
		authed.POST("/maintenance/:id/cancel", maintenanceHandler.Cancel)
		authed.POST("/maintenance/:id/evidence", maintenanceHandler.AddEvidence)
		authed.GET("/maintenance/:id/evidence", maintenanceHandler.ListEvidence)
		authed.GET("/maintenance/evidence/:evidenceId/url", maintenanceHandler.EvidenceURL)
		authed.DELETE("/maintenance/evidence/:evidenceId", maintenanceHandler.DeleteEvidence)

		authed.GET("/assignments", assignmentHandler.List)

		authed.GET("/audit", auditHandler.List)
		authed.GET("/audit/recent", auditHandler.RecentActivity)
		authed.GET("/audit/:entityType/:entityId", auditHandler.EntityHistory)

		authed.GET("/clearances", clearanceHandler.List)
		authed.GET("/clearances/:id", clearanceHandler.Get)
		authed.POST("/clearances", clearanceHandler.Request)
		authed.GET("/clearances/:id/document-url", clearanceHandler.DocumentURL)

		authed.GET("/dashboard/summary", dashboardHandler.Summary)
		authed.GET("/dashboard/upcoming-maintenance", dashboardHandler.UpcomingMaintenance)

		authed.GET("/users/:id", middleware.RBAC("ADMIN", "SELF"), userHandler.Get)

		admin := authed.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/sites", siteHandler.Create)
			admin.PUT("/sites/:id", siteHandler.Update)
			admin.DELETE("/sites/:id", siteHandler.Deactivate)

			admin.GET("/users", userHandler.List)
			admin.POST("/users", userHandler.Create)
			admin.PUT("/users/:id", userHandler.Update)
			admin.POST("/users/:id/reset-password", userHandler.ResetPassword)
			admin.DELETE("/users/:id", userHandler.Deactivate)

			admin.POST("/consistency/run", consistencyHandler.Run)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var consistencyQueue *jobs.Queue
	if cfg.Consistency.Enabled {
		consistencyQueue = jobs.NewQueue("consistency", func(jobCtx context.Context, _ jobs.Job) error {
			consistencyService.RunAndLog(jobCtx)
			dashboardService.Invalidate(jobCtx)
			return nil
		}, jobs.QueueConfig{Workers: 1, Logger: logr})
		consistencyQueue.Start(ctx)
		defer consistencyQueue.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Consistency.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case tick := <-ticker.C:
					job := jobs.Job{ID: tick.UTC().Format(time.RFC3339), Type: "consistency_check"}
					if err := consistencyQueue.Enqueue(job); err != nil {
						logr.Sugar().Warnw("failed to enqueue consistency check", "error", err)
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
