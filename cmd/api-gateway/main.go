package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/acadplan/timetable-api/api/swagger"
	"github.com/acadplan/timetable-api/internal/handler"
	"github.com/acadplan/timetable-api/internal/middleware"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/internal/repository"
	"github.com/acadplan/timetable-api/internal/service"
	"github.com/acadplan/timetable-api/pkg/cache"
	"github.com/acadplan/timetable-api/pkg/config"
	"github.com/acadplan/timetable-api/pkg/database"
	"github.com/acadplan/timetable-api/pkg/logger"
	corsmiddleware "github.com/acadplan/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acadplan/timetable-api/pkg/middleware/requestid"
)

// @title AcadPlan Timetable API
// @version 0.1.0
// @description Academic timetable allocation service
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// The grid cache is an optimization; the service still runs without it.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, grid cache disabled", zap.Error(err))
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	entryRepo := repository.NewScheduleEntryRepository(db)
	openedCourseRepo := repository.NewOpenedCourseRepository(db)
	contractRepo := repository.NewContractRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	restrictionRepo := repository.NewRestrictionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:            cfg.JWT.Secret,
		Expiration:        cfg.JWT.Expiration,
		RefreshExpiration: cfg.JWT.RefreshExpiration,
	})
	capacitySvc := service.NewCapacityService(groupRepo, availabilityRepo, contractRepo, logr)
	placementSvc := service.NewPlacementService(sessionRepo, blockRepo, entryRepo, restrictionRepo, roomRepo, cacheSvc, nil, logr)
	generatorSvc := service.NewTimetableGeneratorService(
		periodRepo, sessionRepo, blockRepo, entryRepo, restrictionRepo,
		db, cacheSvc, metricsSvc, nil, logr,
		service.GeneratorConfig{
			Seed:         cfg.Scheduler.Seed,
			MaxBatchSize: cfg.Scheduler.MaxBatchSize,
			ProposalTTL:  cfg.Scheduler.ProposalTTL,
		})
	groupSvc := service.NewGroupService(
		openedCourseRepo, groupRepo, sessionRepo, blockRepo, entryRepo,
		capacitySvc, db, cacheSvc, nil, logr)
	timetableSvc := service.NewTimetableService(periodRepo, entryRepo, cacheSvc, cfg.Export.Title, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	timetableHandler := handler.NewTimetableHandler(placementSvc, generatorSvc, timetableSvc)
	groupHandler := handler.NewGroupHandler(groupSvc)
	teacherHandler := handler.NewTeacherHandler(capacitySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	editors := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)

	timetable := authed.Group("/timetable")
	{
		timetable.GET("", timetableHandler.Get)
		timetable.POST("/validate", timetableHandler.Validate)
		timetable.POST("/assign", editors, timetableHandler.Assign)
		timetable.POST("/clear", editors, timetableHandler.Clear)
		timetable.POST("/generate", editors, timetableHandler.Generate)
		timetable.POST("/commit", editors, timetableHandler.Commit)
		if cfg.Export.Enabled {
			timetable.GET("/export", timetableHandler.Export)
		}
	}

	groups := authed.Group("/groups")
	{
		groups.POST("/batch", editors, groupHandler.CreateBatch)
		groups.PUT("/:id/teacher", editors, groupHandler.UpdateTeacher)
		groups.DELETE("/:id", editors, groupHandler.Delete)
	}

	authed.GET("/teachers/:id/availability", teacherHandler.Availability)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
