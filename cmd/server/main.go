package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Soumit27/eazzgrievnce/internal/config"
	"github.com/Soumit27/eazzgrievnce/internal/database"
	"github.com/Soumit27/eazzgrievnce/internal/handlers"
	applog "github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/middleware"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/repository"
	"github.com/Soumit27/eazzgrievnce/internal/services"
	"github.com/Soumit27/eazzgrievnce/internal/storage"
	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

const slaScanLockKey = "grievance:sla-scan"

func main() {
	cfg := config.Load()
	applog.Init(cfg.Log.Level, cfg.Log.Format)
	log := applog.Log

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient, err := database.ConnectRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer database.CloseRedis(redisClient)

	minioStorage, err := storage.NewMinIOStorage(&cfg.MinIO)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}

	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireHour)
	sessionStore := database.NewSessionStore(redisClient)

	// Initialize repositories
	complaintRepo := repository.NewComplaintRepository(db)
	workerRepo := repository.NewWorkerRepository(db)

	// Initialize services
	tracker := services.NewAvailabilityTracker(complaintRepo, workerRepo, cfg.Store.Timeout)
	complaintService := services.NewComplaintService(complaintRepo, workerRepo, tracker, services.ServiceOptions{
		StoreTimeout:      cfg.Store.Timeout,
		DefaultSLAMinutes: cfg.SLA.DefaultMinutes,
	})
	workerService := services.NewWorkerService(workerRepo, tracker, cfg.Store.Timeout)

	// Only one instance scans per tick; the lock lives in Redis.
	scanLock := database.NewScanLock(redisClient, slaScanLockKey, cfg.SLA.LockTTL)
	slaMonitor := services.NewSLAMonitor(complaintRepo, complaintService, scanLock, cfg.SLA.CheckInterval, cfg.Store.Timeout)
	slaMonitor.Start(context.Background())
	defer slaMonitor.Stop()

	// Initialize handlers
	complaintHandler := handlers.NewComplaintHandler(complaintService, minioStorage)
	workerHandler := handlers.NewWorkerHandler(workerService)
	sessionHandler := handlers.NewSessionHandler(sessionStore)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": func(ctx context.Context) error { return pingDB(ctx, db) },
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"minio":    minioStorage.Ping,
	})

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, sessionStore)

	app := fiber.New(fiber.Config{
		AppName:      "Grievance Lifecycle Service",
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Health routes
	v1.Get("/health", healthHandler.Health)
	v1.Get("/ready", healthHandler.Ready)

	// Public intake
	v1.Post("/complaints", middleware.RateLimit(cfg.RateLimit.Limit, cfg.RateLimit.Period), complaintHandler.CreateComplaint)

	protected := v1.Group("", authMiddleware.Authenticate(), middleware.ActionLogger(middleware.ActionLoggerConfig{
		SkipMethods: []string{fiber.MethodGet},
	}))

	protected.Post("/auth/logout", sessionHandler.Logout)

	complaints := protected.Group("/complaints")
	complaints.Get("/", complaintHandler.ListComplaints)
	complaints.Get("/:id", complaintHandler.GetComplaint)
	complaints.Post("/:id/assign", authMiddleware.RequireRole(models.RoleCM, models.RoleAM, models.RoleJE), complaintHandler.Assign)
	complaints.Post("/:id/forward-to-je", authMiddleware.RequireRole(models.RoleCM), complaintHandler.ForwardToJE)
	complaints.Post("/:id/submit-proof", authMiddleware.RequireRole(models.RoleCM, models.RoleJE, models.RoleContractor), complaintHandler.SubmitProof)
	complaints.Post("/:id/verify", authMiddleware.RequireRole(models.RoleJE, models.RoleSDO), complaintHandler.VerifyProof)
	complaints.Post("/:id/manager-approve", authMiddleware.RequireRole(models.RoleGM, models.RoleManager, models.RoleSDO), complaintHandler.ManagerApprove)
	complaints.Post("/:id/escalate", authMiddleware.RequireRole(models.RoleCM, models.RoleAM, models.RoleSDO), complaintHandler.Escalate)
	complaints.Post("/:id/reject", authMiddleware.RequireRole(models.RoleCM, models.RoleGM), complaintHandler.Reject)

	workers := protected.Group("/workers")
	workers.Post("/", authMiddleware.RequireRole(models.RoleCM, models.RoleAM), workerHandler.CreateWorker)
	workers.Get("/", workerHandler.ListWorkers)
	workers.Post("/:id/reconcile", authMiddleware.RequireRole(models.RoleCM, models.RoleAM, models.RoleJE, models.RoleSDO), workerHandler.Reconcile)

	contractors := protected.Group("/contractors", authMiddleware.RequireRole(models.RoleJE))
	contractors.Post("/", workerHandler.CreateContractor)
	contractors.Get("/mine", workerHandler.ListMyContractors)

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Infof("Server starting on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Errorf("Error during shutdown: %v", err)
	}
	log.Info("Server stopped")
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
