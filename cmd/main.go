package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"price-import-service/internal/clients"
	"price-import-service/internal/config"
	"price-import-service/internal/events"
	"price-import-service/internal/handlers"
	"price-import-service/internal/importer"
	"price-import-service/internal/middleware"
	"price-import-service/internal/repository"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

// @title Price Import API
// @version 1.0.0
// @description Vendor price-list import service with preview, simulation and atomic commit
// @termsOfService http://swagger.io/terms/

// @contact.name Price Import API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8094
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	// Set Redis password from GCP Secret Manager
	redisOpts.Password = secrets.GetRedisPassword()
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (caching will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repositories
	importsRepo := repository.NewImportsRepository(db, redisClient)
	productsRepo := repository.NewProductsRepository(db, redisClient)

	// Imports orphaned in a running phase by a previous instance cannot make
	// progress; fail them so pollers are not left hanging
	if swept, err := importsRepo.SweepStaleRunning(); err != nil {
		log.Printf("WARNING: Failed to sweep stale imports: %v", err)
	} else if swept > 0 {
		log.Printf("Marked %d interrupted imports as failed", swept)
	}

	// Initialize event publisher only if NATS_URL is set
	var eventsPublisher *events.Publisher
	natsURL := os.Getenv("NATS_URL")
	if natsURL != "" {
		var err error
		eventsPublisher, err = events.NewPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal("Failed to create upload directory:", err)
	}

	// Initialize the import orchestrator
	var publisher importer.EventPublisher
	if eventsPublisher != nil {
		publisher = eventsPublisher
	}
	orchestrator := importer.NewOrchestrator(importsRepo, productsRepo, publisher, logger, importer.Config{
		UploadDir:      cfg.UploadDir,
		BatchSize:      cfg.BatchSize,
		SampleRowCount: cfg.SampleRowCount,
	})

	// Initialize clients and handlers
	vendorClient := clients.NewVendorClient()
	importsHandler := handlers.NewImportsHandler(orchestrator, importsRepo, vendorClient, cfg.MaxUploadBytes)

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("price-import-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("price-import-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "price_import_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware
	staffServiceURL := os.Getenv("STAFF_SERVICE_URL")
	if staffServiceURL == "" {
		staffServiceURL = "http://staff-service:8080"
	}
	rbacMw := rbac.NewMiddlewareWithURL(staffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("price-import-service"))
	router.Use(gosharedmw.CompressionMiddleware())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.HealthCheck)
	router.GET("/metrics", gosharedmw.Handler())

	// Protected API routes
	api := router.Group("/api/v1")

	// Initialize Istio auth middleware for Keycloak JWT validation
	// During migration, AllowLegacyHeaders enables fallback to X-* headers from auth-bff
	istioAuthLogger := logrus.NewEntry(logger).WithField("component", "istio_auth")
	istioAuth := gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        true,
		AllowLegacyHeaders: true, // Allow X-User-ID, X-Tenant-ID during migration
		Logger:             istioAuthLogger,
	})

	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
		api.Use(middleware.TenantMiddleware()) // Still needed in dev mode
	} else {
		api.Use(istioAuth)
	}

	v1 := api.Group("")
	{
		imports := v1.Group("/imports")
		{
			// Read operations - require products:read permission
			imports.GET("", rbacMw.RequirePermission(rbac.PermissionProductsRead), importsHandler.GetImports)
			imports.GET("/:id", rbacMw.RequirePermission(rbac.PermissionProductsRead), importsHandler.GetImport)
			imports.GET("/:id/rows", rbacMw.RequirePermission(rbac.PermissionProductsRead), importsHandler.GetImportRows)
			imports.GET("/:id/simulation", rbacMw.RequirePermission(rbac.PermissionProductsRead), importsHandler.GetSimulation)
			imports.GET("/:id/progress", rbacMw.RequirePermission(rbac.PermissionProductsRead), importsHandler.GetProgress)

			// Mutating operations - require products:import permission
			imports.POST("", rbacMw.RequirePermission(rbac.PermissionProductsImport), importsHandler.UploadImport)
			imports.PUT("/:id/mapping", rbacMw.RequirePermission(rbac.PermissionProductsImport), importsHandler.SubmitMapping)
			imports.POST("/:id/commit", rbacMw.RequirePermission(rbac.PermissionProductsImport), importsHandler.CommitImport)
			imports.POST("/:id/cancel", rbacMw.RequirePermission(rbac.PermissionProductsImport), importsHandler.CancelImport)
		}

		products := v1.Group("/products")
		{
			products.GET("/:id/price-history", rbacMw.RequirePermission(rbac.PermissionProductsRead), importsHandler.GetPriceHistory)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8094"
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Price import service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down price-import-service...")

	// Let running validation and commit passes finish; their transactions
	// are small enough to drain quickly
	done := make(chan struct{})
	go func() {
		orchestrator.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("✓ Background import passes drained")
	case <-time.After(30 * time.Second):
		log.Println("WARNING: Timed out waiting for background import passes")
	}

	// Shutdown tracer provider
	if tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Price import service stopped")
}
