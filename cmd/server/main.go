package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/cache"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/handlers"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/middleware"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/stream"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Yuh Blockin Backend",
		BodyLimit: 1 * 1024 * 1024, // 1MB, alert payloads are small
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Initialize database connection
	db, err := repository.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize Redis cache
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsedDB, err := strconv.Atoi(dbStr); err == nil {
			redisDB = parsedDB
		}
	}

	redisCache := cache.NewRedisCache(redisAddr, redisPassword, redisDB)
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		redisCache = nil
	} else {
		log.Println("Redis cache connected successfully")
	}

	entitlementCache := cache.NewEntitlementCache(redisCache)
	presenceCache := cache.NewPresenceCache(redisCache)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	plateRepo := repository.NewPlateRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db)
	ackMarkerRepo := repository.NewAckMarkerRepository(db)
	pendingAlertRepo := repository.NewPendingAlertRepository(db)

	// Stream broker routes alert snapshots to live sessions
	broker := stream.NewBroker()

	// Initialize services
	authService := service.NewAuthService(userRepo, refreshTokenRepo, entitlementRepo)
	plateService := service.NewPlateService(plateRepo)
	gate := service.NewEntitlementGate(entitlementRepo, entitlementCache, service.GateConfigFromEnv())
	tracker := service.NewAcknowledgmentTracker(alertRepo, ackMarkerRepo)
	alertService := service.NewAlertService(
		alertRepo,
		plateRepo,
		ackMarkerRepo,
		pendingAlertRepo,
		gate,
		broker,
		service.ResponsePolicyFromEnv(),
	)

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(
		alertService,
		plateService,
		gate,
		tracker,
		broker,
		pendingAlertRepo,
		userRepo,
		presenceCache,
	)
	authHandler := handlers.NewAuthHandler(authService)
	alertHandler := handlers.NewAlertHandler(alertService, tracker)
	plateHandler := handlers.NewPlateHandler(plateService)
	entitlementHandler := handlers.NewEntitlementHandler(gate)

	// Expired queue entries serve nobody after a month.
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := pendingAlertRepo.CleanupOld(30 * 24 * time.Hour); err != nil {
				log.Printf("Pending alert cleanup failed: %v", err)
			}
		}
	}()

	// Public routes
	api := app.Group("/api", middleware.OriginAllowed())
	auth := api.Group("/auth", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)

	// Protected routes
	protected := api.Group("/", middleware.AuthRequired())
	protected.Post("/alerts", alertHandler.SendAlert)
	protected.Get("/alerts/received", alertHandler.Received)
	protected.Get("/alerts/sent", alertHandler.Sent)
	protected.Get("/alerts/unacknowledged-count", alertHandler.UnacknowledgedCount)
	protected.Post("/alerts/reconcile", alertHandler.Reconcile)
	protected.Post("/alerts/:id/read", alertHandler.MarkRead)
	protected.Post("/alerts/:id/response", alertHandler.Respond)

	protected.Post("/plates", plateHandler.RegisterPlate)
	protected.Get("/plates", plateHandler.ListPlates)
	protected.Delete("/plates/:id", plateHandler.RemovePlate)

	protected.Get("/entitlement", entitlementHandler.GetEntitlement)
	protected.Post("/entitlement/tier", entitlementHandler.SetTier)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(),
		middleware.AuthRequired(),
		func(c *fiber.Ctx) error {
			// Upgrade to WebSocket
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		},
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Yuh Blockin backend is running",
		})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s...", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
