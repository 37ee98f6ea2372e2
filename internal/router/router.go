package router

import (
	"log"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/knotapp/knot/internal/handlers"
	"github.com/knotapp/knot/internal/middleware"
	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/internal/realtime"
	"github.com/knotapp/knot/internal/repositories"
	"github.com/knotapp/knot/internal/services"
	"github.com/knotapp/knot/pkg/config"
	"github.com/knotapp/knot/pkg/ratelimit"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(eMiddleware.RequestLoggerWithConfig(eMiddleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v eMiddleware.RequestLoggerValues) error {
			zap.L().Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
}

// SetupRoutes configures all application routes and injects dependencies.
// The realtime hub is created by the caller and injected here, so the engine
// and gateway never depend on a process-wide singleton.
func SetupRoutes(e *echo.Echo, pgdb *gorm.DB, mgClient *mongo.Client, redisClient *redis.Client, hub *realtime.Hub, cfg *config.Config, appLogger *zap.Logger) {
	// AutoMigrate PostgreSQL models
	err := pgdb.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.FollowRequest{},
		&models.Notification{},
	)
	if err != nil {
		log.Fatalf("Failed to auto migrate models: %v", err)
	}
	log.Println("PostgreSQL auto-migrations completed for all models.")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	followRepo := repositories.NewPostgresFollowRepository(pgdb)
	followRequestRepo := repositories.NewPostgresFollowRequestRepository(pgdb)
	notificationRepo := repositories.NewPostgresNotificationRepository(pgdb)
	conversationRepo := repositories.NewMongoConversationRepository(mgClient.Database("knot"))

	// --- Initialize Services ---
	relationshipService := services.NewRelationshipService(followRepo, followRequestRepo, userRepo, notificationRepo, hub, appLogger)
	messagingService := services.NewMessagingService(conversationRepo, followRepo, userRepo, notificationRepo, hub, appLogger)

	followLimiter := ratelimit.NewLimiter(redisClient, 1, 30) // 1/s sustained, 30 burst

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	authHandler.RegisterAuthRoutes(authGroup)
	log.Println("Auth routes configured.")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	log.Println("JWT authentication middleware applied to /api/v1 group.")

	// User directory routes
	userHandler := handlers.NewUserHandler(userRepo, relationshipService)
	userHandler.RegisterUserRoutes(api)
	log.Println("User routes configured.")

	// Relationship routes; follow-request creation is rate limited
	relationshipHandler := handlers.NewRelationshipHandler(relationshipService)
	relationshipHandler.RegisterRelationshipRoutes(api, middleware.RateLimitByUser(followLimiter, "follow"))
	log.Println("Relationship routes configured.")

	// Messaging routes
	messagingHandler := handlers.NewMessagingHandler(messagingService)
	messagingHandler.RegisterMessagingRoutes(api)
	log.Println("Messaging routes configured.")

	// Notification routes
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, userRepo)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Println("Notification routes configured.")

	// Realtime channel; authenticates its own token because websocket clients
	// cannot always set headers
	wsHandler := realtime.NewWSHandler(hub, redisClient, cfg.JWTSecret, appLogger)
	e.GET("/ws", wsHandler.Serve)
	log.Println("Realtime route configured.")

	log.Println("All routes configured.")
}
