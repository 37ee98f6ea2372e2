package main

import (
	"log"

	"github.com/labstack/echo/v4"

	"github.com/knotapp/knot/internal/realtime"
	"github.com/knotapp/knot/internal/router"
	"github.com/knotapp/knot/pkg/config"
	"github.com/knotapp/knot/pkg/logger"
	"github.com/knotapp/knot/validators"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	appLogger, err := logger.Init(cfg.LogFile, cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	// Initialize database connections
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when main exits

	// The realtime hub is owned here and injected; services publish through it
	hub := realtime.NewHub(appLogger)

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Setup routes and dependencies
	router.SetupRoutes(e, db.Postgres, db.Mongo, db.Redis, hub, cfg, appLogger)

	// Validator
	e.Validator = validators.NewValidator()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
