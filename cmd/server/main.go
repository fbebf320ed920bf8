package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tixpay/internal/handlers"
	appMiddleware "tixpay/internal/middleware"
	"tixpay/internal/provider"
	"tixpay/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	// Provider registry
	providers := provider.NewRegistry()
	providers.Register(provider.NewMidtrans(provider.Settings{
		GracePeriodDays: envInt("INSTALLMENTS_GRACE_PERIOD_DAYS", 7),
		MaxInstallments: envInt("INSTALLMENTS_MAX_COUNT", 12),
	}))

	// Engine services
	mail := services.NewSMTPEmailGateway()
	audit := services.NewDBAuditLog(db)
	executor := services.NewExecutor(db, providers, mail, audit, appURL)

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Handlers
	recoveryHandler := handlers.NewRecoveryHandler(db, providers, executor, appURL)
	callbackHandler := handlers.NewCallbackHandler(db, providers, executor)

	// Manual recovery flow (secret-keyed public URLs)
	e.GET("/p/orders/:code/:secret/installments", recoveryHandler.Show)
	e.POST("/p/orders/:code/:secret/installments", recoveryHandler.Submit)

	// Provider notifications
	e.POST("/callbacks/midtrans", callbackHandler.MidtransNotification)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
