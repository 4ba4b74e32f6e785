package main

import (
	"errors"

	"crm-service/internal/handler"
	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting CRM service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if _, err := database.InitDB(&cfg.DB, log); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.User{},
		&model.Customer{},
		&model.Deal{},
		&model.Invoice{},
		&model.InvoiceItem{},
	); err != nil {
		log.Fatal("Failed to migrate database models", zap.Error(err))
	}

	// Seed the bootstrap account if configured. Accounts are otherwise
	// provisioned out-of-band; there is no registration endpoint.
	if err := ensureBootstrapUser(cfg, log); err != nil {
		log.Fatal("Failed to bootstrap account", zap.Error(err))
	}

	// Construct the session token utility once; the signing key is
	// read-only from here on
	jwtUtil := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})
	handler.Initialize(jwtUtil)
	log.Info("Session token utility initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", handler.Login)
	auth.POST("/logout", handler.Logout)

	// API routes - all require a valid session
	api := e.Group("/api")
	api.Use(middleware.JWTAuthMiddleware(jwtUtil))

	api.GET("/me", handler.GetProfile)

	customers := api.Group("/customers")
	customers.POST("", handler.CreateCustomer)
	customers.GET("", handler.ListCustomers)
	customers.GET("/:id", handler.GetCustomer)
	customers.PUT("/:id", handler.UpdateCustomer)
	customers.DELETE("/:id", handler.DeleteCustomer)

	deals := api.Group("/deals")
	deals.POST("", handler.CreateDeal)
	deals.GET("", handler.ListDeals)
	deals.GET("/stats", handler.GetDealStats)
	deals.GET("/:id", handler.GetDeal)
	deals.PUT("/:id", handler.UpdateDeal)
	deals.DELETE("/:id", handler.DeleteDeal)

	invoices := api.Group("/invoices")
	invoices.POST("", handler.CreateInvoice)
	invoices.GET("", handler.ListInvoices)
	invoices.GET("/:id", handler.GetInvoice)
	invoices.PUT("/:id", handler.UpdateInvoice)
	invoices.DELETE("/:id", handler.DeleteInvoice)

	api.GET("/dashboard/stats", handler.GetDashboardStats)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// ensureBootstrapUser creates the configured seed account when it does
// not exist yet. Does nothing when no bootstrap credentials are set.
func ensureBootstrapUser(cfg *config.Config, log *zap.Logger) error {
	if cfg.Bootstrap.UserEmail == "" || cfg.Bootstrap.UserPassword == "" {
		return nil
	}

	var existing model.User
	result := database.GetDB().Where("email = ?", cfg.Bootstrap.UserEmail).First(&existing)
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Bootstrap.UserPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := model.User{
		Email:    cfg.Bootstrap.UserEmail,
		Password: string(hashed),
		Name:     cfg.Bootstrap.UserName,
	}
	if result := database.GetDB().Create(&user); result.Error != nil {
		return result.Error
	}

	log.Info("Bootstrap account created", zap.String("email", user.Email))
	return nil
}
