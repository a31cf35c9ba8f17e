package main

import (
	"timetracker-service/internal/handler"
	"timetracker-service/internal/middleware"
	"timetracker-service/pkg/config"
	"timetracker-service/pkg/database"
	"timetracker-service/pkg/jwtutil"
	"timetracker-service/pkg/logger"
	"timetracker-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
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
	log.Info("Starting time tracking service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Initialize Echo framework
	e := echo.New()
	e.Validator = handler.NewValidator()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover()) // Add recovery middleware
	e.Use(echomiddleware.CORS())    // Add CORS middleware
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	auth := e.Group("/auth")
	auth.POST("/register", handler.Register)
	auth.POST("/login", handler.Login)
	auth.POST("/password-reset-request", handler.RequestPasswordReset)
	auth.POST("/password-reset-confirm", handler.ConfirmPasswordReset)
	auth.POST("/accept-invitation", handler.AcceptInvitation)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Session management - doesn't require an active tenant
	authAPI := api.Group("/auth")
	authAPI.POST("/logout", handler.Logout)
	authAPI.POST("/refresh", handler.RefreshToken)
	authAPI.GET("/me", handler.Me)
	authAPI.POST("/select-tenant", handler.SelectTenant)
	authAPI.GET("/tenants", handler.MyTenants)

	// Tenant management
	tenants := api.Group("/tenants")
	tenants.Use(middleware.RequireTenantContext)
	tenants.GET("", handler.ListTenants)
	tenants.GET("/:id", handler.GetTenant)
	tenants.POST("", handler.CreateTenant, middleware.RequireAdmin)
	tenants.PUT("/:id", handler.UpdateTenant, middleware.RequireAdmin)
	tenants.POST("/:id/deactivate", handler.DeactivateTenant, middleware.RequireAdmin)
	tenants.POST("/:id/invite", handler.InviteUser, middleware.RequireAdmin)
	tenants.GET("/:id/users", handler.ListTenantUsers, middleware.RequireAdmin)
	tenants.PUT("/:id/users/:user_id/role", handler.UpdateTenantUserRole, middleware.RequireAdmin)
	tenants.DELETE("/:id/users/:user_id", handler.RemoveTenantUser, middleware.RequireAdmin)

	// User management
	users := api.Group("/users")
	users.Use(middleware.RequireTenantContext)
	users.GET("/me", handler.GetMyProfile)
	users.PUT("/me", handler.UpdateMyProfile)
	users.POST("/me/change-password", handler.ChangePassword)
	users.POST("", handler.CreateUser, middleware.RequireAdmin)
	users.GET("", handler.ListUsers, middleware.RequireAdmin)
	users.GET("/:id", handler.GetUser)
	users.PUT("/:id", handler.UpdateUser)
	users.PUT("/:id/role", handler.UpdateUserRole, middleware.RequireAdmin)
	users.POST("/:id/deactivate", handler.DeactivateUser, middleware.RequireAdmin)

	// Clients
	clients := api.Group("/clients")
	clients.Use(middleware.RequireTenantContext)
	clients.POST("", handler.CreateClient)
	clients.GET("", handler.ListClients)
	clients.GET("/:id", handler.GetClient)
	clients.PUT("/:id", handler.UpdateClient)
	clients.POST("/:id/deactivate", handler.DeactivateClient)
	clients.DELETE("/:id", handler.DeleteClient)
	clients.GET("/:id/projects", handler.ListClientProjects)
	clients.GET("/:id/time-summary", handler.ClientTimeSummary)

	// Projects
	projects := api.Group("/projects")
	projects.Use(middleware.RequireTenantContext)
	projects.POST("", handler.CreateProject)
	projects.GET("", handler.ListProjects)
	projects.GET("/:id", handler.GetProject)
	projects.PUT("/:id", handler.UpdateProject)
	projects.GET("/:id/technologies", handler.ListProjectTechnologies)
	projects.POST("/:id/technologies/:technology_id", handler.AssignTechnology)
	projects.DELETE("/:id/technologies/:technology_id", handler.RemoveTechnology)

	// Technologies
	technologies := api.Group("/technologies")
	technologies.Use(middleware.RequireTenantContext)
	technologies.POST("", handler.CreateTechnology)
	technologies.GET("", handler.ListTechnologies)
	technologies.GET("/:id", handler.GetTechnology)
	technologies.PUT("/:id", handler.UpdateTechnology)
	technologies.DELETE("/:id", handler.DeleteTechnology)

	// Time entries
	timeEntries := api.Group("/time-entries")
	timeEntries.Use(middleware.RequireTenantContext)
	timeEntries.POST("", handler.CreateTimeEntry)
	timeEntries.GET("", handler.ListTimeEntries)
	timeEntries.GET("/:id", handler.GetTimeEntry)
	timeEntries.PUT("/:id", handler.UpdateTimeEntry)
	timeEntries.DELETE("/:id", handler.DeleteTimeEntry)

	// Timer workflow
	timer := api.Group("/timer")
	timer.Use(middleware.RequireTenantContext)
	timer.POST("/start", handler.StartTimer)
	timer.POST("/stop", handler.StopTimer)
	timer.GET("/current", handler.CurrentTimer)

	// Dashboard
	dashboard := api.Group("/dashboard")
	dashboard.Use(middleware.RequireTenantContext)
	dashboard.GET("", handler.Dashboard)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
