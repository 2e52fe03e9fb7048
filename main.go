package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"taskhub/backend/internal/cache"
	"taskhub/backend/internal/config"
	"taskhub/backend/internal/database"
	"taskhub/backend/internal/events"
	"taskhub/backend/internal/handlers"
	"taskhub/backend/internal/middleware"
	"taskhub/backend/internal/realtime"
	"taskhub/backend/internal/repositories"
	"taskhub/backend/internal/services"
)

// Application holds all application dependencies and state
type Application struct {
	Config *config.Config
	DB     *database.Pool
	Cache  cache.Cache
	Redis  *redis.Client
	Hub    *realtime.Hub
	Events *events.Publisher
	Router *gin.Engine
	Server *http.Server

	// Services
	TaskService         services.TaskService
	NotificationService services.NotificationService
	AuthService         services.AuthService
	RegisterService     services.RegisterService
	UserService         services.UserService
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize application: %v", err)
	}

	app.setupRoutes()
	app.startServer()
}

func initializeApplication(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
		Hub:    realtime.NewHub(),
	}

	log.Println("🚀 Initializing Taskhub Backend...")
	log.Printf("📋 Environment: %s", cfg.Server.Environment)

	db, err := database.NewPool(cfg.Database, cfg.GetDSN(), cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	app.DB = db
	log.Println("✅ Database connected and configured")

	migrationConfig := &repositories.MigrationConfig{
		MigrationsPath: "file://migrations",
		DBName:         cfg.Database.Name,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
	}
	if err := repositories.RunMigrations(db.DB, migrationConfig); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Redis unavailable: %v (continuing without cache)", err)
		redisClient = nil
	} else {
		app.Redis = redisClient
		app.Cache = cache.NewRedisCache(redisClient)
		log.Println("✅ Redis connected, task cache enabled")
	}

	if cfg.Kafka.Enabled {
		app.Events = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Printf("✅ Kafka event mirror enabled (topic %s)", cfg.Kafka.Topic)
	}

	// Services
	app.TaskService = services.NewTaskService(app.Hub, app.Events, app.Cache)
	app.NotificationService = services.NewNotificationService()
	app.AuthService = services.NewAuthService(cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	app.RegisterService = services.NewRegisterService()
	app.UserService = services.NewUserService()

	log.Println("✅ All services initialized")

	return app, nil
}

func (app *Application) setupRoutes() {
	r := gin.New()

	// Global middleware stack (order matters!)
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RecoveryWithLog())
	r.Use(middleware.SecureHeader())

	rateLimit := rate.Limit(float64(app.Config.RateLimit.RequestsPerMin) / 60.0)
	r.Use(middleware.RateLimiter(rateLimit, app.Config.RateLimit.BurstSize))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{app.Config.Server.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", app.healthHandler())
	r.GET("/ready", app.readinessHandler())

	// Realtime fan-out; identity arrives later via the join event.
	r.GET("/ws", realtime.ServeWS(app.Hub))

	v1 := r.Group("/api/v1")

	// Public authentication routes
	authRoutes := v1.Group("/auth")
	if app.Redis != nil {
		authLimiter := middleware.NewDistributedRateLimiter(app.Redis)
		authRoutes.Use(authLimiter.CreateMiddleware("auth", &middleware.RateLimit{
			Rate:    20,
			Window:  time.Minute,
			KeyFunc: middleware.IPKeyFunc,
		}))
	}

	authHandler := handlers.NewAuthHandler(app.DB.DB, app.AuthService, app.Config.IsProduction())
	registerHandler := handlers.NewRegisterHandler(app.DB.DB, app.RegisterService)

	authRoutes.POST("/register", registerHandler.Registration)
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/refresh", authHandler.Refresh)
	authRoutes.POST("/logout", authHandler.Logout)

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.AuthzMiddleware(middleware.AuthzConfig{SecretFunc: services.JWTSecret}))
	{
		protected.GET("/auth/me", authHandler.Me)
		protected.PATCH("/auth/me", authHandler.UpdateMe)

		taskHandler := handlers.NewTaskHandler(app.DB.DB, app.TaskService)
		taskRoutes := protected.Group("/tasks")
		{
			taskRoutes.POST("", taskHandler.CreateTask)
			taskRoutes.GET("", taskHandler.GetTasks)
			taskRoutes.GET("/assigned/me", taskHandler.GetTasksAssignedToMe)
			taskRoutes.GET("/created/me", taskHandler.GetTasksCreatedByMe)
			taskRoutes.GET("/overdue/me", taskHandler.GetOverdueTasks)
			taskRoutes.GET("/:id", taskHandler.GetTaskByID)
			taskRoutes.PATCH("/:id", taskHandler.UpdateTask)
			taskRoutes.DELETE("/:id", taskHandler.DeleteTask)
		}

		notificationHandler := handlers.NewNotificationHandler(app.DB.DB, app.NotificationService)
		notificationRoutes := protected.Group("/notifications")
		{
			notificationRoutes.GET("", notificationHandler.List)
			notificationRoutes.PATCH("/:id/read", notificationHandler.MarkRead)
		}

		userHandler := handlers.NewUserHandler(app.DB.DB, app.UserService)
		protected.GET("/users", userHandler.GetUsers)
	}

	app.Router = r
}

func (app *Application) startServer() {
	addr := app.Config.GetServerAddr()

	app.Server = &http.Server{
		Addr:         addr,
		Handler:      app.Router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🛑 Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := app.Server.Shutdown(ctx); err != nil {
			log.Printf("❌ Server forced to shutdown: %v", err)
		}

		app.cleanup()
		log.Println("✅ Server stopped gracefully")
	}()

	log.Printf("🚀 Server starting on %s", addr)
	log.Printf("💚 Health check at http://%s/health", addr)

	if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("❌ Server failed to start: %v", err)
	}
}

func (app *Application) cleanup() {
	log.Println("🧹 Cleaning up resources...")

	if app.Events != nil {
		if err := app.Events.Close(); err != nil {
			log.Printf("⚠️  Error closing kafka publisher: %v", err)
		}
	}

	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			log.Printf("⚠️  Error closing cache: %v", err)
		}
	}

	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}

	log.Println("✅ Cleanup complete")
}

func (app *Application) healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "taskhub-backend",
		}

		if err := app.DB.Health(); err != nil {
			health["status"] = "unhealthy"
			health["database"] = "down"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "up"

		if app.Redis != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := app.Redis.Ping(ctx).Err(); err != nil {
				health["redis"] = "down"
			} else {
				health["redis"] = "up"
			}
		}

		total, identified := app.Hub.ConnectionCounts()
		health["ws_connections"] = total
		health["ws_identified"] = identified

		c.JSON(http.StatusOK, health)
	}
}

func (app *Application) readinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := app.DB.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"reason": "database not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"ready": true})
	}
}
