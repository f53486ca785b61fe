package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"instagram-bot/config"
	"instagram-bot/handlers"
	"instagram-bot/middleware"
	"instagram-bot/services"
	"instagram-bot/webhooks"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	services.InitServices(db, cfg.DatabaseName)

	services.SetFreeTier(services.FreeTier{
		Messages: cfg.FreeTierMessages,
		AITokens: cfg.FreeTierAITokens,
		Days:     cfg.FreeTierDays,
	})

	// Work queue over Redis
	queue, err := services.NewQueue(ctx, cfg.RedisAddr, cfg.QueueKey, cfg.QueueMaxRetry)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	// Wire the pipeline
	wsManager := services.NewWebSocketManager()

	registry := services.NewAdapterRegistry(
		&services.InstagramAdapter{},
		&services.WebAdapter{Manager: wsManager},
	)

	agent := services.NewAgentClient()
	store := services.MongoStore{}

	executor := &services.FlowExecutor{
		Sender:    registry,
		Agent:     agent,
		Store:     store,
		Publisher: wsManager,
	}

	pipeline := &handlers.Pipeline{
		Store:     store,
		Agent:     agent,
		Flows:     executor,
		Sender:    registry,
		Publisher: wsManager,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	queue.StartWorkers(workerCtx, cfg.QueueWorkers, cfg.QueueRate, pipeline.HandleEvent)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:5173, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	// Instagram webhook intake
	webhooks.RegisterRoutes(app, cfg, queue)

	// Web chat widget (public)
	widget := &handlers.WidgetHandler{Manager: wsManager, Queue: queue}
	app.Get("/widget/ws/:channelID", widget.Upgrade, websocket.New(widget.Serve))

	// Dashboard auth
	auth := app.Group("/auth")
	auth.Post("/login", handlers.Login)
	auth.Post("/logout", handlers.Logout)
	auth.Get("/me", middleware.RequireAuth, handlers.GetCurrentUser)

	// Dashboard API (protected)
	api := app.Group("/api", middleware.RequireAuth)
	api.Get("/channels", handlers.GetChannels)
	api.Get("/channels/:channelID/messages", handlers.GetMessages)
	api.Get("/channels/:channelID/customers", handlers.GetCustomers)
	api.Get("/channels/:channelID/customers/:customerID", handlers.GetCustomerDetail)

	// Dashboard live updates
	dashboardWS := &handlers.DashboardHandler{Manager: wsManager}
	api.Get("/channels/:channelID/ws", dashboardWS.Upgrade, websocket.New(dashboardWS.Serve))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "instagram-bot",
		})
	})

	slog.Info("Server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
