package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krist-node/gateway/api/handlers"
	"github.com/krist-node/gateway/internal/db"
	"github.com/krist-node/gateway/internal/domain"
	"github.com/krist-node/gateway/internal/gateway"
	"github.com/krist-node/gateway/internal/repository"
)

func main() {
	// Get configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "data/node.db")
	baseURL := getEnv("PUBLIC_WS_URL", "ws://127.0.0.1:"+port)

	// Ensure the data directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	// Initialize repositories and the node service
	addressRepo := repository.NewAddressRepository(database)
	transactionRepo := repository.NewTransactionRepository(database)
	node := domain.NewNode(addressRepo, transactionRepo)

	// Initialize the session broker
	broker := gateway.NewBroker()
	defer broker.Close()

	// Background activities: keepalive fan-out and expired-token sweep
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broker.RunKeepalive(ctx, gateway.KeepaliveInterval)
	go broker.Tokens().RunSweeper(ctx, gateway.TokenTTL)

	// Initialize handlers
	handshakeHandler := handlers.NewHandshakeHandler(broker, node, baseURL)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "ok",
			"sessions": broker.SessionCount(),
		})
	})

	// Handshake and gateway routes
	handshakeHandler.RegisterRoutes(r)

	// API routes
	api := r.Group("/api")
	{
		handshakeHandler.RegisterAPIRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		cancel()
		broker.Close()
		db.CloseDB()
		// Give in-flight close frames a moment to drain
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting gateway on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
