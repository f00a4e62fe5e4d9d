package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alimgiray/personhub/internal/cache"
	"github.com/alimgiray/personhub/internal/handlers"
	"github.com/alimgiray/personhub/internal/middleware"
	"github.com/alimgiray/personhub/internal/queue"
	"github.com/alimgiray/personhub/internal/repositories"
	"github.com/alimgiray/personhub/internal/services"
	"github.com/alimgiray/personhub/internal/workers"
	"github.com/alimgiray/personhub/pkg/config"
	"github.com/alimgiray/personhub/pkg/database"
	"github.com/alimgiray/personhub/pkg/logger"
	"github.com/alimgiray/personhub/pkg/redisconn"
)

const maxBodyBytes = 64 << 10

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, checkStore, closeStore := openStore(ctx, cfg.Database)
	defer closeStore()

	// Initialize redis
	redisClient, err := redisconn.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	personQueue := queue.NewPersonQueue(redisClient, cfg.Redis.Stream)
	if err := personQueue.EnsureGroup(ctx); err != nil {
		logger.Fatalf("Failed to prepare queue: %v", err)
	}
	logger.WithField("stream", personQueue.Stream()).WithField("group", personQueue.Group()).Info("Queue ready")
	personCache := cache.NewPersonCache(redisClient, cfg.Redis.NicknameSetKey, cfg.Redis.PersonKeyPrefix)

	// Initialize worker manager
	workerManager := workers.NewWorkerManager(personQueue, store, cfg.Ingestion)
	personService := services.NewPersonService(personCache, personQueue, store, workerManager)

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(), middleware.BodyLimit(maxBodyBytes))

	setupRoutes(router, personService, map[string]handlers.Check{
		"database": checkStore,
		"redis":    redisClient.Health,
	})

	// Start workers
	if err := workerManager.StartAll(); err != nil {
		logger.Fatalf("Failed to start workers: %v", err)
	}

	// Setup server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if err := workerManager.StopAll(); err != nil {
		logger.WithError(err).Error("Failed to stop workers")
	}
	logger.Info("Server stopped")
}

type personStore interface {
	services.PersonStore
	workers.BatchInserter
}

// openStore connects the configured backend and returns it with its health check and closer
func openStore(ctx context.Context, cfg config.DatabaseConfig) (personStore, handlers.Check, func()) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		logger.Infof("Using SQLite store at %s", cfg.Path)
		return repositories.NewSQLitePersonRepository(db), db.PingContext, func() { db.Close() }
	default:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		logger.Info("Using Postgres store")
		return repositories.NewPostgresPersonRepository(pool), pool.Ping, pool.Close
	}
}

func setupRoutes(router *gin.Engine, personService *services.PersonService, checks map[string]handlers.Check) {
	// Initialize handlers
	personHandler := handlers.NewPersonHandler(personService)
	healthHandler := handlers.NewHealthHandler(personService, checks)

	handlers.RegisterRoutes(router, personHandler, healthHandler)
}
