package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/adapters"
	"github.com/satriahrh/voicerelay/adapters/agentapi"
	"github.com/satriahrh/voicerelay/adapters/agentsocket"
	"github.com/satriahrh/voicerelay/adapters/mongo"
	"github.com/satriahrh/voicerelay/domain/repositories"
	"github.com/satriahrh/voicerelay/internal/api"
	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/config"
	"github.com/satriahrh/voicerelay/internal/logger"
	"github.com/satriahrh/voicerelay/internal/sequencer"
	"github.com/satriahrh/voicerelay/internal/websocket"
	"github.com/satriahrh/voicerelay/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	issuer, err := auth.NewIssuer(cfg.JWTSecret)
	if err != nil {
		log.Fatal("Failed to create token issuer", zap.Error(err))
	}

	// Initialize instance store
	instanceRepo, closeStore, err := newInstanceRepository(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize instance store", zap.Error(err))
	}
	defer closeStore()

	// Initialize audio output hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(log.Named("outputs"))
	go hub.Run(hubCtx)

	// Initialize agent adapters
	dialer := agentsocket.NewDialer(cfg.AgentSocketURL, cfg.PingInterval, log.Named("agentsocket"))
	statusClient := agentapi.NewStatusClient(cfg.AgentAPIURL, log.Named("agentapi"))

	relay := usecase.NewRelayService(instanceRepo, dialer, hub, statusClient, usecase.RelayConfig{
		Sequencer:     sequencer.Config{StallTimeout: cfg.StallTimeout},
		StatusTimeout: cfg.StatusTimeout,
	}, log.Named("relay"))

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := relay.CloseOrphans(startupCtx); err != nil {
		log.Warn("Failed to close orphaned instances", zap.Error(err))
	}
	cancelStartup()

	cleanup := usecase.NewInstanceCleanupService(instanceRepo, cfg.CleanupInterval, cfg.CleanupRetention, log.Named("cleanup"))
	cleanup.Start()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, hub, relay, issuer, log.Named("api"))

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	log.Info("Voice relay started",
		zap.String("port", cfg.Port),
		zap.String("store", string(cfg.InstanceStore)),
		zap.Duration("stallTimeout", cfg.StallTimeout))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	cleanup.Stop()

	if err := relay.Shutdown(ctx); err != nil {
		log.Error("Relay forced to shutdown", zap.Error(err))
	}

	stopHub()

	log.Info("Server exited")
}

func newInstanceRepository(cfg config.Config, log *zap.Logger) (repositories.InstanceRepository, func(), error) {
	switch cfg.InstanceStore {
	case config.StoreMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, log.Named("mongo"))
		if err != nil {
			return nil, nil, err
		}

		repo, err := mongo.NewInstanceRepository(ctx, client.Database, log.Named("mongo"))
		if err != nil {
			client.Close(context.Background())
			return nil, nil, err
		}

		return repo, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(ctx)
		}, nil

	default:
		return adapters.NewMemoryInstanceRepository(), func() {}, nil
	}
}
