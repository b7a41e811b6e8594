package main

import (
	"chatly/internal/api"
	"chatly/internal/app"
	"chatly/internal/auth"
	"chatly/internal/config"
	"chatly/internal/crypto"
	"chatly/internal/logger"
	"chatly/internal/repository/postgres"
	"chatly/internal/service/llm"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	// Load the at-rest encryption key
	sealer, err := crypto.LoadOrCreateSealer(appConfig.Storage.EncryptionKeyFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load encryption key")
	}

	// Initialize database
	database, err := postgres.NewPostgresDB(appConfig.Database, sealer)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := llm.NewProvider(ctx, &appConfig.LLM, appConfig.Models)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize LLM provider")
	}

	cfg := app.NewConfig(database, provider, appConfig)
	router := api.NewRouter(cfg, auth.NewTokenManager(appConfig.Auth))

	server := &http.Server{
		Addr:         ":" + appConfig.Server.Port,
		Handler:      router,
		ReadTimeout:  appConfig.Server.ReadTimeout,
		WriteTimeout: appConfig.Server.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(logrus.Fields{
			"port":     appConfig.Server.Port,
			"provider": provider.Name(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}
	logger.Log.Info("Server stopped")
}
