package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/adapters/memory"
	"github.com/satriahrh/sandiwara/adapters/mongo"
	"github.com/satriahrh/sandiwara/adapters/tts"
	"github.com/satriahrh/sandiwara/domain/repositories"
	"github.com/satriahrh/sandiwara/internal/api"
	"github.com/satriahrh/sandiwara/internal/auth"
	"github.com/satriahrh/sandiwara/internal/metrics"
	"github.com/satriahrh/sandiwara/usecase"
)

func main() {
	// .env is optional; real environment variables win
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	speechMetrics := metrics.New()

	// Synthesis history goes to MongoDB when configured, otherwise stays in memory
	var history repositories.SynthesisRepository
	mongoConfig := mongo.NewConfigFromEnv()
	if mongoConfig.URI != "" {
		mongoClient, err := mongo.NewClient(context.Background(), mongoConfig, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Close(context.Background())

		repo := mongo.NewSynthesisRepository(mongoClient.Database, logger)
		if err := repo.EnsureIndexes(context.Background()); err != nil {
			logger.Warn("Continuing without synthesis indexes", zap.Error(err))
		}
		history = repo
	} else {
		logger.Info("MONGODB_URI not set, keeping synthesis history in memory")
		history = memory.NewSynthesisRepository()
	}

	textToSpeech, err := tts.NewOpenSpeechTTS(tts.NewOpenSpeechConfigFromEnv(), logger,
		tts.WithMetrics(speechMetrics),
		tts.WithRepository(history))
	if err != nil {
		logger.Fatal("Failed to create text-to-speech adapter", zap.Error(err))
	}

	authenticator, err := auth.NewAuthenticator(auth.NewConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to create authenticator", zap.Error(err))
	}

	narrationService := usecase.NewNarrationService(textToSpeech, logger)

	api.InitRoutes(e, narrationService, history, authenticator, prometheus.DefaultGatherer, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := textToSpeech.Close(ctx); err != nil {
		logger.Warn("Failed to finish speech connection", zap.Error(err))
	}

	logger.Info("Server exited")
}
