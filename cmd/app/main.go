package main

import (
	"PlateVision/internal/config"
	"PlateVision/pkg/log"
	"github.com/joho/godotenv"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// .env is optional; variables may come from the environment alone.
	envErr := godotenv.Load()

	logger := log.NewLogger()
	if envErr != nil {
		logger.Debugf("No .env file loaded: %v", envErr)
	}

	validator := config.NewValidator()
	appConfig, err := config.LoadConfig(validator)
	if err != nil {
		logger.Fatalf("Error loading configuration: %v", err)
	}

	fiberApp := config.NewFiber(logger, appConfig.MaxRequestBytes())

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithAppConfig(appConfig),
		config.WithValidator(validator),
		config.WithDetector(nil),
		config.WithRecognizer(nil),
		config.WithRedisServer(nil),
		config.WithS3Client(),
		config.WithMiddleware(),
		config.WithUtils(),
		config.WithMetrics(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Infof("Server started on port %s", appConfig.Port)

	<-sigChan
	logger.Info("Shutting down server...")

	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
