package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cadenza/internal/config"
	"cadenza/internal/library"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"
	if path := os.Getenv("CADENZA_CONFIG"); path != "" {
		configPath = path
	}

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Optional .env for local overrides; absence is fine
	if err := godotenv.Load(".env"); err != nil {
		logger.WithError(err).Debug("No .env file loaded")
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	configureLogger(logger, cfg.Logging)

	// Check that library roots exist
	for _, root := range cfg.Library.Roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			logger.WithField("folder", root).Fatal("Library folder does not exist. Please create it and add your music files.")
		}
	}

	// Open the database and run migrations; a failed migration is fatal
	svc, err := library.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing library database")
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scan changed folders and start watching
	if err := svc.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Error starting library engine")
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c

	logger.Info("Received shutdown signal")
	cancel()
}

// configureLogger applies level, format and output from configuration.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.WithError(err).Warn("Could not open log file, using stderr")
		} else {
			logger.SetOutput(file)
		}
	}
}
