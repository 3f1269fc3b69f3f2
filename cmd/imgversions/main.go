package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/giobyte8/imgversions/internal/config"
	"github.com/giobyte8/imgversions/internal/consumer"
	"github.com/giobyte8/imgversions/internal/filetypes"
	"github.com/giobyte8/imgversions/internal/services"
	"github.com/giobyte8/imgversions/internal/telemetry"
	versionsgen "github.com/giobyte8/imgversions/internal/versions_gen"
)

func setupLogging() {
	var log_level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG", "debug":
		log_level = slog.LevelDebug
	case "WARN", "warn":
		log_level = slog.LevelWarn
	case "ERROR", "error":
		log_level = slog.LevelError
	default:
		log_level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     log_level,
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {

			// Format time to show only the time (HH:MM:SS)
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05"))
			}

			return a
		},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)
}

func loadEnv() {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		slog.Warn("No .env file found, using environment variables directly.")
		return
	}

	err := godotenv.Load(".env")
	if err != nil {
		slog.Error("Error loading .env file", "error", err)
		os.Exit(1)
	}
}

func prepareVersionsService(
	cfg *config.Config,
	telemetry *telemetry.TelemetrySvc,
) (*services.VersionsService, error) {

	// Codec is resolved once, every pass reuses it
	codec, err := versionsgen.ResolveCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	slog.Info("Image codec selected", "codec", codec.Name())

	generator := versionsgen.NewGenerator(
		codec,
		cfg.Versions.Options,
		telemetry,
	)
	classifier := filetypes.NewClassifier(cfg.Versions.Extensions)

	return services.NewVersionsService(
		cfg.Versions,
		generator,
		classifier,
	), nil
}

func main() {
	loadEnv()
	setupLogging()

	slog.Info("Starting image versions service...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Init telemetry services
	telemetry, err := telemetry.NewTelemetrySvc(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("Failed to initialize Telemetry services", "error", err)
		os.Exit(1)
	}

	versionsSvc, err := prepareVersionsService(cfg, telemetry)
	if err != nil {
		slog.Error("Failed to prepare versions service", "error", err)
		os.Exit(1)
	}

	var amqpConsumer consumer.MessageConsumer
	amqpConsumer, err = consumer.NewAMQPConsumer(
		cfg.AMQP,
		versionsSvc,
		telemetry,
	)
	if err != nil {
		slog.Error("Failed to create AMQP consumer", "error", err)
		os.Exit(1)
	}

	if err := amqpConsumer.Start(ctx); err != nil {
		slog.Error("Failed to start AMQP consumer", "error", err)
		os.Exit(1)
	}
	slog.Info("Image versions service is running. Press Ctrl+C to stop.")

	// Graceful shutdown (listen for OS signals)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		slog.Info("Received OS signal, shutting down...", "signal", s.String())
	case <-ctx.Done():
		slog.Info(
			"Parent context cancelled, shutting down...",
			"reason",
			ctx.Err(),
		)
	}

	amqpConsumer.Stop()
	if err := telemetry.Shutdown(ctx); err != nil {
		slog.Error("Failed to shutdown telemetry services", "error", err)
	}

	cancel()
	slog.Info("Image versions service exited gracefully.")
}
