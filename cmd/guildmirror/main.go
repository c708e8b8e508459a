package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildmirror/internal/checkpoint"
	"guildmirror/internal/config"
	"guildmirror/internal/constants"
	"guildmirror/internal/retry"
	"guildmirror/internal/service"
	"guildmirror/internal/tracing"
	"guildmirror/pkg/discord"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("GuildMirror %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting GuildMirror")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	mode, err := service.ParseMode(cfg.Mode)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN environment variable is required")
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewManager(tracing.Config{
		ServiceName:    "guildmirror",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize checkpoint store with exponential backoff retry
	var store *checkpoint.Store
	startupBackoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultCheckpointRetryAttempts,
		Jitter:       true,
	})

	err = startupBackoff.Retry(ctx, func() error {
		var initErr error
		store, initErr = checkpoint.New(cfg.Checkpoint.Path, logger)
		if initErr != nil {
			logger.Warnf("Failed to initialize checkpoint store: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize checkpoint store after retries: %w", err)
	}
	defer store.Close()

	cursors, err := store.Load(ctx)
	if err != nil {
		logger.Warnf("Failed to load checkpoints, starting from scratch: %v", err)
	} else {
		logger.WithField("channels", len(cursors)).Info("Checkpoints loaded")
	}

	client, err := discord.NewClient(token, cfg.SourceGuildID, cfg.TargetGuildID, logger)
	if err != nil {
		return fmt.Errorf("failed to create discord client: %w", err)
	}
	if err := client.Open(ctx); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	defer client.Close()

	for _, warning := range client.MissingPermissions(ctx) {
		logger.Warn(warning)
	}

	sendBackoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Jitter:       true,
	})

	resolver := service.NewResolver(client, logger)
	transformer := service.NewTransformer(mode, int64(cfg.UploadLimitMB)*1024*1024)
	dispatcher := service.NewDispatcher(client, sendBackoff, logger)
	pipeline := service.NewPipeline(resolver, transformer, dispatcher, store)

	scanner := service.NewBackfillScanner(client, pipeline, store,
		cfg.Channels, cfg.Backfill.PageSize,
		time.Duration(cfg.Backfill.PauseSec)*time.Second, logger)
	relay := service.NewLiveRelay(client, pipeline, store, scanner, cfg.Channels, logger)

	go func() {
		if err := scanner.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Backfill scan failed")
		}
	}()
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Live relay stopped")
		}
	}()

	server := NewServer(cfg.Server, scanner, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
