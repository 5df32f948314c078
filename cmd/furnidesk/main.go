package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"furnidesk/internal/config"
	"furnidesk/internal/constants"
	"furnidesk/internal/database"
	"furnidesk/internal/fixtures"
	"furnidesk/internal/models"
	"furnidesk/internal/realtime"
	"furnidesk/internal/retry"
	"furnidesk/internal/service"
	"furnidesk/internal/tracing"
	"furnidesk/pkg/circuitbreaker"
	"furnidesk/pkg/whatsapp"
	"furnidesk/pkg/whatsapp/types"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message content)")
	configPath = flag.String("config", "", "Path to a JSON or YAML configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("furnidesk %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	if path == "" {
		return config.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config.LoadConfig(path)
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting furnidesk")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message content will be logged")
	} else {
		config.ApplyLogLevel(logger)(nil, cfg)
	}
	ctx = service.WithVerboseLogging(ctx, *verbose)

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := realtime.NewHub(realtime.Options{
		OriginPatterns: cfg.Server.AllowedOrigins,
		CommandRate:    cfg.Server.RateLimitPerSecond,
		CommandBurst:   cfg.Server.RateLimitBurst,
	}, logger)

	var transport service.Transport = service.NewLocalTransport(hub)
	var simulator *service.DeliverySimulator
	if cfg.Delivery.SimulateDelivery {
		simulator = service.NewDeliverySimulator(transport, cfg.Delivery, logger)
		transport = simulator
		logger.Info("Delivery simulation enabled")
	}

	var channels *service.ChannelManager
	if cfg.WhatsApp.Enabled {
		channels = service.NewChannelManager(logger)
		client := whatsapp.NewClient(types.ClientConfig{
			BaseURL:     cfg.WhatsApp.APIBaseURL,
			APIKey:      cfg.WhatsApp.APIKey,
			SessionName: cfg.WhatsApp.SessionName,
			Timeout:     time.Duration(cfg.WhatsApp.TimeoutMs) * time.Millisecond,
		})
		if err := channels.Register(service.NewWhatsAppChannel(client, logger), circuitbreaker.Config{
			MaxFailures:      constants.DefaultBreakerMaxFailures,
			Timeout:          constants.DefaultBreakerTimeoutSec * time.Second,
			HalfOpenMaxCalls: 1,
		}); err != nil {
			return fmt.Errorf("failed to register WhatsApp channel: %w", err)
		}
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Health(healthCtx); err != nil {
			logger.WithError(err).Warn("WhatsApp gateway is not reachable; messages will fail until it is")
		}
		cancel()
	}

	svc := service.NewChatService(store, store, transport, channels, cfg.Retry, logger)
	svc.SetPublisher(hub)
	hub.Bind(svc)
	if simulator != nil {
		simulator.SetSink(svc)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	monitor := service.NewDeliveryMonitor(store,
		time.Duration(cfg.Delivery.MonitorIntervalSec)*time.Second,
		time.Duration(cfg.Delivery.StaleThresholdSec)*time.Second,
		logger)
	go monitor.Start(ctx)
	defer monitor.Stop()

	if *configPath != "" {
		reloader := config.NewReloader(*configPath, logger)
		if !*verbose {
			reloader.OnChange(config.ApplyLogLevel(logger))
		}
		reloader.OnChange(config.ApplyStaleThreshold(monitor.SetStaleThreshold))
		go func() {
			if err := reloader.Watch(ctx); err != nil {
				logger.WithError(err).Warn("Config watcher stopped")
			}
		}()
	}

	server := NewServer(cfg, svc, store, hub, channels, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
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
		logger.WithError(err).Warn("Server did not shut down gracefully")
	}
	stopHub()
	hub.Wait()
	svc.Close()
	if simulator != nil {
		simulator.Close()
	}

	logger.Info("Server shutdown completed")
	return nil
}

// openStore opens the sqlite database, retrying while the file is locked,
// or an in-memory store seeded with the demo fixtures.
func openStore(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (Store, func(), error) {
	if cfg.Demo && cfg.Database.Path == "" {
		store := database.NewMemoryStore()
		if err := fixtures.Seed(ctx, store, time.Now()); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
		logger.Info("Running in demo mode with in-memory storage")
		return store, func() {}, nil
	}

	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	var db *database.Database
	err := backoff.Retry(ctx, func(_ context.Context, attempt int) error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.WithError(initErr).WithField("attempt", attempt).Warn("Failed to initialize database")
		}
		return initErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}

	if cfg.Demo {
		if err := fixtures.Seed(ctx, db, time.Now()); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}
	return db, closeDB, nil
}
