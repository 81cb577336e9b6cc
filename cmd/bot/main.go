package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bzz-bot/bzz/internal/actuator"
	"github.com/bzz-bot/bzz/internal/config"
	"github.com/bzz-bot/bzz/internal/device"
	"github.com/bzz-bot/bzz/internal/engine"
	"github.com/bzz-bot/bzz/internal/matcher"
	"github.com/bzz-bot/bzz/internal/notifications"
	"github.com/bzz-bot/bzz/internal/platform"
	"github.com/bzz-bot/bzz/internal/scheduler"
	"github.com/bzz-bot/bzz/internal/state"
	"github.com/bzz-bot/bzz/internal/stats"
	"github.com/bzz-bot/bzz/internal/storage"
	"github.com/bzz-bot/bzz/internal/triggerlog"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	if err := run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// run returns instead of exiting so deferred cleanup, the instance lock included, always happens
func run(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("usage: %s [newpost|closepost]", args[0])
	}
	arg := ""
	if len(args) == 2 {
		arg = args[1]
	}
	mode, err := engine.ParseMode(arg)
	if err != nil {
		return err
	}

	configPath := os.Getenv("BZZ_CONFIG")
	if configPath == "" {
		configPath = "./bzz.conf"
	}
	cfg, err := config.Load(configPath)
	if errors.Is(err, config.ErrConfigCreated) {
		return fmt.Errorf("no config found; wrote defaults to %s. Edit it and run again", configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.Infof("Starting %s", cfg.Name)

	lock, err := state.NewInstanceLock(cfg.TargetFilePath)
	if err != nil {
		return fmt.Errorf("failed to prepare instance lock: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer lock.Unlock()

	store := storage.NewFileStorage(".")
	triggerLog := triggerlog.New(cfg.LogFilePath)
	client := platform.NewMastodonClient(cfg.MastodonBaseURL, cfg.MastodonAccessToken)

	deps := engine.Dependencies{
		Platform:   client,
		Matcher:    matcher.NewPatternMatcher(cfg.Matcher, cfg.DenyList, cfg.AllowList),
		Checkpoint: state.NewCheckpoint(store, cfg.LastFilePath),
		Target:     state.NewTarget(store, cfg.TargetFilePath),
		Log:        triggerLog,
		Prompter:   engine.NewLinePrompter(os.Stdin, os.Stdout),
		Stats:      buildStats(cfg, store, triggerLog),
	}

	notificationService := notifications.NewService(cfg)
	if notificationService.Enabled() {
		deps.Notifier = notificationService
	}

	if cfg.StorageAccount != "" {
		archive, err := storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			return fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		deps.Archive = archive
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mode == engine.ModeClosePost {
		summary, err := engine.NewService(cfg, deps).Close(ctx)
		if errors.Is(err, engine.ErrNoTarget) {
			logrus.Error("There is no target post to close")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to close post: %w", err)
		}
		logrus.Infof("Closed post %s (%d triggers)", summary.PostID, summary.TriggerCount)
		return nil
	}

	dev := buildDevice(cfg)
	defer dev.Close()

	act, idle, err := buildStrategy(cfg, dev, triggerLog, store)
	if err != nil {
		return fmt.Errorf("failed to initialize %s strategy: %w", cfg.Strategy, err)
	}
	deps.Actuator = act
	deps.Idle = idle

	engineService := engine.NewService(cfg, deps)
	if err := engineService.Attach(ctx, mode); err != nil {
		return fmt.Errorf("failed to attach to a post: %w", err)
	}
	if err := engineService.Begin(); err != nil {
		return err
	}

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, engineService)
	if err := schedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer schedulerService.Stop()

	var server *http.Server
	if cfg.Port != "" {
		router := mux.NewRouter()
		router.HandleFunc("/health", healthCheckHandler).Methods("GET")
		router.HandleFunc("/metrics", metricsHandler(engineService)).Methods("GET")

		server = &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			logrus.Infof("HTTP server starting on port %s", cfg.Port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.Errorf("HTTP server failed: %v", err)
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	logrus.Info("Shutting down...")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("Server forced to shutdown: %v", err)
		}
	}
	return nil
}

func buildDevice(cfg *config.Config) device.Device {
	switch cfg.Actuator {
	case "pishock":
		return device.NewPiShock(device.PiShockCredentials{
			Username:  cfg.PiShockUsername,
			APIKey:    cfg.PiShockAPIKey,
			ShareCode: cfg.PiShockShareCode,
			AppName:   cfg.PiShockAppName,
		}, cfg.PiShock.Duration, cfg.PiShock.Operation)
	case "intiface":
		return device.NewIntiface(cfg.Intiface.URL, cfg.Name, cfg.Intiface.DeviceIndex)
	default:
		return device.NewLogDevice()
	}
}

func buildStrategy(cfg *config.Config, dev device.Device, log *triggerlog.Log, store storage.StorageInterface) (actuator.Actuator, actuator.IdleHandler, error) {
	switch cfg.Strategy {
	case "hold":
		hold := actuator.NewHold(dev, log, cfg.Scaler, time.Duration(cfg.Hold.Seconds)*time.Second, nil)
		return hold, hold, nil
	case "ramp":
		ramp, err := actuator.NewRamp(dev, log, cfg.Scaler, cfg.Ramp, store, nil)
		if err != nil {
			return nil, nil, err
		}
		return ramp, ramp, nil
	default:
		return actuator.NewDirect(dev, log, cfg.Scaler, nil), nil, nil
	}
}

func buildStats(cfg *config.Config, store storage.StorageInterface, log *triggerlog.Log) stats.Generator {
	if cfg.Strategy == "ramp" {
		return stats.NewRampStats(store, cfg.Ramp.StatsFile, nil)
	}
	return stats.NewLogStats(log, state.NewKnownUsers(store, cfg.KnownFilePath))
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(engineService *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := engineService.GetMetrics()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(metrics))
	}
}
