// Package main is the entry point for the drsplan server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/drsolutions/drsplan/pkg/config"
	"github.com/drsolutions/drsplan/pkg/logging"
)

var (
	// Command-line flags
	configPath = flag.String("config", "", "Path to config file (JSON or YAML)")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "drsplan"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig(*configPath, configLocations())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	app, err := NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", logging.Err(err))
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("application failed", logging.Err(err))
			os.Exit(1)
		}
	case <-stop:
		logger.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			logger.Error("error during shutdown", logging.Err(err))
			os.Exit(1)
		}
	}
}

// loadConfig loads the configuration from path, or from the first of locations that
// exists, then applies environment overrides
func loadConfig(path string, locations []string) (*config.Config, error) {
	var cfg *config.Config

	if path != "" {
		var err error
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else {
		for _, candidate := range locations {
			loaded, err := config.LoadConfig(candidate)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", candidate, err)
			}
			cfg = loaded
			break
		}
		if cfg == nil {
			cfg = config.DefaultConfig()
		}
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configLocations() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"./config.yaml",
		"./config.json",
		"./configs/config.yaml",
		"./configs/config.json",
		filepath.Join(home, ".drsplan", "config.yaml"),
		filepath.Join(home, ".drsplan", "config.json"),
		"/etc/drsplan/config.yaml",
	}
}
