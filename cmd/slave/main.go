package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"cocaine/internal/config"
	"cocaine/internal/isolate"
	"cocaine/internal/monitor"
	"cocaine/internal/repository"
	"cocaine/internal/slave"
)

// registerBuiltins installs the components compiled into the binary; plugins
// only ever add to this set.
func registerBuiltins(repo *repository.Repository) error {
	if err := repository.Insert[isolate.Factory](repo, "process", isolate.NewProcess); err != nil {
		return err
	}
	return repository.Insert[isolate.Factory](repo, "docker", isolate.NewDocker)
}

func main() {
	var (
		id      = flag.String("uuid", "", "slave identity (generated when empty)")
		appName = flag.String("app", "", "app name (required)")
		profile = flag.String("profile", "", "profile name (required)")
		ipcPath = flag.String("ipc-path", "", "override the engine socket directory")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *appName == "" || *profile == "" {
		fmt.Fprintln(os.Stderr, "both --app and --profile are required")
		os.Exit(1)
	}

	identity := *id
	if identity == "" {
		identity = uuid.New().String()
	} else if _, err := uuid.Parse(identity); err != nil {
		fmt.Fprintf(os.Stderr, "invalid --uuid: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	if *ipcPath != "" {
		cfg.Paths.IPC = *ipcPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo := repository.New(logger)
	defer repo.Close()

	if err := registerBuiltins(repo); err != nil {
		logger.Error("failed to register built-in components", "error", err)
		os.Exit(1)
	}

	if err := repo.Load(cfg.Paths.Plugins); err != nil {
		logger.Warn("plugin enumeration failed", "path", cfg.Paths.Plugins, "error", err)
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := monitor.StartMetricsServer(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	s, err := slave.New(slave.Config{
		UUID:    identity,
		App:     *appName,
		Profile: *profile,
	}, cfg, repo, logger)
	if err != nil {
		logger.Error("failed to initialise slave", "error", err)
		os.Exit(1)
	}

	if err := s.Run(); err != nil {
		logger.Error("slave terminated abnormally", "error", err)
		os.Exit(1)
	}
}
