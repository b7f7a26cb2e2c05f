// Command querygate-api serves the read-only query gateway over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/querygate/internal/app"
	"github.com/koustreak/querygate/internal/config"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Global().ErrorWith("failed to load config", err, nil)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: "rfc3339",
		Output:     os.Stdout,
	})
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.ErrorWith("failed to start", err, nil)
		os.Exit(1)
	}

	deps := server.Dependencies{Logger: log, Service: a.Session}
	if a.Archive != nil {
		deps.Answers = a.Archive
	}

	if err := server.Serve(ctx, cfg.HTTP, server.NewHandler(deps), log); err != nil {
		log.ErrorWith("api server failed", err, nil)
		os.Exit(1)
	}
}
