// Command querygate answers natural-language questions against a database
// through a read-only SQL gate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/querygate/internal/app"
	"github.com/koustreak/querygate/internal/cli/repl"
	"github.com/koustreak/querygate/internal/config"
	"github.com/koustreak/querygate/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", repl.Message(err))
		return 1
	}

	// Logs go to stderr; answers go to stdout.
	log := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	})
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	a, err := app.New(ctx, cfg, app.Options{RequireLLM: true})
	if err != nil {
		var stage *app.StageError
		if errors.As(err, &stage) && stage.Stage == app.StageDatabase {
			fmt.Printf("Database setup error: %s\n", repl.Message(stage.Err))
		} else {
			fmt.Printf("Setup error: %s\n", repl.Message(err))
		}
		return 1
	}

	r := repl.New(os.Stdin, os.Stdout, a.Session)
	r.Banner(fmt.Sprintf("Natural Language SQL Assistant (%s)", a.Driver))
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorWith("reading questions failed", err, nil)
		return 1
	}
	return 0
}
