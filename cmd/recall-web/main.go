// Command recall-web runs the recall HTTP API: capture, trust, grounded query
// and insights over each user's memories.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/recall/internal/app"
	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/server"
)

func main() {
	envPath := flag.String("env", ".env", "Path to a dotenv file (ignored when missing)")
	flag.Parse()

	cfg, err := config.LoadConfigFrom(*envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("recall-web exited", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// run wires the application and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		a.Close(context.Background())
		return err
	}

	addr, hub, err := server.Start(ctx, cfg, a.Engine, log)
	if err != nil {
		a.Close(context.Background())
		return err
	}
	a.Bus.Subscribe(hub)
	log.Info("recall running", "url", "http://"+addr)

	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	a.Close(shutdownCtx)
	return nil
}
