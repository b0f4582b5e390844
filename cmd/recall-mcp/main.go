// Command recall-mcp serves the recall tools to a desktop assistant over the
// Model Context Protocol on stdin/stdout.
//
// stdout carries JSON-RPC frames only. Logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/recall/internal/api/mcp"
	"github.com/scrypster/recall/internal/app"
	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/importer"
	"github.com/scrypster/recall/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	envPath := flag.String("env", ".env", "Path to a dotenv file (ignored when missing)")
	flag.Parse()

	cfg, err := config.LoadConfigFrom(*envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recall-mcp: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "recall-mcp: invalid config: %v\n", err)
		os.Exit(1)
	}

	// zap writes to stderr in both modes.
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recall-mcp: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("recall-mcp exited", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// run serves MCP on in/out until in closes or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger, in io.Reader, out io.Writer) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	shutdown := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
		defer cancel()
		a.Close(closeCtx)
	}
	if err := a.Start(ctx); err != nil {
		shutdown()
		return err
	}
	defer shutdown()

	imp := importer.New(a.Engine,
		importer.WithLogger(log),
		importer.WithMaxQueue(cfg.Pipeline.QueueSize/2),
	)
	srv, err := mcp.NewServer(a.Engine, cfg.MCP.UserID,
		mcp.WithImporter(imp),
		mcp.WithLogger(log),
		mcp.WithVersion(version),
	)
	if err != nil {
		return err
	}

	log.Info("recall mcp server ready", "user_id", cfg.MCP.UserID)
	return mcp.NewStdioTransport(srv, in, out, log).Serve(ctx)
}
