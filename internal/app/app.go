// Package app assembles the recall runtime from configuration: record store,
// model clients, caches, event sinks, the memory engine and the optional
// background services. The web and MCP binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/scrypster/recall/internal/backup"
	"github.com/scrypster/recall/internal/cache"
	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/conversation"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/events"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/internal/vectorindex"
)

// embeddingCacheSize bounds the in-process query embedding cache.
const embeddingCacheSize = 4096

// App is a wired recall runtime.
type App struct {
	Config *config.Config
	Store  storage.MemoryStore
	Engine *engine.MemoryEngine
	Bus    *events.Bus

	// Backup is nil unless backups are enabled and the store is sqlite.
	Backup *backup.Service

	log     *logger.Logger
	closers []func()
	cancel  context.CancelFunc
}

// New wires every component named by cfg. The engine is created but not
// started; call Start. On error everything opened so far is released.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	store, err := OpenStore(cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.onClose(func() { _ = store.Close() })

	// A single Redis connection serves the embedding cache and history.
	var rdb *redis.Client
	if cfg.Cache.RedisAddr != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Cache, log)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = rdb.Close() })
	}

	deps, closeDeps, err := BuildDependencies(ctx, cfg, rdb, log)
	if err != nil {
		return nil, err
	}
	a.onClose(closeDeps)

	a.Bus = events.NewBus(0, log)
	deps.Notifier = a.Bus

	if cfg.Events.NATSURL != "" {
		nats, err := events.NewNATSPublisher(ctx, cfg.Events, log)
		if err != nil {
			return nil, err
		}
		a.onClose(nats.Close)
		a.Bus.Subscribe(nats)
	}

	if cfg.Storage.VectorIndex == "chromem" {
		index, err := vectorindex.New(store, log)
		if err != nil {
			return nil, err
		}
		n, err := index.Rebuild(ctx)
		if err != nil {
			return nil, fmt.Errorf("building vector index: %w", err)
		}
		log.Info("vector index built", "memories", n)
		deps.Candidates = index
		a.Bus.Subscribe(index)
	}

	a.Engine, err = engine.NewMemoryEngine(store, deps, engine.ConfigFromPipeline(cfg.Pipeline), cfg.Ranking, log)
	if err != nil {
		return nil, fmt.Errorf("creating memory engine: %w", err)
	}

	if cfg.Backup.Enabled {
		if snap, ok := store.(backup.Snapshotter); ok {
			a.Backup, err = backup.NewService(snap, cfg.Backup, log)
			if err != nil {
				return nil, err
			}
		} else {
			log.Warn("backups are only supported for the sqlite engine", "engine", cfg.Storage.Engine)
		}
	}

	return a, nil
}

// Start starts the engine, the ranking profile watcher and the backup
// schedule. Background services stop when Close is called.
func (a *App) Start(ctx context.Context) error {
	if err := a.Engine.Start(ctx); err != nil {
		return fmt.Errorf("starting memory engine: %w", err)
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	if file := a.Config.Ranking.File; file != "" {
		watcher, err := config.NewRankingWatcher(file, a.Engine.SetRanking, a.log)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			a.log.Warn("ranking profile watch disabled", "file", file, "error", err)
		} else {
			a.onClose(watcher.Stop)
		}
	}

	if a.Backup != nil {
		go func() {
			if err := a.Backup.Run(bg); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("backup service stopped", "error", err)
			}
		}()
	}
	return nil
}

// Close shuts the engine down within ctx, then releases every resource in
// reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Engine != nil {
		if err := a.Engine.Shutdown(ctx); err != nil {
			a.log.Warn("error shutting down memory engine", "error", err)
		}
	}
	a.release()
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// SQLitePath is the database file used by the sqlite engine.
func SQLitePath(cfg config.StorageConfig) string {
	return filepath.Join(cfg.DataPath, "recall.db")
}

// OpenStore opens the record store selected by cfg.Engine.
func OpenStore(cfg config.StorageConfig, log *logger.Logger) (storage.MemoryStore, error) {
	switch cfg.Engine {
	case "postgres":
		store, err := postgres.NewMemoryStore(cfg.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres storage: %w", err)
		}
		return store, nil
	case "sqlite", "":
		if err := os.MkdirAll(cfg.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		store, err := sqlite.NewMemoryStore(SQLitePath(cfg), sqlite.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage engine: %q", cfg.Engine)
	}
}

// BuildDependencies creates the model-backed collaborators. rdb may be nil.
// The returned func releases provider clients.
func BuildDependencies(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *logger.Logger) (engine.Dependencies, func(), error) {
	var deps engine.Dependencies
	closeFn := func() {}

	gen, err := llm.NewTextGenerator(cfg.LLM, log)
	if err != nil {
		return deps, closeFn, err
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM, log)
	if err != nil {
		return deps, closeFn, err
	}
	transcriber, err := llm.NewTranscriber(ctx, cfg.Speech, cfg.LLM, log)
	if err != nil {
		return deps, closeFn, err
	}
	if c, ok := transcriber.(interface{ Close() error }); ok {
		closeFn = func() { _ = c.Close() }
	}

	var backend cache.Backend
	if rdb != nil {
		backend = cache.NewRedisBackend(rdb, cfg.Cache.EmbeddingTTL)
		deps.History = conversation.NewRedisStore(rdb, cfg.Conversation.MaxTurns, cfg.Conversation.TTL)
	} else {
		backend = cache.NewMemoryBackend(embeddingCacheSize, cfg.Cache.EmbeddingTTL)
		deps.History = conversation.NewMemoryStore(cfg.Conversation.MaxTurns)
	}

	if transcriber != nil {
		deps.Transcriber = transcriber
	}
	deps.Analyzer = llm.NewAnalyzer(gen, log)
	deps.Embedder = cache.NewCachingEmbedder(embedder, backend, log)
	deps.Answerer = llm.NewAnswerWriter(gen)
	deps.Prompter = llm.NewPromptWriter(gen)
	return deps, closeFn, nil
}
