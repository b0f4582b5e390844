package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/conversation"
	"github.com/scrypster/recall/internal/events"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// reasonQueueFull is the failure reason recorded when a capture could not be queued.
const reasonQueueFull = "ingestion queue full"

// MemoryEngine is the core orchestrator for memory capture, trust and query.
// Ingest stores a capture synchronously and returns it pending; a worker pool
// then walks it through transcription, analysis and embedding.
type MemoryEngine struct {
	// Configuration
	config  Config
	ranking atomic.Pointer[config.RankingConfig]

	// Storage layer
	memoryStore storage.MemoryStore

	// Collaborators
	deps Dependencies

	// Ingestion pipeline
	ingestQueue     chan *IngestJob
	workerWaitGroup sync.WaitGroup
	workerCtx       context.Context
	workerCancel    context.CancelFunc

	// In-flight job per memory id
	inflightMu sync.Mutex
	inflight   map[string]*IngestJob

	// State management
	started      bool
	shuttingDown bool
	mu           sync.RWMutex

	log *logger.Logger
	now func() time.Time
}

// NewMemoryEngine creates a new memory engine.
// Use DefaultConfig() and config.DefaultRanking() for sensible defaults.
func NewMemoryEngine(store storage.MemoryStore, deps Dependencies, engineConfig Config, ranking config.RankingConfig, log *logger.Logger) (*MemoryEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Answerer == nil {
		return nil, fmt.Errorf("answer generator is required")
	}

	if err := engineConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := ranking.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking: %w", err)
	}

	if deps.Classifier == nil {
		deps.Classifier = HeuristicClassifier{}
	}
	if deps.Candidates == nil {
		deps.Candidates = store
	}
	if deps.History == nil {
		deps.History = conversation.NewMemoryStore(conversation.DefaultMaxTurns)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &MemoryEngine{
		config:      engineConfig,
		memoryStore: store,
		deps:        deps,
		ingestQueue: make(chan *IngestJob, engineConfig.QueueSize),
		inflight:    make(map[string]*IngestJob),
		log:         log.With("component", "engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	e.ranking.Store(&ranking)
	return e, nil
}

// Ranking returns the active ranking profile.
func (e *MemoryEngine) Ranking() config.RankingConfig {
	return *e.ranking.Load()
}

// SetRanking validates rc and makes it the active ranking profile. Queries
// already running keep the profile they started with.
func (e *MemoryEngine) SetRanking(rc config.RankingConfig) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	e.ranking.Store(&rc)
	e.log.Info("ranking profile updated", "file", rc.File)
	return nil
}

// Start starts the worker pool and recovers non-terminal memories from
// previous runs. It must be called before Ingest.
func (e *MemoryEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	e.log.Info("starting memory engine", "workers", e.config.Workers, "queue_size", e.config.QueueSize)

	e.workerCtx, e.workerCancel = context.WithCancel(context.WithoutCancel(ctx))
	e.resetQueue()
	e.startWorkerPool(e.workerCtx)

	// Recovery runs in the background so Start returns quickly.
	go func() {
		if err := e.RecoverNonTerminal(e.workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Error("pipeline recovery failed", "error", err)
		}
	}()

	e.started = true
	return nil
}

// Shutdown stops accepting jobs, cancels in-flight work and waits for the
// workers to exit (bounded by ShutdownTimeout and ctx).
func (e *MemoryEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine not started")
	}
	e.shuttingDown = true
	e.mu.Unlock()

	e.log.Info("shutting down memory engine")

	// Jobs cut short here stay non-terminal and are recovered on the next Start.
	if e.workerCancel != nil {
		e.workerCancel()
	}

	err := e.stopWorkerPool(ctx)

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("worker pool shutdown had errors", "error", err)
		return err
	}
	e.log.Info("memory engine shut down")
	return nil
}

// Ingest stores a capture as a pending memory and queues it for processing.
// It does not wait for the pipeline. When the queue is full the memory is
// kept, marked failed and returned together with an ErrIngestionFailure.
func (e *MemoryEngine) Ingest(ctx context.Context, capture types.Capture) (*types.Memory, error) {
	if !e.accepting() {
		return nil, ErrNotStarted
	}

	memory, err := e.newMemory(capture)
	if err != nil {
		return nil, err
	}

	if err := e.memoryStore.Create(ctx, memory, capture.Audio, capture.AudioMIME); err != nil {
		return nil, mapStoreError(fmt.Errorf("failed to store memory: %w", err))
	}

	e.deps.Notifier.Notify(ctx, events.Event{
		Type:     events.TypeMemoryCreated,
		UserID:   memory.UserID,
		MemoryID: memory.ID,
		Status:   memory.Status,
	})

	job := e.newJob(memory.ID, memory.UserID, memory.Generation, memory.Status)
	if err := e.queueJob(job); err != nil {
		if errors.Is(err, errQueueFull) {
			e.failUnqueued(ctx, memory)
			return memory, fmt.Errorf("%w: %s", ErrIngestionFailure, reasonQueueFull)
		}
		// Shutdown began after the capture was stored; recovery resumes it.
		return memory, nil
	}

	return memory, nil
}

// newMemory validates a capture and applies source and confidence defaults.
func (e *MemoryEngine) newMemory(c types.Capture) (*types.Memory, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return nil, validationf("user id is required")
	}
	text := strings.TrimSpace(c.Text)
	if text == "" && !c.HasAudio() {
		return nil, validationf("capture needs text or audio")
	}

	source := c.Source
	if source == "" {
		source = types.SourceTyped
		if c.HasAudio() {
			source = types.SourceVoice
		}
	} else if parsed, ok := types.ParseSource(string(source)); ok {
		source = parsed
	} else {
		return nil, validationf("unknown source %q", c.Source)
	}

	var memoryType types.MemoryType
	if c.MemoryType != "" {
		mt, ok := types.ParseMemoryType(string(c.MemoryType))
		if !ok {
			return nil, validationf("unknown memory type %q", c.MemoryType)
		}
		memoryType = mt
	}

	confidence := types.DefaultConfidence(source)
	if c.Confidence != nil {
		if *c.Confidence < 0 || *c.Confidence > 1 {
			return nil, validationf("confidence must be within [0,1], got %v", *c.Confidence)
		}
		confidence = *c.Confidence
	}

	now := e.now()
	created := now
	if !c.CreatedAt.IsZero() {
		if c.CreatedAt.After(now) {
			return nil, validationf("created_at must not be in the future")
		}
		created = c.CreatedAt.UTC()
	}
	return &types.Memory{
		ID:              uuid.NewString(),
		UserID:          c.UserID,
		Title:           strings.TrimSpace(c.Title),
		Content:         text,
		Tags:            types.NormalizeTags(c.Tags),
		MemoryType:      memoryType,
		Source:          source,
		ConfidenceScore: confidence,
		WordCount:       types.CountWords(text),
		Status:          types.StatusPending,
		CreatedAt:       created,
		UpdatedAt:       created,
	}, nil
}

// failUnqueued marks a memory that could not be queued as failed.
func (e *MemoryEngine) failUnqueued(ctx context.Context, memory *types.Memory) {
	cond := storage.Condition{Status: memory.Status, Generation: memory.Generation}
	if err := e.memoryStore.MarkFailed(ctx, memory.ID, cond, reasonQueueFull); err != nil {
		e.log.Error("failed to mark unqueued memory failed", "memory_id", memory.ID, "error", err)
		return
	}
	memory.Status = types.StatusFailed
	memory.FailureReason = reasonQueueFull
	e.notifyStatus(ctx, memory.UserID, memory.ID, types.StatusFailed, reasonQueueFull)
}

// Get returns a memory owned by userID.
func (e *MemoryEngine) Get(ctx context.Context, userID, id string) (*types.Memory, error) {
	m, err := e.memoryStore.Get(ctx, userID, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return m, nil
}

// List returns a page of the user's memories.
func (e *MemoryEngine) List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()
	res, err := e.memoryStore.List(ctx, userID, opts)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return res, nil
}

// QueueLength returns the number of jobs waiting in the ingestion queue.
func (e *MemoryEngine) QueueLength() int {
	return len(e.ingestQueue)
}

func (e *MemoryEngine) accepting() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started && !e.shuttingDown
}

func (e *MemoryEngine) notifyStatus(ctx context.Context, userID, memoryID string, status types.ProcessingStatus, reason string) {
	e.deps.Notifier.Notify(ctx, events.Event{
		Type:     events.TypeStatusChanged,
		UserID:   userID,
		MemoryID: memoryID,
		Status:   status,
		Reason:   reason,
	})
}
