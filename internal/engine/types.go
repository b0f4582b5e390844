// Package engine is the core of recall. It runs the async ingestion pipeline,
// keeps the trust ledger and answers grounded queries over a user's memories.
//
// Captures are stored synchronously and processed by a worker pool fed from a
// buffered job queue. Retrieval only ever sees memories the pipeline has
// completed.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// IngestJob is one unit of pipeline work for a memory. A job resumes the
// pipeline at From and is only valid while the memory is still at Generation.
type IngestJob struct {
	// MemoryID is the memory to process.
	MemoryID string

	// UserID owns the memory.
	UserID string

	// Generation is the content generation the job was queued for.
	Generation int64

	// From is the persisted status the job starts at.
	From types.ProcessingStatus

	// Timestamp is when the job was queued.
	Timestamp time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	prev   <-chan struct{}
}

// Config holds configuration for the memory engine.
type Config struct {
	// Workers is the number of pipeline worker goroutines (default: 4).
	Workers int

	// QueueSize is the size of the job queue buffer (default: 1000).
	QueueSize int

	// ShutdownTimeout is the maximum time to wait for workers to drain on shutdown (default: 30s).
	ShutdownTimeout time.Duration

	// StepTimeout bounds each collaborator call (default: 60s).
	StepTimeout time.Duration

	// RecoveryBatchSize is the number of non-terminal memories recovered per page (default: 500).
	RecoveryBatchSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         1000,
		ShutdownTimeout:   30 * time.Second,
		StepTimeout:       60 * time.Second,
		RecoveryBatchSize: 500,
	}
}

// ConfigFromPipeline builds an engine Config from the application pipeline settings.
func ConfigFromPipeline(p config.PipelineConfig) Config {
	return Config{
		Workers:           p.Workers,
		QueueSize:         p.QueueSize,
		ShutdownTimeout:   p.ShutdownTimeout,
		StepTimeout:       p.StepTimeout,
		RecoveryBatchSize: p.RecoveryBatchSize,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be >= 1, got %d", c.Workers)
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}

	if c.StepTimeout <= 0 {
		return fmt.Errorf("StepTimeout must be > 0, got %v", c.StepTimeout)
	}

	if c.RecoveryBatchSize < 1 {
		return fmt.Errorf("RecoveryBatchSize must be >= 1, got %d", c.RecoveryBatchSize)
	}

	return nil
}
