package engine

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/pkg/types"
)

var errQueueFull = errors.New(reasonQueueFull)

// newJob creates a job resuming the pipeline for a memory at status from.
func (e *MemoryEngine) newJob(memoryID, userID string, generation int64, from types.ProcessingStatus) *IngestJob {
	return &IngestJob{
		MemoryID:   memoryID,
		UserID:     userID,
		Generation: generation,
		From:       from,
		Timestamp:  time.Now(),
	}
}

// queueJob attempts to queue a job without blocking.
// It returns ErrNotStarted when the engine is not accepting work and
// errQueueFull when the buffer is full.
func (e *MemoryEngine) queueJob(job *IngestJob) error {
	e.mu.RLock()
	parent := e.workerCtx
	accepting := e.started && !e.shuttingDown
	e.mu.RUnlock()

	if !accepting || parent == nil || parent.Err() != nil {
		return ErrNotStarted
	}
	if !e.track(parent, job) {
		return nil
	}

	select {
	case e.ingestQueue <- job:
		metrics.IngestQueueDepth.Set(float64(len(e.ingestQueue)))
		return nil
	default:
		e.finish(job)
		e.log.Warn("ingestion queue full, dropping job",
			"queue_size", e.config.QueueSize, "memory_id", job.MemoryID)
		return errQueueFull
	}
}

// enqueue queues a job, waiting for room in the buffer. Used by recovery.
// A job superseded while it waits is dropped so its successor can start.
func (e *MemoryEngine) enqueue(ctx context.Context, job *IngestJob) error {
	if !e.track(ctx, job) {
		return nil
	}
	select {
	case e.ingestQueue <- job:
		metrics.IngestQueueDepth.Set(float64(len(e.ingestQueue)))
		return nil
	case <-job.ctx.Done():
		e.finish(job)
		return ctx.Err()
	}
}

// track registers job as the in-flight job for its memory. A job for an older
// generation is cancelled and becomes the predecessor the new job waits on.
// track returns false when a job for the same or a newer generation is
// already in flight.
func (e *MemoryEngine) track(parent context.Context, job *IngestJob) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if cur, ok := e.inflight[job.MemoryID]; ok {
		if cur.Generation >= job.Generation {
			return false
		}
		cur.cancel()
		job.prev = cur.done
	}

	job.ctx, job.cancel = context.WithCancel(parent)
	job.done = make(chan struct{})
	e.inflight[job.MemoryID] = job
	return true
}

// finish releases a job's resources and its in-flight slot.
func (e *MemoryEngine) finish(job *IngestJob) {
	e.inflightMu.Lock()
	if e.inflight[job.MemoryID] == job {
		delete(e.inflight, job.MemoryID)
	}
	e.inflightMu.Unlock()

	job.cancel()
	close(job.done)
}

// resetQueue discards jobs left over from a previous run. Their memories are
// still non-terminal and are picked up again by recovery.
func (e *MemoryEngine) resetQueue() {
	for {
		select {
		case <-e.ingestQueue:
		default:
			e.inflightMu.Lock()
			e.inflight = make(map[string]*IngestJob)
			e.inflightMu.Unlock()
			metrics.IngestQueueDepth.Set(0)
			return
		}
	}
}
