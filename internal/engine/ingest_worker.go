package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/metrics"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// ingestWorker processes jobs until the worker context is cancelled.
func (e *MemoryEngine) ingestWorker(ctx context.Context, workerID int) {
	defer e.workerWaitGroup.Done()

	e.log.Debug("ingest worker started", "worker", workerID)
	for {
		select {
		case <-ctx.Done():
			e.log.Debug("ingest worker stopped", "worker", workerID)
			return
		case job := <-e.ingestQueue:
			metrics.IngestQueueDepth.Set(float64(len(e.ingestQueue)))
			e.processJob(ctx, workerID, job)
		}
	}
}

// processJob runs one job to a terminal status, or until it is superseded or
// cancelled. At most one job per memory is past its predecessor wait at a time.
func (e *MemoryEngine) processJob(workerCtx context.Context, workerID int, job *IngestJob) {
	defer e.finish(job)

	if job.prev != nil {
		select {
		case <-job.prev:
		case <-workerCtx.Done():
			return
		}
	}

	e.log.Debug("processing memory",
		"worker", workerID, "memory_id", job.MemoryID, "from", string(job.From), "generation", job.Generation)
	e.runPipeline(job.ctx, job)
}

// runPipeline advances the memory one step at a time. Every write is
// conditioned on the step's status and the job's generation; a write that
// loses that race ends the job without further writes.
func (e *MemoryEngine) runPipeline(ctx context.Context, job *IngestJob) {
	status := job.From
	for !status.IsTerminal() {
		if ctx.Err() != nil {
			return
		}

		next, err := e.runStep(ctx, job, status)
		switch {
		case err == nil:
			metrics.IngestTransitionsTotal.WithLabelValues(string(next)).Inc()
			e.notifyStatus(ctx, job.UserID, job.MemoryID, next, "")
			status = next
		case errors.Is(err, storage.ErrSuperseded), errors.Is(err, storage.ErrNotFound):
			metrics.IngestSupersededTotal.Inc()
			e.log.Debug("job superseded", "memory_id", job.MemoryID, "step", string(status))
			return
		case ctx.Err() != nil:
			// Cancelled by a newer edit or shutdown; the result is discarded.
			return
		default:
			e.fail(ctx, job, status, err)
			return
		}
	}
}

func (e *MemoryEngine) runStep(ctx context.Context, job *IngestJob, status types.ProcessingStatus) (types.ProcessingStatus, error) {
	cond := storage.Condition{Status: status, Generation: job.Generation}
	switch status {
	case types.StatusPending:
		return types.StatusTranscribing, e.memoryStore.AdvanceStatus(ctx, job.MemoryID, cond, types.StatusTranscribing)
	case types.StatusTranscribing:
		return types.StatusAnalyzing, e.transcribe(ctx, job, cond)
	case types.StatusAnalyzing:
		return types.StatusEmbedding, e.analyze(ctx, job, cond)
	case types.StatusEmbedding:
		return types.StatusCompleted, e.embed(ctx, job, cond)
	default:
		return "", fmt.Errorf("unexpected status %q", status)
	}
}

// transcribe converts stored audio into the body text. Memories without audio
// pass straight through to analyzing.
func (e *MemoryEngine) transcribe(ctx context.Context, job *IngestJob, cond storage.Condition) error {
	audio, mimeType, err := e.memoryStore.LoadAudio(ctx, job.MemoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.memoryStore.AdvanceStatus(ctx, job.MemoryID, cond, types.StatusAnalyzing)
	}
	if err != nil {
		return err
	}

	if e.deps.Transcriber == nil {
		return errors.New("no transcriber configured")
	}
	text, err := withTimeout(ctx, e.config.StepTimeout, func(ctx context.Context) (string, error) {
		return e.deps.Transcriber.Transcribe(ctx, audio, mimeType)
	})
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty transcript")
	}
	return e.memoryStore.SaveTranscript(ctx, job.MemoryID, cond, text)
}

// analyze writes the analysis and the memory type. A user-asserted type is
// kept by the store.
func (e *MemoryEngine) analyze(ctx context.Context, job *IngestJob, cond storage.Condition) error {
	m, err := e.current(ctx, job, cond)
	if err != nil {
		return err
	}
	text := m.Text()

	analysis, err := withTimeout(ctx, e.config.StepTimeout, func(ctx context.Context) (*types.Analysis, error) {
		return e.deps.Analyzer.Analyze(ctx, text)
	})
	if err != nil {
		return err
	}
	if analysis == nil {
		analysis = &types.Analysis{}
	}
	analysis.WordCount = types.CountWords(m.Content)

	memoryType := m.MemoryType
	if memoryType == "" {
		memoryType = e.deps.Classifier.Classify(text)
	}
	return e.memoryStore.SaveAnalysis(ctx, job.MemoryID, cond, analysis, memoryType)
}

// embed computes the normalized embedding and completes the memory.
func (e *MemoryEngine) embed(ctx context.Context, job *IngestJob, cond storage.Condition) error {
	m, err := e.current(ctx, job, cond)
	if err != nil {
		return err
	}

	vec, err := withTimeout(ctx, e.config.StepTimeout, func(ctx context.Context) ([]float32, error) {
		return e.deps.Embedder.Embed(ctx, m.Text())
	})
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		return errors.New("empty embedding")
	}

	var model string
	if md, ok := e.deps.Embedder.(modeler); ok {
		model = md.GetModel()
	}
	return e.memoryStore.CompleteEmbedding(ctx, job.MemoryID, cond, storage.Normalize(vec), model)
}

// current loads the memory and checks it still matches the job.
func (e *MemoryEngine) current(ctx context.Context, job *IngestJob, cond storage.Condition) (*types.Memory, error) {
	m, err := e.memoryStore.Get(ctx, job.UserID, job.MemoryID)
	if err != nil {
		return nil, err
	}
	if m.Status != cond.Status || m.Generation != cond.Generation {
		return nil, storage.ErrSuperseded
	}
	return m, nil
}

// fail records a step failure as "<step>: <error>".
func (e *MemoryEngine) fail(ctx context.Context, job *IngestJob, step types.ProcessingStatus, cause error) {
	reason := fmt.Sprintf("%s: %v", step, cause)
	metrics.IngestFailuresTotal.WithLabelValues(string(step)).Inc()
	e.log.Warn("pipeline step failed", "memory_id", job.MemoryID, "step", string(step), "error", cause)

	cond := storage.Condition{Status: step, Generation: job.Generation}
	if err := e.memoryStore.MarkFailed(ctx, job.MemoryID, cond, reason); err != nil {
		if !errors.Is(err, storage.ErrSuperseded) && !errors.Is(err, storage.ErrNotFound) {
			e.log.Error("failed to mark memory failed", "memory_id", job.MemoryID, "error", err)
		}
		return
	}
	metrics.IngestTransitionsTotal.WithLabelValues(string(types.StatusFailed)).Inc()
	e.notifyStatus(ctx, job.UserID, job.MemoryID, types.StatusFailed, reason)
}

// startWorkerPool starts the worker goroutines.
func (e *MemoryEngine) startWorkerPool(ctx context.Context) {
	for i := 0; i < e.config.Workers; i++ {
		e.workerWaitGroup.Add(1)
		go e.ingestWorker(ctx, i)
	}
	e.log.Info("started ingest workers", "count", e.config.Workers)
}

// stopWorkerPool waits for the cancelled workers to exit.
func (e *MemoryEngine) stopWorkerPool(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.workerWaitGroup.Wait()
		close(done)
	}()

	timeout := e.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		e.log.Info("all ingest workers finished")
		return nil
	case <-time.After(timeout):
		e.log.Warn("shutdown timeout reached, abandoning in-flight jobs", "queued", e.QueueLength())
		return nil
	case <-ctx.Done():
		e.log.Warn("context cancelled, abandoning in-flight jobs", "queued", e.QueueLength())
		return ctx.Err()
	}
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
