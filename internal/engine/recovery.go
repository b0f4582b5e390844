package engine

import (
	"context"
	"fmt"
)

// RecoverNonTerminal re-queues every memory left pending, transcribing,
// analyzing or embedding by a previous run. Each job resumes at the memory's
// persisted status. It is called automatically during Start.
func (e *MemoryEngine) RecoverNonTerminal(ctx context.Context) error {
	e.log.Info("starting pipeline recovery")

	totalQueued := 0
	afterID := ""
	for {
		batch, err := e.memoryStore.ListNonTerminal(ctx, afterID, e.config.RecoveryBatchSize)
		if err != nil {
			return fmt.Errorf("failed to list non-terminal memories: %w", err)
		}

		for _, m := range batch {
			job := e.newJob(m.ID, m.UserID, m.Generation, m.Status)
			if err := e.enqueue(ctx, job); err != nil {
				return err
			}
			totalQueued++
			afterID = m.ID
		}

		if len(batch) < e.config.RecoveryBatchSize {
			break
		}
		e.log.Debug("more non-terminal memories found, processing next batch", "queued", totalQueued)
	}

	if totalQueued == 0 {
		e.log.Info("no non-terminal memories to recover")
		return nil
	}
	e.log.Info("recovery complete", "queued", totalQueued)
	return nil
}
