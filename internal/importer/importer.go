package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/pkg/types"
)

// Ingester accepts captures. *engine.MemoryEngine implements it.
type Ingester interface {
	Ingest(ctx context.Context, capture types.Capture) (*types.Memory, error)
	QueueLength() int
}

// Job states
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Progress is a snapshot of a running or finished job.
type Progress struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	FilesTotal  int    `json:"files_total"`
	FilesDone   int    `json:"files_done"`
	CurrentFile string `json:"current_file,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Result summarizes a finished import.
type Result struct {
	JobID      string        `json:"job_id"`
	FilesFound int           `json:"files_found"`
	Imported   int           `json:"imported"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	LinksFound int           `json:"links_found"`
	MemoryIDs  []string      `json:"memory_ids,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

type job struct {
	mu       sync.RWMutex
	progress Progress
	result   *Result
	done     chan struct{}
}

func (j *job) update(fn func(p *Progress)) {
	j.mu.Lock()
	fn(&j.progress)
	j.mu.Unlock()
}

// Importer walks note directories and ingests every markdown file as a
// capture with source external.
type Importer struct {
	ingester     Ingester
	log          *logger.Logger
	maxQueue     int
	pollInterval time.Duration

	mu   sync.RWMutex
	jobs map[string]*job
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(imp *Importer) { imp.log = log }
}

// WithMaxQueue pauses the import while the ingestion queue holds n or more
// jobs. A full queue fails captures instead of blocking, so large vaults must
// not outrun the workers.
func WithMaxQueue(n int) Option {
	return func(imp *Importer) { imp.maxQueue = n }
}

// WithPollInterval sets how often a paused import rechecks the queue.
func WithPollInterval(d time.Duration) Option {
	return func(imp *Importer) { imp.pollInterval = d }
}

// New returns an Importer that feeds ing.
func New(ing Ingester, opts ...Option) *Importer {
	imp := &Importer{
		ingester:     ing,
		log:          logger.NewNop(),
		maxQueue:     100,
		pollInterval: 100 * time.Millisecond,
		jobs:         make(map[string]*job),
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.log = imp.log.With("component", "importer")
	return imp
}

// StartImport imports dir for userID in the background and returns the job
// id. The job stops early when ctx is cancelled.
func (imp *Importer) StartImport(ctx context.Context, userID, dir string) (string, error) {
	if err := checkArgs(userID, dir); err != nil {
		return "", err
	}

	id := uuid.NewString()
	j := &job{
		progress: Progress{JobID: id, Status: StatusRunning},
		done:     make(chan struct{}),
	}
	imp.mu.Lock()
	imp.jobs[id] = j
	imp.mu.Unlock()

	go func() {
		result := imp.run(ctx, j, userID, dir)
		j.mu.Lock()
		j.result = result
		j.progress.CurrentFile = ""
		if result.Imported == 0 && len(result.Errors) > 0 {
			j.progress.Status = StatusFailed
			j.progress.Message = "Import failed"
		} else {
			j.progress.Status = StatusComplete
			j.progress.Message = fmt.Sprintf("Imported %d of %d notes", result.Imported, result.FilesFound)
		}
		j.mu.Unlock()
		close(j.done)
	}()
	return id, nil
}

// Import imports dir for userID and waits for it to finish.
func (imp *Importer) Import(ctx context.Context, userID, dir string) (*Result, error) {
	if err := checkArgs(userID, dir); err != nil {
		return nil, err
	}
	j := &job{progress: Progress{JobID: uuid.NewString(), Status: StatusRunning}}
	return imp.run(ctx, j, userID, dir), nil
}

// Progress returns the progress of a job started with StartImport.
func (imp *Importer) Progress(jobID string) (Progress, bool) {
	j, ok := imp.job(jobID)
	if !ok {
		return Progress{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress, true
}

// Result returns the result of a finished job, or nil while it runs.
func (imp *Importer) Result(jobID string) *Result {
	j, ok := imp.job(jobID)
	if !ok {
		return nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Wait blocks until the job finishes or ctx is done.
func (imp *Importer) Wait(ctx context.Context, jobID string) (*Result, error) {
	j, ok := imp.job(jobID)
	if !ok {
		return nil, fmt.Errorf("unknown import job %q", jobID)
	}
	select {
	case <-j.done:
		return imp.Result(jobID), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (imp *Importer) job(id string) (*job, bool) {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	j, ok := imp.jobs[id]
	return j, ok
}

func checkArgs(userID, dir string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", dir)
	}
	return nil
}

func (imp *Importer) run(ctx context.Context, j *job, userID, dir string) *Result {
	start := time.Now()
	result := &Result{JobID: j.progress.JobID}
	defer func() { result.Duration = time.Since(start) }()

	files, err := markdownFiles(dir)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("walk error: %v", err))
		return result
	}
	result.FilesFound = len(files)
	j.update(func(p *Progress) { p.FilesTotal = len(files) })

	imp.log.Info("import started", "user_id", userID, "dir", dir, "files", len(files))

	for i, path := range files {
		rel, _ := filepath.Rel(dir, path)
		j.update(func(p *Progress) {
			p.FilesDone = i
			p.CurrentFile = rel
		})

		if err := imp.waitForQueue(ctx); err != nil {
			result.Errors = append(result.Errors, "import cancelled")
			break
		}

		data, err := os.ReadFile(path)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		note, err := ParseNote(data, rel)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if note.Body == "" {
			result.Skipped++
			continue
		}
		result.LinksFound += len(note.Links)

		m, err := imp.ingester.Ingest(ctx, note.Capture(userID))
		if err != nil {
			imp.log.Warn("failed to import note", "file", rel, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		result.Imported++
		result.MemoryIDs = append(result.MemoryIDs, m.ID)
	}

	j.update(func(p *Progress) { p.FilesDone = result.Imported + result.Skipped + result.Failed })
	imp.log.Info("import finished",
		"user_id", userID, "imported", result.Imported,
		"skipped", result.Skipped, "failed", result.Failed)
	return result
}

// waitForQueue blocks while the ingestion queue is at or above maxQueue.
func (imp *Importer) waitForQueue(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if imp.maxQueue <= 0 || imp.ingester.QueueLength() < imp.maxQueue {
		return nil
	}
	ticker := time.NewTicker(imp.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if imp.ingester.QueueLength() < imp.maxQueue {
				return nil
			}
		}
	}
}

// markdownFiles returns the .md and .markdown files under dir in lexical
// order. Hidden directories such as .obsidian and .git are skipped.
func markdownFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".md", ".markdown":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
