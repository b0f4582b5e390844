package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db  *sql.DB
	log *logger.Logger
}

var _ storage.MemoryStore = (*MemoryStore)(nil)

type options struct {
	log *logger.Logger
}

// Option configures a MemoryStore.
type Option func(*options)

// WithLogger sets the logger used for non-fatal store events.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// NewMemoryStore creates a new SQLite memory store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewMemoryStore(dsn string, opts ...Option) (*MemoryStore, error) {
	o := options{log: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log

	store, err := openMemoryStore(dsn, log)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, log)

	store, retryErr := openMemoryStore(dsn, log)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

// openMemoryStore opens a SQLite database, configures WAL mode, and creates the schema.
func openMemoryStore(dsn string, log *logger.Logger) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serialises writes and keeps :memory: databases shared across callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db, log: log}, nil
}

// Create inserts a new memory and, for audio captures, its audio.
func (s *MemoryStore) Create(ctx context.Context, memory *types.Memory, audio []byte, audioMIME string) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.UserID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" && len(audio) == 0 {
		return fmt.Errorf("%w: memory content or audio is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = memory.CreatedAt
	}
	if memory.Status == "" {
		memory.Status = types.StatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, user_id, title, content, tags, memory_type, source,
			confidence_score, last_confirmed_at, is_flagged, flag_reason,
			summary, themes, emotions, topics, people, places, memory_chunks,
			word_count, sentiment_label, sentiment_score,
			embedding, embedding_model, processing_status, failure_reason, generation,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		memory.ID,
		memory.UserID,
		nullableString(memory.Title),
		memory.Content,
		jsonList(memory.Tags),
		nullableString(string(memory.MemoryType)),
		memory.Source,
		memory.ConfidenceScore,
		nullableTime(memory.LastConfirmedAt),
		memory.Flagged,
		nullableString(memory.FlagReason),
		nullableString(memory.Summary),
		jsonList(memory.Themes),
		jsonList(memory.Emotions),
		jsonList(memory.Topics),
		jsonList(memory.People),
		jsonList(memory.Places),
		jsonList(memory.MemoryChunks),
		memory.WordCount,
		nullableString(memory.SentimentLabel),
		memory.SentimentScore,
		encodeEmbedding(memory.Embedding),
		nullableString(memory.EmbeddingModel),
		memory.Status,
		nullableString(memory.FailureReason),
		memory.Generation,
		memory.CreatedAt.UTC(),
		memory.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}

	if len(audio) > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO capture_audio (memory_id, mime, data, created_at) VALUES (?, ?, ?, ?)`,
			memory.ID, nullableString(audioMIME), audio, now)
		if err != nil {
			return fmt.Errorf("failed to store audio: %w", err)
		}
	}

	return tx.Commit()
}

// Get retrieves a memory owned by userID.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return m, nil
}

// GetMany retrieves the memories with the given ids that userID owns.
func (s *MemoryStore) GetMany(ctx context.Context, userID string, ids []string) ([]types.Memory, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND id IN `+buildInClause(len(ids)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// List retrieves memories owned by userID with pagination and filtering.
func (s *MemoryStore) List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	// Normalize before building ORDER BY; SortBy is whitelisted there.
	opts.Normalize()

	conditions := []string{"user_id = ?"}
	args := []interface{}{userID}

	if opts.Status != "" {
		conditions = append(conditions, "processing_status = ?")
		args = append(args, opts.Status)
	}
	if opts.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, opts.MemoryType)
	}
	if opts.Flagged != nil {
		conditions = append(conditions, "is_flagged = ?")
		args = append(args, *opts.Flagged)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM memories%s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?",
		memoryColumns, where, opts.SortBy, strings.ToUpper(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	items, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Digest returns a lightweight projection of every memory owned by userID, newest first.
func (s *MemoryStore) Digest(ctx context.Context, userID string) ([]storage.MemoryDigest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, content, summary, word_count
		FROM memories WHERE user_id = ?
		ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to digest memories: %w", err)
	}
	defer rows.Close()

	var out []storage.MemoryDigest
	for rows.Next() {
		var d storage.MemoryDigest
		var summary sql.NullString
		if err := rows.Scan(&d.ID, &d.CreatedAt, &d.Content, &summary, &d.WordCount); err != nil {
			return nil, fmt.Errorf("failed to scan digest row: %w", err)
		}
		d.Summary = summary.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// LoadAudio returns the stored audio for a memory awaiting transcription.
func (s *MemoryStore) LoadAudio(ctx context.Context, id string) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT data, mime FROM capture_audio WHERE memory_id = ?`, id).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", storage.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load audio: %w", err)
	}
	return data, mime.String, nil
}

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so the next open
// does not meet stale WAL state.
func (s *MemoryStore) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("sqlite: WAL checkpoint on close failed", "error", err)
	}

	return s.db.Close()
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs ("file:/path/to/db.sqlite?mode=rwc").
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database path
// and no other process holds them open. Without lsof it reports false.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when no process has the files open.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string, log *logger.Logger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("sqlite: failed to remove stale WAL file", "path", path, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
