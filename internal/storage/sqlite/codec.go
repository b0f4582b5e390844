package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// memoryColumns is the column list every memory SELECT uses; scanMemory reads
// it in the same order.
const memoryColumns = `
	id, user_id, title, content, tags, memory_type, source,
	confidence_score, last_confirmed_at, is_flagged, flag_reason,
	summary, themes, emotions, topics, people, places, memory_chunks,
	word_count, sentiment_label, sentiment_score,
	embedding, embedding_model, processing_status, failure_reason, generation,
	created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var title, memoryType, flagReason, summary, sentimentLabel, embeddingModel, failureReason sql.NullString
	var tags, themes, emotions, topics, people, places, chunks sql.NullString
	var lastConfirmed sql.NullTime
	var embedding []byte

	err := row.Scan(
		&m.ID,
		&m.UserID,
		&title,
		&m.Content,
		&tags,
		&memoryType,
		&m.Source,
		&m.ConfidenceScore,
		&lastConfirmed,
		&m.Flagged,
		&flagReason,
		&summary,
		&themes,
		&emotions,
		&topics,
		&people,
		&places,
		&chunks,
		&m.WordCount,
		&sentimentLabel,
		&m.SentimentScore,
		&embedding,
		&embeddingModel,
		&m.Status,
		&failureReason,
		&m.Generation,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Title = title.String
	m.MemoryType = types.MemoryType(memoryType.String)
	m.FlagReason = flagReason.String
	m.Summary = summary.String
	m.SentimentLabel = sentimentLabel.String
	m.EmbeddingModel = embeddingModel.String
	m.FailureReason = failureReason.String
	if lastConfirmed.Valid {
		t := lastConfirmed.Time
		m.LastConfirmedAt = &t
	}

	for _, f := range []struct {
		name string
		raw  sql.NullString
		dst  interface{}
	}{
		{"tags", tags, &m.Tags},
		{"themes", themes, &m.Themes},
		{"emotions", emotions, &m.Emotions},
		{"topics", topics, &m.Topics},
		{"people", people, &m.People},
		{"places", places, &m.Places},
		{"memory_chunks", chunks, &m.MemoryChunks},
	} {
		if !f.raw.Valid || f.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw.String), f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}

	if len(embedding) > 0 {
		m.Embedding, err = decodeEmbedding(embedding)
		if err != nil {
			return nil, err
		}
	}

	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]types.Memory, error) {
	var out []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return out, nil
}

// encodeEmbedding serializes v as little-endian float32s. Empty vectors are NULL.
func encodeEmbedding(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// jsonList marshals a slice to a JSON TEXT value. Empty slices are NULL.
func jsonList[T any](items []T) sql.NullString {
	if len(items) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// nullableTime converts a time pointer to sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// buildInClause returns "(?, ?, ...)" with n placeholders.
func buildInClause(n int) string {
	if n <= 0 {
		return "()"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
