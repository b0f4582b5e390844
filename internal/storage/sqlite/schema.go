package sqlite

// Schema is the SQLite schema, applied on every open.
//
// List-valued fields are JSON arrays in TEXT columns. Embeddings are
// little-endian float32 BLOBs. Audio waiting for transcription lives in
// capture_audio and is deleted once the transcript is saved.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	title             TEXT,
	content           TEXT NOT NULL DEFAULT '',
	tags              TEXT,
	memory_type       TEXT,
	source            TEXT NOT NULL,

	confidence_score  REAL NOT NULL DEFAULT 0.75,
	last_confirmed_at TIMESTAMP,
	is_flagged        INTEGER NOT NULL DEFAULT 0,
	flag_reason       TEXT,

	summary           TEXT,
	themes            TEXT,
	emotions          TEXT,
	topics            TEXT,
	people            TEXT,
	places            TEXT,
	memory_chunks     TEXT,
	word_count        INTEGER NOT NULL DEFAULT 0,
	sentiment_label   TEXT,
	sentiment_score   REAL NOT NULL DEFAULT 0,

	embedding         BLOB,
	embedding_model   TEXT,
	processing_status TEXT NOT NULL DEFAULT 'pending',
	failure_reason    TEXT,
	generation        INTEGER NOT NULL DEFAULT 0,

	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user_status ON memories(user_id, processing_status);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(processing_status);

CREATE TABLE IF NOT EXISTS capture_audio (
	memory_id  TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	mime       TEXT,
	data       BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`
