package postgres

// Schema contains the PostgreSQL schema, applied on every open.
// All statements are idempotent.
//
// embedding holds the vector as REAL[] so the store works without pgvector;
// embedding_vec mirrors it when the extension is available (see MigrationPgvector).
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    title             TEXT,
    content           TEXT NOT NULL DEFAULT '',
    tags              JSONB,
    memory_type       TEXT,
    source            TEXT NOT NULL,

    confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0.75,
    last_confirmed_at TIMESTAMPTZ,
    is_flagged        BOOLEAN NOT NULL DEFAULT FALSE,
    flag_reason       TEXT,

    summary           TEXT,
    themes            JSONB,
    emotions          JSONB,
    topics            JSONB,
    people            JSONB,
    places            JSONB,
    memory_chunks     JSONB,
    word_count        INTEGER NOT NULL DEFAULT 0,
    sentiment_label   TEXT,
    sentiment_score   DOUBLE PRECISION NOT NULL DEFAULT 0,

    embedding         REAL[],
    embedding_model   TEXT,
    processing_status TEXT NOT NULL DEFAULT 'pending',
    failure_reason    TEXT,
    generation        BIGINT NOT NULL DEFAULT 0,

    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user_status ON memories(user_id, processing_status);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(processing_status);

CREATE TABLE IF NOT EXISTS capture_audio (
    memory_id  TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
    mime       TEXT,
    data       BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`

// MigrationPgvector adds the pgvector mirror column. It is only applied when
// the vector extension is available.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memories' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE memories ADD COLUMN embedding_vec vector;
    END IF;
END
$$;
`
