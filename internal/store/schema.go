package store

// schemaDDL creates every table and FTS5 virtual table the structured
// store owns, plus the triggers that keep files_fts/symbols_fts in sync
// with their owning rows. Migrations are forward-only and idempotent:
// each statement uses IF NOT EXISTS so re-running the DDL against an
// already-migrated database is a no-op.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS files (
	path          TEXT PRIMARY KEY,
	language      TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	size          INTEGER NOT NULL,
	last_modified INTEGER NOT NULL,
	content       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS symbols (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	kind             TEXT NOT NULL,
	language         TEXT NOT NULL,
	file_path        TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	start_line       INTEGER NOT NULL,
	end_line         INTEGER NOT NULL,
	start_byte       INTEGER NOT NULL,
	end_byte         INTEGER NOT NULL,
	signature        TEXT NOT NULL DEFAULT '',
	doc_comment      TEXT NOT NULL DEFAULT '',
	visibility       TEXT NOT NULL DEFAULT 'unknown',
	code_context     TEXT NOT NULL DEFAULT '',
	parent_symbol_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

CREATE TABLE IF NOT EXISTS identifiers (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	kind                 TEXT NOT NULL,
	file_path            TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	line                 INTEGER NOT NULL,
	column               INTEGER NOT NULL,
	byte_offset          INTEGER NOT NULL,
	containing_symbol_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_identifiers_file ON identifiers(file_path);
CREATE INDEX IF NOT EXISTS idx_identifiers_name ON identifiers(name);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	from_symbol_id TEXT NOT NULL,
	to_symbol_id   TEXT NOT NULL DEFAULT '',
	to_symbol_name TEXT NOT NULL,
	kind           TEXT NOT NULL,
	file_path      TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	line_number    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_from ON relationships(from_symbol_id);
-- idx_rel_to backs GetRelationshipsTo (find-references / trace-call-path)
-- without an O(n) scan; both to_symbol_id and to_symbol_name are indexed
-- since unresolved relationships carry only the latter.
CREATE INDEX IF NOT EXISTS idx_rel_to ON relationships(to_symbol_id);
CREATE INDEX IF NOT EXISTS idx_rel_to_name ON relationships(to_symbol_name);
CREATE INDEX IF NOT EXISTS idx_rel_file ON relationships(file_path);

CREATE TABLE IF NOT EXISTS embedding_vectors (
	symbol_id TEXT PRIMARY KEY REFERENCES symbols(id) ON DELETE CASCADE,
	dim       INTEGER NOT NULL,
	model_tag TEXT NOT NULL,
	vector    BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- Content-mode FTS: one row per file, content pre-tokenized the same way
-- as symbols_fts (TokenizeCode + stop-word filtering) so both tiers share
-- ranking semantics.
CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	path UNINDEXED,
	content,
	tokenize='unicode61'
);

-- Symbol-definition-mode FTS: name carries the highest weight, then
-- signature, then doc_comment, matching the boost order in the ranking
-- rule.
CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
	symbol_id UNINDEXED,
	name,
	signature,
	doc_comment,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// applyMigrations runs the full DDL. Every statement is idempotent, so
// this is safe to call on every store open regardless of current version;
// future schema bumps append new idempotent statements here rather than
// branching on the stored version, except where CurrentSchemaVersion
// forces a full reindex (extractor/grammar changes that alter symbol_id
// derivation) rather than an in-place migration.
func (s *SQLiteStore) applyMigrations() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return err
	}
	return nil
}
