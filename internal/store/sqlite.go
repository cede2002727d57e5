package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteStore is the structured store's single implementation of
// MetadataStore. It owns the files/symbols/identifiers/relationships/
// embedding_vectors tables plus the files_fts/symbols_fts FTS5 virtual
// tables, so a workspace's entire indexed state lives in one database
// file reachable with a single connection.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool

	stopWords map[string]struct{}
}

var _ MetadataStore = (*SQLiteStore)(nil)

// validateStoreIntegrity mirrors the corruption-detection pattern used by
// the BM25 index: a quick PRAGMA integrity_check before opening for real,
// with the database auto-cleared (and its WAL/SHM siblings) on failure so
// the caller falls back to a full reindex instead of surfacing a fatal
// StoreError on every subsequent open.
func validateStoreIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='symbols_fts'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("symbols_fts table missing")
	}

	return nil
}

// NewSQLiteStore opens (creating if necessary) the structured store at
// path. It configures WAL mode and a single-writer connection pool per
// the same idiom as the BM25 index, then applies the idempotent schema
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateStoreIntegrity(path); validErr != nil {
			slog.Warn("structured_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("structured_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, reindex required"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer, matching the structured store's single-writer
	// enforcement at the process level (advisory flock sits above this).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(DefaultCodeStopWords),
	}

	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return s, nil
}

// CommitFile implements the atomic per-file commit contract: the
// old File row's dependents are replaced with the fresh extraction result
// inside a single transaction, so a reader never observes a file as
// indexed-but-empty between the delete and the insert.
func (s *SQLiteStore) CommitFile(ctx context.Context, file *File, symbols []*Symbol, identifiers []*Identifier, relationships []*Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// ON DELETE CASCADE on symbols/identifiers/relationships handles the
	// dependent rows once the files row itself is replaced.
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, file.Path); err != nil {
		return fmt.Errorf("delete stale file row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files_fts WHERE path = ?`, file.Path); err != nil {
		return fmt.Errorf("delete stale files_fts row: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files(path, language, content_hash, size, last_modified, content)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		file.Path, file.Language, file.ContentHash, file.Size, file.LastModified.Unix(), file.Content,
	); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}

	tokens := FilterStopWords(TokenizeCode(file.Content), s.stopWords)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files_fts(path, content) VALUES (?, ?)`,
		file.Path, joinTokens(tokens),
	); err != nil {
		return fmt.Errorf("insert files_fts: %w", err)
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols(id, name, kind, language, file_path, start_line, end_line,
			start_byte, end_byte, signature, doc_comment, visibility, code_context, parent_symbol_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare symbol insert: %w", err)
	}
	defer symStmt.Close()

	symFTSStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO symbols_fts(symbol_id, name, signature, doc_comment) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare symbols_fts insert: %w", err)
	}
	defer symFTSStmt.Close()

	for _, sym := range symbols {
		if _, err := symStmt.ExecContext(ctx,
			sym.ID, sym.Name, string(sym.Kind), sym.Language, sym.FilePath,
			sym.StartLine, sym.EndLine, sym.StartByte, sym.EndByte,
			sym.Signature, sym.DocComment, string(sym.Visibility), sym.CodeContext, sym.ParentSymbolID,
		); err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.ID, err)
		}
		nameTokens := FilterStopWords(TokenizeIdentifier(sym.Name), s.stopWords)
		sigTokens := FilterStopWords(TokenizeCode(sym.Signature), s.stopWords)
		docTokens := FilterStopWords(TokenizeCode(sym.DocComment), s.stopWords)
		if _, err := symFTSStmt.ExecContext(ctx,
			sym.ID, joinTokens(nameTokens), joinTokens(sigTokens), joinTokens(docTokens),
		); err != nil {
			return fmt.Errorf("insert symbols_fts %s: %w", sym.ID, err)
		}
	}

	idStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO identifiers(id, name, kind, file_path, line, column, byte_offset, containing_symbol_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare identifier insert: %w", err)
	}
	defer idStmt.Close()

	for _, ident := range identifiers {
		if _, err := idStmt.ExecContext(ctx,
			ident.ID, ident.Name, string(ident.Kind), ident.FilePath,
			ident.Line, ident.Column, ident.ByteOffset, ident.ContainingSymbolID,
		); err != nil {
			return fmt.Errorf("insert identifier %s: %w", ident.ID, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationships(id, from_symbol_id, to_symbol_id, to_symbol_name, kind, file_path, line_number)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare relationship insert: %w", err)
	}
	defer relStmt.Close()

	for _, rel := range relationships {
		if _, err := relStmt.ExecContext(ctx,
			rel.ID, rel.FromSymbolID, rel.ToSymbolID, rel.ToSymbolName, string(rel.Kind), rel.FilePath, rel.LineNumber,
		); err != nil {
			return fmt.Errorf("insert relationship %s: %w", rel.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteFile removes a File and, via ON DELETE CASCADE, every Symbol/
// Identifier/Relationship keyed by its path (the owning-deletion
// invariant, used by orphan cleanup).
func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files_fts WHERE path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM symbols_fts WHERE symbol_id IN (SELECT id FROM symbols WHERE file_path = ?)`, path,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFile(ctx context.Context, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f File
	var lastMod int64
	err := s.db.QueryRowContext(ctx,
		`SELECT path, language, content_hash, size, last_modified, content FROM files WHERE path = ?`, path,
	).Scan(&f.Path, &f.Language, &f.ContentHash, &f.Size, &lastMod, &f.Content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.LastModified = time.Unix(lastMod, 0)
	return &f, nil
}

func (s *SQLiteStore) ListFilePaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) CountFiles(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) MaxLastModified(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var maxUnix sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(last_modified) FROM files`).Scan(&maxUnix); err != nil {
		return time.Time{}, err
	}
	if !maxUnix.Valid {
		return time.Time{}, nil
	}
	return time.Unix(maxUnix.Int64, 0), nil
}

// Staleness implements the ordered startup checks: empty store, a
// discovered file the store has never seen, a newer mtime on disk than
// the store has recorded, and schema version mismatch forcing a full
// reindex. The second check is set membership, not a count comparison:
// a same-count rename (one file deleted, one created) keeps the count
// steady while a discovered path is genuinely absent.
func (s *SQLiteStore) Staleness(ctx context.Context, discoveredPaths []string, newestOnDisk time.Time) (StaleCheck, error) {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return StaleCheck{}, err
	}
	if version != CurrentSchemaVersion {
		return StaleCheck{Stale: true, Reason: "schema version mismatch"}, nil
	}

	storedCount, err := s.CountFiles(ctx)
	if err != nil {
		return StaleCheck{}, err
	}
	if storedCount == 0 && len(discoveredPaths) > 0 {
		return StaleCheck{Stale: true, Reason: "store is empty"}, nil
	}

	storedPaths, err := s.ListFilePaths(ctx)
	if err != nil {
		return StaleCheck{}, err
	}
	stored := make(map[string]bool, len(storedPaths))
	for _, p := range storedPaths {
		stored[p] = true
	}
	for _, p := range discoveredPaths {
		if !stored[p] {
			return StaleCheck{Stale: true, Reason: "discovered file missing from store"}, nil
		}
	}

	storedNewest, err := s.MaxLastModified(ctx)
	if err != nil {
		return StaleCheck{}, err
	}
	if newestOnDisk.After(storedNewest) {
		return StaleCheck{Stale: true, Reason: "newer mtime on disk"}, nil
	}

	return StaleCheck{Stale: false}, nil
}

func (s *SQLiteStore) GetSymbol(ctx context.Context, id string) (*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanSymbolRow(s.db.QueryRowContext(ctx, symbolSelectCols+` WHERE id = ?`, id))
}

func (s *SQLiteStore) GetSymbolsByFile(ctx context.Context, filePath string) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, symbolSelectCols+` WHERE file_path = ? ORDER BY start_line`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanSymbolRows(rows)
}

func (s *SQLiteStore) SearchSymbolsByName(ctx context.Context, names []string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(names) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(names)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		symbolSelectCols+` WHERE name IN (`+placeholders+`) LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanSymbolRows(rows)
}

const symbolSelectCols = `SELECT id, name, kind, language, file_path, start_line, end_line,
	start_byte, end_byte, signature, doc_comment, visibility, code_context, parent_symbol_id FROM symbols`

func (s *SQLiteStore) scanSymbolRow(row *sql.Row) (*Symbol, error) {
	var sym Symbol
	var kind, vis string
	err := row.Scan(&sym.ID, &sym.Name, &kind, &sym.Language, &sym.FilePath,
		&sym.StartLine, &sym.EndLine, &sym.StartByte, &sym.EndByte,
		&sym.Signature, &sym.DocComment, &vis, &sym.CodeContext, &sym.ParentSymbolID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sym.Kind = SymbolKind(kind)
	sym.Visibility = Visibility(vis)
	return &sym, nil
}

func (s *SQLiteStore) scanSymbolRows(rows *sql.Rows) ([]*Symbol, error) {
	var out []*Symbol
	for rows.Next() {
		var sym Symbol
		var kind, vis string
		if err := rows.Scan(&sym.ID, &sym.Name, &kind, &sym.Language, &sym.FilePath,
			&sym.StartLine, &sym.EndLine, &sym.StartByte, &sym.EndByte,
			&sym.Signature, &sym.DocComment, &vis, &sym.CodeContext, &sym.ParentSymbolID); err != nil {
			return nil, err
		}
		sym.Kind = SymbolKind(kind)
		sym.Visibility = Visibility(vis)
		out = append(out, &sym)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetIdentifiersByName(ctx context.Context, name string, kinds []IdentifierKind, limit int) ([]*Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, name, kind, file_path, line, column, byte_offset, containing_symbol_id
		FROM identifiers WHERE name = ?`
	args := []any{name}
	if len(kinds) > 0 {
		strs := make([]string, len(kinds))
		for i, k := range kinds {
			strs[i] = string(k)
		}
		placeholders, kindArgs := inClause(strs)
		query += ` AND kind IN (` + placeholders + `)`
		args = append(args, kindArgs...)
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Identifier
	for rows.Next() {
		var ident Identifier
		var kind string
		if err := rows.Scan(&ident.ID, &ident.Name, &kind, &ident.FilePath,
			&ident.Line, &ident.Column, &ident.ByteOffset, &ident.ContainingSymbolID); err != nil {
			return nil, err
		}
		ident.Kind = IdentifierKind(kind)
		out = append(out, &ident)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRelationshipsFrom(ctx context.Context, symbolID string, kinds []RelationshipKind) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRelationships(ctx, `from_symbol_id = ?`, symbolID, kinds)
}

func (s *SQLiteStore) GetRelationshipsTo(ctx context.Context, symbolIDOrName string, kinds []RelationshipKind) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRelationships(ctx, `(to_symbol_id = ? OR to_symbol_name = ?)`, symbolIDOrName, kinds, symbolIDOrName)
}

func (s *SQLiteStore) queryRelationships(ctx context.Context, whereClause string, firstArg any, kinds []RelationshipKind, extraArgs ...any) ([]*Relationship, error) {
	query := `SELECT id, from_symbol_id, to_symbol_id, to_symbol_name, kind, file_path, line_number
		FROM relationships WHERE ` + whereClause
	args := append([]any{firstArg}, extraArgs...)
	if len(kinds) > 0 {
		strs := make([]string, len(kinds))
		for i, k := range kinds {
			strs[i] = string(k)
		}
		placeholders, kindArgs := inClause(strs)
		query += ` AND kind IN (` + placeholders + `)`
		args = append(args, kindArgs...)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		var rel Relationship
		var kind string
		if err := rows.Scan(&rel.ID, &rel.FromSymbolID, &rel.ToSymbolID, &rel.ToSymbolName, &kind, &rel.FilePath, &rel.LineNumber); err != nil {
			return nil, err
		}
		rel.Kind = RelationshipKind(kind)
		out = append(out, &rel)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveEmbedding(ctx context.Context, e *EmbeddingVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob := encodeFloat32Blob(e.Vector)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_vectors(symbol_id, dim, model_tag, vector) VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol_id) DO UPDATE SET dim = excluded.dim, model_tag = excluded.model_tag, vector = excluded.vector`,
		e.SymbolID, e.Dim, e.ModelTag, blob)
	return err
}

func (s *SQLiteStore) GetEmbedding(ctx context.Context, symbolID string) (*EmbeddingVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e EmbeddingVector
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol_id, dim, model_tag, vector FROM embedding_vectors WHERE symbol_id = ?`, symbolID,
	).Scan(&e.SymbolID, &e.Dim, &e.ModelTag, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Vector = decodeFloat32Blob(blob)
	return &e, nil
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) ([]*EmbeddingVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT symbol_id, dim, model_tag, vector FROM embedding_vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EmbeddingVector
	for rows.Next() {
		var e EmbeddingVector
		var blob []byte
		if err := rows.Scan(&e.SymbolID, &e.Dim, &e.ModelTag, &blob); err != nil {
			return nil, err
		}
		e.Vector = decodeFloat32Blob(blob)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_vectors`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v)
	return v, err
}

// DB returns the underlying *sql.DB connection, for callers that need to
// share it with another store built on the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close forces a WAL checkpoint, matching the BM25 index's shutdown idiom,
// so the structured store's data is durable on disk before the process
// exits.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

func inClause(values []string) (string, []any) {
	placeholders := make([]byte, 0, len(values)*2)
	args := make([]any, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = v
	}
	return string(placeholders), args
}

func joinTokens(tokens []string) string {
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
