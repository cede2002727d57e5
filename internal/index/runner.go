// Package index implements the Indexing Pipeline: discovery,
// parse/extract, atomic per-file commit, orphan cleanup, staleness
// detection, incremental file-watch handling, and background embedding +
// HNSW propagation.
//
// The package is event-driven: a Coordinator turns watcher.FileEvents
// and full-workspace scans into per-file work, and a Runner does the
// per-file work — extract this file into Symbols/Identifiers/
// Relationships and commit them.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/juliehq/julie/internal/extract"
	"github.com/juliehq/julie/internal/pathutil"
	"github.com/juliehq/julie/internal/store"
)

// Runner performs the per-file work: hash, extract,
// atomic commit. It is safe for concurrent use — the extractor owns a
// parser pool keyed by language.
type Runner struct {
	WorkspaceRoot string
	Store         store.MetadataStore
	Extractor     *extract.Extractor
}

// NewRunner constructs a Runner. If extractor is nil, a default
// extract.New() is used.
func NewRunner(workspaceRoot string, st store.MetadataStore, extractor *extract.Extractor) *Runner {
	if extractor == nil {
		extractor = extract.New()
	}
	return &Runner{WorkspaceRoot: workspaceRoot, Store: st, Extractor: extractor}
}

// FileOutcome reports what IndexFile actually did, for caller-level
// batch summaries (files indexed vs. skipped vs. errored).
type FileOutcome struct {
	Path        string
	Skipped     bool // content hash matched; fast path
	SymbolCount int
	Errors      []string
}

// IndexFile runs the hash/extract/commit sequence for a single
// discovered file: compute content_hash, skip on fast-path match,
// otherwise extract and atomically commit. relPath is workspace-relative
// with forward slashes (the stored form).
func (r *Runner) IndexFile(ctx context.Context, relPath, language string) (*FileOutcome, error) {
	absPath, err := pathutil.ResolveForRead(relPath, r.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", relPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", relPath, err)
	}

	contentHash := hashContent(data)

	existing, err := r.Store.GetFile(ctx, relPath)
	if err == nil && existing != nil && existing.ContentHash == contentHash {
		return &FileOutcome{Path: relPath, Skipped: true}, nil
	}

	result := r.Extractor.Extract(ctx, data, relPath, language)

	file := &store.File{
		Path:         relPath,
		Language:     language,
		ContentHash:  contentHash,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		// Content is retained so files_fts
		// has something to index; the structured store stays the single
		// source of truth the FTS tier is derived from.
		Content: string(data),
	}

	if err := r.Store.CommitFile(ctx, file, result.Symbols, result.Identifiers, result.Relationships); err != nil {
		return nil, fmt.Errorf("committing %s: %w", relPath, err)
	}

	errStrs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errStrs[i] = e.Error()
	}

	return &FileOutcome{
		Path:        relPath,
		SymbolCount: len(result.Symbols),
		Errors:      errStrs,
	}, nil
}

// RemoveFile implements the deletion half of orphan cleanup and
// of file-watch OpDelete handling: drop the File row and every
// row keyed by its path.
func (r *Runner) RemoveFile(ctx context.Context, relPath string) error {
	return r.Store.DeleteFile(ctx, relPath)
}

// hashContent derives the content_hash used for the fast-path skip and
// the atomic commit's change-detection, following the same sha256-hex
// idiom used for symbol/identifier/relationship IDs in internal/extract.
func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Close releases the Runner's extractor resources (pooled parsers).
func (r *Runner) Close() error {
	r.Extractor.Close()
	return nil
}
