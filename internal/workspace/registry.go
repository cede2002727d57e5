// Package workspace tracks the workspaces a `.julie/` tree knows about
// and enforces the one-writer-per-workspace rule at the process level.
//
// The registry is administrative metadata only: enumeration for status
// commands and the MCP list_workspaces tool. Nothing on the query path
// reads it — a store connection is already bound to exactly one
// workspace's files, so there is no registry lookup to get wrong.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/juliehq/julie/internal/store"
)

// RegistryFileName is the registry's file name under `.julie/`.
const RegistryFileName = "workspace_registry.json"

// Role distinguishes the workspace that owns the `.julie/` tree from
// reference workspaces indexed into it.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleReference Role = "reference"
)

// Entry is one registered workspace.
type Entry struct {
	ID           string                `json:"id"`
	OriginalPath string                `json:"original_path"`
	Role         Role                  `json:"role"`
	CreatedAt    time.Time             `json:"created_at"`
	LastAccessed time.Time             `json:"last_accessed"`
	SymbolCount  int                   `json:"symbol_count"`
	FileCount    int                   `json:"file_count"`
	Embedding    store.EmbeddingStatus `json:"embedding_status"`
}

// entryJSON carries the legacy "document_count" spelling alongside the
// current one so registries written by older releases still load.
type entryJSON struct {
	ID            string                `json:"id"`
	OriginalPath  string                `json:"original_path"`
	Role          Role                  `json:"role"`
	CreatedAt     time.Time             `json:"created_at"`
	LastAccessed  time.Time             `json:"last_accessed"`
	SymbolCount   *int                  `json:"symbol_count,omitempty"`
	DocumentCount *int                  `json:"document_count,omitempty"`
	FileCount     int                   `json:"file_count"`
	Embedding     store.EmbeddingStatus `json:"embedding_status"`
}

// UnmarshalJSON prefers symbol_count and falls back to the legacy
// document_count key.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.OriginalPath = raw.OriginalPath
	e.Role = raw.Role
	e.CreatedAt = raw.CreatedAt
	e.LastAccessed = raw.LastAccessed
	e.FileCount = raw.FileCount
	e.Embedding = raw.Embedding
	switch {
	case raw.SymbolCount != nil:
		e.SymbolCount = *raw.SymbolCount
	case raw.DocumentCount != nil:
		e.SymbolCount = *raw.DocumentCount
	}
	return nil
}

// Registry is the in-memory form of workspace_registry.json.
type Registry struct {
	path    string
	Entries []Entry `json:"workspaces"`
}

// Load reads the registry under dataDir, returning an empty registry
// when the file does not exist yet.
func Load(dataDir string) (*Registry, error) {
	r := &Registry{path: filepath.Join(dataDir, RegistryFileName)}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read workspace registry: %w", err)
	}

	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse workspace registry: %w", err)
	}
	return r, nil
}

// Save writes the registry via temp-file + rename.
func (r *Registry) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace registry: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write workspace registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace workspace registry: %w", err)
	}
	return nil
}

// Get returns the entry with the given id, or nil.
func (r *Registry) Get(id string) *Entry {
	for i := range r.Entries {
		if r.Entries[i].ID == id {
			return &r.Entries[i]
		}
	}
	return nil
}

// Upsert records a workspace, creating or updating its entry, and
// stamps LastAccessed.
func (r *Registry) Upsert(e Entry) {
	now := time.Now().UTC()
	if existing := r.Get(e.ID); existing != nil {
		e.CreatedAt = existing.CreatedAt
		e.LastAccessed = now
		*existing = e
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastAccessed = now
	r.Entries = append(r.Entries, e)
}

// Touch updates LastAccessed on an existing entry; unknown ids are
// ignored.
func (r *Registry) Touch(id string) {
	if e := r.Get(id); e != nil {
		e.LastAccessed = time.Now().UTC()
	}
}

// List returns the entries sorted primary-first, then by id, so
// enumeration output is stable.
func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.Entries))
	copy(out, r.Entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role == RolePrimary
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReconcileEmbedding aligns an entry's recorded embedding status with
// what the store actually holds: a status of "generating" or "ready"
// with zero stored vectors resets to not-started, and stored vectors
// with a "not-started" status promote to ready. Run at startup, before
// the status is trusted.
func (r *Registry) ReconcileEmbedding(id string, storedVectors int) {
	e := r.Get(id)
	if e == nil {
		return
	}
	switch {
	case storedVectors == 0 && e.Embedding != store.EmbeddingNotStarted:
		e.Embedding = store.EmbeddingNotStarted
	case storedVectors > 0 && e.Embedding == store.EmbeddingNotStarted:
		e.Embedding = store.EmbeddingReady
	}
}
