// Package store provides the structured store (SQLite, embedded relational
// database), the full-text search tier built on SQLite FTS5, and the HNSW
// vector index. It is the single source of truth for a workspace's indexed
// state; the FTS and HNSW tiers are derived from it and must be
// reconstructible from it alone.
package store

import (
	"context"
	"fmt"
	"time"
)

// SymbolKind enumerates the kinds of named definitions an extractor can
// emit. The set is intentionally broad enough to cover the union of
// constructs across ~26 languages.
type SymbolKind string

const (
	SymbolFunction     SymbolKind = "function"
	SymbolMethod       SymbolKind = "method"
	SymbolClass        SymbolKind = "class"
	SymbolStruct       SymbolKind = "struct"
	SymbolEnum         SymbolKind = "enum"
	SymbolEnumMember   SymbolKind = "enum-member"
	SymbolInterface    SymbolKind = "interface"
	SymbolTrait        SymbolKind = "trait"
	SymbolField        SymbolKind = "field"
	SymbolProperty     SymbolKind = "property"
	SymbolVariable     SymbolKind = "variable"
	SymbolConstant     SymbolKind = "constant"
	SymbolTypeAlias    SymbolKind = "type-alias"
	SymbolNamespace    SymbolKind = "namespace"
	SymbolImport       SymbolKind = "import"
	SymbolExport       SymbolKind = "export"
	SymbolParameter    SymbolKind = "parameter"
	SymbolMacro        SymbolKind = "macro"
)

// Visibility is the access level of a Symbol.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityCrate     Visibility = "crate"
	VisibilityInternal  Visibility = "internal"
	VisibilityUnknown   Visibility = "unknown"
)

// IdentifierKind is how a reference occurrence is used at its source
// position.
type IdentifierKind string

const (
	IdentifierCall         IdentifierKind = "call"
	IdentifierTypeUsage    IdentifierKind = "type_usage"
	IdentifierMemberAccess IdentifierKind = "member_access"
	IdentifierImportSite   IdentifierKind = "import-site"
	IdentifierOther        IdentifierKind = "other"
)

// RelationshipKind is the edge type between two symbols.
type RelationshipKind string

const (
	RelationshipCalls     RelationshipKind = "calls"
	RelationshipImplement RelationshipKind = "implements"
	RelationshipExtends   RelationshipKind = "extends"
	RelationshipUsesType  RelationshipKind = "uses-type"
	RelationshipImports   RelationshipKind = "imports"
	RelationshipRefers    RelationshipKind = "references"
)

// EmbeddingStatus tracks the progress of background embedding generation
// for a workspace.
type EmbeddingStatus string

const (
	EmbeddingNotStarted EmbeddingStatus = "not-started"
	EmbeddingGenerating EmbeddingStatus = "generating"
	EmbeddingReady      EmbeddingStatus = "ready"
)

// File is a tracked source file within a workspace.
type File struct {
	Path         string // workspace-relative, POSIX separators; primary key
	Language     string
	ContentHash  string
	Size         int64
	LastModified time.Time
	Content      string // optional: raw bytes, retained for files_fts
}

// Symbol is a named definition extracted from a File.
type Symbol struct {
	ID             string // stable, derived from (file_path, name, kind, start_byte)
	Name           string
	Kind           SymbolKind
	Language       string
	FilePath       string
	StartLine      int
	EndLine        int
	StartByte      int
	EndByte        int
	Signature      string
	DocComment     string
	Visibility     Visibility
	CodeContext    string
	ParentSymbolID string // nullable (empty string means none)
}

// Identifier is a reference occurrence of a name at a source position.
type Identifier struct {
	ID                  string
	Name                string // the textual identifier token
	Kind                IdentifierKind
	FilePath            string
	Line                int
	Column              int
	ByteOffset          int
	ContainingSymbolID  string // nullable
}

// Relationship is a structured edge between two symbols.
type Relationship struct {
	ID            string
	FromSymbolID  string           // always references a stored Symbol
	ToSymbolID    string           // may be name-only when unresolved
	ToSymbolName  string           // always populated; authoritative when ToSymbolID is empty
	Kind          RelationshipKind
	FilePath      string
	LineNumber    int
}

// EmbeddingVector is the one-to-one embedding payload for a Symbol.
type EmbeddingVector struct {
	SymbolID string
	Dim      int
	Vector   []float32
	ModelTag string
}

// WorkspaceEmbeddingState tracks the per-workspace embedding progress
// reconciled with count(EmbeddingVector) > 0 at startup.
type WorkspaceEmbeddingState struct {
	Status     EmbeddingStatus
	ModelTag   string
	Dimensions int
}

// CurrentSchemaVersion is the current structured-store schema version.
// Extractor/grammar version bumps that change symbol_id derivation must
// bump this value and trigger a full re-index.
const CurrentSchemaVersion = 1

// StaleCheck is the outcome of the three-step startup staleness decision.
type StaleCheck struct {
	Stale  bool
	Reason string
}

// MetadataStore persists the structured data model in an embedded
// relational database and hosts the FTS tier as derived virtual
// tables. Implementations must guarantee the atomic per-file commit
// contract: no reader ever observes a file as indexed but
// empty.
type MetadataStore interface {
	// CommitFile atomically replaces every row keyed by file.Path —
	// deleting stale Symbols/Identifiers/Relationships/EmbeddingVectors
	// for the path and inserting the fresh set — in a single transaction,
	// in one transaction. The File row's content_hash and last_modified are
	// updated as part of the same transaction.
	CommitFile(ctx context.Context, file *File, symbols []*Symbol, identifiers []*Identifier, relationships []*Relationship) error

	// DeleteFile removes a File and every row keyed by its path, per the
	// owning-deletion invariant. Used for orphan cleanup.
	DeleteFile(ctx context.Context, path string) error

	GetFile(ctx context.Context, path string) (*File, error)
	ListFilePaths(ctx context.Context) ([]string, error)
	CountFiles(ctx context.Context) (int, error)
	MaxLastModified(ctx context.Context) (time.Time, error)

	// Staleness decides whether the store needs reindexing, following the
	// three ordered checks. discoveredPaths is the full set of
	// currently-discovered files and newestOnDisk is the newest
	// last-modified time among them.
	Staleness(ctx context.Context, discoveredPaths []string, newestOnDisk time.Time) (StaleCheck, error)

	GetSymbol(ctx context.Context, id string) (*Symbol, error)
	GetSymbolsByFile(ctx context.Context, filePath string) ([]*Symbol, error)
	// SearchSymbolsByName returns every Symbol whose name exactly matches
	// any of names (used by naming-variant cross-language resolution,
	// resolution).
	SearchSymbolsByName(ctx context.Context, names []string, limit int) ([]*Symbol, error)

	// GetIdentifiersByName returns reference occurrences of name, used by
	// find-references. kinds narrows by IdentifierKind when
	// non-empty.
	GetIdentifiersByName(ctx context.Context, name string, kinds []IdentifierKind, limit int) ([]*Identifier, error)

	// GetRelationshipsFrom / GetRelationshipsTo traverse the call graph for
	// trace-call-path and deep-investigate. GetRelationshipsTo
	// relies on idx_rel_to to avoid O(n) scans.
	GetRelationshipsFrom(ctx context.Context, symbolID string, kinds []RelationshipKind) ([]*Relationship, error)
	GetRelationshipsTo(ctx context.Context, symbolIDOrName string, kinds []RelationshipKind) ([]*Relationship, error)

	// FTS tier.
	SearchContent(ctx context.Context, query string, limit int) ([]*ContentResult, error)
	SearchDefinitions(ctx context.Context, query string, limit int) ([]*DefinitionResult, error)

	// Embedding persistence.
	SaveEmbedding(ctx context.Context, e *EmbeddingVector) error
	GetEmbedding(ctx context.Context, symbolID string) (*EmbeddingVector, error)
	GetAllEmbeddings(ctx context.Context) ([]*EmbeddingVector, error)
	CountEmbeddings(ctx context.Context) (int, error)

	// State is a generic key-value store used for checkpoints and the
	// startup embedding-state reconciliation.
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// SchemaVersion reports the applied schema version.
	SchemaVersion(ctx context.Context) (int, error)

	Close() error
}

// ContentResult is one hit from SearchContent (content-mode ranking).
type ContentResult struct {
	FilePath    string
	RawScore    float64 // negated bm25(); higher = more relevant
	FinalScore  float64 // RawScore after symbol/path/test/vendor boosts
	Line        int
	CodeContext string
	ContextText string // 2N+1 lines when context_lines was requested
}

// DefinitionResult is one hit from SearchDefinitions
// (symbol-definition ranking).
type DefinitionResult struct {
	Symbol     *Symbol
	ExactMatch bool
	Score      float64
}

// ErrDimensionMismatch indicates vector dimension mismatch between the
// embedder currently configured and the one recorded for the workspace.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'julie index --force')", e.Expected, e.Got)
}

// Document and BM25Result/IndexStats/BM25Index/BM25Config remain for the
// alternate bleve-backed BM25 path used when
// SearchConfig.BM25Backend == "bleve"; native SQLite FTS5 is the default
// structured-store-integrated tier described above.
type Document struct {
	ID      string
	Content string
}

type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult, VectorStoreConfig, and VectorStore are the vector-tier
// contract; vector IDs are symbol IDs.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

type VectorStoreConfig struct {
	Dimensions     int
	Quantization   string
	Metric         string
	M              int
	EfConstruction int
	EfSearch       int
}

func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}
