// Package engine implements the Query Engine: the top-level
// operations — search, go-to-definition, find-references, deep-investigate,
// trace-call-path — that compose the FTS tier (internal/store), the HNSW
// tier (internal/store, via coder/hnsw), and cross-language resolution
// (internal/resolve) into the answers an agent actually asks for.
//
// An Engine holds a MetadataStore + VectorStore + Embedder, with a
// Search entry point dispatching on mode. deep-investigate and
// trace-call-path build on the relationship table the same way Search
// composes BM25 + HNSW.
package engine

import (
	"context"

	"github.com/juliehq/julie/internal/embed"
	julieerrors "github.com/juliehq/julie/internal/errors"
	"github.com/juliehq/julie/internal/resolve"
	"github.com/juliehq/julie/internal/store"
)

// Mode selects which tier(s) a Search call consults.
type Mode string

const (
	ModeContent     Mode = "content"
	ModeDefinitions Mode = "definitions"
	ModeSemantic    Mode = "semantic"
	ModeHybrid      Mode = "hybrid"
)

// DefaultMode is definition search — the default for agent-facing
// queries; content search is opt-in.
const DefaultMode = ModeDefinitions

// DefaultLimit is the default result limit.
const DefaultLimit = 10

// Filters narrows a Search call.
type Filters struct {
	Language string // restrict to this extractor language tag; "" = no filter
	Limit    int    // 0 uses DefaultLimit
	// ContextLines, when > 0, requests a 2N+1 line window around the
	// match instead of just the single matched/selected line.
	ContextLines int
}

func (f Filters) limit() int {
	if f.Limit > 0 {
		return f.Limit
	}
	return DefaultLimit
}

// Result is one unified search hit, whatever mode produced it.
type Result struct {
	FilePath    string
	Line        int
	Symbol      *store.Symbol // non-nil for definitions/semantic/hybrid hits
	Score       float64
	CodeContext string
	ContextText string // populated when Filters.ContextLines > 0
	Semantic    bool   // true if this hit came from the vector tier
	ExactMatch  bool
}

// SearchResponse is the outcome of Search. SemanticUnavailable is a
// status flag, not an error: FTS results are still returned.
type SearchResponse struct {
	Mode                Mode
	Results             []*Result
	SemanticUnavailable bool
}

// Engine composes the FTS tier, the HNSW tier, and cross-language
// resolution for exactly one workspace's storage; queries never span
// workspaces. Vectors/Embedder may be nil when the semantic tier is not
// yet built; Engine then degrades gracefully to FTS only. An
// unavailable tier is a fallback, never a crash.
type Engine struct {
	WorkspaceRoot string
	Store         store.MetadataStore
	Vectors       store.VectorStore
	Embedder      embed.Embedder
	Resolver      *resolve.Resolver
}

// New constructs an Engine scoped to workspaceRoot. vectors/embedder may
// be nil (semantic tier not ready); Resolver is built from the same pair
// so naming-variant lookup and semantic fallback always share one
// workspace scope.
func New(workspaceRoot string, st store.MetadataStore, vectors store.VectorStore, embedder embed.Embedder) *Engine {
	return &Engine{
		WorkspaceRoot: workspaceRoot,
		Store:         st,
		Vectors:       vectors,
		Embedder:      embedder,
		Resolver:      resolve.New(st, vectors, embedder),
	}
}

// semanticReady reports whether the vector tier can actually be queried
// right now: the not-started/generating/ready progress states
// collapsed to a single boolean the query path can act on.
func (e *Engine) semanticReady(ctx context.Context) bool {
	return e.Vectors != nil && e.Embedder != nil && e.Embedder.Available(ctx)
}

// Search runs one query against the selected tier(s), dispatching on mode.
func (e *Engine) Search(ctx context.Context, query string, mode Mode, filters Filters) (*SearchResponse, error) {
	if mode == "" {
		mode = DefaultMode
	}
	limit := filters.limit()

	switch mode {
	case ModeContent:
		results, err := e.searchContent(ctx, query, filters, limit)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{Mode: mode, Results: results}, nil

	case ModeDefinitions:
		results, err := e.searchDefinitions(ctx, query, filters, limit)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{Mode: mode, Results: results}, nil

	case ModeSemantic:
		if !e.semanticReady(ctx) {
			return &SearchResponse{Mode: mode, SemanticUnavailable: true}, nil
		}
		results, err := e.searchSemantic(ctx, query, filters, limit)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{Mode: mode, Results: results}, nil

	case ModeHybrid:
		return e.searchHybrid(ctx, query, filters, limit)

	default:
		return nil, julieerrors.New(julieerrors.ErrCodeInvalidQuery,
			"unknown search mode: "+string(mode), nil)
	}
}
