package mcp

import (
	"context"
	"time"

	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/store"
)

// fakeMetadataStore implements store.MetadataStore with just enough
// behavior for exercising the MCP Server/Query Engine wiring: callers
// preload Files/Symbols/ContentResults/DefinitionResults and the fake
// serves them back; everything else is a harmless zero value.
type fakeMetadataStore struct {
	Files             []*store.File
	Symbols           []*store.Symbol
	ContentResults    []*store.ContentResult
	DefinitionResults []*store.DefinitionResult
	SearchErr         error
	State             map[string]string
	EmbeddingCount    int
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{State: map[string]string{}}
}

func (f *fakeMetadataStore) CommitFile(ctx context.Context, file *store.File, symbols []*store.Symbol, identifiers []*store.Identifier, relationships []*store.Relationship) error {
	f.Files = append(f.Files, file)
	f.Symbols = append(f.Symbols, symbols...)
	return nil
}

func (f *fakeMetadataStore) DeleteFile(ctx context.Context, path string) error { return nil }

func (f *fakeMetadataStore) GetFile(ctx context.Context, path string) (*store.File, error) {
	for _, file := range f.Files {
		if file.Path == path {
			return file, nil
		}
	}
	return nil, nil
}

func (f *fakeMetadataStore) ListFilePaths(ctx context.Context) ([]string, error) {
	paths := make([]string, 0, len(f.Files))
	for _, file := range f.Files {
		paths = append(paths, file.Path)
	}
	return paths, nil
}

func (f *fakeMetadataStore) CountFiles(ctx context.Context) (int, error) {
	return len(f.Files), nil
}

func (f *fakeMetadataStore) MaxLastModified(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeMetadataStore) Staleness(ctx context.Context, discoveredPaths []string, newestOnDisk time.Time) (store.StaleCheck, error) {
	return store.StaleCheck{}, nil
}

func (f *fakeMetadataStore) GetSymbol(ctx context.Context, id string) (*store.Symbol, error) {
	for _, sym := range f.Symbols {
		if sym.ID == id {
			return sym, nil
		}
	}
	return nil, nil
}

func (f *fakeMetadataStore) GetSymbolsByFile(ctx context.Context, filePath string) ([]*store.Symbol, error) {
	var out []*store.Symbol
	for _, sym := range f.Symbols {
		if sym.FilePath == filePath {
			out = append(out, sym)
		}
	}
	return out, nil
}

func (f *fakeMetadataStore) SearchSymbolsByName(ctx context.Context, names []string, limit int) ([]*store.Symbol, error) {
	var out []*store.Symbol
	for _, sym := range f.Symbols {
		for _, n := range names {
			if sym.Name == n {
				out = append(out, sym)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMetadataStore) GetIdentifiersByName(ctx context.Context, name string, kinds []store.IdentifierKind, limit int) ([]*store.Identifier, error) {
	return nil, nil
}

func (f *fakeMetadataStore) GetRelationshipsFrom(ctx context.Context, symbolID string, kinds []store.RelationshipKind) ([]*store.Relationship, error) {
	return nil, nil
}

func (f *fakeMetadataStore) GetRelationshipsTo(ctx context.Context, symbolIDOrName string, kinds []store.RelationshipKind) ([]*store.Relationship, error) {
	return nil, nil
}

func (f *fakeMetadataStore) SearchContent(ctx context.Context, query string, limit int) ([]*store.ContentResult, error) {
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if limit > 0 && limit < len(f.ContentResults) {
		return f.ContentResults[:limit], nil
	}
	return f.ContentResults, nil
}

func (f *fakeMetadataStore) SearchDefinitions(ctx context.Context, query string, limit int) ([]*store.DefinitionResult, error) {
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if limit > 0 && limit < len(f.DefinitionResults) {
		return f.DefinitionResults[:limit], nil
	}
	return f.DefinitionResults, nil
}

func (f *fakeMetadataStore) SaveEmbedding(ctx context.Context, e *store.EmbeddingVector) error {
	return nil
}

func (f *fakeMetadataStore) GetEmbedding(ctx context.Context, symbolID string) (*store.EmbeddingVector, error) {
	return nil, nil
}

func (f *fakeMetadataStore) GetAllEmbeddings(ctx context.Context) ([]*store.EmbeddingVector, error) {
	return nil, nil
}

func (f *fakeMetadataStore) CountEmbeddings(ctx context.Context) (int, error) {
	return f.EmbeddingCount, nil
}

func (f *fakeMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	return f.State[key], nil
}

func (f *fakeMetadataStore) SetState(ctx context.Context, key, value string) error {
	f.State[key] = value
	return nil
}

func (f *fakeMetadataStore) SchemaVersion(ctx context.Context) (int, error) {
	return 1, nil
}

func (f *fakeMetadataStore) Close() error { return nil }

var _ store.MetadataStore = (*fakeMetadataStore)(nil)

// fakeEmbedder implements embed.Embedder with configurable knobs for
// capability-signaling tests (index_status reports these verbatim).
type fakeEmbedder struct {
	dims        int
	model       string
	availableFn func(ctx context.Context) bool
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dims: embed.DefaultDimensions, model: "embeddinggemma-300m"}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.Dimensions()), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.Dimensions())
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) ModelName() string {
	return f.model
}
func (f *fakeEmbedder) Available(ctx context.Context) bool {
	if f.availableFn != nil {
		return f.availableFn(ctx)
	}
	return true
}
func (f *fakeEmbedder) Close() error         { return nil }
func (f *fakeEmbedder) SetBatchIndex(_ int)  {}
func (f *fakeEmbedder) SetFinalBatch(_ bool) {}

var _ embed.Embedder = (*fakeEmbedder)(nil)
