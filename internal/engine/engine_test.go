package engine

import (
	"context"
	"testing"

	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements just enough of store.MetadataStore for engine
// tests; unused methods panic so accidental use is caught immediately,
// following the same pattern as internal/resolve's fakeStore.
type fakeStore struct {
	store.MetadataStore
	files            map[string]*store.File
	symbols          map[string]*store.Symbol
	symbolsByFile    map[string][]*store.Symbol
	definitionsHits  map[string][]*store.DefinitionResult
	contentHits      map[string][]*store.ContentResult
	identifiersByName map[string][]*store.Identifier
	relFrom          map[string][]*store.Relationship
	relTo            map[string][]*store.Relationship
	embeddings       []*store.EmbeddingVector
}

func (f *fakeStore) GetFile(ctx context.Context, path string) (*store.File, error) {
	return f.files[path], nil
}

func (f *fakeStore) GetSymbol(ctx context.Context, id string) (*store.Symbol, error) {
	s, ok := f.symbols[id]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (f *fakeStore) GetSymbolsByFile(ctx context.Context, filePath string) ([]*store.Symbol, error) {
	return f.symbolsByFile[filePath], nil
}

func (f *fakeStore) SearchSymbolsByName(ctx context.Context, names []string, limit int) ([]*store.Symbol, error) {
	var out []*store.Symbol
	for _, n := range names {
		for _, s := range f.symbols {
			if s.Name == n {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetIdentifiersByName(ctx context.Context, name string, kinds []store.IdentifierKind, limit int) ([]*store.Identifier, error) {
	return f.identifiersByName[name], nil
}

func (f *fakeStore) GetRelationshipsFrom(ctx context.Context, symbolID string, kinds []store.RelationshipKind) ([]*store.Relationship, error) {
	return f.relFrom[symbolID], nil
}

func (f *fakeStore) GetRelationshipsTo(ctx context.Context, symbolIDOrName string, kinds []store.RelationshipKind) ([]*store.Relationship, error) {
	return f.relTo[symbolIDOrName], nil
}

func (f *fakeStore) SearchContent(ctx context.Context, query string, limit int) ([]*store.ContentResult, error) {
	return f.contentHits[query], nil
}

func (f *fakeStore) SearchDefinitions(ctx context.Context, query string, limit int) ([]*store.DefinitionResult, error) {
	return f.definitionsHits[query], nil
}

func (f *fakeStore) GetAllEmbeddings(ctx context.Context) ([]*store.EmbeddingVector, error) {
	return f.embeddings, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:             map[string]*store.File{},
		symbols:           map[string]*store.Symbol{},
		symbolsByFile:     map[string][]*store.Symbol{},
		definitionsHits:   map[string][]*store.DefinitionResult{},
		contentHits:       map[string][]*store.ContentResult{},
		identifiersByName: map[string][]*store.Identifier{},
		relFrom:           map[string][]*store.Relationship{},
		relTo:             map[string][]*store.Relationship{},
	}
}

func TestSearch_DefaultModeIsDefinitions(t *testing.T) {
	fs := newFakeStore()
	sym := &store.Symbol{ID: "s1", Name: "calculateSum", Kind: store.SymbolFunction, FilePath: "src/main.go", StartLine: 1}
	fs.definitionsHits["calculateSum"] = []*store.DefinitionResult{{Symbol: sym, ExactMatch: true, Score: 5}}

	e := New("/ws", fs, nil, nil)
	resp, err := e.Search(context.Background(), "calculateSum", "", Filters{})
	require.NoError(t, err)
	assert.Equal(t, ModeDefinitions, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "src/main.go", resp.Results[0].FilePath)
	assert.True(t, resp.Results[0].ExactMatch)
}

func TestSearch_ContentModeAppliesStoreRanking(t *testing.T) {
	fs := newFakeStore()
	fs.contentHits["FuzzyReplaceTool"] = []*store.ContentResult{
		{FilePath: "src/fuzzy.go", FinalScore: 9.0},
		{FilePath: "tests/fuzzy_test.go", FinalScore: 0.1},
	}

	e := New("/ws", fs, nil, nil)
	resp, err := e.Search(context.Background(), "FuzzyReplaceTool", ModeContent, Filters{})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "src/fuzzy.go", resp.Results[0].FilePath, "higher-scored source file must rank first")
}

func TestSearch_SemanticUnavailableWhenTierNotReady(t *testing.T) {
	fs := newFakeStore()
	e := New("/ws", fs, nil, nil)
	resp, err := e.Search(context.Background(), "process payment", ModeSemantic, Filters{})
	require.NoError(t, err)
	assert.True(t, resp.SemanticUnavailable)
	assert.Empty(t, resp.Results)
}

func TestSearch_HybridFallsBackToDefinitionsWithoutSemanticTier(t *testing.T) {
	fs := newFakeStore()
	sym := &store.Symbol{ID: "s1", Name: "getUserData", Kind: store.SymbolFunction, FilePath: "svc.py", StartLine: 3}
	fs.definitionsHits["getUserData"] = []*store.DefinitionResult{{Symbol: sym, Score: 3}}

	e := New("/ws", fs, nil, nil)
	resp, err := e.Search(context.Background(), "getUserData", ModeHybrid, Filters{})
	require.NoError(t, err)
	assert.True(t, resp.SemanticUnavailable)
	require.Len(t, resp.Results, 1)
}

func TestGoToDefinition_PrefersContextFileMatch(t *testing.T) {
	fs := newFakeStore()
	here := &store.Symbol{ID: "s1", Name: "PrimaryUser", Kind: store.SymbolStruct, FilePath: "src/lib.go", StartLine: 5}
	elsewhere := &store.Symbol{ID: "s2", Name: "PrimaryUser", Kind: store.SymbolStruct, FilePath: "other/lib.go", StartLine: 9}
	fs.symbols["s1"] = here
	fs.symbols["s2"] = elsewhere

	e := New("/ws", fs, nil, nil)
	defs, err := e.GoToDefinition(context.Background(), "PrimaryUser", "src/lib.go")
	require.NoError(t, err)
	require.NotEmpty(t, defs)
	assert.Equal(t, "src/lib.go", defs[0].Symbol.FilePath)
}

func TestFindReferences_SortsByFileThenLine(t *testing.T) {
	fs := newFakeStore()
	fs.identifiersByName["PrimaryUser"] = []*store.Identifier{
		{Name: "PrimaryUser", FilePath: "b.go", Line: 2},
		{Name: "PrimaryUser", FilePath: "a.go", Line: 9},
		{Name: "PrimaryUser", FilePath: "a.go", Line: 1},
	}

	e := New("/ws", fs, nil, nil)
	refs, err := e.FindReferences(context.Background(), "PrimaryUser", nil)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "a.go", refs[0].FilePath)
	assert.Equal(t, 1, refs[0].Line)
	assert.Equal(t, "a.go", refs[1].FilePath)
	assert.Equal(t, 9, refs[1].Line)
	assert.Equal(t, "b.go", refs[2].FilePath)
}

func TestFindReferences_EmptyWhenNoOccurrences(t *testing.T) {
	fs := newFakeStore()
	e := New("/ws", fs, nil, nil)
	refs, err := e.FindReferences(context.Background(), "PrimaryUser", []store.IdentifierKind{store.IdentifierTypeUsage})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDeepInvestigate_ComposesCallersCalleesAndChildren(t *testing.T) {
	fs := newFakeStore()
	target := &store.Symbol{ID: "fn", Name: "process", Kind: store.SymbolFunction, FilePath: "svc.go", StartLine: 10}
	caller := &store.Symbol{ID: "caller", Name: "handler", Kind: store.SymbolFunction, FilePath: "svc.go"}
	callee := &store.Symbol{ID: "callee", Name: "validate", Kind: store.SymbolFunction, FilePath: "svc.go"}
	child := &store.Symbol{ID: "child", Name: "helper", Kind: store.SymbolFunction, FilePath: "svc.go", ParentSymbolID: "fn"}

	fs.symbols["fn"] = target
	fs.symbols["caller"] = caller
	fs.symbols["callee"] = callee
	fs.symbols["child"] = child
	fs.symbolsByFile["svc.go"] = []*store.Symbol{target, caller, callee, child}
	fs.relTo["fn"] = []*store.Relationship{{FromSymbolID: "caller", ToSymbolID: "fn", Kind: store.RelationshipCalls}}
	fs.relFrom["fn"] = []*store.Relationship{{FromSymbolID: "fn", ToSymbolID: "callee", Kind: store.RelationshipCalls}}

	e := New("/ws", fs, nil, nil)
	inv, err := e.DeepInvestigate(context.Background(), "process", DepthOverview)
	require.NoError(t, err)
	require.NotNil(t, inv)
	require.Len(t, inv.Callers, 1)
	assert.Equal(t, "handler", inv.Callers[0].Name)
	require.Len(t, inv.Callees, 1)
	assert.Equal(t, "validate", inv.Callees[0].Name)
	require.Len(t, inv.Children, 1)
	assert.Equal(t, "helper", inv.Children[0].Name)
}

func TestTraceCallPath_PrunesGenericNames(t *testing.T) {
	fs := newFakeStore()
	root := &store.Symbol{ID: "root", Name: "buildPipeline", Kind: store.SymbolFunction, FilePath: "p.go"}
	genericCallee := &store.Symbol{ID: "g1", Name: "new", Kind: store.SymbolFunction, FilePath: "p.go"}
	realCallee := &store.Symbol{ID: "r1", Name: "fetchStage", Kind: store.SymbolFunction, FilePath: "p.go"}

	fs.symbols["root"] = root
	fs.symbols["g1"] = genericCallee
	fs.symbols["r1"] = realCallee
	fs.relFrom["root"] = []*store.Relationship{
		{FromSymbolID: "root", ToSymbolID: "g1", Kind: store.RelationshipCalls},
		{FromSymbolID: "root", ToSymbolID: "r1", Kind: store.RelationshipCalls},
	}

	e := New("/ws", fs, nil, nil)
	nodes, err := e.TraceCallPath(context.Background(), "buildPipeline", DirectionDownstream, 2)
	require.NoError(t, err)
	require.Len(t, nodes, 1, "the generic 'new' callee must be pruned")
	assert.Equal(t, "fetchStage", nodes[0].Symbol.Name)
}

func TestAttachContext_IntelligentLineSelectionSkipsLoneBracket(t *testing.T) {
	fs := newFakeStore()
	fs.files["src/a.go"] = &store.File{
		Path: "src/a.go",
		Content: "func Foo() {\n" + // line 1
			"}\n" + // line 2: lone bracket, should be skipped as the reported match
			"\n" +
			"func Bar() {\n" + // line 4
			"\treturn barValue\n" +
			"}\n",
	}

	e := New("/ws", fs, nil, nil)
	r := &Result{FilePath: "src/a.go"}
	e.attachContext(context.Background(), r, "Foo", 2, Filters{})
	assert.NotEqual(t, 2, r.Line, "lone bracket line should not be reported as the match")
}

func TestAttachContext_ContextWindowFormatsGrepStyle(t *testing.T) {
	fs := newFakeStore()
	fs.files["src/a.go"] = &store.File{
		Path:    "src/a.go",
		Content: "line1\nline2\nline3\nline4\nline5\n",
	}

	e := New("/ws", fs, nil, nil)
	r := &Result{FilePath: "src/a.go"}
	e.attachContext(context.Background(), r, "line3", 3, Filters{ContextLines: 1})
	assert.Contains(t, r.ContextText, "3→line3")
	assert.Contains(t, r.ContextText, "2:line2")
	assert.Contains(t, r.ContextText, "4:line4")
}

func TestSearch_Semantic_BruteForceFallbackWhenGraphEmpty(t *testing.T) {
	// Embeddings exist in the store but the HNSW graph has not been
	// built yet (fresh process). The scan over stored vectors must
	// still surface the nearest symbol.
	fs := newFakeStore()
	embedder := embed.NewStaticEmbedder()

	sym := &store.Symbol{
		ID:       "sym-pay",
		Name:     "processPayment",
		Kind:     store.SymbolFunction,
		FilePath: "svc.ts",
		StartLine: 12,
	}
	fs.symbols[sym.ID] = sym

	vec, err := embedder.Embed(context.Background(), "process payment")
	require.NoError(t, err)
	fs.embeddings = []*store.EmbeddingVector{
		{SymbolID: sym.ID, Dim: len(vec), Vector: vec},
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	defer vectors.Close()

	e := New("/ws", fs, vectors, embedder)
	resp, err := e.Search(context.Background(), "process payment", ModeSemantic, Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results, "brute-force scan must serve results while the graph is empty")
	assert.Equal(t, "sym-pay", resp.Results[0].Symbol.ID)
	assert.True(t, resp.Results[0].Semantic)
}
