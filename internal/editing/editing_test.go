package editing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/juliehq/julie/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func TestEditLines_ReplaceDryRunDoesNotWrite(t *testing.T) {
	root := t.TempDir()
	abs := writeFixture(t, root, "main.go", "line1\nline2\nline3\n")

	e := New(root, nil)
	res, err := e.EditLines(context.Background(), EditLinesRequest{
		FilePath: "main.go",
		Op:       LineOpReplace,
		Start:    2,
		End:      2,
		Content:  "replaced",
		DryRun:   true,
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Contains(t, res.Preview, "replaced")

	onDisk, _ := os.ReadFile(abs)
	assert.Equal(t, "line1\nline2\nline3\n", string(onDisk), "dry run must not touch the file")
}

func TestEditLines_ReplaceApplies(t *testing.T) {
	root := t.TempDir()
	abs := writeFixture(t, root, "main.go", "line1\nline2\nline3\n")

	e := New(root, nil)
	res, err := e.EditLines(context.Background(), EditLinesRequest{
		FilePath: "main.go",
		Op:       LineOpReplace,
		Start:    2,
		End:      2,
		Content:  "replaced",
		DryRun:   false,
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	onDisk, _ := os.ReadFile(abs)
	assert.Equal(t, "line1\nreplaced\nline3\n", string(onDisk))
}

func TestEditLines_Insert(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "main.go", "a\nb\n")

	e := New(root, nil)
	res, err := e.EditLines(context.Background(), EditLinesRequest{
		FilePath: "main.go",
		Op:       LineOpInsert,
		Start:    2,
		Content:  "inserted",
		DryRun:   false,
	})
	require.NoError(t, err)
	assert.Equal(t, "a\ninserted\nb\n", res.Preview)
}

func TestEditLines_Delete(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "main.go", "a\nb\nc\n")

	e := New(root, nil)
	res, err := e.EditLines(context.Background(), EditLinesRequest{
		FilePath: "main.go",
		Op:       LineOpDelete,
		Start:    2,
		End:      2,
		DryRun:   false,
	})
	require.NoError(t, err)
	assert.Equal(t, "a\nc\n", res.Preview)
}

func TestEditLines_RejectsPathEscapingWorkspace(t *testing.T) {
	root := t.TempDir()
	e := New(root, nil)
	_, err := e.EditLines(context.Background(), EditLinesRequest{
		FilePath: "../../etc/passwd",
		Op:       LineOpReplace,
		Start:    1,
		End:      1,
		Content:  "x",
	})
	require.Error(t, err)
}

func TestFuzzyReplace_MatchesAndValidatesBrackets(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "calc.go", "func calculate_sum(a int, b int) int {\n\treturn a + b\n}\n")

	e := New(root, nil)
	res, err := e.FuzzyReplace(context.Background(), FuzzyReplaceRequest{
		FileOrGlob:  "calc.go",
		Pattern:     "func calculate_sum(a int, b int) int {",
		Replacement: "func calculateSum(a int, b int) int {",
		Threshold:   0.6,
		DryRun:      true,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].Applied)
	require.Len(t, res.Matches, 1)
	assert.GreaterOrEqual(t, res.Matches[0].Similarity, 0.6)
}

func TestFuzzyReplace_RejectsUnbalancedResult(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "calc.go", "func f() { return 1 }\n")

	e := New(root, nil)
	_, err := e.FuzzyReplace(context.Background(), FuzzyReplaceRequest{
		FileOrGlob:  "calc.go",
		Pattern:     "func f() { return 1 }",
		Replacement: "func f() { return 1",
		Threshold:   0.5,
		DryRun:      true,
	})
	require.Error(t, err)
}

func TestRenameSymbol_ReplacesWordBoundaryOccurrencesOnly(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "func helper() int { return 1 }\nfunc caller() int { return helper() + helperTwo() }\n")

	st := &fakeEditStore{
		identifiersByName: map[string][]*store.Identifier{
			"helper": {{Name: "helper", FilePath: "a.go"}},
		},
		symbolsByName: map[string][]*store.Symbol{
			"helper": {{ID: "sym1", Name: "helper", FilePath: "a.go", Kind: store.SymbolFunction}},
		},
		filesByPath: map[string]*store.File{},
	}

	e := New(root, st)
	res, err := e.RenameSymbol(context.Background(), RenameSymbolRequest{
		Old:    "helper",
		New:    "helperRenamed",
		Scope:  RenameScope{Workspace: true},
		DryRun: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Contains(t, res.Results[0].Preview, "func helperRenamed() int")
	assert.Contains(t, res.Results[0].Preview, "caller()")
	assert.Contains(t, res.Results[0].Preview, "helperRenamed() + helperTwo()",
		"word-boundary replacement must not touch helperTwo")
}


func TestRenameSymbol_PreservesImportLinesWithoutUpdateImports(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "svc.py",
		"from users import get_user_data\n\ndef handler():\n    return get_user_data()\n")
	writeFixture(t, root, "reexport.py", "from users import get_user_data\n")

	st := &fakeEditStore{
		identifiersByName: map[string][]*store.Identifier{
			"get_user_data": {
				{Name: "get_user_data", FilePath: "svc.py", Kind: store.IdentifierImportSite, Line: 1},
				{Name: "get_user_data", FilePath: "svc.py", Kind: store.IdentifierCall, Line: 4},
				{Name: "get_user_data", FilePath: "reexport.py", Kind: store.IdentifierImportSite, Line: 1},
			},
		},
		symbolsByName: map[string][]*store.Symbol{},
		filesByPath:   map[string]*store.File{},
	}

	e := New(root, st)
	res, err := e.RenameSymbol(context.Background(), RenameSymbolRequest{
		Old:    "get_user_data",
		New:    "fetch_user_data",
		Scope:  RenameScope{Workspace: true},
		DryRun: true,
	})
	require.NoError(t, err)

	// The import-only file must not be touched at all.
	require.Len(t, res.Results, 1)
	assert.Equal(t, "svc.py", res.Results[0].FilePath)

	// In the mixed file the call site is renamed and the import line is
	// left exactly as written.
	assert.Contains(t, res.Results[0].Preview, "from users import get_user_data")
	assert.Contains(t, res.Results[0].Preview, "return fetch_user_data()")
	assert.Equal(t, 1, res.OccurrencesByFile["svc.py"])
}

func TestRenameSymbol_UpdateImportsRenamesImportLines(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "svc.py",
		"from users import get_user_data\n\ndef handler():\n    return get_user_data()\n")

	st := &fakeEditStore{
		identifiersByName: map[string][]*store.Identifier{
			"get_user_data": {
				{Name: "get_user_data", FilePath: "svc.py", Kind: store.IdentifierImportSite, Line: 1},
				{Name: "get_user_data", FilePath: "svc.py", Kind: store.IdentifierCall, Line: 4},
			},
		},
		symbolsByName: map[string][]*store.Symbol{},
		filesByPath:   map[string]*store.File{},
	}

	e := New(root, st)
	res, err := e.RenameSymbol(context.Background(), RenameSymbolRequest{
		Old:           "get_user_data",
		New:           "fetch_user_data",
		Scope:         RenameScope{Workspace: true},
		UpdateImports: true,
		DryRun:        true,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Contains(t, res.Results[0].Preview, "from users import fetch_user_data")
	assert.Contains(t, res.Results[0].Preview, "return fetch_user_data()")
	assert.Equal(t, 2, res.OccurrencesByFile["svc.py"])
}

func TestBracketsBalanced_IgnoresStringsAndComments(t *testing.T) {
	assert.True(t, bracketsBalanced(`s := "not ) a real paren"`))
	assert.True(t, bracketsBalanced("// a stray ( in a comment\nfunc f() {}"))
	assert.False(t, bracketsBalanced("func f() {"))
}

// fakeEditStore implements just enough of store.MetadataStore to exercise
// RenameSymbol; embedding the nil interface means any unimplemented method
// panics loudly if this test ever starts relying on it.
type fakeEditStore struct {
	store.MetadataStore
	identifiersByName map[string][]*store.Identifier
	symbolsByName     map[string][]*store.Symbol
	filesByPath       map[string]*store.File
}

func (f *fakeEditStore) GetIdentifiersByName(ctx context.Context, name string, kinds []store.IdentifierKind, limit int) ([]*store.Identifier, error) {
	return f.identifiersByName[name], nil
}

func (f *fakeEditStore) SearchSymbolsByName(ctx context.Context, names []string, limit int) ([]*store.Symbol, error) {
	var out []*store.Symbol
	for _, n := range names {
		out = append(out, f.symbolsByName[n]...)
	}
	return out, nil
}

func (f *fakeEditStore) GetFile(ctx context.Context, path string) (*store.File, error) {
	return f.filesByPath[path], nil
}

func (f *fakeEditStore) GetSymbolsByFile(ctx context.Context, filePath string) ([]*store.Symbol, error) {
	return nil, nil
}

func (f *fakeEditStore) CommitFile(ctx context.Context, file *store.File, symbols []*store.Symbol, identifiers []*store.Identifier, relationships []*store.Relationship) error {
	return nil
}

func TestAtomicWrite_NeverLeavesTempFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "out.txt")
	require.NoError(t, atomicWrite(target, []byte("hello")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "out.txt", entries[0].Name())

	data, _ := os.ReadFile(target)
	assert.Equal(t, "hello", string(data))
}
