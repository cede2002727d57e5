package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliehq/julie/internal/store"
)

// seedSearchIndex commits a single file (with a matching symbol) into a
// fresh metadata store so content/definition search has something to find.
func seedSearchIndex(t *testing.T, dataDir, path, content, symbolName string) {
	t.Helper()

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadataStore, err := store.NewSQLiteStore(metadataPath)
	require.NoError(t, err)

	ctx := context.Background()
	file := &store.File{
		Path:        path,
		Language:    "go",
		ContentHash: "hash1",
		Content:     content,
	}
	symbols := []*store.Symbol{{
		ID:        path + "#" + symbolName,
		Name:      symbolName,
		Kind:      store.SymbolFunction,
		Language:  "go",
		FilePath:  path,
		StartLine: 1,
		EndLine:   1,
	}}
	require.NoError(t, metadataStore.CommitFile(ctx, file, symbols, nil, nil))
	require.NoError(t, metadataStore.Close())
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	// Given: a directory without an index
	tmpDir := t.TempDir()

	// When: running search command
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search", "test query"})

	// Change to temp dir
	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	err := rootCmd.Execute()

	// Then: error about missing index
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// Given: search command without query
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search"})

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	err := rootCmd.Execute()

	// Then: error about missing query
	require.Error(t, err)
}

func TestSearchCmd_WithIndex_ReturnsResults(t *testing.T) {
	// Given: a directory with a valid index
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".julie")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	seedSearchIndex(t, dataDir, "test.go", "func TestFunction() { return }", "TestFunction")

	// Change to temp dir
	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	// When: running search command with --local to bypass daemon
	// Use --bm25-only since we don't have vector store in test
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "TestFunction", "--local", "--bm25-only"})

	err := rootCmd.Execute()

	// Then: no error and output contains result
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "test.go")
}

func TestSearchCmd_FormatText_ShowsScore(t *testing.T) {
	// Given: a directory with a valid index
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".julie")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	seedSearchIndex(t, dataDir, "main.go", "func main() { fmt.Println(\"hello\") }", "main")

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	// When: running search with text format
	// Use --bm25-only since we don't have vector store in test
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "main", "--format", "text", "--local", "--bm25-only"})

	err := rootCmd.Execute()

	// Then: output contains score
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "main.go")
	// Score should be present in some form
	assert.Regexp(t, `\d+`, output) // Should contain numbers (line numbers or scores)
}

func TestSearchCmd_FormatJSON_ValidJSON(t *testing.T) {
	// Given: a directory with a valid index
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".julie")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	seedSearchIndex(t, dataDir, "test.go", "func Test() {}", "Test")

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	// When: running search with JSON format
	// Use --bm25-only since we don't have vector store in test
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "Test", "--format", "json", "--local", "--bm25-only"})

	err := rootCmd.Execute()

	// Then: output is valid JSON
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "{") // Should contain JSON structure
	assert.Contains(t, output, "test.go")
}

func TestSearchCmd_LimitFlag(t *testing.T) {
	// Given: search command with limit flag
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	// Then: limit flag exists
	limitFlag := searchCmd.Flags().Lookup("limit")
	assert.NotNil(t, limitFlag)
	assert.Equal(t, "10", limitFlag.DefValue)
}

func TestSearchCmd_TypeFlag(t *testing.T) {
	// Given: search command with type flag
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	// Then: type flag exists
	typeFlag := searchCmd.Flags().Lookup("type")
	assert.NotNil(t, typeFlag)
	assert.Equal(t, "all", typeFlag.DefValue)
}

func TestSearchCmd_FormatFlag(t *testing.T) {
	// Given: search command with format flag
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	// Then: format flag exists
	formatFlag := searchCmd.Flags().Lookup("format")
	assert.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

// BM25Only flag test
func TestSearchCmd_BM25OnlyFlag(t *testing.T) {
	// Given: search command with bm25-only flag
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	// Then: bm25-only flag exists with correct default
	bm25OnlyFlag := searchCmd.Flags().Lookup("bm25-only")
	assert.NotNil(t, bm25OnlyFlag, "should have --bm25-only flag")
	assert.Equal(t, "false", bm25OnlyFlag.DefValue, "default should be false")
}

func TestSearchCmd_NoResults_ShowsMessage(t *testing.T) {
	// Given: a directory with an empty index
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, ".julie")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadataStore, err := store.NewSQLiteStore(metadataPath)
	require.NoError(t, err)
	require.NoError(t, metadataStore.Close())

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	// When: searching for something not in index
	// Use --bm25-only since we don't have vector store in test
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "nonexistent_xyz_123", "--local", "--bm25-only"})

	err = rootCmd.Execute()

	// Then: shows "no results" message
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "No results")
}
