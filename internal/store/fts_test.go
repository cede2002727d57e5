package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCommitFileWithContent(t *testing.T, s *SQLiteStore, path, content string, symbols []*Symbol) {
	t.Helper()
	f := &File{
		Path:         path,
		Language:     "go",
		ContentHash:  "h-" + path,
		Size:         int64(len(content)),
		LastModified: time.Now(),
		Content:      content,
	}
	require.NoError(t, s.CommitFile(context.Background(), f, symbols, nil, nil))
}

// A source file mentioning a symbol once must outrank a
// test file mentioning it many times, because the test-path damping
// (×0.01) dwarfs any raw-bm25 advantage repetition buys the test file.
func TestSearchContent_SourceFileOutranksTestFile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	mustCommitFileWithContent(t, s, "src/fuzzy.go",
		"type FuzzyReplaceTool struct{}\nfunc (f *FuzzyReplaceTool) Run() {}",
		[]*Symbol{{ID: "s1", Name: "FuzzyReplaceTool", Kind: SymbolStruct, Language: "go", FilePath: "src/fuzzy.go", StartLine: 1, EndLine: 1}})

	mentions := strings.Repeat("// FuzzyReplaceTool FuzzyReplaceTool FuzzyReplaceTool\n", 15)
	mustCommitFileWithContent(t, s, "tests/fuzzy_test.go", mentions, nil)

	results, err := s.SearchContent(ctx, "FuzzyReplaceTool", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "src/fuzzy.go", results[0].FilePath,
		"source file must rank first despite fewer raw mentions")
}

// Negated-bm25 monotonicity: with identical boosts, the result
// with the lower raw bm25() (more negative) must have sorted ahead of
// the one with the higher raw bm25() once negated, since FTS5's bm25()
// is a negative log-probability where more negative means more relevant.
func TestSearchContent_NegatedBM25Monotonic(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Both files live at the same directory depth (no path boost
	// difference); "widget" appears densely in one, sparsely in the other.
	mustCommitFileWithContent(t, s, "app/dense.go", strings.Repeat("widget ", 50), nil)
	mustCommitFileWithContent(t, s, "app/sparse.go", "widget", nil)

	results, err := s.SearchContent(ctx, "widget", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Greater(t, r.RawScore, -1e9, "RawScore must be the negated (positive-leaning) bm25, not raw FTS5 bm25")
	}
	// Higher-order term frequency should score at least as well after negation.
	var dense, sparse *ContentResult
	for _, r := range results {
		switch r.FilePath {
		case "app/dense.go":
			dense = r
		case "app/sparse.go":
			sparse = r
		}
	}
	require.NotNil(t, dense)
	require.NotNil(t, sparse)
	assert.GreaterOrEqual(t, dense.RawScore, sparse.RawScore)
}

func TestSearchDefinitions_ExactNamePromoted(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	mustCommitFileWithContent(t, s, "a.go", "func getUser() {}",
		[]*Symbol{{ID: "a1", Name: "getUser", Kind: SymbolFunction, Language: "go", FilePath: "a.go", StartLine: 1, EndLine: 1, Signature: "func getUser()"}})
	mustCommitFileWithContent(t, s, "b.go", "func getUserData() {}",
		[]*Symbol{{ID: "b1", Name: "getUserData", Kind: SymbolFunction, Language: "go", FilePath: "b.go", StartLine: 1, EndLine: 1, Signature: "func getUserData()"}})

	results, err := s.SearchDefinitions(ctx, "getUser", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "getUser", results[0].Symbol.Name)
	assert.True(t, results[0].ExactMatch)
}

func TestContentBoostFactor_TestAndVendorDamped(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	srcFactor := s.contentBoostFactor(ctx, "src/foo.go")
	testFactor := s.contentBoostFactor(ctx, "tests/foo_test.go")
	vendorFactor := s.contentBoostFactor(ctx, "vendor/bar/baz.go")

	assert.Greater(t, srcFactor, testFactor)
	assert.Greater(t, vendorFactor, testFactor)
	assert.Greater(t, srcFactor, vendorFactor)
}
