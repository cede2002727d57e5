package store

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"
)

// boost factors for SearchContent's final ranking pass, applied
// multiplicatively to the negated bm25() score.
const (
	symbolDensityFactor = 0.05 // symbol_boost = 1 + 0.05 * symbol_count_in_file
	sourcePathBoost     = 3.0  // source/library directories
	testPathDamp        = 0.01 // test directories: 99% penalty
	vendorPathDamp      = 0.1  // vendor/generated directories
)

// SearchContent implements the content-search mode: FTS5 match against
// files_fts, negated bm25() as the raw score (FTS5's bm25() returns
// negative values — more negative is a better match, so negating it
// yields the usual "higher is better" convention), then a multiplicative
// boost pass for files containing a matching symbol name, and a damping
// pass for test/vendor paths.
func (s *SQLiteStore) SearchContent(ctx context.Context, query string, limit int) ([]*ContentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := FilterStopWords(TokenizeCode(query), s.stopWords)
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, bm25(files_fts) as score
		FROM files_fts
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, matchQuery, limit*4) // overfetch; boost pass may reorder
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var results []*ContentResult
	for rows.Next() {
		var path string
		var rawScore float64
		if err := rows.Scan(&path, &rawScore); err != nil {
			return nil, err
		}
		results = append(results, &ContentResult{
			FilePath: path,
			RawScore: -rawScore,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range results {
		r.FinalScore = r.RawScore * s.contentBoostFactor(ctx, r.FilePath)
	}

	sortResultsDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// contentBoostFactor computes the multiplicative boost applied on
// top of the negated bm25() score: a symbol-density boost proportional to
// how many symbols the file defines, a source-directory boost, and
// mutually-exclusive test/vendor damping (a path is either a test path,
// a vendor path, or neither; it is never both).
func (s *SQLiteStore) contentBoostFactor(ctx context.Context, path string) float64 {
	var symCount int
	_ = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM symbols WHERE file_path = ?`, path,
	).Scan(&symCount)
	factor := 1.0 + symbolDensityFactor*float64(symCount)

	lowerPath := strings.ToLower(filepath.ToSlash(path))
	switch {
	case isTestPath(lowerPath):
		factor *= testPathDamp
	case isVendorOrGeneratedPath(lowerPath):
		factor *= vendorPathDamp
	case isSourcePath(lowerPath):
		factor *= sourcePathBoost
	}

	return factor
}

func isTestPath(lowerPath string) bool {
	return strings.Contains(lowerPath, "/test/") || strings.Contains(lowerPath, "/tests/") ||
		strings.Contains(lowerPath, "_test.") || strings.Contains(lowerPath, ".test.") ||
		strings.Contains(lowerPath, "/spec/") || strings.Contains(lowerPath, "_spec.")
}

func isVendorOrGeneratedPath(lowerPath string) bool {
	return strings.Contains(lowerPath, "/vendor/") || strings.Contains(lowerPath, "/node_modules/") ||
		strings.Contains(lowerPath, "/generated/") || strings.Contains(lowerPath, ".gen.") ||
		strings.Contains(lowerPath, "/.git/")
}

func isSourcePath(lowerPath string) bool {
	return strings.Contains(lowerPath, "/src/") || strings.Contains(lowerPath, "/lib/") ||
		strings.HasPrefix(lowerPath, "src/") || strings.HasPrefix(lowerPath, "lib/")
}

// SearchDefinitions implements symbol-definition-mode search: FTS5 match
// against symbols_fts (name weighted above signature, above doc_comment),
// with exact-name matches promoted to the top regardless of bm25 rank.
func (s *SQLiteStore) SearchDefinitions(ctx context.Context, query string, limit int) ([]*DefinitionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := FilterStopWords(TokenizeCode(query), s.stopWords)
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol_id, bm25(symbols_fts, 10.0, 3.0, 1.0) as score
		FROM symbols_fts
		WHERE symbols_fts MATCH ?
		ORDER BY score
		LIMIT ?`, matchQuery, limit*2)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var results []*DefinitionResult
	for rows.Next() {
		var symbolID string
		var rawScore float64
		if err := rows.Scan(&symbolID, &rawScore); err != nil {
			return nil, err
		}
		sym, err := s.getSymbolLocked(ctx, symbolID)
		if err != nil || sym == nil {
			continue
		}
		exact := strings.EqualFold(sym.Name, query)
		score := -rawScore
		if exact {
			score += 1_000_000 // promote exact-name matches to the top
		}
		results = append(results, &DefinitionResult{Symbol: sym, ExactMatch: exact, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortDefinitionsDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// getSymbolLocked is GetSymbol's body without re-acquiring s.mu, for use
// from methods that already hold the read lock.
func (s *SQLiteStore) getSymbolLocked(ctx context.Context, id string) (*Symbol, error) {
	return s.scanSymbolRow(s.db.QueryRowContext(ctx, symbolSelectCols+` WHERE id = ?`, id))
}

func sortResultsDesc(results []*ContentResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].FinalScore > results[j-1].FinalScore; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func sortDefinitionsDesc(results []*DefinitionResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// encodeFloat32Blob/decodeFloat32Blob pack an embedding vector into a
// little-endian byte blob for the embedding_vectors table, avoiding a
// second copy of the HNSW graph's own persistence format.
func encodeFloat32Blob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32Blob(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
