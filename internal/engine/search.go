package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/juliehq/julie/internal/store"
)

// searchContent runs content-search mode: the store already applies
// negated-bm25 plus symbol-density/test/vendor boosts
// (store.SearchContent); this layer adds query expansion and the
// intelligent-line-selection context.
func (e *Engine) searchContent(ctx context.Context, query string, filters Filters, limit int) ([]*Result, error) {
	hits, err := e.Store.SearchContent(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		if expanded, ok := orExpand(query); ok {
			hits, err = e.unionContentSearch(ctx, expanded, limit)
			if err != nil {
				return nil, err
			}
		}
	} else if len(strings.Fields(query)) == 1 {
		hits, err = e.augmentSingleWordContent(ctx, query, hits, limit)
		if err != nil {
			return nil, err
		}
	}

	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		r := &Result{FilePath: h.FilePath, Score: h.FinalScore}
		e.attachContext(ctx, r, query, 0, filters)
		results = append(results, r)
	}
	sortResultsDesc(results)
	return truncate(results, limit), nil
}

// searchDefinitions runs symbol-definition mode, the default for
// agent-facing search.
func (e *Engine) searchDefinitions(ctx context.Context, query string, filters Filters, limit int) ([]*Result, error) {
	hits, err := e.Store.SearchDefinitions(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		if expanded, ok := orExpand(query); ok {
			hits, err = e.unionDefinitionSearch(ctx, expanded, limit)
			if err != nil {
				return nil, err
			}
		}
	} else if len(strings.Fields(query)) == 1 {
		hits, err = e.augmentSingleWordDefinitions(ctx, query, hits, limit)
		if err != nil {
			return nil, err
		}
	}

	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		if filters.Language != "" && !strings.EqualFold(h.Symbol.Language, filters.Language) {
			continue
		}
		r := &Result{
			FilePath:    h.Symbol.FilePath,
			Line:        h.Symbol.StartLine,
			Symbol:      h.Symbol,
			Score:       h.Score,
			CodeContext: h.Symbol.CodeContext,
			ExactMatch:  h.ExactMatch,
		}
		e.attachContext(ctx, r, query, h.Symbol.StartLine, filters)
		results = append(results, r)
	}
	sortResultsDesc(results)
	return truncate(results, limit), nil
}

// searchSemantic implements the semantic-search mode: embed the query,
// search HNSW, and when the graph has nothing to offer (fresh process,
// graph not yet built) fall back to a brute-force cosine scan over the
// stored embedding rows — the store remains the source of truth the
// graph is derived from. Hits then get a structural rerank (doc-comment
// present, generic-symbol de-boost).
func (e *Engine) searchSemantic(ctx context.Context, query string, filters Filters, limit int) ([]*Result, error) {
	vec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := e.Vectors.Search(ctx, vec, limit*4)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		if hits, err = e.bruteForceScan(ctx, vec, limit*4); err != nil {
			return nil, err
		}
	}

	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		sym, err := e.Store.GetSymbol(ctx, h.ID)
		if err != nil || sym == nil {
			continue
		}
		if filters.Language != "" && !strings.EqualFold(sym.Language, filters.Language) {
			continue
		}
		r := &Result{
			FilePath:    sym.FilePath,
			Line:        sym.StartLine,
			Symbol:      sym,
			Score:       float64(h.Score) * structuralBoost(sym),
			CodeContext: sym.CodeContext,
			Semantic:    true,
		}
		e.attachContext(ctx, r, query, sym.StartLine, filters)
		results = append(results, r)
	}
	sortResultsDesc(results)
	return truncate(results, limit), nil
}

// bruteForceScan cosine-scores the query vector against every stored
// embedding row. O(n) in stored vectors, so it only runs when the HNSW
// graph returned nothing; with embeddings not yet generated it returns
// empty and the caller reports the semantic tier as unavailable.
func (e *Engine) bruteForceScan(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	rows, err := e.Store.GetAllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*store.VectorResult, 0, len(rows))
	for _, row := range rows {
		if len(row.Vector) != len(query) {
			continue
		}
		score := cosineSimilarity(query, row.Vector)
		results = append(results, &store.VectorResult{
			ID:       row.SymbolID,
			Distance: 1 - score,
			Score:    score,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// structuralBoost applies the semantic tier's structural
// signals: a symbol with a doc comment is more likely the intended
// target, and generic names collapse the graph if not de-boosted.
func structuralBoost(sym *store.Symbol) float64 {
	factor := 1.0
	if sym.DocComment != "" {
		factor *= 1.1
	}
	if isGenericSymbolName(sym.Name) {
		factor *= 0.5
	}
	return factor
}

// genericSymbolNames are identifiers common enough across languages that
// a raw name match (or vector-nearest-neighbor hit) on them is rarely
// what the caller meant.
var genericSymbolNames = map[string]bool{
	"new": true, "from": true, "into": true, "get": true, "set": true,
	"init": true, "build": true, "create": true, "default": true,
}

func isGenericSymbolName(name string) bool {
	return genericSymbolNames[strings.ToLower(name)]
}

// searchHybrid implements the hybrid mode by fusing definitions and
// semantic hits with reciprocal rank fusion (k=60).
func (e *Engine) searchHybrid(ctx context.Context, query string, filters Filters, limit int) (*SearchResponse, error) {
	defResults, err := e.searchDefinitions(ctx, query, filters, limit*2)
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{Mode: ModeHybrid}
	if !e.semanticReady(ctx) {
		resp.SemanticUnavailable = true
		resp.Results = truncate(defResults, limit)
		return resp, nil
	}

	semResults, err := e.searchSemantic(ctx, query, filters, limit*2)
	if err != nil {
		return nil, err
	}

	resp.Results = truncate(rrfFuse(defResults, semResults), limit)
	return resp, nil
}

const rrfK = 60

// rrfFuse combines two ranked Result lists keyed by symbol ID (falling
// back to file path for content-mode hits with no Symbol) by reciprocal
// rank fusion.
func rrfFuse(a, b []*Result) []*Result {
	type entry struct {
		result *Result
		score  float64
	}
	byKey := make(map[string]*entry)
	keyOf := func(r *Result) string {
		if r.Symbol != nil {
			return r.Symbol.ID
		}
		return r.FilePath
	}

	for rank, r := range a {
		k := keyOf(r)
		e, ok := byKey[k]
		if !ok {
			e = &entry{result: r}
			byKey[k] = e
		}
		e.score += 1.0 / float64(rrfK+rank+1)
	}
	for rank, r := range b {
		k := keyOf(r)
		e, ok := byKey[k]
		if !ok {
			e = &entry{result: r}
			byKey[k] = e
		} else if !e.result.Semantic {
			// Prefer the semantic hit's context/score fields if the
			// definitions pass didn't already attach a symbol.
			if e.result.Symbol == nil {
				e.result = r
			}
		}
		e.score += 1.0 / float64(rrfK+rank+1)
	}

	out := make([]*Result, 0, len(byKey))
	for _, e := range byKey {
		e.result.Score = e.score
		out = append(out, e.result)
	}
	sortResultsDesc(out)
	return out
}

// orExpand builds the OR fallback used when the AND-combined query
// returns nothing. Returns the token list to union over; ok is false
// when the query has no usable tokens to split.
func orExpand(query string) ([]string, bool) {
	tokens := store.FilterStopWords(store.TokenizeCode(query), store.BuildStopWordMap(store.DefaultCodeStopWords))
	if len(tokens) < 2 {
		return nil, false
	}
	return tokens, true
}

func (e *Engine) unionContentSearch(ctx context.Context, terms []string, limit int) ([]*store.ContentResult, error) {
	seen := make(map[string]*store.ContentResult)
	for _, term := range terms {
		hits, err := e.Store.SearchContent(ctx, term, limit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if existing, ok := seen[h.FilePath]; !ok || h.FinalScore > existing.FinalScore {
				seen[h.FilePath] = h
			}
		}
	}
	out := make([]*store.ContentResult, 0, len(seen))
	for _, h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	return out, nil
}

func (e *Engine) unionDefinitionSearch(ctx context.Context, terms []string, limit int) ([]*store.DefinitionResult, error) {
	seen := make(map[string]*store.DefinitionResult)
	for _, term := range terms {
		hits, err := e.Store.SearchDefinitions(ctx, term, limit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if existing, ok := seen[h.Symbol.ID]; !ok || h.Score > existing.Score {
				seen[h.Symbol.ID] = h
			}
		}
	}
	out := make([]*store.DefinitionResult, 0, len(seen))
	for _, h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// augmentSingleWordContent/Definitions implement the single-word
// camel/Pascal expansion: "additionally search for the snake_case and
// lowerCamelCase variants," unioned with the original hits.
func (e *Engine) augmentSingleWordContent(ctx context.Context, query string, hits []*store.ContentResult, limit int) ([]*store.ContentResult, error) {
	variants := caseVariantsIfMixedCase(query)
	if len(variants) == 0 {
		return hits, nil
	}
	seen := make(map[string]*store.ContentResult, len(hits))
	for _, h := range hits {
		seen[h.FilePath] = h
	}
	for _, v := range variants {
		more, err := e.Store.SearchContent(ctx, v, limit)
		if err != nil {
			return nil, err
		}
		for _, h := range more {
			if existing, ok := seen[h.FilePath]; !ok || h.FinalScore > existing.FinalScore {
				seen[h.FilePath] = h
			}
		}
	}
	out := make([]*store.ContentResult, 0, len(seen))
	for _, h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	return out, nil
}

func (e *Engine) augmentSingleWordDefinitions(ctx context.Context, query string, hits []*store.DefinitionResult, limit int) ([]*store.DefinitionResult, error) {
	variants := caseVariantsIfMixedCase(query)
	if len(variants) == 0 {
		return hits, nil
	}
	seen := make(map[string]*store.DefinitionResult, len(hits))
	for _, h := range hits {
		seen[h.Symbol.ID] = h
	}
	for _, v := range variants {
		more, err := e.Store.SearchDefinitions(ctx, v, limit)
		if err != nil {
			return nil, err
		}
		for _, h := range more {
			if existing, ok := seen[h.Symbol.ID]; !ok || h.Score > existing.Score {
				seen[h.Symbol.ID] = h
			}
		}
	}
	out := make([]*store.DefinitionResult, 0, len(seen))
	for _, h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// caseVariantsIfMixedCase returns the snake_case and lowerCamelCase forms
// of word when it contains uppercase letters (camel or Pascal), per
// the single-word query-expansion rule. Returns nil for already-plain
// lowercase queries.
func caseVariantsIfMixedCase(word string) []string {
	hasUpper := false
	for _, r := range word {
		if unicode.IsUpper(r) {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return nil
	}
	parts := store.SplitCamelCase(word)
	if len(parts) == 0 {
		return nil
	}
	lower := make([]string, len(parts))
	for i, p := range parts {
		lower[i] = strings.ToLower(p)
	}
	snake := strings.Join(lower, "_")
	camel := lower[0]
	for _, p := range lower[1:] {
		if p == "" {
			continue
		}
		camel += strings.ToUpper(p[:1]) + p[1:]
	}
	return []string{snake, camel}
}

func sortResultsDesc(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Tie-break by (file path, start line) ascending.
		if results[i].FilePath != results[j].FilePath {
			return results[i].FilePath < results[j].FilePath
		}
		return results[i].Line < results[j].Line
	})
}

func truncate(results []*Result, limit int) []*Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
