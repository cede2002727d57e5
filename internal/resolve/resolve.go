// Package resolve implements cross-language symbol resolution:
// given a user- or tool-supplied symbol name, produce the set of Symbols it
// most likely refers to even when the caller's naming convention differs
// from the defining language's (getUserData / get_user_data / GetUserData).
//
// The same casing-variant expansion that widens BM25 queries lives here
// as a dedicated resolver so it can be reused by goto-definition,
// find-references, and deep-investigate, and so the workspace filter
// applies uniformly to both the naming-variant lookup and the semantic
// fallback. A resolver that is bypassed on one of those paths silently
// loses cross-language hits; scoping the whole resolver to one store
// removes that failure mode.
package resolve

import (
	"context"
	"strings"
	"unicode"

	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/store"
)

// DefaultLimit is the default result limit for a Resolve call.
const DefaultLimit = 10

// semanticFallbackK is how many HNSW hits are pulled before symbol-kind
// filtering when no naming variant matches.
const semanticFallbackK = 25

// Resolver resolves a symbol name to candidate Symbols, applying
// naming-variant expansion first and a semantic fallback second. A single
// Resolver is scoped to one workspace's MetadataStore/VectorStore pair —
// there is no cross-workspace join.
type Resolver struct {
	Store    store.MetadataStore
	Vectors  store.VectorStore // may be nil: semantic fallback is skipped
	Embedder embed.Embedder    // may be nil: semantic fallback is skipped
}

// New constructs a Resolver. vectors and embedder may be nil when the
// semantic tier is not yet built; Resolve then
// relies solely on naming-variant lookup.
func New(st store.MetadataStore, vectors store.VectorStore, embedder embed.Embedder) *Resolver {
	return &Resolver{Store: st, Vectors: vectors, Embedder: embedder}
}

// Candidate pairs a resolved Symbol with how it was found, so callers (e.g.
// deep-investigate) can report whether a hit came from an exact name match
// or a semantic guess.
type Candidate struct {
	Symbol   *store.Symbol
	Variant  string // the naming variant that matched ("" for semantic hits)
	Semantic bool
}

// Options narrows a Resolve call.
type Options struct {
	Limit int
	// Kinds, when non-empty, restricts results to these SymbolKinds. It is
	// always applied to semantic-fallback hits and, when set, to
	// naming-variant hits too.
	Kinds []store.SymbolKind
}

// Resolve generates standard naming variants, queries the store for any
// symbol matching one, and only if none match falls back to a semantic
// top-K filtered by symbol-kind compatibility. The workspace scoping
// lives entirely in which Store/Vectors this Resolver was constructed
// with; there is no separate workspace parameter to forget to thread
// through.
func (r *Resolver) Resolve(ctx context.Context, name string, opts Options) ([]Candidate, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	variants := GenerateVariants(name)
	symbols, err := r.Store.SearchSymbolsByName(ctx, variants, limit*4)
	if err != nil {
		return nil, err
	}

	filtered := filterByKind(symbols, opts.Kinds)
	if len(filtered) > 0 {
		return toCandidates(filtered, variants, limit), nil
	}

	// Step 3: semantic fallback, only reached when naming variants produced
	// nothing and the semantic tier is actually usable.
	if r.Vectors == nil || r.Embedder == nil || !r.Embedder.Available(ctx) {
		return nil, nil
	}

	hits, err := r.semanticFallback(ctx, name, opts.Kinds, limit)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// semanticFallback embeds a short synthetic description of the queried name
// and searches the vector tier for the nearest symbols, then filters by
// symbol-kind compatibility.
func (r *Resolver) semanticFallback(ctx context.Context, name string, kinds []store.SymbolKind, limit int) ([]Candidate, error) {
	description := syntheticDescription(name)
	vec, err := r.Embedder.Embed(ctx, description)
	if err != nil {
		return nil, err
	}

	results, err := r.Vectors.Search(ctx, vec, semanticFallbackK)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, res := range results {
		sym, err := r.Store.GetSymbol(ctx, res.ID)
		if err != nil || sym == nil {
			continue
		}
		if !kindAllowed(sym.Kind, kinds) {
			continue
		}
		out = append(out, Candidate{Symbol: sym, Semantic: true})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// syntheticDescription builds the short text embedded for the semantic
// fallback. Splitting the name into words first ("getUserData" -> "get
// user data") gives the embedder ordinary-language tokens instead of a
// single opaque identifier.
func syntheticDescription(name string) string {
	words := splitWords(name)
	return "symbol named " + strings.Join(words, " ")
}

func filterByKind(symbols []*store.Symbol, kinds []store.SymbolKind) []*store.Symbol {
	if len(kinds) == 0 {
		return symbols
	}
	var out []*store.Symbol
	for _, s := range symbols {
		if kindAllowed(s.Kind, kinds) {
			out = append(out, s)
		}
	}
	return out
}

func kindAllowed(kind store.SymbolKind, kinds []store.SymbolKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func toCandidates(symbols []*store.Symbol, variants []string, limit int) []Candidate {
	variantSet := make(map[string]bool, len(variants))
	for _, v := range variants {
		variantSet[strings.ToLower(v)] = true
	}

	out := make([]Candidate, 0, len(symbols))
	for _, s := range symbols {
		matched := ""
		if variantSet[strings.ToLower(s.Name)] {
			matched = s.Name
		}
		out = append(out, Candidate{Symbol: s, Variant: matched})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// GenerateVariants produces the standard naming-convention variants of
// name: camelCase, PascalCase, snake_case, kebab-case, and
// all-lowercase. The original name is always included first so an exact
// match short-circuits everything else.
func GenerateVariants(name string) []string {
	words := splitWords(name)
	if len(words) == 0 {
		return []string{name}
	}

	seen := make(map[string]bool)
	var variants []string
	add := func(v string) {
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if !seen[key] {
			seen[key] = true
			variants = append(variants, v)
		}
	}

	add(name)
	add(toCamelCase(words))
	add(toPascalCase(words))
	add(toSnakeCase(words))
	add(toKebabCase(words))
	add(strings.ToLower(strings.Join(words, "")))

	return variants
}

// splitWords breaks an identifier into lowercase word parts, handling
// camelCase, PascalCase, snake_case, and kebab-case boundaries
// uniformly.
func splitWords(name string) []string {
	var raw []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			raw = append(raw, current.String())
			current.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]):
			flush()
			current.WriteRune(r)
		case unicode.IsUpper(r) && i > 0 && unicode.IsUpper(runes[i-1]) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// Boundary inside an acronym run, e.g. "HTTPServer" -> "HTTP", "Server".
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()

	words := make([]string, 0, len(raw))
	for _, w := range raw {
		if w == "" {
			continue
		}
		words = append(words, strings.ToLower(w))
	}
	return words
}

func toCamelCase(words []string) string {
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(words[0])
	for _, w := range words[1:] {
		b.WriteString(titleCase(w))
	}
	return b.String()
}

func toPascalCase(words []string) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(titleCase(w))
	}
	return b.String()
}

func toSnakeCase(words []string) string {
	return strings.Join(words, "_")
}

func toKebabCase(words []string) string {
	return strings.Join(words, "-")
}

func titleCase(w string) string {
	if w == "" {
		return ""
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
