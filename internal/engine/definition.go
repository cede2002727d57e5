package engine

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juliehq/julie/internal/resolve"
	"github.com/juliehq/julie/internal/store"
)

// Definition is one exact definition site returned by GoToDefinition.
type Definition struct {
	Symbol   *store.Symbol
	Variant  string // the naming variant that matched, "" for an exact or semantic hit
	Semantic bool
}

// GoToDefinition resolves symbolName through the cross-language
// resolver and returns
// its exact definition sites. When contextFile is non-empty, candidates
// in the same file or the same language as contextFile are ranked first
// — callers usually want the definition visible from where they're
// standing, not an unrelated same-named symbol in another language.
func (e *Engine) GoToDefinition(ctx context.Context, symbolName, contextFile string) ([]*Definition, error) {
	candidates, err := e.Resolver.Resolve(ctx, symbolName, resolve.Options{Limit: DefaultLimit * 2})
	if err != nil {
		return nil, err
	}

	defs := make([]*Definition, 0, len(candidates))
	for _, c := range candidates {
		defs = append(defs, &Definition{Symbol: c.Symbol, Variant: c.Variant, Semantic: c.Semantic})
	}

	contextLang := languageFromExt(contextFile)
	sort.SliceStable(defs, func(i, j int) bool {
		pi, pj := definitionPriority(defs[i], contextFile, contextLang), definitionPriority(defs[j], contextFile, contextLang)
		if pi != pj {
			return pi > pj
		}
		if defs[i].Symbol.FilePath != defs[j].Symbol.FilePath {
			return defs[i].Symbol.FilePath < defs[j].Symbol.FilePath
		}
		return defs[i].Symbol.StartLine < defs[j].Symbol.StartLine
	})

	if len(defs) > DefaultLimit {
		defs = defs[:DefaultLimit]
	}
	return defs, nil
}

func definitionPriority(d *Definition, contextFile, contextLang string) int {
	switch {
	case contextFile != "" && d.Symbol.FilePath == contextFile:
		return 2
	case contextLang != "" && strings.EqualFold(d.Symbol.Language, contextLang):
		return 1
	default:
		return 0
	}
}

// languageFromExt is a minimal extension sniff used only to bias
// GoToDefinition's ranking, not to select an extractor (that mapping
// lives in internal/grammar's LanguageRegistry).
func languageFromExt(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
