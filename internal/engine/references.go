package engine

import (
	"context"
	"sort"

	"github.com/juliehq/julie/internal/store"
)

// FindReferences returns identifier
// occurrences of symbolName, optionally narrowed by kinds. Unlike
// go-to-definition, this intentionally does not run naming-variant
// expansion — identifiers are occurrences of the textual token as it was
// actually written in that language, so an exact-name lookup over the
// textual token is correct.
func (e *Engine) FindReferences(ctx context.Context, symbolName string, kinds []store.IdentifierKind) ([]*store.Identifier, error) {
	refs, err := e.Store.GetIdentifiersByName(ctx, symbolName, kinds, DefaultLimit*10)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].FilePath != refs[j].FilePath {
			return refs[i].FilePath < refs[j].FilePath
		}
		return refs[i].Line < refs[j].Line
	})
	return refs, nil
}
