package engine

import (
	"context"

	"github.com/juliehq/julie/internal/resolve"
	"github.com/juliehq/julie/internal/store"
)

// Depth controls how much of a symbol's (and its callers'/callees')
// source a DeepInvestigate answer includes.
type Depth string

const (
	DepthOverview Depth = "overview" // signature + doc-comment only
	DepthContext  Depth = "context"  // + single-line code_context
	DepthFull     Depth = "full"     // + full extracted source body
)

// Investigation is deep-investigate's composed answer: a definition plus
// its callers, callees, and children, each resolved to Symbols (where
// statically resolvable; name-only relationships surface as
// CallerNames/CalleeNames instead of a Symbol).
type Investigation struct {
	Symbol   *store.Symbol
	Body     string // populated per Depth
	Callers  []*store.Symbol
	Callees  []*store.Symbol
	Children []*store.Symbol

	CallerNames []string // unresolved relationship targets/sources (by name)
	CalleeNames []string
}

// DeepInvestigate answers "tell me about this symbol": resolve symbol,
// then compose its callers (GetRelationshipsTo), callees
// (GetRelationshipsFrom), and children (symbols in the same file whose
// ParentSymbolID is this symbol) into one answer.
func (e *Engine) DeepInvestigate(ctx context.Context, symbol string, depth Depth) (*Investigation, error) {
	if depth == "" {
		depth = DepthOverview
	}

	candidates, err := e.Resolver.Resolve(ctx, symbol, resolve.Options{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sym := candidates[0].Symbol

	inv := &Investigation{Symbol: sym}

	if depth != DepthOverview {
		inv.Body = sym.CodeContext
	}
	if depth == DepthFull {
		if body, err := e.extractBody(ctx, sym); err == nil && body != "" {
			inv.Body = body
		}
	}

	incoming, err := e.Store.GetRelationshipsTo(ctx, sym.ID, nil)
	if err != nil {
		return nil, err
	}
	for _, rel := range incoming {
		if caller, err := e.Store.GetSymbol(ctx, rel.FromSymbolID); err == nil && caller != nil {
			inv.Callers = append(inv.Callers, caller)
		}
	}

	outgoing, err := e.Store.GetRelationshipsFrom(ctx, sym.ID, nil)
	if err != nil {
		return nil, err
	}
	for _, rel := range outgoing {
		if rel.ToSymbolID != "" {
			if callee, err := e.Store.GetSymbol(ctx, rel.ToSymbolID); err == nil && callee != nil {
				inv.Callees = append(inv.Callees, callee)
				continue
			}
		}
		inv.CalleeNames = append(inv.CalleeNames, rel.ToSymbolName)
	}

	siblings, err := e.Store.GetSymbolsByFile(ctx, sym.FilePath)
	if err != nil {
		return nil, err
	}
	for _, s := range siblings {
		if s.ParentSymbolID == sym.ID {
			inv.Children = append(inv.Children, s)
		}
	}

	return inv, nil
}

// extractBody reads the symbol's byte range out of its stored file
// content, for DepthFull. Slicing is done on the raw byte range the
// extractor recorded, which is always a valid UTF-8 boundary since the extractor
// derives it from tree-sitter node spans.
func (e *Engine) extractBody(ctx context.Context, sym *store.Symbol) (string, error) {
	file, err := e.Store.GetFile(ctx, sym.FilePath)
	if err != nil || file == nil || file.Content == "" {
		return "", err
	}
	if sym.StartByte < 0 || sym.EndByte > len(file.Content) || sym.StartByte > sym.EndByte {
		return "", nil
	}
	return file.Content[sym.StartByte:sym.EndByte], nil
}
