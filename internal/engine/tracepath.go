package engine

import (
	"context"

	"github.com/juliehq/julie/internal/resolve"
	"github.com/juliehq/julie/internal/store"
)

// Direction selects which side of the call graph trace-call-path walks.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"   // callers of start
	DirectionDownstream Direction = "downstream" // callees of start
	DirectionBoth       Direction = "both"
)

// DefaultMaxDepth bounds a trace-call-path BFS when the caller doesn't
// supply one, keeping pathological call graphs from running away.
const DefaultMaxDepth = 5

// PathNode is one symbol reached during a trace-call-path BFS.
type PathNode struct {
	Symbol    *store.Symbol
	Depth     int
	Direction Direction // which edge direction reached this node
}

// TraceCallPath walks the call graph from a starting symbol: BFS over the
// calls-relationship graph from start, in the requested direction, up to
// maxDepth hops, pruning obviously-generic names ("new", "from", "into")
// so they don't collapse the graph into every call site in the
// workspace.
func (e *Engine) TraceCallPath(ctx context.Context, start string, direction Direction, maxDepth int) ([]*PathNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if direction == "" {
		direction = DirectionDownstream
	}

	candidates, err := e.Resolver.Resolve(ctx, start, resolve.Options{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	root := candidates[0].Symbol

	var nodes []*PathNode
	visited := map[string]bool{root.ID: true}

	if direction == DirectionDownstream || direction == DirectionBoth {
		nodes = append(nodes, e.bfs(ctx, root, maxDepth, DirectionDownstream, visited)...)
	}
	if direction == DirectionUpstream || direction == DirectionBoth {
		// A shared visited set would let downstream's traversal block
		// upstream's root-adjacent nodes on a both-direction trace, so
		// reuse only the root exclusion, not the whole visited set.
		upVisited := map[string]bool{root.ID: true}
		nodes = append(nodes, e.bfs(ctx, root, maxDepth, DirectionUpstream, upVisited)...)
	}
	return nodes, nil
}

func (e *Engine) bfs(ctx context.Context, root *store.Symbol, maxDepth int, dir Direction, visited map[string]bool) []*PathNode {
	type frontierEntry struct {
		symbol *store.Symbol
		depth  int
	}
	var out []*PathNode
	frontier := []frontierEntry{{symbol: root, depth: 0}}

	for len(frontier) > 0 && frontier[0].depth < maxDepth {
		cur := frontier[0]
		frontier = frontier[1:]

		neighbors := e.neighbors(ctx, cur.symbol, dir)
		for _, n := range neighbors {
			if visited[n.ID] || isGenericSymbolName(n.Name) {
				continue
			}
			visited[n.ID] = true
			node := &PathNode{Symbol: n, Depth: cur.depth + 1, Direction: dir}
			out = append(out, node)
			frontier = append(frontier, frontierEntry{symbol: n, depth: cur.depth + 1})
		}
	}
	return out
}

func (e *Engine) neighbors(ctx context.Context, sym *store.Symbol, dir Direction) []*store.Symbol {
	kinds := []store.RelationshipKind{store.RelationshipCalls}
	var out []*store.Symbol

	if dir == DirectionDownstream {
		rels, err := e.Store.GetRelationshipsFrom(ctx, sym.ID, kinds)
		if err != nil {
			return nil
		}
		for _, rel := range rels {
			if rel.ToSymbolID == "" {
				continue
			}
			if callee, err := e.Store.GetSymbol(ctx, rel.ToSymbolID); err == nil && callee != nil {
				out = append(out, callee)
			}
		}
		return out
	}

	rels, err := e.Store.GetRelationshipsTo(ctx, sym.ID, kinds)
	if err != nil {
		return nil
	}
	for _, rel := range rels {
		if caller, err := e.Store.GetSymbol(ctx, rel.FromSymbolID); err == nil && caller != nil {
			out = append(out, caller)
		}
	}
	return out
}
