package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/store"
)

// EmbeddingPropagator runs the background embedding task: embed every
// Symbol that doesn't yet have an EmbeddingVector, persist the vector,
// and insert it into the HNSW index. It never blocks a query; callers
// run it on its own goroutine and cancel it via ctx at workspace
// close.
type EmbeddingPropagator struct {
	Store    store.MetadataStore
	Vectors  store.VectorStore
	Embedder embed.Embedder
	// BatchSize bounds how many symbols are embedded per EmbedBatch call.
	BatchSize int
	// ContextGen optionally enriches each symbol's embedding text with a
	// contextual description (see contextual.go) before it is
	// embedded. Nil disables enrichment — the raw symbolEmbeddingText is
	// used as-is.
	ContextGen ContextGenerator
}

// NewEmbeddingPropagator constructs a propagator with the default
// embedding batch size (embed.DefaultBatchSize).
func NewEmbeddingPropagator(st store.MetadataStore, vectors store.VectorStore, embedder embed.Embedder) *EmbeddingPropagator {
	return &EmbeddingPropagator{
		Store:     st,
		Vectors:   vectors,
		Embedder:  embedder,
		BatchSize: embed.DefaultBatchSize,
	}
}

// PropagateResult summarizes one propagation pass.
type PropagateResult struct {
	Embedded int
	Skipped  int
	Errors   []string
}

// Propagate walks every stored file's symbols, embeds any symbol lacking
// an EmbeddingVector, and inserts the result into the vector tier.
// Graceful degradation: if the embedder isn't available, this
// returns a zero result rather than an error — FTS search must still
// work without it.
func (p *EmbeddingPropagator) Propagate(ctx context.Context) (*PropagateResult, error) {
	result := &PropagateResult{}

	if p.Embedder == nil || !p.Embedder.Available(ctx) {
		return result, nil
	}

	paths, err := p.Store.ListFilePaths(ctx)
	if err != nil {
		return nil, err
	}

	var pending []*store.Symbol
	for _, path := range paths {
		symbols, err := p.Store.GetSymbolsByFile(ctx, path)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		for _, sym := range symbols {
			existing, err := p.Store.GetEmbedding(ctx, sym.ID)
			if err == nil && existing != nil {
				result.Skipped++
				continue
			}
			pending = append(pending, sym)
		}
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	for start := 0; start < len(pending); start += batchSize {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, sym := range batch {
			text := symbolEmbeddingText(sym)
			if p.ContextGen != nil && p.ContextGen.Available(ctx) {
				docContext := ExtractDocumentContext([]*store.Symbol{sym})
				if generated, err := p.ContextGen.GenerateContext(ctx, sym, docContext); err == nil {
					text = EnrichSymbolContext(text, generated)
				}
			}
			texts[i] = text
		}

		vectors, err := p.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embed batch: %v", err))
			continue
		}
		if len(vectors) != len(batch) {
			result.Errors = append(result.Errors, "embedder returned mismatched batch size")
			continue
		}

		ids := make([]string, len(batch))
		vecs := make([][]float32, len(batch))
		for i, sym := range batch {
			vec := vectors[i]
			ev := &store.EmbeddingVector{
				SymbolID: sym.ID,
				Dim:      len(vec),
				Vector:   vec,
				ModelTag: p.Embedder.ModelName(),
			}
			if err := p.Store.SaveEmbedding(ctx, ev); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			ids[i] = sym.ID
			vecs[i] = vec
			result.Embedded++
		}

		if p.Vectors != nil {
			if err := p.Vectors.Add(ctx, ids, vecs); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("hnsw insert: %v", err))
				slog.Warn("hnsw insertion failed; symbols remain searchable via FTS", slog.String("error", err.Error()))
			}
		}
	}

	return result, nil
}

// symbolEmbeddingText builds the textual form embedded for a Symbol
//.
func symbolEmbeddingText(sym *store.Symbol) string {
	parts := []string{sym.Name}
	if sym.Signature != "" {
		parts = append(parts, sym.Signature)
	}
	if sym.DocComment != "" {
		parts = append(parts, sym.DocComment)
	}
	if sym.CodeContext != "" {
		parts = append(parts, sym.CodeContext)
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}
