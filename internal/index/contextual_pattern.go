package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/store"
)

// PatternContextGenerator generates context using pattern-based rules.
// This is the fallback when LLM is unavailable or for fast processing.
//
// It extracts context from:
// - File path
// - Symbol name and kind
// - Doc comments
type PatternContextGenerator struct {
	cfg *config.Config
}

// NewPatternContextGenerator creates a new pattern-based context generator.
func NewPatternContextGenerator(cfg *config.Config) *PatternContextGenerator {
	return &PatternContextGenerator{cfg: cfg}
}

// GenerateContext generates context for a symbol using pattern rules.
func (p *PatternContextGenerator) GenerateContext(
	ctx context.Context,
	sym *store.Symbol,
	docContext string,
) (string, error) {
	if sym == nil {
		return "", nil
	}

	if p.cfg != nil && !p.cfg.Contextual.CodeSymbols {
		return "", nil
	}

	var parts []string

	parts = append(parts, fmt.Sprintf("From file: %s", sym.FilePath))
	parts = append(parts, fmt.Sprintf("Defines: %s %s", sym.Kind, sym.Name))

	if sym.DocComment != "" {
		if firstSentence := extractFirstSentence(sym.DocComment); firstSentence != "" {
			parts = append(parts, fmt.Sprintf("Purpose: %s", firstSentence))
		}
	}

	if sym.Language != "" {
		parts = append(parts, fmt.Sprintf("Language: %s", sym.Language))
	}

	return strings.Join(parts, ". ") + ".", nil
}

// GenerateBatch generates context for multiple symbols.
func (p *PatternContextGenerator) GenerateBatch(
	ctx context.Context,
	symbols []*store.Symbol,
	docContext string,
) ([]string, error) {
	results := make([]string, len(symbols))
	for i, sym := range symbols {
		generated, err := p.GenerateContext(ctx, sym, docContext)
		if err != nil {
			return nil, err
		}
		results[i] = generated
	}
	return results, nil
}

// Available always returns true for the pattern generator.
func (p *PatternContextGenerator) Available(ctx context.Context) bool {
	return true
}

// ModelName returns the model identifier.
func (p *PatternContextGenerator) ModelName() string {
	return "pattern-based"
}

// Close is a no-op for the pattern generator.
func (p *PatternContextGenerator) Close() error {
	return nil
}

// extractFirstSentence extracts the first sentence from text.
func extractFirstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	text = strings.TrimPrefix(text, "//")
	text = strings.TrimPrefix(text, "/*")
	text = strings.TrimSuffix(text, "*/")
	text = strings.TrimSpace(text)

	for i, r := range text {
		if r == '.' || r == '\n' {
			sentence := strings.TrimSpace(text[:i+1])
			return strings.TrimSuffix(sentence, ".")
		}
	}

	if len(text) > 100 {
		return text[:100] + "..."
	}
	return text
}

// HybridContextGenerator combines LLM and pattern-based generators.
// Uses LLM when available, falls back to the pattern generator otherwise.
type HybridContextGenerator struct {
	llm     ContextGenerator // can be nil if LLM unavailable
	pattern *PatternContextGenerator
	cfg     *config.Config
}

// NewHybridContextGenerator creates a new hybrid generator.
// If llm is nil, only pattern-based generation is used.
func NewHybridContextGenerator(llm ContextGenerator, cfg *config.Config) *HybridContextGenerator {
	return &HybridContextGenerator{
		llm:     llm,
		pattern: NewPatternContextGenerator(cfg),
		cfg:     cfg,
	}
}

// GenerateContext generates context, preferring LLM if available.
func (h *HybridContextGenerator) GenerateContext(
	ctx context.Context,
	sym *store.Symbol,
	docContext string,
) (string, error) {
	if sym != nil && h.cfg != nil && !h.cfg.Contextual.CodeSymbols {
		return "", nil
	}

	if h.llm != nil && h.llm.Available(ctx) {
		generated, err := h.llm.GenerateContext(ctx, sym, docContext)
		if err == nil && generated != "" {
			return generated, nil
		}
	}

	return h.pattern.GenerateContext(ctx, sym, docContext)
}

// GenerateBatch generates context for multiple symbols.
func (h *HybridContextGenerator) GenerateBatch(
	ctx context.Context,
	symbols []*store.Symbol,
	docContext string,
) ([]string, error) {
	if h.llm != nil && h.llm.Available(ctx) {
		generated, err := h.llm.GenerateBatch(ctx, symbols, docContext)
		if err == nil {
			return generated, nil
		}
	}

	return h.pattern.GenerateBatch(ctx, symbols, docContext)
}

// Available returns true if any generator is available.
func (h *HybridContextGenerator) Available(ctx context.Context) bool {
	return h.pattern.Available(ctx) || (h.llm != nil && h.llm.Available(ctx))
}

// ModelName returns the model identifier.
func (h *HybridContextGenerator) ModelName() string {
	if h.llm != nil {
		return h.llm.ModelName() + "+pattern"
	}
	return h.pattern.ModelName()
}

// Close releases resources.
func (h *HybridContextGenerator) Close() error {
	if h.llm != nil {
		return h.llm.Close()
	}
	return nil
}
