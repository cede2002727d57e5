package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/juliehq/julie/internal/store"
)

// Default LLM context generator configuration.
const (
	DefaultContextModel   = "qwen3:0.6b"
	DefaultContextTimeout = 5 * time.Second
	DefaultContextHost    = "http://localhost:11434"
)

// LLMContextGenerator generates context using Ollama LLM.
// Uses a small, fast model optimized for context generation, separate
// from the embedding model configured in internal/embed.
type LLMContextGenerator struct {
	client *http.Client
	config ContextGeneratorConfig
}

// llmGenerateRequest is the Ollama /api/generate request body.
type llmGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// llmGenerateResponse is the Ollama /api/generate response body.
type llmGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// contextPromptTemplate is the prompt for code-symbol context generation.
const contextPromptTemplate = `You are analyzing code. Generate a 1-2 sentence context for this symbol.

File: %s

Document context:
%s

Symbol:
%s

Instructions:
- Describe what this symbol does and its purpose
- Be specific about function names and types
- Keep it under 100 tokens
- Output ONLY the context, no preamble

Context:`

// NewLLMContextGenerator creates a new LLM-based context generator.
func NewLLMContextGenerator(config ContextGeneratorConfig) (*LLMContextGenerator, error) {
	if config.OllamaHost == "" {
		config.OllamaHost = DefaultContextHost
	}
	if config.Model == "" {
		config.Model = DefaultContextModel
	}

	timeout := DefaultContextTimeout
	if config.Timeout != "" {
		parsed, err := time.ParseDuration(config.Timeout)
		if err == nil {
			timeout = parsed
		}
	}

	client := &http.Client{
		Timeout: timeout,
	}

	return &LLMContextGenerator{client: client, config: config}, nil
}

// symbolDescriptor renders the portion of a symbol worth showing the LLM:
// its signature and doc comment, falling back to name + kind.
func symbolDescriptor(sym *store.Symbol) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s %s", sym.Kind, sym.Name))
	if sym.Signature != "" {
		parts = append(parts, sym.Signature)
	}
	if sym.DocComment != "" {
		parts = append(parts, sym.DocComment)
	}
	return truncateContent(strings.Join(parts, "\n"), 1500)
}

// GenerateContext generates context for a single symbol.
func (l *LLMContextGenerator) GenerateContext(
	ctx context.Context,
	sym *store.Symbol,
	docContext string,
) (string, error) {
	if sym == nil {
		return "", nil
	}

	prompt := fmt.Sprintf(contextPromptTemplate, sym.FilePath, docContext, symbolDescriptor(sym))

	response, err := l.generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "Context:")
	response = strings.TrimSpace(response)

	return response, nil
}

// GenerateBatch generates context for multiple symbols.
// Uses the same document context for all symbols (prompt caching
// optimization, same file).
func (l *LLMContextGenerator) GenerateBatch(
	ctx context.Context,
	symbols []*store.Symbol,
	docContext string,
) ([]string, error) {
	results := make([]string, len(symbols))

	for i, sym := range symbols {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		generated, err := l.GenerateContext(ctx, sym, docContext)
		if err != nil {
			slog.Debug("LLM context generation failed, using empty",
				slog.String("symbol_id", sym.ID),
				slog.String("error", err.Error()))
			results[i] = ""
			continue
		}
		results[i] = generated
	}

	return results, nil
}

// generate makes an LLM request to Ollama.
func (l *LLMContextGenerator) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := llmGenerateRequest{
		Model:  l.config.Model,
		Prompt: prompt,
		Stream: false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := l.config.OllamaHost + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp llmGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return genResp.Response, nil
}

// Available checks if Ollama is reachable.
func (l *LLMContextGenerator) Available(ctx context.Context) bool {
	url := l.config.OllamaHost + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// ModelName returns the model being used.
func (l *LLMContextGenerator) ModelName() string {
	return l.config.Model
}

// Close is a no-op for the LLM generator; it shares no persistent
// connection beyond the pooled http.Client.
func (l *LLMContextGenerator) Close() error {
	return nil
}

// truncateContent truncates content to maxLen characters.
func truncateContent(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "\n... [truncated]"
}
