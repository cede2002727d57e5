package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/daemon"
	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/engine"
	"github.com/juliehq/julie/internal/logging"
	"github.com/juliehq/julie/internal/output"
	"github.com/juliehq/julie/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	filter   string // "all", "code", "docs" — reserved, not yet enforced by engine.Engine
	language string
	format   string // "text", "json"
	scopes   []string
	bm25Only bool // skip semantic search, use BM25/content search only
	local    bool // Force local search (bypass daemon)
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase (hybrid mode: FTS definitions,
content, and semantic results merged by reciprocal rank fusion).

Examples:
  julie search "authentication middleware"
  julie search "handleRequest" --limit 5
  julie search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.filter, "type", "t", "all", "Filter by type: all, code, docs")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g., go, python)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringSliceVarP(&opts.scopes, "scope", "s", nil, "Filter by path scope (repeatable, e.g., --scope services/api)")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only (skip semantic search)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Force local search (bypass daemon)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	dataDir := filepath.Join(root, ".julie")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'julie index' first")
	}

	// Try daemon-based search first (fast, keeps embedder loaded).
	daemonCfg := daemon.DefaultConfig()
	client := daemon.NewClient(daemonCfg)
	if !opts.local && client.IsRunning() {
		slog.Info("search_using_daemon")
		results, err := client.Search(ctx, daemon.SearchParams{
			Query:    query,
			RootPath: root,
			Limit:    opts.limit,
			Filter:   opts.filter,
			Language: opts.language,
			Scopes:   opts.scopes,
			BM25Only: opts.bm25Only,
		})
		if err != nil {
			slog.Warn("daemon search failed, falling back to local", slog.String("error", err.Error()))
		} else {
			slog.Info("search_complete", slog.String("mode", "daemon"), slog.Int("results", len(results)))
			return formatDaemonResults(cmd, out, query, results, opts.format)
		}
	}

	slog.Info("search_using_local")
	return runLocalSearch(ctx, cmd, root, query, opts)
}

// runLocalSearch performs search in-process, without the daemon.
func runLocalSearch(ctx context.Context, cmd *cobra.Command, root, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())
	dataDir := filepath.Join(root, ".julie")

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	var embedder embed.Embedder
	if opts.bm25Only {
		embedder = embed.NewStaticEmbedder768()
	} else {
		embed.SetMLXConfig(embed.MLXServerConfig{
			Endpoint: cfg.Embeddings.MLXEndpoint,
			Model:    cfg.Embeddings.MLXModel,
		})
		provider := embed.ParseProvider(cfg.Embeddings.Provider)
		embedder, err = embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if _, err := os.Stat(vectorPath); err == nil {
		if loadErr := vector.Load(vectorPath); loadErr != nil {
			slog.Debug("vector_load_failed", slog.String("error", loadErr.Error()))
		}
	}

	eng := engine.New(root, metadata, vector, embedder)

	mode := engine.ModeHybrid
	if opts.bm25Only {
		mode = engine.ModeContent
	}

	limit := opts.limit
	if limit <= 0 {
		limit = engine.DefaultLimit
	}

	resp, err := eng.Search(ctx, query, mode, engine.Filters{
		Language: opts.language,
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.String("mode", "local"), slog.Int("results", len(resp.Results)))

	if len(resp.Results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, resp.Results)
	default:
		return formatText(out, query, resp.Results)
	}
}

// formatDaemonResults formats search results received from the daemon.
func formatDaemonResults(cmd *cobra.Command, out *output.Writer, query string, results []daemon.SearchResult, format string) error {
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		out.Statusf("🔍", "Found %d results for %q:", len(results), query)
		out.Newline()

		for i, r := range results {
			location := r.FilePath
			if r.StartLine > 0 {
				location = fmt.Sprintf("%s:%d", r.FilePath, r.StartLine)
			}
			out.Statusf("", "%d. %s (score: %.2f)", i+1, location, r.Score)

			for _, line := range getSnippet(r.Content, 3) {
				out.Status("", "   "+line)
			}
			out.Newline()
		}
		return nil
	}
}

// formatText outputs engine.Result hits in human-readable format.
func formatText(out *output.Writer, query string, results []*engine.Result) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		location := r.FilePath
		if r.Line > 0 {
			location = fmt.Sprintf("%s:%d", r.FilePath, r.Line)
		}
		out.Statusf("", "%d. %s (score: %.2f)", i+1, location, r.Score)

		snippet := r.ContextText
		if snippet == "" {
			snippet = r.CodeContext
		}
		for _, line := range getSnippet(snippet, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}

	return nil
}

// formatJSON outputs engine.Result hits as JSON.
func formatJSON(cmd *cobra.Command, results []*engine.Result) error {
	type jsonResult struct {
		FilePath string  `json:"file_path"`
		Line     int     `json:"line"`
		Score    float64 `json:"score"`
		Content  string  `json:"content"`
		Language string  `json:"language,omitempty"`
	}

	output := make([]jsonResult, 0, len(results))
	for _, r := range results {
		content := r.ContextText
		if content == "" {
			content = r.CodeContext
		}
		jr := jsonResult{
			FilePath: r.FilePath,
			Line:     r.Line,
			Score:    r.Score,
			Content:  content,
		}
		if r.Symbol != nil {
			jr.Language = r.Symbol.Language
		}
		output = append(output, jr)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// getSnippet returns the first n lines of content, with trailing blank
// lines removed.
func getSnippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
