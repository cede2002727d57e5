package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/store"
)

// DebugInfo is the `julie debug` read model: a single snapshot of a
// workspace's indexed state, embedder configuration, and on-disk
// footprint, meant for pasting into a bug report.
type DebugInfo struct {
	IndexPath   string `json:"index_path"`
	ProjectRoot string `json:"project_root"`

	FileCount  int                `json:"file_count"`
	SymbolCount int                `json:"symbol_count"` // count(EmbeddingVector), one per Symbol
	Languages  map[string]float64 `json:"languages"`

	EmbedderProvider   string `json:"embedder_provider"`
	EmbedderModel      string `json:"embedder_model"`
	EmbedderDimensions int    `json:"embedder_dimensions"`
	EmbedderAvailable  bool   `json:"embedder_available"`

	VectorCount      int   `json:"vector_count"`
	VectorSizeBytes  int64 `json:"vector_size_bytes"`
	IndexSizeBytes   int64 `json:"index_size_bytes"`
	SchemaVersion    int   `json:"schema_version"`

	LastIndexed time.Time `json:"last_indexed"`
}

func newDebugCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "debug [path]",
		Short: "Print diagnostic information about a workspace's index",
		Long: `Collects the file/symbol counts, embedder configuration, and on-disk
footprint of a workspace's index into a single snapshot, suitable for
pasting into a bug report.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runDebug(cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runDebug(cmd *cobra.Command, path string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	dataDir := filepath.Join(root, ".julie")

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found at %s - run 'julie index' first", dataDir)
	}

	info, err := collectDebugInfo(cmd.Context(), root, dataDir)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return printDebugInfo(cmd, info)
}

// collectDebugInfo opens the workspace's stores (read-only, closed before
// returning) and assembles a DebugInfo snapshot.
func collectDebugInfo(ctx context.Context, projectRoot, dataDir string) (*DebugInfo, error) {
	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	info := &DebugInfo{
		IndexPath:   dataDir,
		ProjectRoot: projectRoot,
	}

	fileCount, err := metadata.CountFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	info.FileCount = fileCount

	embCount, err := metadata.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	info.SymbolCount = embCount

	if newest, err := metadata.MaxLastModified(ctx); err == nil {
		info.LastIndexed = newest
	}

	if schemaVersion, err := metadata.SchemaVersion(ctx); err == nil {
		info.SchemaVersion = schemaVersion
	}

	paths, err := metadata.ListFilePaths(ctx)
	if err == nil {
		info.Languages = languageBreakdown(paths)
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		cfg = config.NewConfig()
	}
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	embedder, embErr := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	cancel()
	if embErr != nil {
		embedder = embed.NewStaticEmbedder768()
	}
	embedInfo := embed.GetInfo(ctx, embedder)
	info.EmbedderProvider = string(embedInfo.Provider)
	info.EmbedderModel = embedInfo.Model
	info.EmbedderDimensions = embedInfo.Dimensions
	info.EmbedderAvailable = embedInfo.Available
	_ = embedder.Close()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(info.EmbedderDimensions)); err == nil {
		if loadErr := vectors.Load(vectorPath); loadErr == nil {
			info.VectorCount = vectors.Count()
		}
		_ = vectors.Close()
	}
	info.VectorSizeBytes = fileSize(vectorPath)
	info.IndexSizeBytes = fileSize(metadataPath)

	return info, nil
}

func printDebugInfo(cmd *cobra.Command, info *DebugInfo) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Julie Debug Info")
	fmt.Fprintln(out, "================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Project:  %s\n", info.ProjectRoot)
	fmt.Fprintf(out, "Index:    %s\n", info.IndexPath)
	fmt.Fprintf(out, "Schema:   v%d\n", info.SchemaVersion)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "FILES & SYMBOLS")
	fmt.Fprintf(out, "  Files:      %s\n", formatNumber(info.FileCount))
	fmt.Fprintf(out, "  Symbols:     %s\n", formatNumber(info.SymbolCount))
	fmt.Fprintf(out, "  Languages:  %s\n", formatLanguages(info.Languages))
	fmt.Fprintf(out, "  Indexed:    %s\n", formatAge(info.LastIndexed))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "EMBEDDER")
	fmt.Fprintf(out, "  Provider:    %s\n", info.EmbedderProvider)
	fmt.Fprintf(out, "  Model:       %s\n", info.EmbedderModel)
	fmt.Fprintf(out, "  Dimensions:  %d\n", info.EmbedderDimensions)
	fmt.Fprintf(out, "  Available:   %t\n", info.EmbedderAvailable)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "BM25 INDEX")
	fmt.Fprintf(out, "  Documents:  %s\n", formatNumber(info.FileCount))
	fmt.Fprintf(out, "  Size:       %s\n", store.FormatBytes(info.IndexSizeBytes))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "VECTOR STORE")
	fmt.Fprintf(out, "  Vectors:  %s\n", formatNumber(info.VectorCount))
	fmt.Fprintf(out, "  Size:     %s\n", store.FormatBytes(info.VectorSizeBytes))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "STORAGE")
	fmt.Fprintf(out, "  Metadata DB:  %s\n", store.FormatBytes(info.IndexSizeBytes))
	fmt.Fprintf(out, "  Vector Index: %s\n", store.FormatBytes(info.VectorSizeBytes))

	return nil
}

// languageBreakdown buckets file paths by normalized extension and returns
// each bucket's share of the total.
func languageBreakdown(paths []string) map[string]float64 {
	if len(paths) == 0 {
		return map[string]float64{}
	}

	counts := make(map[string]int)
	for _, p := range paths {
		ext := strings.TrimPrefix(filepath.Ext(p), ".")
		if ext == "" {
			continue
		}
		counts[normalizeExtension(strings.ToLower(ext))]++
	}

	total := len(paths)
	breakdown := make(map[string]float64, len(counts))
	for lang, n := range counts {
		breakdown[lang] = float64(n) / float64(total)
	}
	return breakdown
}

// normalizeExtension folds extension variants that denote the same
// language into one canonical bucket for display purposes.
func normalizeExtension(ext string) string {
	switch ext {
	case "tsx":
		return "ts"
	case "jsx", "mjs":
		return "js"
	case "yml":
		return "yaml"
	case "htm":
		return "html"
	default:
		return ext
	}
}

// formatLanguages renders a language breakdown sorted by descending share,
// ties broken alphabetically for determinism.
func formatLanguages(langs map[string]float64) string {
	if len(langs) == 0 {
		return "none"
	}

	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] != langs[names[j]] {
			return langs[names[i]] > langs[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d%%)", name, int(langs[name]*100+0.5)))
	}
	return strings.Join(parts, ", ")
}

// formatNumber renders n with thousands separators.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)

	result := strings.Join(groups, ",")
	if neg {
		result = "-" + result
	}
	return result
}

// formatAge renders t as a coarse relative age, "unknown" for a zero time.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	elapsed := time.Since(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		minutes := int(elapsed / time.Minute)
		return fmt.Sprintf("%d %s ago", minutes, pluralize(minutes, "minute"))
	case elapsed < 24*time.Hour:
		hours := int(elapsed / time.Hour)
		return fmt.Sprintf("%d %s ago", hours, pluralize(hours, "hour"))
	default:
		days := int(elapsed / (24 * time.Hour))
		return fmt.Sprintf("%d %s ago", days, pluralize(days, "day"))
	}
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// fileSize returns the size of path in bytes, or 0 if it does not exist.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
