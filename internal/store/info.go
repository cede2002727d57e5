package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EmbedderInfoInput carries the currently-configured embedder's identity,
// for the compatibility check GetIndexInfo performs against whatever
// model actually produced the stored EmbeddingVectors.
type EmbedderInfoInput struct {
	Model      string
	Backend    string
	Dimensions int
}

// IndexInfo is the `index info` / `index_status` read model: on-disk
// location and size, the model that produced the current embeddings, and
// whether the currently-configured embedder still matches it.
type IndexInfo struct {
	Location    string
	ProjectRoot string

	IndexModel      string
	IndexBackend    string
	IndexDimensions int

	SymbolCount     int
	DocumentCount   int
	IndexSizeBytes  int64
	BM25SizeBytes   int64
	VectorSizeBytes int64

	CreatedAt time.Time
	UpdatedAt time.Time

	CurrentModel      string
	CurrentBackend    string
	CurrentDimensions int
	Compatible        bool
}

// GetIndexInfo assembles an IndexInfo for a workspace's data directory.
// embedderInput is nil when the current embedder could not be
// constructed (e.g. offline); IndexInfo.Compatible is then left true
// since there's nothing to compare against.
func GetIndexInfo(ctx context.Context, metadata MetadataStore, dataDir string, embedderInput *EmbedderInfoInput) (*IndexInfo, error) {
	info := &IndexInfo{
		Location:    dataDir,
		ProjectRoot: filepath.Dir(dataDir),
		Compatible:  true,
	}

	fileCount, err := metadata.CountFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	info.DocumentCount = fileCount

	embeddingCount, err := metadata.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting embeddings: %w", err)
	}
	info.SymbolCount = embeddingCount

	if newest, err := metadata.MaxLastModified(ctx); err == nil {
		info.UpdatedAt = newest
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	if st, err := os.Stat(metadataPath); err == nil {
		info.IndexSizeBytes = st.Size()
		info.CreatedAt = st.ModTime()
	}
	info.BM25SizeBytes = info.IndexSizeBytes // FTS5 tables live inside metadata.db
	info.VectorSizeBytes = getDirSize(filepath.Join(dataDir, "vectors.hnsw"))
	if info.VectorSizeBytes == 0 {
		if st, err := os.Stat(filepath.Join(dataDir, "vectors.hnsw")); err == nil {
			info.VectorSizeBytes = st.Size()
		}
	}

	if state, err := metadata.GetState(ctx, "embedding_model"); err == nil && state != "" {
		info.IndexModel = state
		info.IndexBackend = inferBackendFromModel(state)
	}
	if dims, err := metadata.GetState(ctx, "embedding_dimensions"); err == nil && dims != "" {
		fmt.Sscanf(dims, "%d", &info.IndexDimensions)
	}

	if embedderInput != nil {
		info.CurrentModel = embedderInput.Model
		info.CurrentBackend = embedderInput.Backend
		info.CurrentDimensions = embedderInput.Dimensions

		if info.IndexDimensions > 0 {
			info.Compatible = info.IndexDimensions == info.CurrentDimensions
		}
	}

	return info, nil
}

// FormatBytes renders a byte count the way the index_status MCP tool
// reports workspace disk usage.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

// FormatTime renders a timestamp for index_status output, reporting
// "unknown" for a zero value rather than the year-1 default.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// inferBackendFromModel guesses which embedding backend produced a model
// tag recorded in WorkspaceEmbeddingState, for display purposes only —
// the authoritative backend selection lives in internal/embed.
func inferBackendFromModel(model string) string {
	lower := strings.ToLower(model)
	if lower == "static" || lower == "static768" {
		return "static"
	}
	if filepath.IsAbs(model) || containsAny(lower, []string{"mlx-community/", "mlx-", "/mlx/"}) {
		return "mlx"
	}
	return "ollama"
}

// getDirSize sums file sizes under root, used by index_status to report
// on-disk footprint of a workspace's .julie directory. Returns 0 for a
// nonexistent or unreadable path rather than erroring, since this is
// purely informational.
func getDirSize(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
