package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/extract"
	"github.com/juliehq/julie/internal/index"
	"github.com/juliehq/julie/internal/logging"
	"github.com/juliehq/julie/internal/scanner"
	"github.com/juliehq/julie/internal/store"
	"github.com/juliehq/julie/internal/ui"
	"github.com/juliehq/julie/internal/workspace"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI   bool
		resume  bool
		force   bool
		backend string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory, extracting its Symbols/Identifiers/Relationships
and building the FTS and vector tiers used by search.

Backend Selection:
  (default)          Ollama on all platforms (MLX and static are opt-in)
  --backend=mlx      Use MLX (Apple Silicon, ~1.7x faster)
  --backend=ollama   Use Ollama (cross-platform)

Indexing is incremental by content hash, so re-running index is always
safe and cheap. Use --force to clear existing index data and rebuild
from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if force && resume {
				return fmt.Errorf("--force and --resume are mutually exclusive")
			}

			if backend != "" {
				os.Setenv("JULIE_EMBEDDER", backend)
			}

			return runIndex(ctx, cmd, path, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&resume, "resume", false, "Accepted for compatibility; indexing is always content-hash incremental")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), mlx, ollama, or static")

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

// clearIndexData removes all index-related files from the data directory.
// This preserves the .julie.yaml config file (which is at project root, not in dataDir).
func clearIndexData(dataDir string) error {
	indexFiles := []string{
		filepath.Join(dataDir, "metadata.db"),
		filepath.Join(dataDir, "metadata.db-shm"),
		filepath.Join(dataDir, "metadata.db-wal"),
		filepath.Join(dataDir, "bm25.bleve"),
		filepath.Join(dataDir, "bm25.db"),
		filepath.Join(dataDir, "bm25.db-wal"),
		filepath.Join(dataDir, "bm25.db-shm"),
		filepath.Join(dataDir, "vectors.hnsw"),
	}

	for _, path := range indexFiles {
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

// runIndexWithResume adapts runIndex for callers that also track offline
// and resume state. Indexing is always content-hash incremental, so resume
// is accepted for compatibility only (see the --resume flag help above).
// offline selects the static embedder, the same as --backend=static.
func runIndexWithResume(ctx context.Context, cmd *cobra.Command, path string, offline, noTUI, resume, force bool) error {
	if offline {
		os.Setenv("JULIE_EMBEDDER", "static")
	}
	return runIndex(ctx, cmd, path, noTUI, force)
}

// runIndexWithOptions adapts runIndex for callers that also track offline
// state and an embedding checkpoint. There is no checkpoint mechanism, so
// resumeFromCheckpoint/checkpointEmbedderModel are accepted but unused.
// offline selects the static embedder, the same as --backend=static.
func runIndexWithOptions(ctx context.Context, cmd *cobra.Command, path string, offline, noTUI bool, resumeFromCheckpoint int, checkpointEmbedderModel string) error {
	if offline {
		os.Setenv("JULIE_EMBEDDER", "static")
	}
	return runIndex(ctx, cmd, path, noTUI, false)
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noTUI bool, force bool) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".julie")

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared existing index data, starting fresh...\n")
		slog.Info("index_force_clear", slog.String("data_dir", dataDir))
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithProjectDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	wlock, err := workspace.AcquireWriteLock(dataDir)
	if err != nil {
		return err
	}
	defer func() { _ = wlock.Release() }()

	// Clean up stale serve.pid if process no longer exists
	servePidPath := filepath.Join(dataDir, "serve.pid")
	if pidData, err := os.ReadFile(servePidPath); err == nil {
		var pid int
		if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr == nil && pid > 0 {
			if process, findErr := os.FindProcess(pid); findErr == nil {
				if sigErr := process.Signal(syscall.Signal(0)); sigErr != nil {
					_ = os.Remove(servePidPath)
					slog.Debug("removed stale serve.pid", slog.Int("pid", pid))
				}
			}
		}
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	thermalCfg := embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
	if cfg.Embeddings.InterBatchDelay != "" {
		if delay, parseErr := time.ParseDuration(cfg.Embeddings.InterBatchDelay); parseErr == nil && delay > 0 {
			thermalCfg.InterBatchDelay = delay
		}
	}
	embed.SetThermalConfig(thermalCfg)
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Connecting to %s embedder...", provider),
	})

	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		return fmt.Errorf("embedder initialization failed: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vectors, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	if loadErr := vectors.Load(vectorPath); loadErr != nil {
		slog.Debug("vector_store_fresh", slog.String("path", vectorPath))
	}
	defer func() {
		if saveErr := vectors.Save(vectorPath); saveErr != nil {
			slog.Warn("vector_store_save_failed", slog.String("error", saveErr.Error()))
		}
		_ = vectors.Close()
	}()

	sc, err := scanner.New()
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	extractor := extract.New()
	defer extractor.Close()

	start := time.Now()
	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		WorkspaceRoot:   root,
		Store:           metadata,
		Scanner:         sc,
		Extractor:       extractor,
		ExcludePatterns: cfg.Paths.Exclude,
	})

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageExtracting, Message: "Extracting symbols..."})
	result, err := coordinator.FullIndex(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Message: "Generating embeddings..."})
	propagator := index.NewEmbeddingPropagator(metadata, vectors, embedder)
	propResult, err := propagator.Propagate(ctx)
	if err != nil {
		slog.Warn("embedding_propagation_failed", slog.String("error", err.Error()))
	}

	for _, e := range result.Errors {
		renderer.AddError(ui.ErrorEvent{Err: fmt.Errorf("%s", e)})
	}

	embeddedCount := 0
	if propResult != nil {
		embeddedCount = propResult.Embedded
	}

	renderer.Complete(ui.CompletionStats{
		Files:    result.Indexed,
		Symbols:  embeddedCount,
		Duration: time.Since(start),
		Errors:   len(result.Errors),
		Embedder: ui.EmbedderInfo{
			Backend:    string(provider),
			Model:      embedder.ModelName(),
			Dimensions: embedder.Dimensions(),
		},
	})

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files (%d skipped, %d removed)\n",
		result.Indexed, result.Skipped, result.Removed)

	refreshSymbolBM25(ctx, dataDir, cfg.Search.BM25Backend, metadata)
	updateWorkspaceRegistry(ctx, dataDir, root, metadata)

	return nil
}

// refreshSymbolBM25 rebuilds the standalone BM25 symbol index after an
// index pass. The FTS tables inside the structured store stay
// authoritative; this index is the alternate engine selected by
// search.bm25_backend, kept in lockstep with the embedded symbols so
// `julie doctor` can reconcile metadata, BM25, and vector stores
// against each other. Failures degrade to a warning — search never
// depends on this index being present.
func refreshSymbolBM25(ctx context.Context, dataDir, backend string, metadata store.MetadataStore) {
	embeddings, err := metadata.GetAllEmbeddings(ctx)
	if err != nil {
		slog.Warn("bm25_refresh_read_failed", slog.String("error", err.Error()))
		return
	}

	idx, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), backend)
	if err != nil {
		slog.Warn("bm25_refresh_open_failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = idx.Close() }()

	current := make(map[string]bool, len(embeddings))
	docs := make([]*store.Document, 0, len(embeddings))
	for _, ev := range embeddings {
		sym, err := metadata.GetSymbol(ctx, ev.SymbolID)
		if err != nil || sym == nil {
			continue
		}
		current[sym.ID] = true
		docs = append(docs, &store.Document{
			ID:      sym.ID,
			Content: strings.TrimSpace(sym.Name + "\n" + sym.Signature + "\n" + sym.DocComment),
		})
	}

	if stale, err := idx.AllIDs(); err == nil {
		var gone []string
		for _, id := range stale {
			if !current[id] {
				gone = append(gone, id)
			}
		}
		if len(gone) > 0 {
			if err := idx.Delete(ctx, gone); err != nil {
				slog.Warn("bm25_refresh_delete_failed", slog.String("error", err.Error()))
			}
		}
	}

	if err := idx.Index(ctx, docs); err != nil {
		slog.Warn("bm25_refresh_index_failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("bm25_refresh_complete", slog.Int("symbols", len(docs)))
}

// updateWorkspaceRegistry refreshes this workspace's registry entry
// after an index pass. Registry failures never fail the index; the
// registry is administrative metadata only.
func updateWorkspaceRegistry(ctx context.Context, dataDir, root string, metadata store.MetadataStore) {
	reg, err := workspace.Load(dataDir)
	if err != nil {
		slog.Warn("workspace_registry_load_failed", slog.String("error", err.Error()))
		return
	}

	fileCount, _ := metadata.CountFiles(ctx)
	embCount, _ := metadata.CountEmbeddings(ctx)
	status := store.EmbeddingNotStarted
	if embCount > 0 {
		status = store.EmbeddingReady
	}

	reg.Upsert(workspace.Entry{
		ID:           filepath.Base(root),
		OriginalPath: root,
		Role:         workspace.RolePrimary,
		SymbolCount:  embCount,
		FileCount:    fileCount,
		Embedding:    status,
	})
	if err := reg.Save(); err != nil {
		slog.Warn("workspace_registry_save_failed", slog.String("error", err.Error()))
	}
}
