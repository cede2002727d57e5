package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/editing"
	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/engine"
	"github.com/juliehq/julie/internal/extract"
	"github.com/juliehq/julie/internal/index"
	"github.com/juliehq/julie/internal/logging"
	"github.com/juliehq/julie/internal/mcp"
	"github.com/juliehq/julie/internal/scanner"
	"github.com/juliehq/julie/internal/session"
	"github.com/juliehq/julie/internal/store"
	"github.com/juliehq/julie/internal/watcher"
	"github.com/juliehq/julie/internal/workspace"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		port      int
		sessionName string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Starts Julie's MCP server, exposing the Query Engine and Safe
Editing Primitives to MCP-aware clients over stdio.

Once the server starts, stdout carries ONLY JSON-RPC traffic.
All logging goes to the MCP log file (see 'julie debug' for its path).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if sessionName != "" {
				root, err := resolveServeRoot()
				if err != nil {
					return err
				}
				cfg, err := config.Load(root)
				if err != nil {
					cfg = config.NewConfig()
				}
				mgr, err := session.NewManager(session.ManagerConfig{
					StoragePath: cfg.Sessions.StoragePath,
					MaxSessions: cfg.Sessions.MaxSessions,
				})
				if err != nil {
					return err
				}
				sess, err := mgr.Open(sessionName, root)
				if err != nil {
					return err
				}
				return runServeWithSession(ctx, sess.Name, sess.ProjectPath, transport, port)
			}
			return runServe(ctx, transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio (only one currently supported)")
	cmd.Flags().IntVar(&port, "port", 0, "Port for network transports (unused for stdio)")
	cmd.Flags().StringVar(&sessionName, "session", "", "Run under a named session, pinning the project root across resumes")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level MCP logging")

	return cmd
}

// resolveServeRoot finds the project root from the current working directory.
func resolveServeRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		return cwd, nil
	}
	return root, nil
}

// verifyStdinForMCP warns (but never blocks) when stdin looks like an
// interactive terminal rather than a client's pipe — MCP clients always
// connect via pipe, so a terminal almost certainly means the user invoked
// `julie serve` by hand.
func verifyStdinForMCP() error {
	info, err := os.Stdin.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat stdin: %w", err)
	}
	if (info.Mode() & os.ModeCharDevice) != 0 {
		return fmt.Errorf("stdin is a terminal, not a pipe — MCP clients connect via stdio pipe; run this command from an MCP-aware client instead")
	}
	return nil
}

// runServe starts the MCP server rooted at the current working directory's
// project root.
func runServe(ctx context.Context, transport string, port int) error {
	root, err := resolveServeRoot()
	if err != nil {
		return err
	}
	return serveProject(ctx, root, transport, port)
}

// runServeWithSession starts the MCP server for a named session pinned to
// projectPath, used by both `serve --session` and `resume`.
func runServeWithSession(ctx context.Context, sessionName, projectPath string, transport string, port int) error {
	return serveProject(ctx, projectPath, transport, port)
}

// serveProject wires Store/Vectors/Embedder/Coordinator/Engine/Editor
// exactly as runIndex does, constructs the MCP server, and starts a
// non-blocking background watcher before handing control to the MCP
// transport loop. No output may reach stdout before this point.
func serveProject(ctx context.Context, root, transport string, port int) error {
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanup()

	if err := verifyStdinForMCP(); err != nil {
		slog.Warn("stdin_check", slog.String("warning", err.Error()))
	}

	dataDir := filepath.Join(root, ".julie")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	wlock, err := workspace.AcquireWriteLock(dataDir)
	if err != nil {
		return err
	}
	defer func() { _ = wlock.Release() }()

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	// Reconcile the registry's embedding status against what the store
	// actually holds before anything trusts it.
	if reg, regErr := workspace.Load(dataDir); regErr == nil {
		embCount, _ := metadata.CountEmbeddings(ctx)
		reg.ReconcileEmbedding(filepath.Base(root), embCount)
		reg.Touch(filepath.Base(root))
		if saveErr := reg.Save(); saveErr != nil {
			slog.Warn("workspace_registry_save_failed", slog.String("error", saveErr.Error()))
		}
	}

	thermalCfg := embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
	embed.SetThermalConfig(thermalCfg)
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		slog.Warn("embedder_unavailable_falling_back_to_content_search", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
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

	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		WorkspaceRoot:   root,
		Store:           metadata,
		Scanner:         sc,
		Extractor:       extractor,
		ExcludePatterns: cfg.Paths.Exclude,
	})
	defer func() { _ = coordinator.Close() }()

	queryEngine := engine.New(root, metadata, vectors, embedder)
	editor := editing.New(root, metadata)

	server, err := mcp.NewServer(queryEngine, metadata, embedder, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	server.SetEditor(editor)

	startWatcher(ctx, root, coordinator)

	return server.Serve(ctx, transport, portAddr(port))
}

// startWatcher launches the file watcher on its own goroutine so a slow
// filesystem never delays the MCP handshake. Its startup timeout
// is configurable via JULIE_WATCHER_STARTUP_TIMEOUT purely so it has a
// bound of its own; that timeout is never awaited by the caller.
func startWatcher(ctx context.Context, root string, coordinator *index.Coordinator) {
	startupTimeout := 5 * time.Second
	if v := os.Getenv("JULIE_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			startupTimeout = d
		}
	}

	go func() {
		startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()

		w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
		if err != nil {
			slog.Warn("watcher_init_failed", slog.String("error", err.Error()))
			return
		}
		if err := w.Start(startCtx, root); err != nil {
			slog.Warn("watcher_start_failed", slog.String("error", err.Error()))
			return
		}
		defer func() { _ = w.Stop() }()

		slog.Info("watcher_started", slog.String("root", root))

		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				if err := coordinator.HandleEvents(ctx, batch); err != nil {
					slog.Warn("watcher_event_handling_failed", slog.String("error", err.Error()))
				}
			case err, ok := <-w.Errors():
				if !ok {
					continue
				}
				slog.Warn("watcher_error", slog.String("error", err.Error()))
			}
		}
	}()
}

// portAddr renders a port flag into the addr string Server.Serve expects
// for non-stdio transports; stdio ignores it entirely.
func portAddr(port int) string {
	if port <= 0 {
		return ""
	}
	return fmt.Sprintf(":%d", port)
}
