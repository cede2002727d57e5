package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/engine"
	"github.com/juliehq/julie/internal/store"
)

// projectState holds one project's lazily-loaded stores and query engine,
// kept warm so repeat searches skip the metadata.db/vectors.hnsw open cost.
type projectState struct {
	rootPath string
	metadata store.MetadataStore
	vector   store.VectorStore
	engine   *engine.Engine

	loadedAt time.Time
	lastUsed time.Time
}

// Close releases the project's stores. Safe to call on a zero-value state
// (nil metadata/vector), which only happens in tests that construct a
// projectState directly without going through getOrLoadProject.
func (p *projectState) Close() error {
	var firstErr error
	if p.metadata != nil {
		if err := p.metadata.Close(); err != nil {
			firstErr = err
		}
	}
	if p.vector != nil {
		if err := p.vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Option configures a Daemon at construction time.
type Option func(*Daemon)

// WithEmbedder overrides the embedder the daemon uses for semantic search.
// Tests use this to inject a mock embedder and skip the Ollama/MLX
// initialization cost.
func WithEmbedder(e embed.Embedder) Option {
	return func(d *Daemon) { d.embedder = e }
}

// Daemon implements RequestHandler, keeping the embedder and a bounded set
// of per-project stores warm so CLI searches skip cold-start cost. The
// indexing pipeline loads the embedder once per process; the daemon
// extends the same idea to queries.
type Daemon struct {
	config  Config
	embedder embed.Embedder
	pidFile *PIDFile
	server  *Server
	started time.Time

	mu       sync.RWMutex
	projects map[string]*projectState

	compaction *CompactionManager
}

// NewDaemon validates cfg and constructs a Daemon. The embedder defaults to
// nil (semantic search degrades gracefully to content-only) unless
// overridden with WithEmbedder.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		config:   cfg,
		pidFile:  NewPIDFile(cfg.PIDPath),
		projects: make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.compaction = NewCompactionManager(d, config.NewConfig().Compaction)

	return d, nil
}

// Start runs the daemon until ctx is cancelled: writes the PID file, cleans
// up any stale socket, listens for connections, and runs background
// compaction. Returns ctx.Err() on clean shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.config.EnsureDir(); err != nil {
		return err
	}

	// A stale PID/socket from a crashed prior daemon must not block
	// startup; overwrite both unconditionally (server.ListenAndServe
	// already removes a stale socket file before listening).
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	d.server, _ = NewServer(d.config.SocketPath)
	d.server.SetHandler(d)
	d.started = time.Now()

	d.compaction.Start(ctx)
	defer d.compaction.Stop()
	defer d.cleanup()

	slog.Info("daemon started", slog.String("socket", d.config.SocketPath), slog.Int("pid", os.Getpid()))

	err := d.server.ListenAndServe(ctx)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// cleanup releases every loaded project and drops the embedder reference,
// run on daemon shutdown.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, st := range d.projects {
		if err := st.Close(); err != nil {
			slog.Warn("project cleanup failed", slog.String("project", path), slog.String("error", err.Error()))
		}
	}
	d.projects = make(map[string]*projectState)
	d.embedder = nil
}

// evictLRU drops the least-recently-used project once the daemon is at or
// over MaxProjects, per the LRU eviction documented on Config.MaxProjects.
func (d *Daemon) evictLRU() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.projects) < d.config.MaxProjects {
		return
	}

	var oldestPath string
	var oldestTime time.Time
	first := true
	for path, st := range d.projects {
		if first || st.lastUsed.Before(oldestTime) {
			oldestPath, oldestTime, first = path, st.lastUsed, false
		}
	}
	if oldestPath == "" {
		return
	}

	if st, ok := d.projects[oldestPath]; ok {
		if err := st.Close(); err != nil {
			slog.Warn("evicted project cleanup failed", slog.String("project", oldestPath), slog.String("error", err.Error()))
		}
	}
	delete(d.projects, oldestPath)
}

// getOrLoadProject returns the warm projectState for rootPath, loading it
// from disk (and evicting the LRU entry first, if at capacity) on a cold
// miss. Returns an error if no index exists at rootPath.
func (d *Daemon) getOrLoadProject(ctx context.Context, rootPath string) (*projectState, error) {
	d.mu.RLock()
	st, ok := d.projects[rootPath]
	d.mu.RUnlock()
	if ok {
		d.mu.Lock()
		st.lastUsed = time.Now()
		d.mu.Unlock()
		return st, nil
	}

	dataDir := filepath.Join(rootPath, ".julie")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); err != nil {
		return nil, fmt.Errorf("no index found at %s: run 'julie index'", rootPath)
	}

	d.evictLRU()

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	dims := 768
	if d.embedder != nil {
		dims = d.embedder.Dimensions()
	}
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if err := vectors.Load(filepath.Join(dataDir, "vectors.hnsw")); err != nil {
		slog.Debug("vector_store_fresh", slog.String("project", rootPath))
	}

	eng := engine.New(rootPath, metadata, vectors, d.embedder)

	now := time.Now()
	st = &projectState{
		rootPath: rootPath,
		metadata: metadata,
		vector:   vectors,
		engine:   eng,
		loadedAt: now,
		lastUsed: now,
	}

	d.mu.Lock()
	d.projects[rootPath] = st
	d.mu.Unlock()

	return st, nil
}

// HandleSearch implements RequestHandler. It loads (or reuses) the target
// project's store, dispatches to the query engine, and converts the
// results to the wire SearchResult shape.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	d.compaction.InterruptCompaction(params.RootPath)

	st, err := d.getOrLoadProject(ctx, params.RootPath)
	if err != nil {
		return nil, err
	}

	mode := engine.ModeHybrid
	if params.BM25Only {
		mode = engine.ModeContent
	}

	limit := params.Limit
	if limit <= 0 {
		limit = engine.DefaultLimit
	}

	resp, err := st.engine.Search(ctx, params.Query, mode, engine.Filters{
		Language: params.Language,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		sr := SearchResult{
			FilePath: r.FilePath,
			Score:    r.Score,
			Content:  r.ContextText,
		}
		if sr.Content == "" {
			sr.Content = r.CodeContext
		}
		if r.Symbol != nil {
			sr.Language = r.Symbol.Language
			sr.StartLine = r.Symbol.StartLine
			sr.EndLine = r.Symbol.EndLine
		} else {
			sr.StartLine = r.Line
			sr.EndLine = r.Line
		}
		results = append(results, sr)
	}

	d.compaction.OnSearchComplete(params.RootPath)

	return results, nil
}

// GetStatus implements RequestHandler.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		EmbedderType:   "unavailable",
		EmbedderStatus: "unavailable",
		ProjectsLoaded: len(d.projects),
	}

	if d.embedder != nil {
		status.EmbedderType = d.embedder.ModelName()
		status.EmbedderStatus = "ready"
	}

	return status
}
