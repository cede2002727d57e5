package index

import (
	"context"
	"log/slog"
	"time"

	julieerrors "github.com/juliehq/julie/internal/errors"
	"github.com/juliehq/julie/internal/extract"
	"github.com/juliehq/julie/internal/scanner"
	"github.com/juliehq/julie/internal/store"
	"github.com/juliehq/julie/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxFileSize is the default maximum file size to index (100MB);
// larger files are skipped to bound extraction memory.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// CoordinatorConfig configures a Coordinator for one workspace.
type CoordinatorConfig struct {
	WorkspaceRoot   string
	Store           store.MetadataStore
	Scanner         *scanner.Scanner
	Extractor       *extract.Extractor
	ExcludePatterns []string
	MaxFileSize     int64
	// Workers bounds the errgroup fan-out over files during discovery
	// and extraction. 0 selects a sane default.
	Workers int
}

// Coordinator turns full-workspace scans and watcher.FileEvents into
// per-file Runner work, and owns the orphan-cleanup and
// staleness-detection logic. Writes to the store are serialized per
// workspace: a Coordinator's own
// methods do not run concurrently with each other, though the per-file
// extraction work they fan out internally does.
type Coordinator struct {
	config CoordinatorConfig
	runner *Runner
}

// NewCoordinator constructs a Coordinator bound to config.WorkspaceRoot.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	return &Coordinator{
		config: config,
		runner: NewRunner(config.WorkspaceRoot, config.Store, config.Extractor),
	}
}

func (c *Coordinator) maxFileSize() int64 {
	if c.config.MaxFileSize > 0 {
		return c.config.MaxFileSize
	}
	return DefaultMaxFileSize
}

func (c *Coordinator) workers() int {
	if c.config.Workers > 0 {
		return c.config.Workers
	}
	return 8
}

// FullIndexResult summarizes one discovery-to-commit pass.
type FullIndexResult struct {
	Discovered int
	Indexed    int
	Skipped    int
	Removed    int
	Errors     []string
}

// FullIndex runs discovery followed by parse-extract-commit for every
// discovered file, then orphan
// cleanup. It is used both for the initial index and for a forced
// re-index (e.g. after a schema or grammar version bump).
func (c *Coordinator) FullIndex(ctx context.Context) (*FullIndexResult, error) {
	discovered, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	result := &FullIndexResult{Discovered: len(discovered)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())

	type outcome struct {
		fo  *FileOutcome
		err error
	}
	outcomes := make(chan outcome, len(discovered))

	for _, fi := range discovered {
		fi := fi
		g.Go(func() error {
			fo, ferr := c.runner.IndexFile(gctx, fi.Path, fi.Language)
			outcomes <- outcome{fo: fo, err: ferr}
			return nil // collect errors per-file rather than aborting the whole pass
		})
	}

	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		switch {
		case o.err != nil:
			result.Errors = append(result.Errors, o.err.Error())
		case o.fo.Skipped:
			result.Skipped++
		default:
			result.Indexed++
			result.Errors = append(result.Errors, o.fo.Errors...)
		}
	}

	removed, err := c.cleanupOrphans(ctx, discovered)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Removed = removed

	return result, nil
}

// discover streams discoverable files through
// internal/scanner (which already applies default excludes, gitignore,
// binary/generated detection, submodule traversal) and collect them with
// their detected language.
func (c *Coordinator) discover(ctx context.Context) ([]*scanner.FileInfo, error) {
	if c.config.Scanner == nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "coordinator has no scanner configured", nil)
	}

	opts := &scanner.ScanOptions{
		RootDir:          c.config.WorkspaceRoot,
		ExcludePatterns:  c.config.ExcludePatterns,
		RespectGitignore: true,
		MaxFileSize:      c.maxFileSize(),
	}

	results, err := c.config.Scanner.Scan(ctx, opts)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "scan failed", err)
	}

	var files []*scanner.FileInfo
	for res := range results {
		if res.Error != nil {
			slog.Warn("scan error", slog.String("error", res.Error.Error()))
			continue
		}
		if res.File == nil || res.File.Language == "" {
			continue
		}
		files = append(files, res.File)
	}
	return files, nil
}

// cleanupOrphans deletes File rows (and everything
// keyed by their path) whose path is no longer among the discovered
// files.
func (c *Coordinator) cleanupOrphans(ctx context.Context, discovered []*scanner.FileInfo) (int, error) {
	onDisk := make(map[string]bool, len(discovered))
	for _, fi := range discovered {
		onDisk[fi.Path] = true
	}

	stored, err := c.config.Store.ListFilePaths(ctx)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, path := range stored {
		if onDisk[path] {
			continue
		}
		if err := c.runner.RemoveFile(ctx, path); err != nil {
			slog.Warn("failed to remove orphaned file", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}

// NeedsReindex runs the three ordered startup staleness checks, delegating
// to MetadataStore.Staleness so the decision stays co-located with the
// store that can answer it cheaply (empty check, missing-file check,
// mtime check are all store-local queries).
func (c *Coordinator) NeedsReindex(ctx context.Context) (store.StaleCheck, error) {
	discovered, err := c.discover(ctx)
	if err != nil {
		return store.StaleCheck{}, err
	}

	var newest time.Time
	paths := make([]string, 0, len(discovered))
	for _, fi := range discovered {
		paths = append(paths, fi.Path)
		if fi.ModTime.After(newest) {
			newest = fi.ModTime
		}
	}

	return c.config.Store.Staleness(ctx, paths, newest)
}

// HandleEvents applies incremental file-watch events:
// apply the same per-file atomic commit used by FullIndex to every
// create/modify/delete event. Debouncing itself lives in
// internal/watcher's debouncer, upstream of this method.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	var firstErr error
	for _, event := range events {
		if event.IsDir {
			continue
		}
		if err := c.handleEvent(ctx, event); err != nil {
			slog.Warn("failed to process file event",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		language := scanner.DetectLanguage(event.Path)
		if language == "" {
			return nil
		}
		_, err := c.runner.IndexFile(ctx, event.Path, language)
		return err
	case watcher.OpDelete:
		return c.runner.RemoveFile(ctx, event.Path)
	case watcher.OpRename:
		// The watcher emits rename as delete+create; nothing to
		// do here directly.
		return nil
	case watcher.OpGitignoreChange, watcher.OpConfigChange:
		// A change to .gitignore or .julie.yaml can move files in or out
		// of scope in ways no single-path diff captures correctly, so the
		// pipeline reconciles by re-running discovery and cleanup. The
		// scanner's gitignore-matcher LRU cache makes a full re-scan
		// fast enough that diffing subtrees isn't worth the complexity.
		_, err := c.FullIndex(ctx)
		return err
	default:
		return nil
	}
}

// Close releases the Coordinator's Runner resources.
func (c *Coordinator) Close() error {
	return c.runner.Close()
}
