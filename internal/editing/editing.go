// Package editing implements the safe editing primitives: edit_lines,
// fuzzy_replace, and rename_symbol. Writes are atomic temp-file+rename
// (the same pattern internal/store/hnsw.go and internal/session/storage.go
// use for persistence) and failures surface as structured errors from
// internal/errors.
package editing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	julieerrors "github.com/juliehq/julie/internal/errors"
	"github.com/juliehq/julie/internal/pathutil"
	"github.com/juliehq/julie/internal/store"
)

// Editor applies the Safe Editing Primitives against one workspace's
// MetadataStore, so a successful edit can invalidate the affected File
// row's hash.
type Editor struct {
	WorkspaceRoot string
	Store         store.MetadataStore
}

// New constructs an Editor scoped to workspaceRoot.
func New(workspaceRoot string, st store.MetadataStore) *Editor {
	return &Editor{WorkspaceRoot: workspaceRoot, Store: st}
}

// LineOp is the operation kind for EditLines.
type LineOp string

const (
	LineOpInsert  LineOp = "insert"
	LineOpReplace LineOp = "replace"
	LineOpDelete  LineOp = "delete"
)

// EditLinesRequest is the argument set for EditLines.
type EditLinesRequest struct {
	FilePath string
	Op       LineOp
	// Start/End are 1-indexed, inclusive line numbers. For Insert, Start is
	// the line the new content is inserted before (Start == lineCount+1
	// appends at end of file); End is ignored.
	Start, End int
	Content    string
	DryRun     bool
}

// EditResult is the outcome of any edit primitive: the unified before/after
// preview plus whether it was actually written.
type EditResult struct {
	FilePath string
	Applied  bool
	Preview  string // the resulting file content (proposed or applied)
	Summary  string
}

// EditLines performs a line-indexed insert/replace/delete. Default
// dry_run=true: the caller must set DryRun=false to write.
func (e *Editor) EditLines(ctx context.Context, req EditLinesRequest) (*EditResult, error) {
	abs, lines, err := e.readLines(req.FilePath)
	if err != nil {
		return nil, err
	}

	if req.Start < 1 || (req.Op != LineOpInsert && req.Start > len(lines)) {
		return nil, validationError("start line out of range", req.FilePath).
			WithDetail("start", fmt.Sprintf("%d", req.Start)).
			WithDetail("line_count", fmt.Sprintf("%d", len(lines)))
	}

	var result []string
	switch req.Op {
	case LineOpInsert:
		insertAt := req.Start - 1
		if insertAt < 0 || insertAt > len(lines) {
			return nil, validationError("insert position out of range", req.FilePath)
		}
		result = append(result, lines[:insertAt]...)
		result = append(result, splitContentLines(req.Content)...)
		result = append(result, lines[insertAt:]...)
	case LineOpReplace:
		end := req.End
		if end < req.Start {
			end = req.Start
		}
		if end > len(lines) {
			return nil, validationError("end line out of range", req.FilePath)
		}
		result = append(result, lines[:req.Start-1]...)
		result = append(result, splitContentLines(req.Content)...)
		result = append(result, lines[end:]...)
	case LineOpDelete:
		end := req.End
		if end < req.Start {
			end = req.Start
		}
		if end > len(lines) {
			return nil, validationError("end line out of range", req.FilePath)
		}
		result = append(result, lines[:req.Start-1]...)
		result = append(result, lines[end:]...)
	default:
		return nil, validationError("unknown edit_lines op: "+string(req.Op), req.FilePath)
	}

	newContent := strings.Join(result, "\n")
	if len(lines) > 0 {
		newContent += "\n"
	}

	return e.finish(ctx, req.FilePath, abs, newContent, req.DryRun,
		fmt.Sprintf("%s lines %d-%d in %s", req.Op, req.Start, req.End, req.FilePath))
}

func (e *Editor) readLines(relOrAbsPath string) (abs string, lines []string, err error) {
	abs, err = e.resolvePath(relOrAbsPath)
	if err != nil {
		return "", nil, err
	}
	data, rerr := os.ReadFile(abs)
	if rerr != nil {
		return "", nil, julieerrors.New(julieerrors.ErrCodeFileNotFound, "cannot read file for edit", rerr).
			WithDetail("path", relOrAbsPath)
	}
	content := string(data)
	if content == "" {
		return abs, nil, nil
	}
	return abs, strings.Split(strings.TrimSuffix(content, "\n"), "\n"), nil
}

func (e *Editor) resolvePath(p string) (string, error) {
	rel, err := pathutil.Normalize(p, e.WorkspaceRoot)
	if err != nil {
		return "", err
	}
	return pathutil.ResolveForRead(rel, e.WorkspaceRoot)
}

// finish writes newContent (unless dryRun), invalidates the File row's
// hash on a real write, and builds the EditResult.
func (e *Editor) finish(ctx context.Context, reqPath, abs, newContent string, dryRun bool, summary string) (*EditResult, error) {
	if dryRun {
		return &EditResult{FilePath: reqPath, Applied: false, Preview: newContent, Summary: summary}, nil
	}

	if err := atomicWrite(abs, []byte(newContent)); err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeFilePermission, "failed to write edited file", err).
			WithDetail("path", reqPath)
	}

	e.invalidateFile(ctx, reqPath)

	return &EditResult{FilePath: reqPath, Applied: true, Preview: newContent, Summary: summary}, nil
}

// invalidateFile forces the next indexing pass to reprocess reqPath by
// clearing its stored hash. A failure to invalidate is not fatal to the
// edit itself — the file on disk is already correct — so it is swallowed
// here; a subsequent staleness check will still catch the stale row via
// its mtime.
func (e *Editor) invalidateFile(ctx context.Context, relPath string) {
	if e.Store == nil {
		return
	}
	norm, err := pathutil.Normalize(relPath, e.WorkspaceRoot)
	if err != nil {
		return
	}
	file, err := e.Store.GetFile(ctx, norm)
	if err != nil || file == nil {
		return
	}
	// Recommitting with an empty hash forces the staleness check
	// to treat this file as needing reindex regardless of mtime comparison.
	// Existing symbols are preserved (re-passed unchanged) rather than
	// wiped, so a reader between now and the next indexing pass still sees
	// the pre-edit definitions instead of nothing — stale is preferable to
	// empty, preserving the atomic-commit invariant.
	symbols, err := e.Store.GetSymbolsByFile(ctx, norm)
	if err != nil {
		return
	}
	file.ContentHash = ""
	_ = e.Store.CommitFile(ctx, file, symbols, nil, nil)
}

// atomicWrite implements the same temp-file + rename pattern the store
// and session layers use for durable writes: never an in-place
// overwrite, so a crash mid-write leaves the original file intact.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".julie-edit-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	info, statErr := os.Stat(path)
	mode := os.FileMode(0o644)
	if statErr == nil {
		mode = info.Mode()
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

func splitContentLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func validationError(message, path string) *julieerrors.JulieError {
	return julieerrors.New(julieerrors.ErrCodeEditValidation, message, nil).WithDetail("path", path)
}

// wordBoundaryPattern compiles a word-boundary regex for name, using
// regexp.QuoteMeta so names containing regex metacharacters (rare, but
// e.g. Scala operator identifiers) don't corrupt the pattern. Naive
// substring replacement would also rewrite longer identifiers that
// merely contain the old name.
func wordBoundaryPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}
