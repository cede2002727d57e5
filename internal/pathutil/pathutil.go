// Package pathutil canonicalizes file paths to the workspace-relative,
// POSIX-separator form used throughout the structured store, and
// enforces the path-traversal security invariant required at every edit
// entry point.
//
// Path safety could live inline at each call site — discovery
// canonicalization, MCP tool boundaries — but every caller needs the
// identical guarantee, so it is consolidated here. The implementation
// is the standard idiom (filepath.EvalSymlinks, filepath.Rel,
// filepath.ToSlash) in one place so every caller gets the identical
// guarantee.
package pathutil

import (
	"path/filepath"
	"strings"

	julieerrors "github.com/juliehq/julie/internal/errors"
)

// Normalize canonicalizes an absolute or relative path to its
// workspace-relative, POSIX-separator form. The input may be absolute,
// relative with "." or "..", or already relative with platform
// separators. Symlinks are resolved when the target exists; for
// non-existent targets (about-to-be-created files) only the parent
// directory is canonicalized and the final segment is joined lexically.
func Normalize(path, workspaceRoot string) (string, error) {
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "cannot resolve workspace root", err)
	}
	canonRoot, err := canonicalizeExisting(absRoot)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "cannot canonicalize workspace root", err)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(absRoot, abs)
	}
	abs = filepath.Clean(abs)

	canonAbs, err := canonicalizeMaybeMissing(abs)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "cannot canonicalize path", err)
	}

	rel, err := filepath.Rel(canonRoot, canonAbs)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "path is not relative to workspace root", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pathSecurityError(path, workspaceRoot)
	}

	return filepath.ToSlash(rel), nil
}

// ResolveForRead converts a stored workspace-relative path back to an
// absolute filesystem path, verifying the canonicalized result still
// lives under workspaceRoot. This is the mandatory check at every edit
// entry point; a result outside workspaceRoot fails with a
// PathSecurityError rather than being silently clamped.
func ResolveForRead(storedRelative, workspaceRoot string) (string, error) {
	if filepath.IsAbs(storedRelative) {
		return "", pathSecurityError(storedRelative, workspaceRoot)
	}

	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "cannot resolve workspace root", err)
	}
	canonRoot, err := canonicalizeExisting(absRoot)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "cannot canonicalize workspace root", err)
	}

	native := filepath.FromSlash(storedRelative)
	joined := filepath.Clean(filepath.Join(canonRoot, native))

	canonJoined, err := canonicalizeMaybeMissing(joined)
	if err != nil {
		return "", julieerrors.New(julieerrors.ErrCodeInvalidPath, "cannot canonicalize path", err)
	}

	rel, err := filepath.Rel(canonRoot, canonJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", pathSecurityError(storedRelative, workspaceRoot)
	}

	return canonJoined, nil
}

// canonicalizeExisting resolves symlinks for a path that is expected to
// exist (the workspace root itself).
func canonicalizeExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// The workspace root may not exist yet in tests; fall back to the
		// cleaned absolute form rather than failing normalization outright.
		return filepath.Clean(path), nil
	}
	return filepath.Clean(resolved), nil
}

// canonicalizeMaybeMissing resolves symlinks for a path that may not yet
// exist on disk (e.g. a file about to be created by an edit). It walks up
// to the nearest existing ancestor, canonicalizes that, and rejoins the
// remaining (not-yet-existing) segments lexically.
func canonicalizeMaybeMissing(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return filepath.Clean(resolved), nil
	}

	// Walk up until we find an ancestor that exists.
	dir := filepath.Dir(path)
	var tail []string
	tail = append(tail, filepath.Base(path))
	for {
		resolvedDir, err := filepath.EvalSymlinks(dir)
		if err == nil {
			rejoined := resolvedDir
			for i := len(tail) - 1; i >= 0; i-- {
				rejoined = filepath.Join(rejoined, tail[i])
			}
			return filepath.Clean(rejoined), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding an existing ancestor;
			// fall back to the lexically cleaned path.
			return filepath.Clean(path), nil
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

func pathSecurityError(path, workspaceRoot string) error {
	return julieerrors.New(
		julieerrors.ErrCodePathTraversal,
		"path escapes workspace root",
		nil,
	).WithDetail("path", path).WithDetail("workspace_root", workspaceRoot).
		WithSuggestion("use a path inside the workspace root")
}
