package editing

import (
	"context"
	"fmt"
	"strings"

	julieerrors "github.com/juliehq/julie/internal/errors"
	"github.com/juliehq/julie/internal/store"
)

// RenameScope is the blast radius for rename_symbol.
type RenameScope struct {
	// Workspace, when true, renames every occurrence in the workspace.
	// Otherwise File must name a single workspace-relative path.
	Workspace bool
	File      string
}

// RenameSymbolRequest is the argument set for rename_symbol.
type RenameSymbolRequest struct {
	Old, New      string
	Scope         RenameScope
	UpdateImports bool
	DryRun        bool
}

// RenameSymbolResult reports what rename_symbol changed (or would change).
type RenameSymbolResult struct {
	Results []*EditResult
	// OccurrencesByFile counts replaced occurrences per workspace-relative
	// path, for callers that want a summary without diffing Results.
	OccurrencesByFile map[string]int
}

// RenameSymbol renames a symbol across its scope: find every
// occurrence of old via the identifier table, apply atomic per-file
// replacements with a word-boundary regex (never naive string
// substitution), and optionally update import statements the same way.
// Without UpdateImports, lines holding import-site occurrences are
// skipped during replacement, so a file that both imports and uses the
// name keeps its import statement intact.
func (e *Editor) RenameSymbol(ctx context.Context, req RenameSymbolRequest) (*RenameSymbolResult, error) {
	if req.Old == "" || req.New == "" {
		return nil, validationError("rename_symbol requires non-empty old and new names", req.Scope.File)
	}
	if e.Store == nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "rename_symbol requires a metadata store", nil)
	}

	// All occurrence kinds are fetched; import sites are separated out
	// below rather than filtered away, because their line numbers are
	// needed to exclude them from the rewrite.
	identifiers, err := e.Store.GetIdentifiersByName(ctx, req.Old, nil, 0)
	if err != nil {
		return nil, err
	}

	filesToEdit := make(map[string]bool)
	importLines := make(map[string]map[int]bool)
	for _, id := range identifiers {
		if !req.Scope.Workspace && id.FilePath != normalizedScopeFile(req.Scope.File) {
			continue
		}
		if id.Kind == store.IdentifierImportSite && !req.UpdateImports {
			// An import-only file has nothing else to rename; it must not
			// be pulled into filesToEdit at all.
			if importLines[id.FilePath] == nil {
				importLines[id.FilePath] = make(map[int]bool)
			}
			importLines[id.FilePath][id.Line] = true
			continue
		}
		filesToEdit[id.FilePath] = true
	}

	// Definitions themselves must also be renamed even when they have no
	// recorded "identifier" occurrence at their own declaration site.
	symbols, err := e.Store.SearchSymbolsByName(ctx, []string{req.Old}, 0)
	if err != nil {
		return nil, err
	}
	for _, sym := range symbols {
		if !req.Scope.Workspace && sym.FilePath != normalizedScopeFile(req.Scope.File) {
			continue
		}
		filesToEdit[sym.FilePath] = true
	}

	pattern := wordBoundaryPattern(req.Old)
	result := &RenameSymbolResult{OccurrencesByFile: make(map[string]int)}

	for relPath := range filesToEdit {
		abs, err := e.resolvePath(relPath)
		if err != nil {
			continue
		}
		_, lines, err := e.readLines(relPath)
		if err != nil {
			continue
		}

		skip := importLines[relPath]
		count := 0
		out := make([]string, len(lines))
		for i, line := range lines {
			if skip[i+1] {
				out[i] = line
				continue
			}
			n := len(pattern.FindAllStringIndex(line, -1))
			if n == 0 {
				out[i] = line
				continue
			}
			count += n
			out[i] = pattern.ReplaceAllLiteralString(line, req.New)
		}
		if count == 0 {
			continue
		}

		newContent := strings.Join(out, "\n")
		if len(lines) > 0 {
			newContent += "\n"
		}

		res, err := e.finish(ctx, relPath, abs, newContent, req.DryRun,
			fmt.Sprintf("renamed %d occurrence(s) of %q to %q in %s", count, req.Old, req.New, relPath))
		if err != nil {
			return nil, err
		}
		result.Results = append(result.Results, res)
		result.OccurrencesByFile[relPath] = count
	}

	return result, nil
}

func normalizedScopeFile(f string) string {
	return strings.TrimPrefix(f, "file:")
}
