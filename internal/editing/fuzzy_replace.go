package editing

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	julieerrors "github.com/juliehq/julie/internal/errors"
	"github.com/juliehq/julie/internal/pathutil"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// FuzzyReplaceRequest is the argument set for fuzzy_replace:
// locate occurrences of pattern approximately (diff-match-patch), score
// candidates by Levenshtein similarity, and only replace matches at or
// above threshold, after validating bracket balance of the result.
type FuzzyReplaceRequest struct {
	FileOrGlob  string
	Pattern     string
	Replacement string
	// Threshold is the minimum normalized Levenshtein similarity ([0,1])
	// a candidate match must reach to be replaced.
	Threshold float64
	DryRun    bool
}

// FuzzyMatch describes one located-and-scored candidate within a file.
type FuzzyMatch struct {
	FilePath   string
	Location   int // rune offset into the file content
	Matched    string
	Similarity float64
}

// FuzzyReplaceResult is the outcome across every file the glob matched.
type FuzzyReplaceResult struct {
	Results []*EditResult
	Matches []FuzzyMatch
}

// FuzzyReplace locates an approximate match of a pattern and replaces it.
func (e *Editor) FuzzyReplace(ctx context.Context, req FuzzyReplaceRequest) (*FuzzyReplaceResult, error) {
	if req.Pattern == "" {
		return nil, validationError("fuzzy_replace pattern must not be empty", req.FileOrGlob)
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}

	files, err := e.expandGlob(req.FileOrGlob)
	if err != nil {
		return nil, err
	}

	out := &FuzzyReplaceResult{}
	dmp := diffmatchpatch.New()

	for _, relPath := range files {
		abs, err := e.resolvePath(relPath)
		if err != nil {
			continue
		}
		_, lines, err := e.readLines(relPath)
		if err != nil {
			continue
		}
		content := strings.Join(lines, "\n")

		loc := dmp.MatchMain(content, req.Pattern, 0)
		if loc < 0 {
			continue
		}

		matched := matchedSpan(content, loc, len([]rune(req.Pattern)))
		similarity := normalizedSimilarity(matched, req.Pattern)
		if similarity < threshold {
			continue
		}

		out.Matches = append(out.Matches, FuzzyMatch{
			FilePath:   relPath,
			Location:   loc,
			Matched:    matched,
			Similarity: similarity,
		})

		newContent := replaceSpan(content, loc, len([]rune(matched)), req.Replacement)
		if len(lines) > 0 {
			newContent += "\n"
		}
		if !bracketsBalanced(newContent) {
			return nil, julieerrors.New(julieerrors.ErrCodeEditValidation,
				"fuzzy_replace result would unbalance brackets/braces/parens", nil).
				WithDetail("path", relPath)
		}

		res, err := e.finish(ctx, relPath, abs, newContent, req.DryRun,
			"fuzzy_replace in "+relPath)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, res)
	}

	return out, nil
}

// expandGlob resolves fileOrGlob, which may be a plain workspace-relative
// path or a glob pattern, to the set of matching workspace-relative paths,
// applying the same Path Normalizer security check to every hit.
func (e *Editor) expandGlob(fileOrGlob string) ([]string, error) {
	abs := fileOrGlob
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.WorkspaceRoot, fileOrGlob)
	}

	matches, err := filepath.Glob(abs)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInvalidPath, "invalid glob pattern", err).
			WithDetail("pattern", fileOrGlob)
	}
	if len(matches) == 0 {
		// Not a glob, or a glob that matched nothing: treat as a literal
		// path so a single-file caller still gets a clear not-found error
		// downstream rather than a silent no-op.
		matches = []string{abs}
	}

	var out []string
	for _, m := range matches {
		rel, err := pathutil.Normalize(m, e.WorkspaceRoot)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// matchedSpan extracts up to runeLen runes starting at the rune offset
// loc, with all slicing kept on rune boundaries.
func matchedSpan(content string, loc, runeLen int) string {
	runes := []rune(content)
	if loc < 0 || loc >= len(runes) {
		return ""
	}
	end := loc + runeLen
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[loc:end])
}

// replaceSpan substitutes the runeLen runes starting at loc with
// replacement, operating on rune slices throughout.
func replaceSpan(content string, loc, runeLen int, replacement string) string {
	runes := []rune(content)
	if loc < 0 || loc > len(runes) {
		return content
	}
	end := loc + runeLen
	if end > len(runes) {
		end = len(runes)
	}
	var b strings.Builder
	b.WriteString(string(runes[:loc]))
	b.WriteString(replacement)
	b.WriteString(string(runes[end:]))
	return b.String()
}

// normalizedSimilarity scores a and b with agnivade/levenshtein,
// normalized to [0,1] by the longer string's rune length.
func normalizedSimilarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// bracketsBalanced validates (), {}, [] balance, skipping characters
// inside string/char literals and line comments so the check doesn't trip
// on a stray bracket in a string constant or comment. This is a
// lightweight lexical scan, not a full parser; it runs before any
// replacement is committed.
func bracketsBalanced(content string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}

	runes := []rune(content)
	var inString rune
	var inLineComment bool

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inLineComment {
			if r == '\n' {
				inLineComment = false
			}
			continue
		}
		if inString != 0 {
			if r == '\\' && i+1 < len(runes) {
				i++
				continue
			}
			if r == inString {
				inString = 0
			}
			continue
		}

		switch r {
		case '"', '\'', '`':
			inString = r
		case '/':
			if i+1 < len(runes) && runes[i+1] == '/' {
				inLineComment = true
			}
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}

	return len(stack) == 0
}
