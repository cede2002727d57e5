package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/juliehq/julie/internal/store"
)

// attachContext fills in r.CodeContext (and r.ContextText when
// filters.ContextLines > 0). Every result carries at least one line of
// source context, chosen by intelligent line selection rather than the
// raw FTS match line when that line is uninformative.
//
// startLine is the caller's best-known match line (a Symbol's
// StartLine); 0 means "unknown" (content-mode hits, where the FTS index
// doesn't report an offset) and triggers a query-token scan of the
// file's stored content to locate the best candidate line first.
func (e *Engine) attachContext(ctx context.Context, r *Result, query string, startLine int, filters Filters) {
	file, err := e.Store.GetFile(ctx, r.FilePath)
	if err != nil || file == nil || file.Content == "" {
		return
	}
	lines := strings.Split(file.Content, "\n")

	line := startLine
	if line <= 0 {
		line = locateBestLine(lines, query)
	}
	if line <= 0 || line > len(lines) {
		return
	}

	line = selectIntelligentLine(lines, line)
	r.Line = line
	if r.CodeContext == "" {
		r.CodeContext = strings.TrimRight(lines[line-1], "\r")
	}

	if filters.ContextLines > 0 {
		r.ContextText = formatContextWindow(lines, line, filters.ContextLines)
	}
}

// locateBestLine scans file content for the first line containing any
// query token, used when the FTS match itself carries no line number
// (content-mode hits).
func locateBestLine(lines []string, query string) int {
	tokens := store.TokenizeCode(query)
	if len(tokens) == 0 {
		return 0
	}
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, t := range tokens {
			if strings.Contains(lower, t) {
				return i + 1
			}
		}
	}
	return 0
}

// selectIntelligentLine picks the line to display: when the
// BM25-matched line is a lone bracket, a lone comment marker, or empty,
// it scans three lines either side for the nearest line that looks like
// a symbol definition or carries substantive content.
func selectIntelligentLine(lines []string, matched int) int {
	idx := matched - 1
	if idx < 0 || idx >= len(lines) {
		return matched
	}
	if looksSubstantive(lines[idx]) {
		return matched
	}

	for offset := 1; offset <= 3; offset++ {
		for _, cand := range []int{idx - offset, idx + offset} {
			if cand < 0 || cand >= len(lines) {
				continue
			}
			if looksSubstantive(lines[cand]) {
				return cand + 1
			}
		}
	}
	return matched
}

var loneTokens = map[string]bool{
	"{": true, "}": true, "(": true, ")": true, "[": true, "]": true,
	"//": true, "/*": true, "*/": true, "*": true,
}

// looksSubstantive reports whether a line is a plausible match line: not
// empty, not a lone bracket/comment-marker, and of reasonable length.
func looksSubstantive(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if loneTokens[trimmed] {
		return false
	}
	return len(trimmed) >= 3
}

// formatContextWindow returns 2N+1 lines centered on match, grep-style:
// "line_no:" for context lines, "line_no→" for the matched line itself
//.
func formatContextWindow(lines []string, match, n int) string {
	start := match - n
	if start < 1 {
		start = 1
	}
	end := match + n
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		marker := ":"
		if i == match {
			marker = "→"
		}
		fmt.Fprintf(&b, "%d%s%s\n", i, marker, strings.TrimRight(lines[i-1], "\r"))
	}
	return strings.TrimRight(b.String(), "\n")
}
