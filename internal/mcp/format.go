package mcp

import (
	"fmt"
	"strings"

	"github.com/juliehq/julie/internal/engine"
)

// FormatSearchResults formats generic search results as markdown.
func FormatSearchResults(query string, results []*engine.Result) string {
	validResults := filterValidResults(results)

	if len(validResults) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(validResults)))
	if len(validResults) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range validResults {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// FormatCodeResults formats code-specific results (definitions/symbols).
func FormatCodeResults(query string, results []*engine.Result, langFilter string) string {
	validResults := filterValidResults(results)

	if len(validResults) == 0 {
		msg := fmt.Sprintf("No code results found for \"%s\"", query)
		if langFilter != "" {
			msg += fmt.Sprintf(" in %s files", langFilter)
		}
		return msg
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Code Search Results for \"%s\"\n\n", query))
	if langFilter != "" {
		sb.WriteString(fmt.Sprintf("Language filter: `%s`\n\n", langFilter))
	}
	sb.WriteString(fmt.Sprintf("Found %d result", len(validResults)))
	if len(validResults) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range validResults {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// FormatDocsResults formats content-mode results over non-code files
// (documentation, config, etc.) — the files_fts tier covers these
// the same way it covers source, so this is a thin relabeling rather than
// a separate search path.
func FormatDocsResults(query string, results []*engine.Result) string {
	validResults := filterValidResults(results)

	if len(validResults) == 0 {
		return fmt.Sprintf("No documentation found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Documentation Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(validResults)))
	if len(validResults) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range validResults {
		formatDocsResult(&sb, i+1, r)
	}

	return sb.String()
}

// filterValidResults removes nil entries.
func filterValidResults(results []*engine.Result) []*engine.Result {
	valid := make([]*engine.Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

// formatResult formats a single generic result.
func formatResult(sb *strings.Builder, num int, r *engine.Result) {
	fmt.Fprintf(sb, "### %d. %s:%d (score: %.2f)\n", num, r.FilePath, r.Line, r.Score)

	if r.Symbol != nil {
		fmt.Fprintf(sb, "**Symbol:** `%s` (%s)\n\n", r.Symbol.Name, r.Symbol.Kind)
	}

	lang := ""
	if r.Symbol != nil {
		lang = r.Symbol.Language
	}
	if lang == "" {
		lang = "text"
	}

	content := r.ContextText
	if content == "" {
		content = r.CodeContext
	}

	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, content)
}

// formatDocsResult formats a content result preserving raw text (no code
// fence) for markdown-like files.
func formatDocsResult(sb *strings.Builder, num int, r *engine.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n\n", num, r.FilePath, r.Score)

	if strings.HasSuffix(r.FilePath, ".md") || strings.HasSuffix(r.FilePath, ".mdx") {
		sb.WriteString(r.CodeContext)
		sb.WriteString("\n\n---\n\n")
	} else {
		content := r.ContextText
		if content == "" {
			content = r.CodeContext
		}
		fmt.Fprintf(sb, "```\n%s\n```\n\n", content)
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a search result to the enhanced output
// format (UX-1): context-rich metadata explaining WHY a result matched.
func ToSearchResultOutput(r *engine.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}

	content := r.ContextText
	if content == "" {
		content = r.CodeContext
	}

	output := SearchResultOutput{
		FilePath: r.FilePath,
		Content:  content,
		Score:    r.Score,
	}

	if r.Symbol != nil {
		output.Language = r.Symbol.Language
		output.Symbol = r.Symbol.Name
		output.SymbolType = string(r.Symbol.Kind)
		output.Signature = r.Symbol.Signature
	}

	output.InBothLists = r.Semantic && r.ExactMatch
	output.MatchReason = generateMatchReason(r)

	return output
}

// generateMatchReason creates a human-readable explanation of why a
// result matched.
func generateMatchReason(r *engine.Result) string {
	if r == nil {
		return ""
	}

	var parts []string

	if r.Symbol != nil {
		parts = append(parts, fmt.Sprintf("%s '%s'", r.Symbol.Kind, r.Symbol.Name))
		if r.Symbol.DocComment != "" {
			docLine := r.Symbol.DocComment
			if idx := strings.Index(docLine, "\n"); idx > 0 {
				docLine = docLine[:idx]
			}
			if len(docLine) > 50 {
				docLine = docLine[:47] + "..."
			}
			parts = append(parts, fmt.Sprintf("documented as: %s", docLine))
		}
	}

	if r.ExactMatch {
		parts = append(parts, "exact name match")
	}
	if r.Semantic {
		parts = append(parts, "matched by semantic similarity")
	}

	if len(parts) == 0 {
		return "matched content"
	}

	return strings.Join(parts, "; ")
}
