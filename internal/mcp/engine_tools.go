package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/juliehq/julie/internal/editing"
	"github.com/juliehq/julie/internal/engine"
	"github.com/juliehq/julie/internal/store"
)

// SetQueryEngine wires the Query Engine into the server. Tools that
// depend on it (goto_definition, find_references, deep_investigate,
// trace_call_path, and the engine-backed search modes) return a
// ConfigError-shaped MCP error until this is called, the same nil-guard
// pattern SetIndexProgress/SetMetrics already use.
func (s *Server) SetQueryEngine(e *engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryEngine = e
}

// SetEditor wires the Safe Editing Primitives into the server.
func (s *Server) SetEditor(e *editing.Editor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editor = e
}

func (s *Server) getQueryEngine() (*engine.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queryEngine == nil {
		return nil, NewInvalidParamsError("query engine not configured for this workspace")
	}
	return s.queryEngine, nil
}

func (s *Server) getEditor() (*editing.Editor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.editor == nil {
		return nil, NewInvalidParamsError("editor not configured for this workspace")
	}
	return s.editor, nil
}

// registerEngineTools adds the Query Engine and Safe Editing Primitives
// tools, with descriptions drawn from the shared toolCatalog. These are
// always registered (they show up in clients' tool lists even before
// SetQueryEngine/SetEditor are called); the handlers fail with a clear
// config error rather than a nil-pointer panic if invoked too early.
func (s *Server) registerEngineTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "goto_definition",
		Description: toolDescription("goto_definition"),
	}, s.mcpGoToDefinitionHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_references",
		Description: toolDescription("find_references"),
	}, s.mcpFindReferencesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "deep_investigate",
		Description: toolDescription("deep_investigate"),
	}, s.mcpDeepInvestigateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trace_call_path",
		Description: toolDescription("trace_call_path"),
	}, s.mcpTraceCallPathHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "edit_lines",
		Description: toolDescription("edit_lines"),
	}, s.mcpEditLinesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fuzzy_replace",
		Description: toolDescription("fuzzy_replace"),
	}, s.mcpFuzzyReplaceHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rename_symbol",
		Description: toolDescription("rename_symbol"),
	}, s.mcpRenameSymbolHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_workspaces",
		Description: toolDescription("list_workspaces"),
	}, s.mcpListWorkspacesHandler)

	s.logger.Debug("Registered engine tools", "count", 8)
}

// --- goto_definition ---

// GoToDefinitionInput defines the input schema for goto_definition.
type GoToDefinitionInput struct {
	Symbol      string `json:"symbol" jsonschema:"the symbol name to resolve, exactly as it appears in source or a naming variant of it"`
	ContextFile string `json:"context_file,omitempty" jsonschema:"workspace-relative path the caller is currently looking at; used to break ties between same-named symbols in different files/languages"`
}

// DefinitionOutput is one resolved definition site.
type DefinitionOutput struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Kind      string `json:"kind"`
	Language  string `json:"language"`
	Signature string `json:"signature,omitempty"`
	Variant   string `json:"variant,omitempty" jsonschema:"the naming variant that matched, empty for an exact match"`
	Semantic  bool   `json:"semantic,omitempty" jsonschema:"true if this candidate came from semantic fallback rather than an exact/variant name match"`
}

// GoToDefinitionOutput defines the output schema for goto_definition.
type GoToDefinitionOutput struct {
	Definitions []DefinitionOutput `json:"definitions"`
}

func (s *Server) mcpGoToDefinitionHandler(ctx context.Context, _ *mcp.CallToolRequest, input GoToDefinitionInput) (
	*mcp.CallToolResult,
	GoToDefinitionOutput,
	error,
) {
	if input.Symbol == "" {
		return nil, GoToDefinitionOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	e, err := s.getQueryEngine()
	if err != nil {
		return nil, GoToDefinitionOutput{}, err
	}

	defs, err := e.GoToDefinition(ctx, input.Symbol, input.ContextFile)
	if err != nil {
		return nil, GoToDefinitionOutput{}, MapError(err)
	}

	out := GoToDefinitionOutput{Definitions: make([]DefinitionOutput, 0, len(defs))}
	for _, d := range defs {
		out.Definitions = append(out.Definitions, DefinitionOutput{
			FilePath:  d.Symbol.FilePath,
			StartLine: d.Symbol.StartLine,
			EndLine:   d.Symbol.EndLine,
			Kind:      string(d.Symbol.Kind),
			Language:  d.Symbol.Language,
			Signature: d.Symbol.Signature,
			Variant:   d.Variant,
			Semantic:  d.Semantic,
		})
	}
	return nil, out, nil
}

// --- find_references ---

// FindReferencesInput defines the input schema for find_references.
type FindReferencesInput struct {
	Symbol string   `json:"symbol" jsonschema:"the symbol name to find occurrences of"`
	Kinds  []string `json:"kinds,omitempty" jsonschema:"narrow by identifier kind: call, type_usage, member_access, import-site, other"`
}

// ReferenceOutput is one identifier occurrence.
type ReferenceOutput struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Kind     string `json:"kind"`
}

// FindReferencesOutput defines the output schema for find_references.
type FindReferencesOutput struct {
	References []ReferenceOutput `json:"references"`
}

func (s *Server) mcpFindReferencesHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindReferencesInput) (
	*mcp.CallToolResult,
	FindReferencesOutput,
	error,
) {
	if input.Symbol == "" {
		return nil, FindReferencesOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	e, err := s.getQueryEngine()
	if err != nil {
		return nil, FindReferencesOutput{}, err
	}

	var kinds []store.IdentifierKind
	for _, k := range input.Kinds {
		kinds = append(kinds, store.IdentifierKind(k))
	}

	refs, err := e.FindReferences(ctx, input.Symbol, kinds)
	if err != nil {
		return nil, FindReferencesOutput{}, MapError(err)
	}

	out := FindReferencesOutput{References: make([]ReferenceOutput, 0, len(refs))}
	for _, r := range refs {
		out.References = append(out.References, ReferenceOutput{
			FilePath: r.FilePath,
			Line:     r.Line,
			Kind:     string(r.Kind),
		})
	}
	return nil, out, nil
}

// --- deep_investigate ---

// DeepInvestigateInput defines the input schema for deep_investigate.
type DeepInvestigateInput struct {
	Symbol string `json:"symbol" jsonschema:"the symbol name to investigate"`
	Depth  string `json:"depth,omitempty" jsonschema:"overview (signature+doc), context (+code_context line), or full (+extracted source body); default overview"`
}

// SymbolRefOutput is a minimal symbol reference used inside investigation
// results (callers/callees/children don't need the full definition shape).
type SymbolRefOutput struct {
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Kind     string `json:"kind"`
}

// DeepInvestigateOutput defines the output schema for deep_investigate.
type DeepInvestigateOutput struct {
	Symbol      DefinitionOutput  `json:"symbol"`
	Body        string            `json:"body,omitempty"`
	Callers     []SymbolRefOutput `json:"callers"`
	Callees     []SymbolRefOutput `json:"callees"`
	Children    []SymbolRefOutput `json:"children"`
	CallerNames []string          `json:"caller_names,omitempty"`
	CalleeNames []string          `json:"callee_names,omitempty"`
}

func (s *Server) mcpDeepInvestigateHandler(ctx context.Context, _ *mcp.CallToolRequest, input DeepInvestigateInput) (
	*mcp.CallToolResult,
	DeepInvestigateOutput,
	error,
) {
	if input.Symbol == "" {
		return nil, DeepInvestigateOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	e, err := s.getQueryEngine()
	if err != nil {
		return nil, DeepInvestigateOutput{}, err
	}

	inv, err := e.DeepInvestigate(ctx, input.Symbol, engine.Depth(input.Depth))
	if err != nil {
		return nil, DeepInvestigateOutput{}, MapError(err)
	}
	if inv == nil {
		return nil, DeepInvestigateOutput{}, NewMethodNotFoundError(fmt.Sprintf("symbol %q not found", input.Symbol))
	}

	out := DeepInvestigateOutput{
		Symbol: DefinitionOutput{
			FilePath:  inv.Symbol.FilePath,
			StartLine: inv.Symbol.StartLine,
			EndLine:   inv.Symbol.EndLine,
			Kind:      string(inv.Symbol.Kind),
			Language:  inv.Symbol.Language,
			Signature: inv.Symbol.Signature,
		},
		Body:        inv.Body,
		CallerNames: inv.CallerNames,
		CalleeNames: inv.CalleeNames,
	}
	for _, c := range inv.Callers {
		out.Callers = append(out.Callers, symbolRefOutput(c))
	}
	for _, c := range inv.Callees {
		out.Callees = append(out.Callees, symbolRefOutput(c))
	}
	for _, c := range inv.Children {
		out.Children = append(out.Children, symbolRefOutput(c))
	}
	return nil, out, nil
}

// dryRunOrDefault applies the default-dry-run rule: a caller
// must explicitly pass dry_run=false to write. A bool field's JSON zero
// value (omitted == false) can't distinguish "not supplied" from
// "explicitly false", so the schema uses *bool for this one.
func dryRunOrDefault(v *bool) bool {
	return v == nil || *v
}

func symbolRefOutput(sym *store.Symbol) SymbolRefOutput {
	return SymbolRefOutput{
		Name:     sym.Name,
		FilePath: sym.FilePath,
		Line:     sym.StartLine,
		Kind:     string(sym.Kind),
	}
}

// --- trace_call_path ---

// TraceCallPathInput defines the input schema for trace_call_path.
type TraceCallPathInput struct {
	Symbol    string `json:"symbol" jsonschema:"the starting symbol name"`
	Direction string `json:"direction,omitempty" jsonschema:"upstream (callers), downstream (callees, default), or both"`
	MaxDepth  int    `json:"max_depth,omitempty" jsonschema:"maximum BFS hops, default 5"`
}

// PathNodeOutput is one node reached during a trace_call_path BFS.
type PathNodeOutput struct {
	Name      string `json:"name"`
	FilePath  string `json:"file_path"`
	Line      int    `json:"line"`
	Depth     int    `json:"depth"`
	Direction string `json:"direction"`
}

// TraceCallPathOutput defines the output schema for trace_call_path.
type TraceCallPathOutput struct {
	Nodes []PathNodeOutput `json:"nodes"`
}

func (s *Server) mcpTraceCallPathHandler(ctx context.Context, _ *mcp.CallToolRequest, input TraceCallPathInput) (
	*mcp.CallToolResult,
	TraceCallPathOutput,
	error,
) {
	if input.Symbol == "" {
		return nil, TraceCallPathOutput{}, NewInvalidParamsError("symbol parameter is required")
	}
	e, err := s.getQueryEngine()
	if err != nil {
		return nil, TraceCallPathOutput{}, err
	}

	nodes, err := e.TraceCallPath(ctx, input.Symbol, engine.Direction(input.Direction), input.MaxDepth)
	if err != nil {
		return nil, TraceCallPathOutput{}, MapError(err)
	}

	out := TraceCallPathOutput{Nodes: make([]PathNodeOutput, 0, len(nodes))}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, PathNodeOutput{
			Name:      n.Symbol.Name,
			FilePath:  n.Symbol.FilePath,
			Line:      n.Symbol.StartLine,
			Depth:     n.Depth,
			Direction: string(n.Direction),
		})
	}
	return nil, out, nil
}

// --- edit_lines ---

// EditLinesInput defines the input schema for edit_lines.
type EditLinesInput struct {
	FilePath string `json:"file_path" jsonschema:"workspace-relative path to edit"`
	Op       string `json:"op" jsonschema:"insert, replace, or delete"`
	Start    int    `json:"start" jsonschema:"1-indexed start line"`
	End      int    `json:"end,omitempty" jsonschema:"1-indexed inclusive end line; ignored for insert"`
	Content  string `json:"content,omitempty" jsonschema:"replacement/inserted text; ignored for delete"`
	DryRun   *bool  `json:"dry_run,omitempty" jsonschema:"default true (preview only); set false to actually write the file"`
}

// EditResultOutput mirrors editing.EditResult for MCP transport.
type EditResultOutput struct {
	FilePath string `json:"file_path"`
	Applied  bool   `json:"applied"`
	Preview  string `json:"preview"`
	Summary  string `json:"summary"`
}

func (s *Server) mcpEditLinesHandler(ctx context.Context, _ *mcp.CallToolRequest, input EditLinesInput) (
	*mcp.CallToolResult,
	EditResultOutput,
	error,
) {
	if input.FilePath == "" {
		return nil, EditResultOutput{}, NewInvalidParamsError("file_path parameter is required")
	}
	ed, err := s.getEditor()
	if err != nil {
		return nil, EditResultOutput{}, err
	}

	result, err := ed.EditLines(ctx, editing.EditLinesRequest{
		FilePath: input.FilePath,
		Op:       editing.LineOp(input.Op),
		Start:    input.Start,
		End:      input.End,
		Content:  input.Content,
		DryRun:   dryRunOrDefault(input.DryRun),
	})
	if err != nil {
		return nil, EditResultOutput{}, MapError(err)
	}
	return nil, toEditResultOutput(result), nil
}

func toEditResultOutput(r *editing.EditResult) EditResultOutput {
	if r == nil {
		return EditResultOutput{}
	}
	return EditResultOutput{
		FilePath: r.FilePath,
		Applied:  r.Applied,
		Preview:  r.Preview,
		Summary:  r.Summary,
	}
}

// --- fuzzy_replace ---

// FuzzyReplaceInput defines the input schema for fuzzy_replace.
type FuzzyReplaceInput struct {
	FileOrGlob  string  `json:"file_or_glob" jsonschema:"a workspace-relative path or glob pattern"`
	Pattern     string  `json:"pattern" jsonschema:"the approximate text to locate"`
	Replacement string  `json:"replacement" jsonschema:"the text to replace matches with"`
	Threshold   float64 `json:"threshold,omitempty" jsonschema:"minimum normalized similarity to accept a match, default 0.7"`
	DryRun      *bool   `json:"dry_run,omitempty" jsonschema:"default true (preview only); set false to actually write"`
}

// FuzzyMatchOutput is one located-and-scored candidate.
type FuzzyMatchOutput struct {
	FilePath   string  `json:"file_path"`
	Matched    string  `json:"matched"`
	Similarity float64 `json:"similarity"`
}

// FuzzyReplaceOutput defines the output schema for fuzzy_replace.
type FuzzyReplaceOutput struct {
	Results []EditResultOutput `json:"results"`
	Matches []FuzzyMatchOutput `json:"matches"`
}

func (s *Server) mcpFuzzyReplaceHandler(ctx context.Context, _ *mcp.CallToolRequest, input FuzzyReplaceInput) (
	*mcp.CallToolResult,
	FuzzyReplaceOutput,
	error,
) {
	if input.Pattern == "" {
		return nil, FuzzyReplaceOutput{}, NewInvalidParamsError("pattern parameter is required")
	}
	ed, err := s.getEditor()
	if err != nil {
		return nil, FuzzyReplaceOutput{}, err
	}

	result, err := ed.FuzzyReplace(ctx, editing.FuzzyReplaceRequest{
		FileOrGlob:  input.FileOrGlob,
		Pattern:     input.Pattern,
		Replacement: input.Replacement,
		Threshold:   input.Threshold,
		DryRun:      dryRunOrDefault(input.DryRun),
	})
	if err != nil {
		return nil, FuzzyReplaceOutput{}, MapError(err)
	}

	out := FuzzyReplaceOutput{
		Results: make([]EditResultOutput, 0, len(result.Results)),
		Matches: make([]FuzzyMatchOutput, 0, len(result.Matches)),
	}
	for _, r := range result.Results {
		out.Results = append(out.Results, toEditResultOutput(r))
	}
	for _, m := range result.Matches {
		out.Matches = append(out.Matches, FuzzyMatchOutput{
			FilePath:   m.FilePath,
			Matched:    m.Matched,
			Similarity: m.Similarity,
		})
	}
	return nil, out, nil
}

// --- rename_symbol ---

// RenameSymbolInput defines the input schema for rename_symbol.
type RenameSymbolInput struct {
	Old           string `json:"old" jsonschema:"the current symbol name"`
	New           string `json:"new" jsonschema:"the new symbol name"`
	File          string `json:"file,omitempty" jsonschema:"workspace-relative path to scope the rename to; omit with workspace=true to rename everywhere"`
	Workspace     bool   `json:"workspace,omitempty" jsonschema:"rename every occurrence in the workspace instead of one file"`
	UpdateImports bool   `json:"update_imports,omitempty" jsonschema:"also rewrite import statements referencing the old name"`
	DryRun        *bool  `json:"dry_run,omitempty" jsonschema:"default true (preview only); set false to actually write"`
}

// RenameSymbolOutput defines the output schema for rename_symbol.
type RenameSymbolOutput struct {
	Results           []EditResultOutput `json:"results"`
	OccurrencesByFile map[string]int     `json:"occurrences_by_file"`
}

func (s *Server) mcpRenameSymbolHandler(ctx context.Context, _ *mcp.CallToolRequest, input RenameSymbolInput) (
	*mcp.CallToolResult,
	RenameSymbolOutput,
	error,
) {
	if input.Old == "" || input.New == "" {
		return nil, RenameSymbolOutput{}, NewInvalidParamsError("old and new parameters are required")
	}
	if !input.Workspace && input.File == "" {
		return nil, RenameSymbolOutput{}, NewInvalidParamsError("either file or workspace=true must be given to scope the rename")
	}
	ed, err := s.getEditor()
	if err != nil {
		return nil, RenameSymbolOutput{}, err
	}

	result, err := ed.RenameSymbol(ctx, editing.RenameSymbolRequest{
		Old: input.Old,
		New: input.New,
		Scope: editing.RenameScope{
			Workspace: input.Workspace,
			File:      input.File,
		},
		UpdateImports: input.UpdateImports,
		DryRun:        dryRunOrDefault(input.DryRun),
	})
	if err != nil {
		return nil, RenameSymbolOutput{}, MapError(err)
	}

	out := RenameSymbolOutput{
		Results:           make([]EditResultOutput, 0, len(result.Results)),
		OccurrencesByFile: result.OccurrencesByFile,
	}
	for _, r := range result.Results {
		out.Results = append(out.Results, toEditResultOutput(r))
	}
	return nil, out, nil
}

// --- list_workspaces ---

// ListWorkspacesInput defines the (empty) input schema for list_workspaces.
type ListWorkspacesInput struct{}

// WorkspaceInfo describes one indexed workspace.
type WorkspaceInfo struct {
	RootPath   string `json:"root_path"`
	ProjectID  string `json:"project_id"`
	FileCount  int    `json:"file_count"`
	EmbedderOn bool   `json:"embedder_on"`
}

// ListWorkspacesOutput defines the output schema for list_workspaces.
type ListWorkspacesOutput struct {
	Workspaces []WorkspaceInfo `json:"workspaces"`
}

// mcpListWorkspacesHandler reports the single workspace this server
// instance indexes. One server process, one workspace, so the list
// always has at most one entry.
func (s *Server) mcpListWorkspacesHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListWorkspacesInput) (
	*mcp.CallToolResult,
	ListWorkspacesOutput,
	error,
) {
	s.mu.RLock()
	rootPath := s.rootPath
	projectID := s.projectID
	embedder := s.embedder
	metadata := s.metadata
	s.mu.RUnlock()

	embedderOn := embedder != nil && embedder.Available(ctx)

	info := WorkspaceInfo{RootPath: rootPath, ProjectID: projectID, EmbedderOn: embedderOn}
	if metadata != nil {
		if count, err := metadata.CountFiles(ctx); err == nil {
			info.FileCount = count
		}
	}
	return nil, ListWorkspacesOutput{Workspaces: []WorkspaceInfo{info}}, nil
}
