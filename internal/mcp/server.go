package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/juliehq/julie/internal/async"
	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/editing"
	"github.com/juliehq/julie/internal/embed"
	"github.com/juliehq/julie/internal/engine"
	"github.com/juliehq/julie/internal/pathutil"
	"github.com/juliehq/julie/internal/store"
	"github.com/juliehq/julie/internal/telemetry"
	"github.com/juliehq/julie/pkg/version"
)

// Server is the MCP server for Julie.
// It bridges AI clients (Claude Code, Cursor) with the Query Engine.
type Server struct {
	mcp      *mcp.Server
	metadata store.MetadataStore
	embedder embed.Embedder // Embedder for capability signaling
	config   *config.Config
	logger   *slog.Logger

	// Project identification for resource operations
	projectID string
	rootPath  string

	// Background indexing progress (nil if not indexing)
	indexProgress *async.IndexProgress

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	// Query Engine and Safe Editing Primitives. queryEngine backs every
	// search/definition/reference tool; editor backs the edit tools.
	// editor may be nil (wired later via SetEditor); queryEngine is
	// required at construction.
	queryEngine *engine.Engine
	editor      *editing.Editor

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query to execute"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Mode       string   `json:"mode,omitempty" jsonschema:"search mode: definitions (default for code questions), content, semantic, or hybrid (default)"`
	Language   string   `json:"language,omitempty" jsonschema:"filter by programming language, e.g. go, typescript"`
	SymbolType string   `json:"symbol_type,omitempty" jsonschema:"for definition results, filter by symbol kind: function, class, interface, type, method, or any"`
	Scope      []string `json:"scope,omitempty" jsonschema:"filter by path prefixes (OR logic)"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
}

// SearchResultOutput defines a single search result with context-rich metadata.
type SearchResultOutput struct {
	FilePath     string   `json:"file_path" jsonschema:"file path relative to project root"`
	Content      string   `json:"content" jsonschema:"matched content snippet"`
	Score        float64  `json:"score" jsonschema:"relevance score between 0 and 1"`
	Language     string   `json:"language,omitempty" jsonschema:"programming language of the file"`
	MatchReason  string   `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this result matched"`
	Symbol       string   `json:"symbol,omitempty" jsonschema:"primary symbol name (function, class, type)"`
	SymbolType   string   `json:"symbol_type,omitempty" jsonschema:"type of symbol: function, class, interface, type, method"`
	Signature    string   `json:"signature,omitempty" jsonschema:"full function/method signature"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms that matched this result"`
	InBothLists  bool     `json:"in_both_lists,omitempty" jsonschema:"true if result appeared in both keyword and semantic search"`
}

// NewServer creates a new MCP server bound to one workspace's Query Engine
// and structured store. The embedder parameter is used for
// capability signaling - AI clients can query the actual embedder state to
// adjust their search strategies. rootPath is used for project detection
// and resource URIs.
func NewServer(qe *engine.Engine, metadata store.MetadataStore, embedder embed.Embedder, cfg *config.Config, rootPath string) (*Server, error) {
	if qe == nil {
		return nil, errors.New("query engine is required")
	}
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		queryEngine: qe,
		metadata:    metadata,
		embedder:    embedder, // May be nil - will report as unavailable
		config:      cfg,
		rootPath:    rootPath,
		logger:      slog.Default(),
	}

	// Create MCP server with implementation info
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Julie",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	// Register tools
	s.registerTools()

	return s, nil
}

// SetIndexProgress sets the index progress tracker for background indexing.
// This enables the server to report indexing progress via index_status and
// return appropriate messages when search is called during indexing.
func (s *Server) SetIndexProgress(progress *async.IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexProgress = progress
}

// SetMetrics sets the query metrics collector for telemetry.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	// Register query_metrics resource if metrics is provided
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "Julie", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// toolCatalog is the single source of the exposed tool surface: every
// tool here is registered with the SDK transport, listed by ListTools,
// and dispatchable through CallTool. Adding a tool means adding it
// here, registering its handler, and adding its CallTool case.
var toolCatalog = []ToolInfo{
	{
		Name:        "search",
		Description: "Search the indexed workspace. mode selects the tier: definitions (symbol index, the default for code questions), content (full-text over file contents), semantic (vector similarity), or hybrid (definitions + semantic fused). Understands code tokenization, so camelCase and snake_case both match.",
	},
	{
		Name:        "goto_definition",
		Description: "Jump to a symbol's exact definition site(s). Resolves naming-variant spelling across languages (camelCase/snake_case/kebab-case) so 'getUserData' also finds 'get_user_data'. Prefer this over a text search when you already know the symbol's name.",
	},
	{
		Name:        "find_references",
		Description: "Find every occurrence where a symbol is used (calls, type usages, member accesses, import sites), not just where it's defined. Use before renaming or removing something to see its blast radius.",
	},
	{
		Name:        "deep_investigate",
		Description: "Composes a symbol's definition with its callers, callees, and children into one answer, at a chosen depth (overview/context/full). Use this instead of chaining goto_definition + find_references by hand.",
	},
	{
		Name:        "trace_call_path",
		Description: "Walk the calls-relationship graph upstream (callers), downstream (callees), or both from a starting symbol, up to a max depth. Generic names ('new', 'from') are pruned so the trace stays readable.",
	},
	{
		Name:        "edit_lines",
		Description: "Insert, replace, or delete a line range in a file by 1-indexed line numbers. Defaults to dry_run=true, returning a preview; set dry_run=false to actually write.",
	},
	{
		Name:        "fuzzy_replace",
		Description: "Locate an approximate text match (tolerant of minor formatting differences) across a file or glob and replace it, only when the match similarity clears a threshold and the result keeps brackets balanced. Defaults to dry_run=true.",
	},
	{
		Name:        "rename_symbol",
		Description: "Rename every occurrence of a symbol across a file or the whole workspace, using word-boundary matching (never naive string substitution). Defaults to dry_run=true.",
	},
	{
		Name:        "index_status",
		Description: "Report whether the workspace index is ready, its file/symbol counts, and which embedder backend is active. Use before searching to verify the index is complete.",
	},
	{
		Name:        "list_workspaces",
		Description: "List the workspace(s) this server instance is indexing, with root path and basic index counts. This server indexes a single workspace per instance.",
	},
}

// toolDescription looks a tool's description up in the catalog, keeping
// the SDK registrations and ListTools from drifting apart.
func toolDescription(name string) string {
	for _, t := range toolCatalog {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

// ListTools returns the full registered tool surface.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), toolCatalog...)
}

// CallTool invokes a tool by name with the given arguments. Every tool
// in the catalog is dispatchable here; the SDK transport and this entry
// point share the same handlers.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "search":
		return s.handleSearchTool(ctx, args)
	case "index_status":
		return s.handleIndexStatusTool(ctx, args)
	case "goto_definition":
		var in GoToDefinitionInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpGoToDefinitionHandler(ctx, nil, in)
		return out, err
	case "find_references":
		var in FindReferencesInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpFindReferencesHandler(ctx, nil, in)
		return out, err
	case "deep_investigate":
		var in DeepInvestigateInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpDeepInvestigateHandler(ctx, nil, in)
		return out, err
	case "trace_call_path":
		var in TraceCallPathInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpTraceCallPathHandler(ctx, nil, in)
		return out, err
	case "edit_lines":
		var in EditLinesInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpEditLinesHandler(ctx, nil, in)
		return out, err
	case "fuzzy_replace":
		var in FuzzyReplaceInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpFuzzyReplaceHandler(ctx, nil, in)
		return out, err
	case "rename_symbol":
		var in RenameSymbolInput
		if err := decodeToolArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpRenameSymbolHandler(ctx, nil, in)
		return out, err
	case "list_workspaces":
		_, out, err := s.mcpListWorkspacesHandler(ctx, nil, ListWorkspacesInput{})
		return out, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// decodeToolArgs converts a raw argument map into a typed tool input via
// a JSON round-trip, matching how the SDK transport decodes the same
// schemas.
func decodeToolArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	return nil
}

// searchOptsFromArgs pulls the common query/limit/language/scope shape out
// of a raw tool-call argument map.
func searchOptsFromArgs(args map[string]any) (query string, limit int, language string) {
	query, _ = args["query"].(string)
	limit = clampLimit(0, 10, 1, 50)
	if l, ok := args["limit"].(float64); ok {
		limit = clampLimit(int(l), 10, 1, 50)
	}
	language, _ = args["language"].(string)
	return
}

// handleSearchTool handles the search tool invocation (hybrid mode:
// FTS + semantic). Returns markdown-formatted results.
func (s *Server) handleSearchTool(ctx context.Context, args map[string]any) (string, error) {
	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()

	if progress != nil && progress.IsIndexing() {
		snap := progress.Snapshot()
		return fmt.Sprintf("## Indexing in Progress\n\n"+
			"**Progress:** %.1f%% (%d/%d files)\n"+
			"**Stage:** %s\n\n"+
			"Search results may be incomplete or unavailable. Please try again in a moment.",
			snap.ProgressPct, snap.FilesProcessed, snap.FilesTotal, snap.Stage), nil
	}

	start := time.Now()
	requestID := generateRequestID()

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	if strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	query, limit, language := searchOptsFromArgs(args)

	mode := engine.ModeHybrid
	switch m, _ := args["mode"].(string); m {
	case "definitions":
		mode = engine.ModeDefinitions
	case "content":
		mode = engine.ModeContent
	case "semantic":
		mode = engine.ModeSemantic
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.String("mode", string(mode)),
		slog.Int("limit", limit))

	resp, err := s.queryEngine.Search(ctx, query, mode, engine.Filters{Language: language, Limit: limit})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)))

	switch mode {
	case engine.ModeDefinitions:
		return FormatCodeResults(query, resp.Results, language), nil
	case engine.ModeContent:
		return FormatDocsResults(query, resp.Results), nil
	default:
		return FormatSearchResults(query, resp.Results), nil
	}
}

// handleIndexStatusTool handles the index_status tool invocation.
// Returns JSON-formatted index statistics including embedder capability
// info, so AI clients can adjust their search strategy based on whether
// a real model or the static fallback is active.
func (s *Server) handleIndexStatusTool(ctx context.Context, _ map[string]any) (*IndexStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("index_status started", slog.String("request_id", requestID))

	var actualProvider, actualModel, semanticQuality, status string
	var dimensions int
	var isFallbackActive bool

	if s.embedder != nil {
		actualModel = s.embedder.ModelName()
		dimensions = s.embedder.Dimensions()

		isFallbackActive = actualModel == "static" || dimensions == embed.StaticDimensions

		if isFallbackActive {
			actualProvider = "static"
			semanticQuality = "low"
		} else {
			actualProvider = "hugot"
			semanticQuality = "high"
		}

		if s.embedder.Available(ctx) {
			status = "ready"
		} else {
			status = "unavailable"
		}
	} else {
		actualProvider = "none"
		actualModel = "none"
		dimensions = 0
		isFallbackActive = true
		semanticQuality = "none"
		status = "unavailable"
	}

	detector := NewProjectDetector(s.rootPath, s.logger)
	projectInfo := detector.Detect()

	fileCount, _ := s.metadata.CountFiles(ctx)
	embeddingCount, _ := s.metadata.CountEmbeddings(ctx)

	output := &IndexStatusOutput{
		Project: *projectInfo,
		Stats: IndexStats{
			FileCount:      fileCount,
			SymbolCount:     embeddingCount,
			IndexSizeBytes: 0,
			LastIndexed:    time.Now().Format(time.RFC3339),
		},
		Embeddings: EmbeddingInfo{
			Provider:         s.config.Embeddings.Provider,
			Model:            s.config.Embeddings.Model,
			Status:           status,
			ActualProvider:   actualProvider,
			ActualModel:      actualModel,
			Dimensions:       dimensions,
			IsFallbackActive: isFallbackActive,
			SemanticQuality:  semanticQuality,
		},
	}

	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()

	if progress != nil {
		snap := progress.Snapshot()
		output.Indexing = &IndexingProgress{
			Status:         snap.Status,
			Stage:          snap.Stage,
			FilesTotal:     snap.FilesTotal,
			FilesProcessed: snap.FilesProcessed,
			SymbolsIndexed:  snap.SymbolsIndexed,
			ProgressPct:    snap.ProgressPct,
			ElapsedSeconds: snap.ElapsedSeconds,
			ErrorMessage:   snap.ErrorMessage,
		}
	}

	duration := time.Since(start)
	s.logger.Info("index_status completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("project_name", projectInfo.Name),
		slog.String("project_type", projectInfo.Type))

	return output, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: toolDescription("search"),
	}, s.mcpSearchHandler)
	s.logger.Debug("Registered tool", slog.String("name", "search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: toolDescription("index_status"),
	}, s.mcpIndexStatusHandler)
	s.logger.Debug("Registered tool", slog.String("name", "index_status"))

	s.registerEngineTools()

	s.logger.Info("MCP tools registered", slog.Int("count", len(toolCatalog)))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	limit := 10
	if input.Limit > 0 {
		limit = input.Limit
	}

	mode := engine.ModeHybrid
	switch input.Mode {
	case "definitions":
		mode = engine.ModeDefinitions
	case "content":
		mode = engine.ModeContent
	case "semantic":
		mode = engine.ModeSemantic
	}

	resp, err := s.queryEngine.Search(ctx, input.Query, mode, engine.Filters{Language: input.Language, Limit: limit})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(resp.Results))}
	for _, r := range resp.Results {
		if input.SymbolType != "" && input.SymbolType != "any" &&
			r.Symbol != nil && string(r.Symbol.Kind) != input.SymbolType {
			continue
		}
		output.Results = append(output.Results, ToSearchResultOutput(r))
	}

	return nil, output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.handleIndexStatusTool(ctx, nil)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

// ListResources returns all available resources: one per indexed file.
func (s *Server) ListResources(ctx context.Context, cursor string) ([]ResourceInfo, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths, err := s.metadata.ListFilePaths(ctx)
	if err != nil {
		return nil, "", err
	}

	resources := make([]ResourceInfo, 0, len(paths))
	for _, p := range paths {
		resources = append(resources, ResourceInfo{
			URI:      fmt.Sprintf("file://%s", p),
			Name:     p,
			MIMEType: MimeTypeForPath(p),
		})
	}

	return resources, "", nil // No pagination for now
}

// ReadResource reads a resource by URI. Only file:// URIs are supported —
// resources are file-scoped; a File
// row's content lives on disk, read through the Path Normalizer's
// security check.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !strings.HasPrefix(uri, "file://") {
		return nil, NewResourceNotFoundError(uri)
	}
	relPath := strings.TrimPrefix(uri, "file://")

	f, err := s.metadata.GetFile(ctx, relPath)
	if err != nil || f == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	absPath, err := pathutil.ResolveForRead(relPath, s.rootPath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, NewResourceNotFoundError(uri)
	}

	return &ResourceContent{
		URI:      uri,
		Content:  string(content),
		MIMEType: MimeTypeForPath(f.Path),
	}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server doesn't have a Close method - it stops when context is canceled
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
