package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/engine"
	"github.com/juliehq/julie/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer wires a Server against a fake store and a real
// engine.Engine, the way production code does, so every search tool
// flows through the actual Search dispatch.
func newTestServer(t *testing.T) (*Server, *fakeMetadataStore) {
	t.Helper()
	md := newFakeMetadataStore()
	eng := engine.New(t.TempDir(), md, nil, newFakeEmbedder())
	srv, err := NewServer(eng, md, newFakeEmbedder(), config.NewConfig(), t.TempDir())
	require.NoError(t, err)
	return srv, md
}

func TestServer_New_Success(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NotNil(t, srv)
}

func TestServer_New_NilEngine_ReturnsError(t *testing.T) {
	md := newFakeMetadataStore()
	_, err := NewServer(nil, md, newFakeEmbedder(), config.NewConfig(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query engine")
}

func TestServer_New_NilMetadata_ReturnsError(t *testing.T) {
	eng := engine.New("", nil, nil, newFakeEmbedder())
	_, err := NewServer(eng, nil, newFakeEmbedder(), config.NewConfig(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")
}

func TestServer_New_NilConfig_UsesDefaults(t *testing.T) {
	md := newFakeMetadataStore()
	eng := engine.New("", md, nil, newFakeEmbedder())
	srv, err := NewServer(eng, md, newFakeEmbedder(), nil, "")
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestServer_Info_ReturnsCorrectValues(t *testing.T) {
	srv, _ := newTestServer(t)
	name, ver := srv.Info()
	assert.Equal(t, "Julie", name)
	assert.NotEmpty(t, ver)
}

func TestServer_Capabilities_HasToolsAndResources(t *testing.T) {
	srv, _ := newTestServer(t)
	hasTools, hasResources := srv.Capabilities()
	assert.True(t, hasTools)
	assert.True(t, hasResources)
}

func TestServer_ListTools_ReturnsFullToolSurface(t *testing.T) {
	srv, _ := newTestServer(t)
	tools := srv.ListTools()
	require.Len(t, tools, 10)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"search", "goto_definition", "find_references", "deep_investigate",
		"trace_call_path", "edit_lines", "fuzzy_replace", "rename_symbol",
		"index_status", "list_workspaces",
	} {
		assert.True(t, names[want], "tool %s must be listed", want)
	}
}

func TestServer_ListTools_SearchToolExists(t *testing.T) {
	srv, _ := newTestServer(t)
	var found bool
	for _, tool := range srv.ListTools() {
		if tool.Name == "search" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestServer_CallTool_SearchRouting(t *testing.T) {
	srv, md := newTestServer(t)
	md.DefinitionResults = []*store.DefinitionResult{
		{Symbol: &store.Symbol{Name: "Search", Kind: store.SymbolFunction, FilePath: "a.go"}, Score: 1.0},
	}

	result, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "search"})
	require.NoError(t, err)
	text, ok := result.(string)
	require.True(t, ok)
	assert.Contains(t, text, "Search Results")
}

func TestServer_CallTool_UnknownTool_ReturnsError(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.CallTool(context.Background(), "nonexistent_tool", map[string]any{})
	require.Error(t, err)
}

func TestServer_CallTool_InvalidParams_MissingQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.CallTool(context.Background(), "search", map[string]any{})
	require.Error(t, err)
}

func TestServer_CallTool_InvalidParams_EmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": ""})
	require.Error(t, err)
}

func TestServer_ListResources_ReturnsIndexedFiles(t *testing.T) {
	srv, md := newTestServer(t)
	md.Files = []*store.File{{Path: "a.go"}, {Path: "b.go"}}

	resources, _, err := srv.ListResources(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, resources, 2)
	assert.Equal(t, "file://a.go", resources[0].URI)
}

func TestServer_ListResources_Empty(t *testing.T) {
	srv, _ := newTestServer(t)
	resources, _, err := srv.ListResources(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestServer_ReadResource_ReturnsContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/a.go", []byte("package main\n"), 0o644))

	md := newFakeMetadataStore()
	md.Files = []*store.File{{Path: "a.go"}}
	eng := engine.New(dir, md, nil, newFakeEmbedder())
	srv, err := NewServer(eng, md, newFakeEmbedder(), config.NewConfig(), dir)
	require.NoError(t, err)

	content, err := srv.ReadResource(context.Background(), "file://a.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content.Content)
}

func TestServer_ReadResource_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.ReadResource(context.Background(), "file://missing.go")
	require.Error(t, err)
}

func TestServer_Close_ReleasesResources(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NoError(t, srv.Close())
}

func TestServer_ConcurrentRequests_RaceSafe(t *testing.T) {
	srv, md := newTestServer(t)
	md.DefinitionResults = []*store.DefinitionResult{
		{Symbol: &store.Symbol{Name: "Search", Kind: store.SymbolFunction, FilePath: "a.go"}, Score: 1.0},
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = srv.CallTool(context.Background(), "search", map[string]any{"query": fmt.Sprintf("q%d", n)})
		}(i)
	}
	wg.Wait()
}
