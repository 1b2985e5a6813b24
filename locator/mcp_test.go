package locator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/uianchor/internal/fixture"
	"github.com/hazyhaar/uianchor/observability"
)

func mcpSession(t *testing.T, loc *Locator) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "uianchor-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	loc.RegisterMCP(srv)

	ctx, cancel := context.WithCancel(context.Background())
	serverT, clientT := mcp.NewInMemoryTransports()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx, serverT)
	}()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		session.Close()
		cancel()
		<-done
	})
	return session
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	s := mcpSession(t, newLocator(t))
	res, err := s.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"uianchor_match", "uianchor_container", "uianchor_gate",
		"uianchor_execute", "uianchor_recover", "uianchor_audit",
	}, names)
}

func TestMCP_MatchAndGate(t *testing.T) {
	s := mcpSession(t, newLocator(t))

	res := callTool(t, s, "uianchor_match", map[string]any{
		"dump":   fixture.Feed,
		"anchor": followAnchor(t),
	})
	require.False(t, res.IsError, toolText(t, res))
	var rep struct {
		Node int `json:"node"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &rep))
	assert.Equal(t, 7, rep.Node)

	res = callTool(t, s, "uianchor_gate", map[string]any{
		"dump":     fixture.Feed,
		"selector": "//node[@resource-id='com.xingin.xhs:id/follow_btn']",
	})
	require.False(t, res.IsError, toolText(t, res))
	assert.Contains(t, toolText(t, res), `"passed":true`)

	res = callTool(t, s, "uianchor_match", map[string]any{"dump": "<hierarchy", "anchor": map[string]any{}})
	assert.True(t, res.IsError)
}

func TestMCP_ExecuteWithoutDevice(t *testing.T) {
	loc := newLocator(t)
	s := mcpSession(t, loc)

	res := callTool(t, s, "uianchor_execute", map[string]any{"anchor": followAnchor(t)})
	assert.True(t, res.IsError)

	recs, err := loc.Audit(context.Background(), observability.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mcp", recs[0].Transport)
	assert.NotEmpty(t, recs[0].RequestID)

	res = callTool(t, s, "uianchor_audit", map[string]any{"status": "failure"})
	require.False(t, res.IsError, toolText(t, res))
	assert.Contains(t, toolText(t, res), recs[0].RunID)
}
