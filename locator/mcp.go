package locator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/idgen"
	"github.com/hazyhaar/uianchor/kit"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/observability"
)

// RegisterMCP registers the uianchor tools on an MCP server.
func (l *Locator) RegisterMCP(srv *mcp.Server) {
	l.registerMatchTool(srv)
	l.registerContainerTool(srv)
	l.registerGateTool(srv)
	l.registerExecuteTool(srv)
	l.registerRecoverTool(srv)
	l.registerAuditTool(srv)
}

func (l *Locator) mcpEndpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(
		kit.WithRequestIDs(idgen.Prefixed("req_", idgen.Default)),
		kit.Logging(l.logger, name),
	)(ep)
}

var dumpProp = map[string]any{"type": "string", "description": "uiautomator XML dump of the screen"}

// --- match ---

type matchReq struct {
	Dump   string       `json:"dump"`
	Anchor match.Anchor `json:"anchor"`
}

func (l *Locator) registerMatchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "uianchor_match",
		Description: "Score an anchor against a UI dump with every match mode and return the winning mode, the click instruction and a fallback plan.",
		InputSchema: kit.InputSchema(map[string]any{
			"dump":   dumpProp,
			"anchor": map[string]any{"type": "object", "description": "path, text, content_desc, resource_id, class, bounds"},
		}, []string{"dump", "anchor"}),
	}
	ep := l.mcpEndpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*matchReq)
		return l.Match(ctx, r.Dump, r.Anchor)
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[matchReq]())
}

// --- container ---

type containerReq struct {
	Dump string          `json:"dump"`
	Hint json.RawMessage `json:"hint"`
}

func (l *Locator) registerContainerTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "uianchor_container",
		Description: "Resolve the list container named by a hint and score its items as cards.",
		InputSchema: kit.InputSchema(map[string]any{
			"dump": dumpProp,
			"hint": map[string]any{"type": "object", "description": "selected_element_id, bounds, class, resource_id, ancestor_sign_chain"},
		}, []string{"dump", "hint"}),
	}
	ep := l.mcpEndpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*containerReq)
		h, err := container.ParseHint(r.Hint)
		if err != nil {
			return nil, err
		}
		return l.MatchContainer(ctx, r.Dump, h)
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[containerReq]())
}

// --- gate ---

type gateReq struct {
	Dump       string  `json:"dump"`
	Selector   string  `json:"selector"`
	Confidence float64 `json:"confidence"`
}

func (l *Locator) registerGateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "uianchor_gate",
		Description: "Check that a selector resolves to a single safe element on a UI dump before acting on it.",
		InputSchema: kit.InputSchema(map[string]any{
			"dump":       dumpProp,
			"selector":   map[string]any{"type": "string", "description": "XPath subset: absolute path or //tag[@attr='v']"},
			"confidence": map[string]any{"type": "number", "description": "Static confidence of the selector, 0..1"},
		}, []string{"dump", "selector"}),
	}
	ep := l.mcpEndpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*gateReq)
		if r.Confidence == 0 {
			r.Confidence = 1
		}
		return l.Gate(ctx, r.Dump, r.Selector, r.Confidence)
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[gateReq]())
}

// --- execute ---

func (l *Locator) registerExecuteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "uianchor_execute",
		Description: "Dump the device screen and tap the anchored element, walking the fallback plan and recovery if needed. The result is audited.",
		InputSchema: kit.InputSchema(map[string]any{
			"anchor":   map[string]any{"type": "object"},
			"plan":     map[string]any{"type": "object", "description": "Plan from uianchor_match; omit to derive it on the live screen"},
			"checks":   map[string]any{"type": "array"},
			"recovery": map[string]any{"type": "object", "description": "Original dump and key attributes for last-resort recovery"},
		}, []string{"anchor"}),
	}
	ep := l.mcpEndpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		res := l.Execute(ctx, *req.(*ExecRequest))
		if errors.Is(res.Err, ErrNoDevice) {
			return nil, res.Err
		}
		return res, nil
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[ExecRequest]())
}

// --- recover ---

type recoverReq struct {
	Params json.RawMessage `json:"params"`
	Dump   string          `json:"dump"`
}

func (l *Locator) registerRecoverTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "uianchor_recover",
		Description: "Find an element recorded on an older dump on the current dump.",
		InputSchema: kit.InputSchema(map[string]any{
			"params": map[string]any{"type": "object", "description": "original_data and key_attributes"},
			"dump":   dumpProp,
		}, []string{"params", "dump"}),
	}
	ep := l.mcpEndpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*recoverReq)
		return l.Recover(ctx, r.Params, r.Dump)
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[recoverReq]())
}

// --- audit ---

func (l *Locator) registerAuditTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "uianchor_audit",
		Description: "List recent executions, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"status":     map[string]any{"type": "string", "enum": []string{"success", "failure"}},
			"anchor_key": map[string]any{"type": "string"},
			"limit":      map[string]any{"type": "integer"},
		}, nil),
	}
	ep := l.mcpEndpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		recs, err := l.Audit(ctx, *req.(*observability.AuditFilter))
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": recs}, nil
	})
	kit.RegisterMCPTool(srv, tool, ep, kit.DecodeJSON[observability.AuditFilter]())
}
