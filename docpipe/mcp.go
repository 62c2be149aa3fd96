package docpipe

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lexdoc/docclean"
	"github.com/hazyhaar/lexdoc/idgen"
	"github.com/hazyhaar/lexdoc/kit"
)

var newCallID = idgen.Prefixed("mcp_", idgen.Default)

// RegisterMCP registers the docpipe tools on an MCP server. Each wrap
// factory is called with the tool name and decorates that tool's endpoint;
// the first factory is outermost.
func (p *Pipeline) RegisterMCP(srv *mcp.Server, wrap ...func(tool string) kit.Middleware) {
	p.registerCleanTool(srv, wrap)
	p.registerSplitTool(srv, wrap)
	p.registerFormatsTool(srv, wrap)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decorate(name string, endpoint kit.Endpoint, wrap []func(string) kit.Middleware) kit.Endpoint {
	for i := len(wrap) - 1; i >= 0; i-- {
		endpoint = wrap[i](name)(endpoint)
	}
	return endpoint
}

func withCallID(ctx context.Context) context.Context {
	return kit.WithRequestID(ctx, newCallID())
}

// documentReq names a document either inline (html) or on disk (path).
type documentReq struct {
	HTML     string `json:"html,omitempty"`
	Path     string `json:"path,omitempty"`
	Markdown bool   `json:"markdown,omitempty"`
}

var documentProps = map[string]any{
	"html": map[string]any{"type": "string", "description": "Raw HTML of the document"},
	"path": map[string]any{"type": "string", "description": "Path of a .docx, .odt or .html file"},
}

func (p *Pipeline) load(r *documentReq) (Format, []byte, error) {
	switch {
	case r.HTML != "" && r.Path != "":
		return "", nil, errors.New("give either html or path, not both")
	case r.HTML != "":
		return FormatHTML, []byte(r.HTML), nil
	case r.Path != "":
		return p.ReadFile(r.Path)
	default:
		return "", nil, errors.New("html or path is required")
	}
}

func decodeDocument(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r documentReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r, EnrichCtx: withCallID}, nil
}

// --- clean ---

func (p *Pipeline) registerCleanTool(srv *mcp.Server, wrap []func(string) kit.Middleware) {
	const name = "docpipe_clean"
	tool := &mcp.Tool{
		Name:        name,
		Description: "Convert a document and return its sanitized HTML as one fragment.",
		InputSchema: inputSchema(documentProps, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		format, data, err := p.load(req.(*documentReq))
		if err != nil {
			return nil, err
		}
		cleaned, err := p.Clean(ctx, format, data)
		if err != nil {
			return nil, err
		}
		return map[string]any{"html": cleaned}, nil
	}

	kit.RegisterMCPTool(srv, tool, decorate(name, endpoint, wrap), decodeDocument)
}

// --- split ---

type splitResp struct {
	Sections docclean.Sections `json:"sections"`
	Missing  []string          `json:"missing,omitempty"`
}

func (p *Pipeline) registerSplitTool(srv *mcp.Server, wrap []func(string) kit.Middleware) {
	const name = "docpipe_split"
	props := map[string]any{
		"markdown": map[string]any{"type": "boolean", "description": "Return sections as Markdown instead of HTML"},
	}
	for k, v := range documentProps {
		props[k] = v
	}
	tool := &mcp.Tool{
		Name:        name,
		Description: "Convert a document, sanitize it and split it into jurisdiction, thresholds, procedures and standard sections.",
		InputSchema: inputSchema(props, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*documentReq)
		format, data, err := p.load(r)
		if err != nil {
			return nil, err
		}
		res, err := p.Split(ctx, format, data)
		if err != nil {
			return nil, err
		}
		out := splitResp{Sections: res.Sections, Missing: res.Missing}
		if r.Markdown {
			if out.Sections, err = p.Markdown(res.Sections); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, decorate(name, endpoint, wrap), decodeDocument)
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server, wrap []func(string) kit.Middleware) {
	const name = "docpipe_formats"
	tool := &mcp.Tool{
		Name:        name,
		Description: "List all supported document formats.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, decorate(name, endpoint, wrap), decode)
}
