package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// connectTimeout bounds how long a single server's handshake may take.
const connectTimeout = 10 * time.Second

// Client manages a set of configured MCP server connections.
type Client struct {
	mu      sync.RWMutex
	servers map[string]*mcpServer
}

type mcpServer struct {
	name   string
	prefix string
	client *mcpclient.Client
	tools  []Tool
	status Status
	err    string
}

// NewClient creates an empty MCP client; servers are added with AddServer.
func NewClient() *Client {
	return &Client{servers: make(map[string]*mcpServer)}
}

// AddServer connects to a configured MCP server and registers its tools.
// A disabled config is recorded but never dialed.
func (c *Client) AddServer(ctx context.Context, name string, cfg ServerConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.servers[name]; exists {
		return fmt.Errorf("mcp: server already added: %s", name)
	}

	prefix := cfg.ToolPrefix
	if prefix == "" {
		prefix = sanitizeToolName(name)
	}

	if !cfg.Enabled {
		c.servers[name] = &mcpServer{name: name, prefix: prefix, status: StatusDisabled}
		return nil
	}

	srv, err := connect(ctx, name, prefix, cfg)
	if err != nil {
		c.servers[name] = &mcpServer{name: name, prefix: prefix, status: StatusFailed, err: err.Error()}
		return fmt.Errorf("mcp: connect %s: %w", name, err)
	}

	c.servers[name] = srv
	return nil
}

func connect(ctx context.Context, name, prefix string, cfg ServerConfig) (*mcpServer, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cl, err := newTransportClient(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Transport != "stdio" {
		if err := cl.Start(ctx); err != nil {
			cl.Close()
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "oxide", Version: "1.0.0"}
	if _, err := cl.Initialize(ctx, initReq); err != nil {
		cl.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	listed, err := cl.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		cl.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]Tool, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		tool := fromSDKTool(t)
		tool.Name = prefix + "_" + sanitizeToolName(tool.Name)
		tools = append(tools, tool)
	}

	return &mcpServer{name: name, prefix: prefix, client: cl, tools: tools, status: StatusConnected}, nil
}

func newTransportClient(cfg ServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio", "":
		if cfg.Command == "" {
			return nil, fmt.Errorf("command is required for stdio transport")
		}
		return mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)

	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)

	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Transport)
	}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// Tools returns every tool exposed by every connected server.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []Tool
	for _, srv := range c.servers {
		if srv.status == StatusConnected {
			all = append(all, srv.tools...)
		}
	}
	return all
}

// ExecuteTool calls toolName (already prefixed, as returned by Tools) on
// its owning server and returns the concatenated text content.
func (c *Client) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	srv, originalName := c.findTool(toolName)
	c.mu.RUnlock()

	if srv == nil {
		return "", fmt.Errorf("mcp: no server owns tool %q", toolName)
	}

	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = originalName
	req.Params.Arguments = argsMap

	result, err := srv.client.CallTool(ctx, req)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(mcpgo.TextContent); ok {
			out.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("mcp: tool %q failed: %s", toolName, out.String())
	}
	return out.String(), nil
}

func (c *Client) findTool(prefixedName string) (*mcpServer, string) {
	for _, srv := range c.servers {
		if srv.status != StatusConnected {
			continue
		}
		prefix := srv.prefix + "_"
		if strings.HasPrefix(prefixedName, prefix) {
			return srv, strings.TrimPrefix(prefixedName, prefix)
		}
	}
	return nil, ""
}

// Status reports every configured server's connection state.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ServerStatus, 0, len(c.servers))
	for _, srv := range c.servers {
		s := ServerStatus{Name: srv.name, Status: srv.status, ToolCount: len(srv.tools)}
		if srv.err != "" {
			s.Error = &srv.err
		}
		out = append(out, s)
	}
	return out
}

// Close disconnects every connected server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, srv := range c.servers {
		if srv.client != nil {
			srv.client.Close()
		}
	}
	c.servers = make(map[string]*mcpServer)
	return nil
}

// sanitizeToolName replaces any character outside [A-Za-z0-9] with an
// underscore so a server or tool name is always a safe ID fragment.
func sanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
