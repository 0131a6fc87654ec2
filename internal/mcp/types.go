// Package mcp implements a Model Context Protocol client: it connects to
// configured MCP servers, discovers the tools they expose, and wraps each
// one to satisfy the tool.Tool contract so it can be registered alongside
// built-in tools.
package mcp

import (
	"encoding/json"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Status is the connection state of one configured MCP server.
type Status string

const (
	StatusDisabled   Status = "disabled"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusFailed     Status = "failed"
)

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	Transport  string // "stdio", "sse", or "streamable-http"
	Command    string
	Args       []string
	Env        map[string]string
	URL        string
	Headers    map[string]string
	ToolPrefix string
	Enabled    bool
}

// Tool is one tool exposed by an MCP server, already prefixed with its
// server's name so it cannot collide with a built-in tool's ID.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

func fromSDKTool(t mcpgo.Tool) Tool {
	schema, _ := json.Marshal(t.InputSchema)
	return Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// ServerStatus reports one server's connection state, for diagnostics.
type ServerStatus struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	ToolCount int     `json:"toolCount"`
	Error     *string `json:"error,omitempty"`
}
