package commands

import (
	"context"

	"github.com/oxide-run/oxide/internal/logging"
	"github.com/oxide-run/oxide/internal/mcp"
	"github.com/oxide-run/oxide/internal/tool"
	"github.com/oxide-run/oxide/pkg/types"
)

// connectMCPServers dials every configured MCP server and merges its tools
// into toolReg. A server that fails to connect is logged and skipped —
// one misbehaving server must not keep the rest of the tool set from
// loading.
func connectMCPServers(ctx context.Context, cfg *types.Config, toolReg *tool.Registry) *mcp.Client {
	client := mcp.NewClient()
	if !cfg.Features.EnableMCP {
		return client
	}

	for name, server := range cfg.MCP {
		err := client.AddServer(ctx, name, mcp.ServerConfig{
			Transport:  server.Transport,
			Command:    server.Command,
			Args:       server.Args,
			Env:        server.Env,
			URL:        server.URL,
			Headers:    server.Headers,
			ToolPrefix: server.ToolPrefix,
			Enabled:    server.Enabled,
		})
		if err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("mcp server connect failed, skipping")
		}
	}

	mcp.RegisterMCPTools(client, toolReg)
	return client
}
