package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/oxide-run/oxide/pkg/mcpserver/calculator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCalculatorSSE(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	sseServer := server.NewSSEServer(calculator.NewServer(), server.WithBaseURL(fmt.Sprintf("http://%s", addr)))
	go sseServer.Start(addr)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sseServer.Shutdown(ctx)
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Sprintf("http://%s/sse", addr)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("calculator SSE server did not start")
	return ""
}

func TestClient_AddServerAndListTools(t *testing.T) {
	url := startCalculatorSSE(t)
	ctx := context.Background()

	c := NewClient()
	err := c.AddServer(ctx, "calc", ServerConfig{Transport: "sse", URL: url, Enabled: true})
	require.NoError(t, err)
	defer c.Close()

	tools := c.Tools()
	require.NotEmpty(t, tools)

	var found bool
	for _, tool := range tools {
		if tool.Name == "calc_sum" {
			found = true
		}
	}
	assert.True(t, found, "expected calc_sum in %v", tools)
}

func TestClient_ExecuteTool(t *testing.T) {
	url := startCalculatorSSE(t)
	ctx := context.Background()

	c := NewClient()
	require.NoError(t, c.AddServer(ctx, "calc", ServerConfig{Transport: "sse", URL: url, Enabled: true}))
	defer c.Close()

	args, _ := json.Marshal(map[string]any{"numbers": []float64{1, 2, 3}})
	out, err := c.ExecuteTool(ctx, "calc_sum", args)
	require.NoError(t, err)
	assert.Equal(t, "6", out)
}

func TestClient_DisabledServerNeverDials(t *testing.T) {
	ctx := context.Background()
	c := NewClient()
	err := c.AddServer(ctx, "calc", ServerConfig{Transport: "sse", URL: "http://127.0.0.1:1/sse", Enabled: false})
	require.NoError(t, err)

	status := c.Status()
	require.Len(t, status, 1)
	assert.Equal(t, StatusDisabled, status[0].Status)
}

func TestClient_AddServerDuplicateName(t *testing.T) {
	url := startCalculatorSSE(t)
	ctx := context.Background()

	c := NewClient()
	require.NoError(t, c.AddServer(ctx, "calc", ServerConfig{Transport: "sse", URL: url, Enabled: true}))
	defer c.Close()

	err := c.AddServer(ctx, "calc", ServerConfig{Transport: "sse", URL: url, Enabled: true})
	assert.Error(t, err)
}
