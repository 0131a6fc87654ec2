package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPToolWrapper_ExecuteAndRegister(t *testing.T) {
	url := startCalculatorSSE(t)
	ctx := context.Background()

	c := NewClient()
	require.NoError(t, c.AddServer(ctx, "calc", ServerConfig{Transport: "sse", URL: url, Enabled: true}))
	defer c.Close()

	tools := c.Tools()
	require.NotEmpty(t, tools)

	wrapper := NewMCPToolWrapper(tools[0], c)
	assert.Equal(t, "calc_sum", wrapper.ID())
	assert.NotEmpty(t, wrapper.Description())
	assert.NotNil(t, wrapper.Parameters())

	input, _ := json.Marshal(map[string]any{"numbers": []float64{2, 3, 5}})
	result, err := wrapper.Execute(ctx, input, nil)
	require.NoError(t, err)
	assert.Equal(t, "10", result.Output)
}

func TestRegisterMCPTools_NilSafe(t *testing.T) {
	RegisterMCPTools(nil, nil)
}
