// Package provider provides LLM provider abstraction using Eino framework.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/oxide-run/oxide/pkg/types"
)

// Provider represents an LLM provider with Eino ChatModel. This is the
// pluggable capability section 6 names: BuildRequest assembles a
// CompletionRequest from the core's own transcript shape, CreateCompletion
// drives it through the provider's streaming API, and Complete drains a stream
// into a single response for non-interactive callers.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion creates a streaming completion — the "stream"
	// half of section 6's provider capability.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []*schema.Message   `json:"messages"`
	Tools       []*schema.ToolInfo  `json:"tools,omitempty"`
	MaxTokens   int                 `json:"maxTokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"topP,omitempty"`
	StopWords   []string            `json:"stopWords,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream creates a new completion stream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToolInfo represents a tool definition for the LLM.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ConvertToEinoTools converts internal tool definitions to Eino format.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		// Parse parameters from JSON schema
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}

		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}

		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}

	return params
}

// einoRole maps a transcript Role to its Eino schema equivalent.
func einoRole(role types.Role) schema.RoleType {
	switch role {
	case types.RoleUser:
		return schema.User
	case types.RoleSystem:
		return schema.System
	case types.RoleToolResult:
		return schema.Tool
	default:
		return schema.Assistant
	}
}

// roleFromEino maps an Eino schema role back to the transcript's Role.
func roleFromEino(role schema.RoleType) types.Role {
	switch role {
	case schema.User:
		return types.RoleUser
	case schema.System:
		return types.RoleSystem
	case schema.Tool:
		return types.RoleToolResult
	default:
		return types.RoleAssistant
	}
}

// BuildRequest assembles a CompletionRequest from the core's own
// transcript shape: the "build_request(system_preamble, transcript,
// tool_schemas)" half of section 6's provider capability. The system
// preamble, if non-empty, is prepended as a synthetic system message.
func BuildRequest(modelID string, systemPreamble string, transcript types.Transcript, toolSchemas []ToolInfo, maxTokens int, temperature float64) *CompletionRequest {
	messages := make([]*schema.Message, 0, len(transcript)+1)
	if systemPreamble != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: systemPreamble})
	}
	messages = append(messages, ConvertToEinoMessages(transcript)...)

	return &CompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Tools:       ConvertToEinoTools(toolSchemas),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Complete drains a provider's stream into a single response — the
// "complete(request) -> response" half of section 6's provider
// capability, for callers (session title generation, context
// compaction) that don't need incremental text deltas.
func Complete(ctx context.Context, p Provider, req *CompletionRequest) (*types.Message, error) {
	stream, err := p.CreateCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider completion: %w", err)
	}
	defer stream.Close()

	var content string
	var toolCalls []schema.ToolCall
	role := schema.Assistant
	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		if chunk == nil {
			continue
		}
		role = chunk.Role
		content += chunk.Content
		toolCalls = append(toolCalls, chunk.ToolCalls...)
	}

	blocks := []types.ContentBlock{}
	if content != "" {
		blocks = append(blocks, types.TextBlock(content))
	}
	for _, tc := range toolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		blocks = append(blocks, types.ToolUseBlock(tc.ID, tc.Function.Name, input))
	}

	return &types.Message{Role: roleFromEino(role), Content: blocks}, nil
}

// ConvertToEinoMessages converts a transcript into Eino chat messages.
func ConvertToEinoMessages(transcript types.Transcript) []*schema.Message {
	result := make([]*schema.Message, 0, len(transcript))

	for _, msg := range transcript {
		einoMsg := &schema.Message{Role: einoRole(msg.Role)}

		var text string
		var toolCalls []schema.ToolCall
		for _, block := range msg.Content {
			switch block.Type {
			case types.BlockText:
				text += block.Text
			case types.BlockToolUse:
				inputJSON, _ := json.Marshal(block.ToolInput)
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: block.ToolUseID,
					Function: schema.FunctionCall{
						Name:      block.ToolName,
						Arguments: string(inputJSON),
					},
				})
			case types.BlockToolResult:
				einoMsg.ToolCallID = block.ToolUseID
				text += block.ResultBody
			}
		}
		einoMsg.Content = text
		einoMsg.ToolCalls = toolCalls

		result = append(result, einoMsg)
	}

	return result
}
