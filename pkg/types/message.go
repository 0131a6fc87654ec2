// Package types defines the wire and in-memory data model shared across
// the session store, the agent loop, and the tool fabric.
package types

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleToolResult Role = "tool_result"
	RoleSystem    Role = "system"
)

// BlockType identifies the concrete type of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ContentBlock is one element of a message's ordered content.
// Exactly one of the Text/ToolUse/ToolResult/Image fields is populated,
// selected by Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// BlockToolResult — ToolUseID above names the tool-use this replies to.
	ResultBody  string `json:"result_body,omitempty"`
	ResultError bool   `json:"result_error,omitempty"`

	// BlockImage
	ImageMediaType string `json:"image_media_type,omitempty"`
	ImageData      string `json:"image_data,omitempty"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock constructs a tool-use content block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock constructs a tool-result content block bound to the
// tool-use it replies to.
func ToolResultBlock(toolUseID, body string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, ResultBody: body, ResultError: isError}
}

// Message is one turn in a transcript: a role and an ordered list of
// content blocks.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
	Created int64          `json:"created"`
}

// Transcript is the ordered sequence of messages making up a conversation.
type Transcript []Message

// ToolUseIDs returns every tool-use id appearing in the transcript, in order.
func (t Transcript) ToolUseIDs() []string {
	var ids []string
	for _, m := range t {
		for _, b := range m.Content {
			if b.Type == BlockToolUse {
				ids = append(ids, b.ToolUseID)
			}
		}
	}
	return ids
}

// ValidateToolResultLinkage checks invariant P1: every tool-result block's
// ToolUseID names a tool-use id that appears earlier in the transcript.
func (t Transcript) ValidateToolResultLinkage() error {
	seen := make(map[string]bool)
	for _, m := range t {
		for _, b := range m.Content {
			switch b.Type {
			case BlockToolUse:
				seen[b.ToolUseID] = true
			case BlockToolResult:
				if !seen[b.ToolUseID] {
					return &DanglingToolResultError{ToolUseID: b.ToolUseID}
				}
			}
		}
	}
	return nil
}

// DanglingToolResultError reports a tool-result block referencing a
// tool-use id absent from (or not yet preceding it in) the transcript.
type DanglingToolResultError struct {
	ToolUseID string
}

func (e *DanglingToolResultError) Error() string {
	return "tool-result references unknown tool-use id " + e.ToolUseID
}

// LastText returns the concatenated text of the final assistant message,
// or "" if the transcript is empty or ends on a non-assistant message.
func (t Transcript) LastText() string {
	if len(t) == 0 {
		return ""
	}
	last := t[len(t)-1]
	if last.Role != RoleAssistant {
		return ""
	}
	var out string
	for _, b := range last.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
