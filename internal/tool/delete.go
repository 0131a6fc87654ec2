package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/oxide-run/oxide/internal/event"
)

const deleteDescription = `Deletes a file from the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- The path must refer to a regular file, not a directory
- This is irreversible; the wrapper pipeline requires high-severity confirmation`

// DeleteTool implements file deletion.
type DeleteTool struct {
	workDir string
}

// DeleteInput represents the input for the delete_file tool.
type DeleteInput struct {
	FilePath string `json:"filePath"`
}

// NewDeleteTool creates a new delete_file tool.
func NewDeleteTool(workDir string) *DeleteTool {
	return &DeleteTool{workDir: workDir}
}

func (t *DeleteTool) ID() string          { return "delete_file" }
func (t *DeleteTool) Description() string { return deleteDescription }

func (t *DeleteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {"type": "string", "description": "The absolute path to the file to delete"}
		},
		"required": ["filePath"]
	}`)
}

func (t *DeleteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params DeleteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %s", params.FilePath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", params.FilePath)
	}

	if err := os.Remove(params.FilePath); err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}

	if toolCtx != nil && toolCtx.SessionID != "" {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{Path: params.FilePath},
		})
	}

	return &Result{
		Title:  fmt.Sprintf("Deleted %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Deleted %s", params.FilePath),
		Metadata: map[string]any{
			"file": params.FilePath,
		},
	}, nil
}

func (t *DeleteTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
