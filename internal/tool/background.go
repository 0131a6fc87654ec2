package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

const (
	// DefaultBackgroundPollTimeout is how long background_task_output
	// blocks waiting for completion when timeout_ms is unset (§5).
	DefaultBackgroundPollTimeout = 30 * time.Second
	// MaxBackgroundPollTimeout caps timeout_ms regardless of what the
	// caller requests (§5).
	MaxBackgroundPollTimeout = 10 * time.Minute
)

// BackgroundOutputTool retrieves a background shell_execute task's
// current state (§4.7.4).
type BackgroundOutputTool struct {
	bash *BashTool
}

func NewBackgroundOutputTool(bash *BashTool) *BackgroundOutputTool {
	return &BackgroundOutputTool{bash: bash}
}

type backgroundOutputInput struct {
	TaskID    string `json:"task_id"`
	Block     *bool  `json:"block,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

func (t *BackgroundOutputTool) ID() string { return "background_task_output" }
func (t *BackgroundOutputTool) Description() string {
	return "Retrieves the output and status of a background shell_execute task, optionally blocking until it completes."
}

func (t *BackgroundOutputTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string"},
			"block": {"type": "boolean", "description": "Wait for completion (default: true)"},
			"timeout_ms": {"type": "integer", "description": "Poll timeout in milliseconds (default 30000, max 600000)"}
		},
		"required": ["task_id"]
	}`)
}

func (t *BackgroundOutputTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params backgroundOutputInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	task, ok := t.bash.Background(params.TaskID)
	if !ok {
		return nil, fmt.Errorf("unknown background task: %s", params.TaskID)
	}

	block := true
	if params.Block != nil {
		block = *params.Block
	}

	if block {
		timeout := DefaultBackgroundPollTimeout
		if params.TimeoutMs > 0 {
			timeout = time.Duration(params.TimeoutMs) * time.Millisecond
			if timeout > MaxBackgroundPollTimeout {
				timeout = MaxBackgroundPollTimeout
			}
		}
		deadline := time.Now().Add(timeout)
		for {
			task.mu.Lock()
			running := task.running
			task.mu.Unlock()
			if !running {
				break
			}
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timed out waiting for background task %s", params.TaskID)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backgroundPollInterval):
			}
		}
	}

	task.mu.Lock()
	output := task.buffer.String()
	running := task.running
	exitCode := task.exitCode
	task.mu.Unlock()

	report := output
	if len(report) > MaxReportLength {
		report = report[:MaxReportLength] + "\n\n(Output truncated)"
	}

	return &Result{
		Title:  fmt.Sprintf("Background task %s", params.TaskID),
		Output: report,
		Metadata: map[string]any{
			"task_id": params.TaskID,
			"running": running,
			"exit":    exitCode,
		},
	}, nil
}

func (t *BackgroundOutputTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// BackgroundCancelTool cancels a background shell_execute task
// (§4.7.5). It marks the task record stopped; it does not send a
// process signal.
type BackgroundCancelTool struct {
	bash *BashTool
}

func NewBackgroundCancelTool(bash *BashTool) *BackgroundCancelTool {
	return &BackgroundCancelTool{bash: bash}
}

type backgroundCancelInput struct {
	TaskID string `json:"task_id"`
}

func (t *BackgroundCancelTool) ID() string { return "background_task_cancel" }
func (t *BackgroundCancelTool) Description() string {
	return "Marks a background shell_execute task as stopped. Does not send a process signal."
}

func (t *BackgroundCancelTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"task_id": {"type": "string"}},
		"required": ["task_id"]
	}`)
}

func (t *BackgroundCancelTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params backgroundCancelInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	task, ok := t.bash.Background(params.TaskID)
	if !ok {
		return nil, fmt.Errorf("unknown background task: %s", params.TaskID)
	}

	task.mu.Lock()
	task.running = false
	task.exitCode = -1
	task.mu.Unlock()

	return &Result{
		Title:  fmt.Sprintf("Cancelled background task %s", params.TaskID),
		Output: "cancelled",
		Metadata: map[string]any{
			"task_id": params.TaskID,
		},
	}, nil
}

func (t *BackgroundCancelTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
