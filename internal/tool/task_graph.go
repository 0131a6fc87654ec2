package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/oxide-run/oxide/internal/taskgraph"
)

const taskGraphDescription = `Use this tool to manage a persistent graph of work items with dependencies, distinct from the session-local todo list.

Unlike todowrite/todoread, tasks here survive across sessions, can block one another, and surface in get_ready only once every blocker is resolved. Use it for work that spans multiple turns or that other agents/subtasks need to pick up once unblocked.

Actions:
- create: add a task (subject, description, active_form?, metadata?)
- get: fetch one task by id
- list: list every non-deleted task, sorted by id
- update: patch a task's subject/description/active_form/status/owner/metadata/error
- delete: tombstone a task (status becomes deleted; it still occupies an id)
- add_dependency: record that task "a" blocks task "b"; rejected if it would create a cycle
- get_ready: list every pending, unowned task whose blockers are all completed or deleted
- cleanup_completed: reclaim completed tasks last updated more than older_than_seconds ago`

// TaskGraphTool exposes the project's persistent task graph to the model.
type TaskGraphTool struct {
	workDir string
	graph   *taskgraph.Graph
}

// NewTaskGraphTool creates a new task_graph tool backed by graph.
func NewTaskGraphTool(workDir string, graph *taskgraph.Graph) *TaskGraphTool {
	return &TaskGraphTool{workDir: workDir, graph: graph}
}

func (t *TaskGraphTool) ID() string          { return "task_graph" }
func (t *TaskGraphTool) Description() string { return taskGraphDescription }

func (t *TaskGraphTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"description": "One of: create, get, list, update, delete, add_dependency, get_ready, cleanup_completed"
			},
			"id": {
				"type": "integer",
				"description": "Task id (get, update, delete)"
			},
			"subject": {
				"type": "string",
				"description": "Short task title (create, update)"
			},
			"description": {
				"type": "string",
				"description": "Task detail (create, update)"
			},
			"active_form": {
				"type": "string",
				"description": "Present-continuous label shown while in progress (create, update)"
			},
			"status": {
				"type": "string",
				"description": "pending, in-progress, completed, failed, or deleted (update)"
			},
			"owner": {
				"type": "string",
				"description": "Who/what claimed the task (update)"
			},
			"error": {
				"type": "string",
				"description": "Failure detail (update)"
			},
			"metadata": {
				"type": "object",
				"description": "Arbitrary structured data (create, update)"
			},
			"a": {
				"type": "integer",
				"description": "Blocking task id (add_dependency)"
			},
			"b": {
				"type": "integer",
				"description": "Blocked task id (add_dependency)"
			},
			"older_than_seconds": {
				"type": "integer",
				"description": "Age threshold for cleanup_completed"
			}
		},
		"required": ["action"]
	}`)
}

// taskGraphInput covers the union of fields any action may use; unused
// fields for a given action are simply ignored.
type taskGraphInput struct {
	Action           string         `json:"action"`
	ID               int64          `json:"id"`
	Subject          string         `json:"subject"`
	Description      string         `json:"description"`
	ActiveForm       string         `json:"active_form"`
	Status           string         `json:"status"`
	Owner            string         `json:"owner"`
	Error            string         `json:"error"`
	Metadata         map[string]any `json:"metadata"`
	A                int64          `json:"a"`
	B                int64          `json:"b"`
	OlderThanSeconds int64          `json:"older_than_seconds"`
}

func (t *TaskGraphTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in taskGraphInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	switch in.Action {
	case "create":
		task, err := t.graph.Create(ctx, in.Subject, in.Description, in.ActiveForm, in.Metadata)
		if err != nil {
			return nil, err
		}
		return taskResult(fmt.Sprintf("created task %d", task.ID), task)

	case "get":
		task, err := t.graph.Get(in.ID)
		if err != nil {
			return nil, err
		}
		return taskResult(fmt.Sprintf("task %d", task.ID), task)

	case "list":
		tasks := t.graph.List()
		return taskResult(fmt.Sprintf("%d tasks", len(tasks)), tasks)

	case "update":
		patch := taskgraph.Patch{}
		if in.Subject != "" {
			patch.Subject = &in.Subject
		}
		if in.Description != "" {
			patch.Description = &in.Description
		}
		if in.ActiveForm != "" {
			patch.ActiveForm = &in.ActiveForm
		}
		if in.Status != "" {
			status := taskgraph.Status(in.Status)
			patch.Status = &status
		}
		if in.Owner != "" {
			patch.Owner = &in.Owner
		}
		if in.Error != "" {
			patch.Error = &in.Error
		}
		if in.Metadata != nil {
			patch.Metadata = in.Metadata
		}
		task, err := t.graph.Update(ctx, in.ID, patch)
		if err != nil {
			return nil, err
		}
		return taskResult(fmt.Sprintf("updated task %d", task.ID), task)

	case "delete":
		if err := t.graph.Delete(ctx, in.ID); err != nil {
			return nil, err
		}
		return taskResult(fmt.Sprintf("deleted task %d", in.ID), map[string]any{"id": in.ID})

	case "add_dependency":
		if err := t.graph.AddDependency(ctx, in.A, in.B); err != nil {
			return nil, err
		}
		return taskResult(fmt.Sprintf("task %d now blocks task %d", in.A, in.B), map[string]any{"a": in.A, "b": in.B})

	case "get_ready":
		ready := t.graph.GetReady()
		return taskResult(fmt.Sprintf("%d ready", len(ready)), ready)

	case "cleanup_completed":
		n, err := t.graph.CleanupCompleted(ctx, time.Duration(in.OlderThanSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		return taskResult(fmt.Sprintf("cleaned up %d tasks", n), map[string]any{"cleaned": n})

	default:
		return nil, fmt.Errorf("unknown action %q", in.Action)
	}
}

func taskResult(title string, data any) (*Result, error) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, err
	}
	return &Result{
		Title:  title,
		Output: string(output),
		Metadata: map[string]any{
			"result": data,
		},
	}, nil
}

func (t *TaskGraphTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
