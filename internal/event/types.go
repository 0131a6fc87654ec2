package event

import "github.com/oxide-run/oxide/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Metadata types.SessionMetadata `json:"metadata"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Metadata types.SessionMetadata `json:"metadata"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	SessionID string `json:"sessionID"`
}

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	SessionID string        `json:"sessionID"`
	Message   types.Message `json:"message"`
}

// MessagePartUpdatedData is the data for message.part.updated events —
// a streaming text delta or a completed content block.
type MessagePartUpdatedData struct {
	SessionID string              `json:"sessionID"`
	MessageID string              `json:"messageID"`
	Block     types.ContentBlock  `json:"block"`
	Delta     string              `json:"delta,omitempty"`
}

// FileEditedData is the data for file.edited events.
type FileEditedData struct {
	Path string `json:"path"`
}

// ToolCallStartedData is published at wrapper-pipeline step 1
// (progress begin, §4.5).
type ToolCallStartedData struct {
	SessionID string `json:"sessionID"`
	CallID    string `json:"callID"`
	Tool      string `json:"tool"`
}

// ToolCallCompletedData is published at wrapper-pipeline step 5
// (progress end, §4.5).
type ToolCallCompletedData struct {
	SessionID string `json:"sessionID"`
	CallID    string `json:"callID"`
	Tool      string `json:"tool"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	DurationMS int64 `json:"durationMS"`
}

// PermissionRequiredData is the data for permission.required events
// (wrapper-pipeline step 3, §4.5).
type PermissionRequiredData struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	Tool      string   `json:"tool"`
	Pattern   []string `json:"pattern,omitempty"`
	Title     string   `json:"title"`
}

// PermissionResolvedData is the data for permission.resolved events.
type PermissionResolvedData struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Response  string `json:"response"` // "once" | "always" | "reject"
}

// TaskReadyData is published when a task graph mutation makes a
// previously-blocked task ready (C4 get_ready).
type TaskReadyData struct {
	TaskID string `json:"taskID"`
}

// TodoUpdatedData is published whenever a session's todo list changes.
type TodoUpdatedData struct {
	SessionID string           `json:"sessionID"`
	Todos     []types.TodoInfo `json:"todos"`
}

// VcsBranchUpdatedData is published when the workspace's current git
// branch changes, refreshing the gatekeeper's git-state context field
// (§4.6) cheaply instead of shelling out on every decision.
type VcsBranchUpdatedData struct {
	Branch string `json:"branch"`
}
