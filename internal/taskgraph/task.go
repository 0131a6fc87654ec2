// Package taskgraph implements the task graph (C4): a set of task
// nodes related by blocks/blocked_by edges, persisted one file per
// task under a project's tasks directory.
package taskgraph

// Status is the lifecycle state of a task node.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// Task is one node of the task graph (§3.3).
type Task struct {
	ID          int64          `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	ActiveForm  string         `json:"active_form,omitempty"`
	Status      Status         `json:"status"`
	Owner       string         `json:"owner,omitempty"`

	// Blocks lists ids this task prevents from starting.
	// BlockedBy lists ids that must finish before this task can start.
	// The two are kept bidirectional: id A in some task's Blocks iff
	// that task's id is in task A's BlockedBy.
	Blocks    []int64 `json:"blocks,omitempty"`
	BlockedBy []int64 `json:"blocked_by,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Ready reports whether a task is eligible to start: pending, unowned,
// and every id in BlockedBy refers to a task that is completed or
// deleted (or missing, in which case it is treated as unsatisfied).
func (t *Task) ready(byID map[int64]*Task) bool {
	if t.Status != StatusPending || t.Owner != "" {
		return false
	}
	for _, id := range t.BlockedBy {
		blocker, ok := byID[id]
		if !ok {
			return false
		}
		if blocker.Status != StatusCompleted && blocker.Status != StatusDeleted {
			return false
		}
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []int64, id int64) []int64 {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}
