package taskgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oxide-run/oxide/internal/event"
	"github.com/oxide-run/oxide/internal/storage"
)

var (
	// ErrNotFound is returned when an operation names an id with no
	// corresponding task.
	ErrNotFound = errors.New("taskgraph: task not found")

	// ErrCycle is returned by AddDependency when the proposed edge
	// would close a cycle in the blocks digraph.
	ErrCycle = errors.New("taskgraph: dependency would create a cycle")
)

// Graph is the task graph (C4): mutations are serialised through a
// write lock, reads through a read lock. Dependency insertion holds
// the write lock across both the cycle check and the edge
// installation, so the two never interleave with another writer.
type Graph struct {
	mu     sync.RWMutex
	store  *storage.Storage
	dir    string
	tasks  map[int64]*Task
	nextID int64
}

// New opens (or creates) a task graph rooted at dir, one JSON file per
// task. Existing tasks are loaded eagerly so the next assigned id
// stays monotonic across restarts.
func New(dir string) (*Graph, error) {
	g := &Graph{
		store: storage.New(dir),
		dir:   dir,
		tasks: make(map[int64]*Task),
	}
	if err := g.load(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) load(ctx context.Context) error {
	var maxID int64
	err := g.store.Scan(ctx, nil, func(key string, data json.RawMessage) error {
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil
		}
		g.tasks[t.ID] = &t
		if t.ID > maxID {
			maxID = t.ID
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("taskgraph: load: %w", err)
	}
	g.nextID = maxID + 1
	return nil
}

func (g *Graph) save(ctx context.Context, t *Task) error {
	return g.store.Put(ctx, []string{strconv.FormatInt(t.ID, 10)}, t)
}

// OutputFilePath returns the append-only output file path for a
// long-running shell task (§3.3), independent of whether the task
// currently has one recorded.
func (g *Graph) OutputFilePath(id int64) string {
	return filepath.Join(g.dir, fmt.Sprintf("%d.output.txt", id))
}

// Create adds a new pending task and returns it.
func (g *Graph) Create(ctx context.Context, subject, description, activeForm string, metadata map[string]any) (*Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()
	id := g.nextID
	g.nextID++

	t := &Task{
		ID:          id,
		Subject:     subject,
		Description: description,
		ActiveForm:  activeForm,
		Status:      StatusPending,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.save(ctx, t); err != nil {
		g.nextID--
		return nil, err
	}
	g.tasks[id] = t
	return cloneTask(t), nil
}

// Get returns a task by id.
func (g *Graph) Get(id int64) (*Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

// List returns every non-tombstoned task sorted by id ascending.
func (g *Graph) List() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		if t.Status == StatusDeleted {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Patch describes a partial update to a task; nil fields are left
// untouched. A non-nil Metadata replaces the map wholesale.
type Patch struct {
	Subject     *string
	Description *string
	ActiveForm  *string
	Status      *Status
	Owner       *string
	Metadata    map[string]any
	OutputPath  *string
	Error       *string
}

func applyPatch(t *Task, p Patch) {
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ActiveForm != nil {
		t.ActiveForm = *p.ActiveForm
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.Metadata != nil {
		t.Metadata = p.Metadata
	}
	if p.OutputPath != nil {
		t.OutputPath = *p.OutputPath
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
}

// Update applies patch to task id, persists it, and — if the patch
// transitions status to completed or deleted — publishes task.ready
// for every dependent whose last open blocker this was.
func (g *Graph) Update(ctx context.Context, id int64, patch Patch) (*Task, error) {
	g.mu.Lock()

	t, ok := g.tasks[id]
	if !ok {
		g.mu.Unlock()
		return nil, ErrNotFound
	}

	var dependents []int64
	if patch.Status != nil && *patch.Status != t.Status &&
		(*patch.Status == StatusCompleted || *patch.Status == StatusDeleted) {
		dependents = g.dependentsOf(id)
	}

	applyPatch(t, patch)
	t.UpdatedAt = time.Now().Unix()

	if err := g.save(ctx, t); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	result := cloneTask(t)

	var newlyReady []*Task
	for _, depID := range dependents {
		if dep, ok := g.tasks[depID]; ok && dep.ready(g.tasks) {
			newlyReady = append(newlyReady, cloneTask(dep))
		}
	}
	g.mu.Unlock()

	for _, dep := range newlyReady {
		event.Publish(event.Event{
			Type: event.TaskReady,
			Data: event.TaskReadyData{TaskID: strconv.FormatInt(dep.ID, 10)},
		})
	}

	return result, nil
}

// Delete tombstones a task: its status becomes deleted but its file
// stays on disk until CleanupCompleted reclaims it.
func (g *Graph) Delete(ctx context.Context, id int64) error {
	deleted := StatusDeleted
	_, err := g.Update(ctx, id, Patch{Status: &deleted})
	return err
}

// AddDependency records that a blocks b (b must wait for a). It fails
// with ErrCycle if b can already (directly or transitively) reach a
// via existing blocks edges, which combined with the new a->b edge
// would close a cycle. Both sides of the edge are installed under the
// same write-lock region as the check.
func (g *Graph) AddDependency(ctx context.Context, a, b int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if a == b {
		return ErrCycle
	}
	ta, ok := g.tasks[a]
	if !ok {
		return ErrNotFound
	}
	tb, ok := g.tasks[b]
	if !ok {
		return ErrNotFound
	}

	if g.reaches(b, a) {
		return ErrCycle
	}

	ta.Blocks = appendUnique(ta.Blocks, b)
	tb.BlockedBy = appendUnique(tb.BlockedBy, a)

	now := time.Now().Unix()
	ta.UpdatedAt = now
	tb.UpdatedAt = now

	if err := g.save(ctx, ta); err != nil {
		return err
	}
	if err := g.save(ctx, tb); err != nil {
		return err
	}
	return nil
}

// reaches reports whether a DFS from `from`, following blocks edges,
// visits `to`.
func (g *Graph) reaches(from, to int64) bool {
	visited := make(map[int64]bool)
	var dfs func(id int64) bool
	dfs = func(id int64) bool {
		if id == to {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := g.tasks[id]
		if !ok {
			return false
		}
		for _, next := range t.Blocks {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

func (g *Graph) dependentsOf(id int64) []int64 {
	var out []int64
	for _, t := range g.tasks {
		if containsID(t.BlockedBy, id) {
			out = append(out, t.ID)
		}
	}
	return out
}

// GetReady returns every ready task (§4.4), sorted by id ascending.
func (g *Graph) GetReady() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Task
	for _, t := range g.tasks {
		if t.ready(g.tasks) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CleanupCompleted deletes the on-disk file (and in-memory entry) for
// every completed task last updated before olderThan ago, and returns
// the count removed.
func (g *Graph) CleanupCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).Unix()
	cleaned := 0
	for id, t := range g.tasks {
		if t.Status != StatusCompleted || t.UpdatedAt >= cutoff {
			continue
		}
		if err := g.store.Delete(ctx, []string{strconv.FormatInt(id, 10)}); err != nil {
			return cleaned, err
		}
		delete(g.tasks, id)
		cleaned++
	}
	return cleaned, nil
}

func cloneTask(t *Task) *Task {
	c := *t
	if t.Blocks != nil {
		c.Blocks = append([]int64(nil), t.Blocks...)
	}
	if t.BlockedBy != nil {
		c.BlockedBy = append([]int64(nil), t.BlockedBy...)
	}
	if t.Metadata != nil {
		m := make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			m[k] = v
		}
		c.Metadata = m
	}
	return &c
}
