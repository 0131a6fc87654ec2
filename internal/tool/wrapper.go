package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oxide-run/oxide/internal/event"
	"github.com/oxide-run/oxide/internal/gitstate"
	"github.com/oxide-run/oxide/internal/logging"
	"github.com/oxide-run/oxide/internal/ozerr"
	"github.com/oxide-run/oxide/internal/permission"
)

// ConfirmOutcome is the user's answer to a RequireConfirmation or
// RequireChoice decision.
type ConfirmOutcome string

const (
	ConfirmOnce    ConfirmOutcome = "once"
	ConfirmSession ConfirmOutcome = "session"
	ConfirmAlways  ConfirmOutcome = "always"
	ConfirmDeny    ConfirmOutcome = "deny"
)

// ConfirmFunc surfaces a gatekeeper decision to the user and returns
// their outcome. Wrapper treats a nil ConfirmFunc as "no confirmation
// channel available" and denies anything that isn't ExecuteDirectly.
type ConfirmFunc func(ctx context.Context, decision permission.Decision, call permission.ToolCall) (ConfirmOutcome, error)

// selfConfirmer is implemented by tools (currently only EditTool) that
// preview and confirm their own side effects, so the wrapper pipeline
// must not prompt a second time even if the gatekeeper's rule table
// hasn't special-cased them.
type selfConfirmer interface {
	SelfConfirming() bool
}

// Wrapper implements the five-step tool-execution pipeline: progress
// begin, deny-list check, gatekeeper confirmation, execution, progress
// end. It sits between the agent loop and the tool registry.
type Wrapper struct {
	registry   *Registry
	gatekeeper *permission.Gatekeeper
	denylist   map[string]bool
	confirm    ConfirmFunc
	gitState   *gitstate.Tracker

	mu        sync.Mutex
	approvals map[string]map[string]bool // sessionID (or "*" for always) -> tool -> approved
}

// NewWrapper creates a pipeline around registry, gated by gk. denylist
// names tools that are always rejected regardless of gatekeeper
// verdict; confirm is invoked whenever the gatekeeper asks for a
// decision and no self-confirming tool already handled it.
func NewWrapper(registry *Registry, gk *permission.Gatekeeper, denylist []string, confirm ConfirmFunc) *Wrapper {
	deny := make(map[string]bool, len(denylist))
	for _, name := range denylist {
		deny[name] = true
	}
	return &Wrapper{
		registry:   registry,
		gatekeeper: gk,
		denylist:   deny,
		confirm:    confirm,
		approvals:  make(map[string]map[string]bool),
	}
}

// Execute runs toolName through the full pipeline.
func (w *Wrapper) Execute(ctx context.Context, toolName string, input json.RawMessage, toolCtx *Context) (*Result, error) {
	start := time.Now()
	sessionID := ""
	callID := ""
	if toolCtx != nil {
		sessionID = toolCtx.SessionID
		callID = toolCtx.CallID
	}

	event.Publish(event.Event{
		Type: event.ToolCallStarted,
		Data: event.ToolCallStartedData{SessionID: sessionID, CallID: callID, Tool: toolName},
	})

	result, err := w.run(ctx, toolName, input, toolCtx)

	completed := event.ToolCallCompletedData{
		SessionID:  sessionID,
		CallID:     callID,
		Tool:       toolName,
		Success:    err == nil,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		completed.Error = err.Error()
	}
	event.Publish(event.Event{Type: event.ToolCallCompleted, Data: completed})

	return result, err
}

func (w *Wrapper) run(ctx context.Context, toolName string, input json.RawMessage, toolCtx *Context) (*Result, error) {
	if w.denylist[toolName] {
		return nil, &ozerr.PermissionDenied{Tool: toolName, Reason: "tool is disabled by configuration"}
	}

	t, ok := w.registry.Get(toolName)
	if !ok {
		return nil, &ozerr.ToolExecutionError{Tool: toolName, Reason: "tool not found"}
	}

	sessionID := ""
	if toolCtx != nil {
		sessionID = toolCtx.SessionID
	}

	if !w.isApproved(sessionID, toolName) {
		var args map[string]any
		_ = json.Unmarshal(input, &args)

		var opCtx permission.OperationContext
		if w.gitState != nil {
			opCtx.HasGit = w.gitState.HasGit()
			opCtx.GitBranch = w.gitState.Branch()
		}
		if toolCtx != nil {
			opCtx.WorkDir = toolCtx.WorkDir
		}

		call := permission.ToolCall{ToolName: toolName, Args: args, Context: opCtx}
		decision := w.gatekeeper.Evaluate(call)

		switch decision.Kind {
		case permission.RejectDecision:
			w.gatekeeper.RecordRejection()
			return nil, &ozerr.PermissionDenied{Tool: toolName, Reason: decision.Reason}

		case permission.RequireConfirmation, permission.RequireChoice:
			if sc, ok := t.(selfConfirmer); ok && sc.SelfConfirming() {
				logging.Logger.Debug().Str("tool", toolName).Msg("tool self-confirms, skipping gatekeeper prompt")
				break
			}

			if w.confirm == nil {
				return nil, &ozerr.UserCancellation{Tool: toolName, Reason: "no confirmation channel available"}
			}

			outcome, err := w.confirm(ctx, decision, call)
			if err != nil {
				return nil, err
			}

			switch outcome {
			case ConfirmDeny:
				w.gatekeeper.RecordRejection()
				return nil, &ozerr.UserCancellation{Tool: toolName, Reason: "declined by user"}
			case ConfirmSession:
				w.approve(sessionID, toolName)
			case ConfirmAlways:
				w.approve("*", toolName)
			case ConfirmOnce:
				// proceed without recording an approval
			default:
				return nil, &ozerr.UserCancellation{Tool: toolName, Reason: fmt.Sprintf("unrecognized confirmation outcome %q", outcome)}
			}

		case permission.ExecuteDirectly:
			// proceed
		}
	}

	if toolCtx != nil && toolCtx.IsAborted() {
		return nil, &ozerr.UserCancellation{Tool: toolName, Reason: "aborted before execution"}
	}

	result, err := t.Execute(ctx, input, toolCtx)
	if err != nil {
		return nil, err
	}

	w.gatekeeper.RecordSuccess(toolName)
	return result, nil
}

func (w *Wrapper) isApproved(sessionID, tool string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.approvals["*"][tool] {
		return true
	}
	if sessionID == "" {
		return false
	}
	return w.approvals[sessionID][tool]
}

func (w *Wrapper) approve(sessionID, tool string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.approvals[sessionID] == nil {
		w.approvals[sessionID] = make(map[string]bool)
	}
	w.approvals[sessionID][tool] = true
}

// SetGitState attaches a git-state tracker whose current branch
// populates OperationContext.HasGit/GitBranch on every gatekeeper
// evaluation (§4.6). A nil or never-set tracker leaves both zero.
func (w *Wrapper) SetGitState(tracker *gitstate.Tracker) {
	w.gitState = tracker
}

// ClearSession drops every session-scoped approval for sessionID,
// leaving "always" approvals untouched.
func (w *Wrapper) ClearSession(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.approvals, sessionID)
}
