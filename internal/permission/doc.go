// Package permission implements the rule- and trust-score-based HITL
// gatekeeper that fronts every tool call, plus the pure bash-command
// parsing it leans on for shell-specific checks.
//
// # HITL gatekeeper
//
// Gatekeeper.Evaluate decides, per proposed tool call, whether it may run
// directly, needs a yes/no confirmation (graded Info through Critical), needs
// a multi-choice prompt, or must be rejected outright. A fast path always
// executes read-only tools and safe-prefixed shell commands directly; above
// the auto-approve trust threshold, low-risk tools also execute directly;
// otherwise a small rule table decides. RecordSuccess/RecordRejection adjust
// the trust score after each outcome and feed a capped history ring.
//
//	gk := NewGatekeeper(trustConfig)
//	decision := gk.Evaluate(ToolCall{
//		ToolName: "shell_execute",
//		Args:     map[string]any{"command": "rm -rf build/"},
//		Context:  OperationContext{WorkDir: workDir},
//	})
//
// Only a RequireConfirmation or RequireChoice verdict reaches the wrapper
// pipeline's confirmation step (internal/tool.Wrapper); ExecuteDirectly skips
// it and RejectDecision short-circuits with a PermissionDenied error.
//
// # Bash command parsing
//
// isSafeShellCommand and isDangerousShellCommand evaluate each statement of a
// shell command separately, rather than matching the raw string, so a safe
// prefix chained ahead of a dangerous one (e.g. "git status && rm -rf /")
// cannot slip past the safe-prefix fast path:
//
//	commands, err := ParseBashCommand("git commit -m 'fix bug' && rm -rf /tmp")
//	// Returns one BashCommand per statement: {Name: "git", Subcommand: "commit", ...},
//	// {Name: "rm", Args: ["-rf", "/tmp"]}
//
// externalPathEscalation uses the same parse, plus IsDangerousCommand and
// ExtractPaths, to flag a dangerous command (rm, mv, chmod, ...) whose
// arguments resolve outside the call's WorkDir, escalating the confirmation
// to LevelHigh.
//
// # Permission configuration
//
// AgentPermissions defines the static permission policy for an agent:
//
//	permissions := AgentPermissions{
//		Edit:        ActionAsk,
//		WebFetch:    ActionAllow,
//		ExternalDir: ActionDeny,
//		DoomLoop:    ActionAsk,
//		Bash: map[string]PermissionAction{
//			"git *":  ActionAllow,
//			"rm *":   ActionAsk,
//			"sudo *": ActionDeny,
//		},
//	}
//
// # Error handling
//
// The tool wrapper pipeline reports denials with the typed errors of
// internal/ozerr: *ozerr.PermissionDenied for a deny-listed tool or a
// gatekeeper Reject decision, and *ozerr.UserCancellation when a
// confirmation is declined. RejectedError is a separate error type of this
// package that carries context about a denied operation; the gatekeeper and
// the wrapper do not return it:
//
//	if err != nil && IsRejectedError(err) {
//		rejErr := err.(*RejectedError)
//		log.Printf("permission denied for %s: %s", rejErr.Type, rejErr.Message)
//	}
//
// # Thread safety
//
// Gatekeeper is safe for concurrent use; its trust score and history ring are
// guarded by an internal mutex.
package permission
