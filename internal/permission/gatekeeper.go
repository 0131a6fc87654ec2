package permission

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oxide-run/oxide/pkg/types"
)

// WarningLevel grades a RequireConfirmation decision's severity.
type WarningLevel string

const (
	LevelInfo     WarningLevel = "info"
	LevelLow      WarningLevel = "low"
	LevelMedium   WarningLevel = "medium"
	LevelHigh     WarningLevel = "high"
	LevelCritical WarningLevel = "critical"
)

// DecisionKind discriminates a Gatekeeper decision.
type DecisionKind string

const (
	ExecuteDirectly     DecisionKind = "execute_directly"
	RequireConfirmation DecisionKind = "require_confirmation"
	RequireChoice       DecisionKind = "require_choice"
	RejectDecision      DecisionKind = "reject"
)

// Choice is one option of a RequireChoice decision.
type Choice struct {
	Label       string
	Description string
}

// Decision is the gatekeeper's verdict on a proposed tool call (§4.6).
type Decision struct {
	Kind   DecisionKind
	Reason string

	Level WarningLevel // set when Kind == RequireConfirmation

	Question string   // set when Kind == RequireChoice
	Options  []Choice // set when Kind == RequireChoice
	Default  string   // set when Kind == RequireChoice

	Suggestion string // set when Kind == RejectDecision
}

// OperationContext is the ambient state the gatekeeper weighs
// alongside the tool call itself.
type OperationContext struct {
	RecentOperations []string
	CurrentTask      string
	HasGit           bool
	GitBranch        string
	WorkDir          string
}

// ToolCall is the gatekeeper's input: the proposed call and its
// surrounding context.
type ToolCall struct {
	ToolName string
	Args     map[string]any
	Context  OperationContext
}

// readOnlyTools never touch workspace state and always execute
// directly regardless of trust score.
var readOnlyTools = map[string]bool{
	"read_file": true, "glob": true, "grep_search": true, "scan_codebase": true,
}

// lowRiskTools are eligible for the trust-score auto-approve shortcut.
var lowRiskTools = map[string]bool{
	"read_file": true, "write_file": true, "edit_file": true,
	"glob": true, "grep_search": true, "scan_codebase": true,
}

var safeShellPrefixes = []string{
	"git status", "git diff", "git log", "git show",
	"ls", "pwd", "cat", "echo", "which",
	"rustc --version", "cargo --version", "node --version", "python --version",
}

var dangerousShellPatterns = []string{
	"rm -rf", "rm -fr", ":(){:|:&};:", "dd if=/dev/zero",
	"mkfs", "format", "shutdown", "reboot", "kill -9",
}

// Gatekeeper is the HITL gatekeeper (C7): a rule engine fronted by a
// trust-score shortcut, with no model call of its own. Trust score and
// operation history are process-wide state guarded by mu.
type Gatekeeper struct {
	mu      sync.Mutex
	trust   types.TrustConfig
	score   float64
	history []string
}

// NewGatekeeper creates a gatekeeper seeded at trust.InitialScore.
func NewGatekeeper(trust types.TrustConfig) *Gatekeeper {
	return &Gatekeeper{trust: trust, score: trust.InitialScore}
}

// TrustScore returns the current trust score.
func (g *Gatekeeper) TrustScore() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.score
}

// History returns a copy of the bounded recent-operation ring.
func (g *Gatekeeper) History() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.history))
	copy(out, g.history)
	return out
}

// Evaluate decides whether call may run directly, needs confirmation
// or a choice, or must be rejected outright (§4.6 evaluation order).
func (g *Gatekeeper) Evaluate(call ToolCall) Decision {
	if d, ok := fastPath(call); ok {
		return d
	}

	g.mu.Lock()
	score := g.score
	threshold := g.trust.AutoApproveThreshold
	g.mu.Unlock()

	if score >= threshold && lowRiskTools[call.ToolName] {
		return Decision{
			Kind:   ExecuteDirectly,
			Reason: fmt.Sprintf("trust score %.2f meets the auto-approve threshold for a low-risk tool", score),
		}
	}

	return ruleBasedDecision(call)
}

func fastPath(call ToolCall) (Decision, bool) {
	if readOnlyTools[call.ToolName] {
		return Decision{Kind: ExecuteDirectly, Reason: "read-only operation, no risk"}, true
	}
	if call.ToolName == "shell_execute" {
		if cmd, ok := call.Args["command"].(string); ok && isSafeShellCommand(cmd) {
			return Decision{Kind: ExecuteDirectly, Reason: "command matches a known safe read-only prefix"}, true
		}
	}
	return Decision{}, false
}

// isSafeShellCommand reports whether every statement in cmd (split on
// ;, &&, ||, and pipes by the bash parser) matches a known safe
// prefix. Evaluating each statement rather than the raw string closes
// the bypass where a safe-looking command is chained ahead of an
// unsafe one, e.g. "git status && rm -rf /".
func isSafeShellCommand(cmd string) bool {
	commands, err := ParseBashCommand(cmd)
	if err != nil || len(commands) == 0 {
		return hasSafePrefix(cmd)
	}
	for _, c := range commands {
		if !hasSafePrefix(reconstructCommand(c)) {
			return false
		}
	}
	return true
}

// isDangerousShellCommand reports whether cmd, or any of its parsed
// statements, matches a known dangerous pattern.
func isDangerousShellCommand(cmd string) bool {
	if hasDangerousPattern(cmd) {
		return true
	}
	commands, err := ParseBashCommand(cmd)
	if err != nil {
		return false
	}
	for _, c := range commands {
		if hasDangerousPattern(reconstructCommand(c)) {
			return true
		}
	}
	return false
}

func hasSafePrefix(cmd string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(cmd))
	for _, prefix := range safeShellPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func hasDangerousPattern(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, pattern := range dangerousShellPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func reconstructCommand(c BashCommand) string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// resolveAgainstWorkDir resolves path against workDir without shelling
// out: absolute paths are cleaned as-is, home-relative paths are left
// alone (can't be expanded without knowing the user), everything else
// is joined to workDir.
func resolveAgainstWorkDir(path, workDir string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Clean(filepath.Join(workDir, path))
}

// externalPathEscalation reports whether cmd's dangerous statements
// (rm, mv, chmod, ...) touch a path outside workDir.
func externalPathEscalation(cmd, workDir string) (string, bool) {
	commands, err := ParseBashCommand(cmd)
	if err != nil {
		return "", false
	}
	for _, c := range commands {
		if c.Name == "cd" || !IsDangerousCommand(c.Name) {
			continue
		}
		for _, p := range ExtractPaths(c) {
			resolved := resolveAgainstWorkDir(p, workDir)
			if !IsWithinDir(resolved, workDir) {
				return fmt.Sprintf("%q references %s outside of %s", c.Name, resolved, workDir), true
			}
		}
	}
	return "", false
}

func ruleBasedDecision(call ToolCall) Decision {
	switch call.ToolName {
	case "delete_file":
		return Decision{Kind: RequireConfirmation, Reason: "about to delete a file", Level: LevelHigh}

	case "shell_execute":
		cmd, _ := call.Args["command"].(string)
		if isDangerousShellCommand(cmd) {
			return Decision{
				Kind:       RejectDecision,
				Reason:     "command matches a known dangerous pattern",
				Suggestion: "use a narrower, reversible command instead",
			}
		}
		if workDir := call.Context.WorkDir; workDir != "" {
			if reason, outside := externalPathEscalation(cmd, workDir); outside {
				return Decision{Kind: RequireConfirmation, Reason: "command " + reason, Level: LevelHigh}
			}
		}
		reason := "about to execute a shell command"
		if cmd != "" {
			reason = fmt.Sprintf("about to execute: %s", cmd)
		}
		return Decision{Kind: RequireConfirmation, Reason: reason, Level: LevelMedium}

	case "edit_file":
		// The edit tool previews the diff and confirms on its own;
		// asking again here would double-prompt.
		return Decision{Kind: ExecuteDirectly, Reason: "tool performs its own preview and confirmation"}

	case "write_file", "multiedit":
		return Decision{Kind: RequireConfirmation, Reason: "about to modify a file", Level: LevelLow}

	default:
		return Decision{Kind: ExecuteDirectly, Reason: "unknown tool, default to executing"}
	}
}

// RecordSuccess raises the trust score by trust.Increment (capped at
// 1) and appends op to the 100-entry history ring, evicting the
// oldest entry once full.
func (g *Gatekeeper) RecordSuccess(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.score += g.trust.Increment
	if g.score > 1 {
		g.score = 1
	}
	g.history = append(g.history, op)
	if len(g.history) > 100 {
		g.history = g.history[len(g.history)-100:]
	}
}

// RecordRejection lowers the trust score by trust.Decrement, floored
// at 0.
func (g *Gatekeeper) RecordRejection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.score -= g.trust.Decrement
	if g.score < 0 {
		g.score = 0
	}
}
