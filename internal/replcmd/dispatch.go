package replcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oxide-run/oxide/internal/session"
	"github.com/oxide-run/oxide/pkg/types"
)

// Outcome is what dispatching one slash command produced.
type Outcome struct {
	// Output is printed to the REPL verbatim.
	Output string
	// Quit tells the REPL loop to exit cleanly.
	Quit bool
	// SwitchTo, when non-empty, tells the REPL to make this session the
	// active one (set by /clear and /load, and by /delete when it deletes
	// the active session).
	SwitchTo string
}

// Dispatcher resolves and runs slash commands against a project's
// session store and resolved configuration.
type Dispatcher struct {
	store   *session.Store
	config  *types.Config
	workDir string
}

// New creates a Dispatcher. config may be nil, in which case /config
// reports that no configuration is loaded.
func New(store *session.Store, config *types.Config, workDir string) *Dispatcher {
	return &Dispatcher{store: store, config: config, workDir: workDir}
}

// IsCommand reports whether line is a slash command rather than a
// prompt to send to the agent.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "/")
}

// Dispatch parses and runs line, which must satisfy IsCommand.
// sessionID is the REPL's currently active session, needed by commands
// like /delete that can affect it.
func (d *Dispatcher) Dispatch(ctx context.Context, line, sessionID string) (*Outcome, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return &Outcome{Output: "empty command"}, nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "help":
		return d.help(), nil
	case "clear":
		return d.clear(ctx)
	case "config":
		return d.showConfig(), nil
	case "history":
		return d.history(), nil
	case "load":
		return d.load(ctx, args)
	case "sessions":
		return d.sessions(ctx)
	case "delete":
		return d.delete(ctx, args, sessionID)
	case "quit", "exit":
		return &Outcome{Quit: true}, nil
	default:
		return nil, fmt.Errorf("unknown command: /%s (try /help)", name)
	}
}

func (d *Dispatcher) help() *Outcome {
	lines := []string{
		"/help            show this message",
		"/clear           start a new session",
		"/config          print the resolved configuration",
		"/history         show recent input across sessions",
		"/load <id>       switch to an existing session",
		"/sessions        list saved sessions",
		"/delete <id>     delete a saved session",
		"/quit, /exit     leave the REPL",
	}
	return &Outcome{Output: strings.Join(lines, "\n")}
}

func (d *Dispatcher) clear(ctx context.Context) (*Outcome, error) {
	id, err := d.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("start new session: %w", err)
	}
	return &Outcome{Output: fmt.Sprintf("started session %s", id), SwitchTo: id}, nil
}

func (d *Dispatcher) showConfig() *Outcome {
	if d.config == nil {
		return &Outcome{Output: "no configuration loaded"}
	}
	data, err := json.MarshalIndent(d.config, "", "  ")
	if err != nil {
		return &Outcome{Output: fmt.Sprintf("failed to render config: %v", err)}
	}
	return &Outcome{Output: string(data)}
}

func (d *Dispatcher) history() *Outcome {
	entries := d.store.RecentHistory()
	if len(entries) == 0 {
		return &Outcome{Output: "no recent history"}
	}
	var b strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&b, "%3d  %s\n", i+1, entry)
	}
	return &Outcome{Output: strings.TrimRight(b.String(), "\n")}
}

func (d *Dispatcher) load(ctx context.Context, args []string) (*Outcome, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: /load <session-id>")
	}
	id := args[0]
	if _, err := d.store.Switch(ctx, id); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &Outcome{Output: fmt.Sprintf("loaded session %s", id), SwitchTo: id}, nil
}

func (d *Dispatcher) sessions(ctx context.Context) (*Outcome, error) {
	metas, err := d.store.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(metas) == 0 {
		return &Outcome{Output: "no saved sessions"}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %-20s %8s  %s\n", "SESSION", "UPDATED", "MESSAGES", "TITLE")
	for _, m := range metas {
		updated := time.UnixMilli(m.LastUpdated).Format(time.RFC3339)
		fmt.Fprintf(&b, "%-30s %-20s %8d  %s\n", m.SessionID, updated, m.MessageCount, m.Title)
	}
	return &Outcome{Output: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) delete(ctx context.Context, args []string, activeID string) (*Outcome, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: /delete <session-id>")
	}
	id := args[0]
	if err := d.store.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete session %s: %w", id, err)
	}
	out := &Outcome{Output: fmt.Sprintf("deleted session %s", id)}
	if id == activeID {
		newID, err := d.store.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("start replacement session: %w", err)
		}
		out.Output += fmt.Sprintf(", started new session %s", newID)
		out.SwitchTo = newID
	}
	return out, nil
}
