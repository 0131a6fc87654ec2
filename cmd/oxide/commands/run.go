package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oxide-run/oxide/internal/agent"
	"github.com/oxide-run/oxide/internal/config"
	"github.com/oxide-run/oxide/internal/gitstate"
	"github.com/oxide-run/oxide/internal/permission"
	"github.com/oxide-run/oxide/internal/provider"
	"github.com/oxide-run/oxide/internal/replcmd"
	"github.com/oxide-run/oxide/internal/session"
	"github.com/oxide-run/oxide/internal/storage"
	"github.com/oxide-run/oxide/internal/taskgraph"
	"github.com/oxide-run/oxide/internal/tool"
)

var (
	runModel   string
	runAgent   string
	runSession string
	runDir     string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Start an interactive Oxide session",
	Long: `Start an interactive Oxide REPL, or process a single message and exit
if one is given on the command line.

Examples:
  oxide run
  oxide run "Fix the bug in main.go"
  oxide run --model anthropic/claude-sonnet-4 "Explain this code"
  oxide run --session 01J... "Continue where we left off"`,
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runAgent, "agent", "build", "Agent to use")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}
	if err := config.EnsureProjectDirs(workDir); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if m := runModel; m != "" {
		appConfig.Default.Model = m
	} else if m := GetGlobalModel(); m != "" {
		appConfig.Default.Model = m
	}

	ctx := context.Background()

	store := storage.New(config.ProjectDir(workDir))

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}

	toolReg := tool.DefaultRegistry(workDir, store)
	agentReg := agent.NewRegistry()
	toolReg.RegisterTaskTool(agentReg)

	taskGraph, err := taskgraph.New(config.TasksDir(workDir))
	if err != nil {
		return fmt.Errorf("failed to open task graph: %w", err)
	}
	toolReg.RegisterTaskGraphTool(taskGraph)

	mcpClient := connectMCPServers(ctx, appConfig, toolReg)
	defer mcpClient.Close()

	gk := permission.NewGatekeeper(appConfig.Trust)
	wrapper := tool.NewWrapper(toolReg, gk, appConfig.Permissions.Deny, terminalConfirm)

	gitTracker, err := gitstate.New(workDir)
	if err != nil {
		return fmt.Errorf("failed to initialize git state tracker: %w", err)
	}
	gitTracker.Start()
	defer gitTracker.Stop()
	wrapper.SetGitState(gitTracker)

	sessionStore := session.NewStore(store)
	loop := session.NewLoop(sessionStore, providerReg, toolReg, wrapper, agentReg, appConfig, workDir)
	toolReg.SetTaskExecutor(loop)

	dispatcher := replcmd.New(sessionStore, appConfig, workDir)

	sessionID, err := resolveSessionID(ctx, sessionStore, runSession)
	if err != nil {
		return err
	}

	if message := strings.TrimSpace(strings.Join(args, " ")); message != "" {
		return runOnce(ctx, loop, sessionID, runAgent, message)
	}

	return repl(ctx, dispatcher, loop, sessionStore, sessionID, runAgent)
}

func resolveSessionID(ctx context.Context, store *session.Store, requested string) (string, error) {
	if requested != "" {
		if _, err := store.Switch(ctx, requested); err != nil {
			return "", fmt.Errorf("load session %s: %w", requested, err)
		}
		return requested, nil
	}
	return store.Create(ctx)
}

func runOnce(ctx context.Context, loop *session.Loop, sessionID, agentName, message string) error {
	result, err := loop.Run(ctx, sessionID, agentName, message)
	if err != nil {
		return fmt.Errorf("processing error: %w", err)
	}
	fmt.Println(result.Text)
	return nil
}

func repl(ctx context.Context, dispatcher *replcmd.Dispatcher, loop *session.Loop, store *session.Store, sessionID, agentName string) error {
	fmt.Printf("oxide session %s (agent: %s). Type /help for commands.\n", sessionID, agentName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if replcmd.IsCommand(line) {
			outcome, err := dispatcher.Dispatch(ctx, line, sessionID)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if outcome.Output != "" {
				fmt.Println(outcome.Output)
			}
			if outcome.SwitchTo != "" {
				sessionID = outcome.SwitchTo
			}
			if outcome.Quit {
				return nil
			}
			continue
		}

		if err := store.PushRecent(ctx, line); err != nil {
			fmt.Fprintln(os.Stderr, "warning: failed to record history:", err)
		}

		result, err := loop.Run(ctx, sessionID, agentName, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(result.Text)
	}
}

// terminalConfirm surfaces a gatekeeper decision as a y/n prompt on
// stdin/stdout (§4.6). "session" approvals persist for the rest of the
// REPL's lifetime; "once" approvals apply only to the pending call.
func terminalConfirm(ctx context.Context, decision permission.Decision, call permission.ToolCall) (tool.ConfirmOutcome, error) {
	reader := bufio.NewReader(os.Stdin)

	if decision.Kind == permission.RequireChoice {
		fmt.Printf("\n%s\n", decision.Question)
		for i, opt := range decision.Options {
			fmt.Printf("  %d) %s - %s\n", i+1, opt.Label, opt.Description)
		}
		fmt.Printf("choice [%s]: ", decision.Default)
	} else {
		fmt.Printf("\n%s: %s\n", call.ToolName, decision.Reason)
		fmt.Print("allow? [y(es)/n(o)/a(lways)/s(ession)]: ")
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return tool.ConfirmDeny, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return tool.ConfirmOnce, nil
	case "s", "session":
		return tool.ConfirmSession, nil
	case "a", "always":
		return tool.ConfirmAlways, nil
	default:
		return tool.ConfirmDeny, nil
	}
}
