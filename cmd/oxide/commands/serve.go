package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxide-run/oxide/internal/agent"
	"github.com/oxide-run/oxide/internal/config"
	"github.com/oxide-run/oxide/internal/gitstate"
	"github.com/oxide-run/oxide/internal/logging"
	"github.com/oxide-run/oxide/internal/permission"
	"github.com/oxide-run/oxide/internal/provider"
	"github.com/oxide-run/oxide/internal/server"
	"github.com/oxide-run/oxide/internal/session"
	"github.com/oxide-run/oxide/internal/storage"
	"github.com/oxide-run/oxide/internal/taskgraph"
	"github.com/oxide-run/oxide/internal/tool"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start headless Oxide server",
	Long: `Start Oxide as a headless server that exposes a minimal HTTP+SSE API
for session management and agent requests (§2.6). Tool confirmations
fall back to auto-deny: anything needing a human decision is rejected
rather than blocking the request indefinitely.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting oxide server")
	logging.Info().Str("directory", workDir).Msg("working directory")

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
	if m := GetGlobalModel(); m != "" {
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
	wrapper := tool.NewWrapper(toolReg, gk, appConfig.Permissions.Deny, autoDenyConfirm)

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

	srv := server.New(&server.Config{
		Port:        servePort,
		Directory:   workDir,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}, appConfig, sessionStore, loop, agentReg, "build")

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Int("port", servePort).Msg("listening")
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
		logging.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// autoDenyConfirm is the headless server's confirmation channel:
// without an interactive operator to ask, anything the gatekeeper
// doesn't auto-approve is declined rather than left hanging.
func autoDenyConfirm(ctx context.Context, decision permission.Decision, call permission.ToolCall) (tool.ConfirmOutcome, error) {
	return tool.ConfirmDeny, nil
}
