package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 10 * time.Minute
	MaxReportLength    = 5000
	SigkillTimeout     = 200 * time.Millisecond
	backgroundPollInterval = 100 * time.Millisecond
)

const bashDescription = `Executes a shell command, in the foreground or as a background task.

Usage:
- command is required
- Optional timeout_ms (default 120000, max 600000)
- Optional run_in_background: returns a task id immediately instead of blocking
- stdout and stderr are interleaved in the order they arrive
- The user-visible report is truncated at 5000 characters; the full output is kept internally`

// backgroundTask tracks one detached shell_execute invocation.
type backgroundTask struct {
	mu       sync.Mutex
	running  bool
	buffer   strings.Builder
	exitCode int
	cmd      *exec.Cmd
}

// BashTool implements shell command execution (§4.7.3-4.7.5).
type BashTool struct {
	workDir string
	shell   string

	mu         sync.Mutex
	background map[string]*backgroundTask
}

// BashInput represents the input for the shell_execute tool.
type BashInput struct {
	Command         string `json:"command"`
	TimeoutMs       int    `json:"timeout_ms,omitempty"`
	Description     string `json:"description"`
	RunInBackground bool   `json:"run_in_background,omitempty"`
}

// BashToolOption configures the bash tool.
type BashToolOption func(*BashTool)

// NewBashTool creates a new shell_execute tool.
func NewBashTool(workDir string, opts ...BashToolOption) *BashTool {
	t := &BashTool{
		workDir:    workDir,
		shell:      detectShell(),
		background: make(map[string]*backgroundTask),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		if s != "/bin/fish" && s != "/usr/bin/fish" && s != "/bin/nu" && s != "/usr/bin/nu" {
			return s
		}
	}
	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) ID() string          { return "shell_execute" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The command to execute"},
			"timeout_ms": {"type": "integer", "description": "Optional timeout in milliseconds (max 600000)"},
			"description": {"type": "string", "description": "Brief description of what this command does"},
			"run_in_background": {"type": "boolean", "description": "Run detached and return a task id immediately"}
		},
		"required": ["command", "description"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BashInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	timeout := DefaultBashTimeout
	if params.TimeoutMs > 0 {
		timeout = time.Duration(params.TimeoutMs) * time.Millisecond
		if timeout > MaxBashTimeout {
			timeout = MaxBashTimeout
		}
	}

	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}

	if params.RunInBackground {
		id := ulid.Make().String()
		task := &backgroundTask{running: true}
		t.mu.Lock()
		t.background[id] = task
		t.mu.Unlock()

		go t.runDetached(task, params.Command, workDir)

		return &Result{
			Title:  fmt.Sprintf("Started background task %s", id),
			Output: id,
			Metadata: map[string]any{
				"task_id": id,
				"running": true,
			},
		}, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := t.buildCommand(cmdCtx, params.Command, workDir)
	full, err := t.runInterleaved(cmd)
	timedOut := cmdCtx.Err() == context.DeadlineExceeded
	if timedOut {
		return nil, fmt.Errorf("command timed out after %v", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	report := full
	if len(report) > MaxReportLength {
		report = report[:MaxReportLength] + "\n\n(Output truncated)"
	}

	title := params.Description
	if title == "" {
		title = "Run command"
	}

	return &Result{
		Title:  title,
		Output: report,
		Metadata: map[string]any{
			"exit":        exitCode,
			"description": params.Description,
			"full_length": len(full),
		},
	}, nil
}

func (t *BashTool) buildCommand(ctx context.Context, command, workDir string) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, t.shell, "-c", command)
	}
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	return cmd
}

// runInterleaved multiplexes stdout and stderr into a single buffer in
// the order lines arrive, approximating a non-blocking select over
// both streams with one reader goroutine per stream feeding a shared,
// mutex-guarded builder.
func (t *BashTool) runInterleaved(cmd *exec.Cmd) (string, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}

	var mu sync.Mutex
	var buf strings.Builder

	pump := func(r io.Reader) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			mu.Lock()
			buf.WriteString(scanner.Text())
			buf.WriteByte('\n')
			mu.Unlock()
		}
	}

	if err := cmd.Start(); err != nil {
		return "", err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); pump(stdout) }()
	go func() { defer wg.Done(); pump(stderr) }()
	wg.Wait()

	runErr := cmd.Wait()
	return buf.String(), runErr
}

func (t *BashTool) runDetached(task *backgroundTask, command, workDir string) {
	cmd := t.buildCommand(context.Background(), command, workDir)
	task.mu.Lock()
	task.cmd = cmd
	task.mu.Unlock()

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	pump := func(r io.Reader) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			task.mu.Lock()
			task.buffer.WriteString(scanner.Text())
			task.buffer.WriteByte('\n')
			task.mu.Unlock()
		}
	}

	if err := cmd.Start(); err != nil {
		task.mu.Lock()
		task.running = false
		task.exitCode = -1
		task.mu.Unlock()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); pump(stdout) }()
	go func() { defer wg.Done(); pump(stderr) }()
	wg.Wait()

	err := cmd.Wait()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	task.mu.Lock()
	task.running = false
	task.exitCode = exitCode
	task.mu.Unlock()
}

// Background returns the background task registered under id, if any.
func (t *BashTool) Background(id string) (*backgroundTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.background[id]
	return task, ok
}

func (t *BashTool) killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if runtime.GOOS == "windows" {
		exec.Command("taskkill", "/pid", fmt.Sprint(pid), "/f", "/t").Run()
		return
	}
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(SigkillTimeout)
	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func (t *BashTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

