// Package gitstate maintains a cheap, fsnotify-backed view of the
// workspace's current git branch so the HITL gatekeeper (§4.6) can read
// OperationContext.GitBranch/HasGit without shelling out to git on
// every tool-call decision.
package gitstate

import (
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/oxide-run/oxide/internal/event"
	"github.com/oxide-run/oxide/internal/logging"
)

// Tracker watches .git for HEAD changes and caches the current branch.
// A Tracker for a non-git workDir is valid but reports HasGit() == false.
type Tracker struct {
	watcher *fsnotify.Watcher
	workDir string
	gitDir  string

	mu     sync.RWMutex
	branch string

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	startMu sync.Mutex
}

// New creates a Tracker for workDir. If workDir is not a git repository,
// it returns a Tracker with HasGit() == false and a no-op Start/Stop,
// rather than an error — a missing repository is normal, not fatal.
func New(workDir string) (*Tracker, error) {
	gitDir := findGitDir(workDir)
	if gitDir == "" {
		logging.Logger.Debug().Str("workDir", workDir).Msg("not a git repository, git state tracker disabled")
		return &Tracker{workDir: workDir}, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(gitDir); err != nil {
		w.Close()
		return nil, err
	}

	branch := currentBranch(workDir)
	logging.Logger.Info().Str("branch", branch).Str("gitDir", gitDir).Msg("git state tracker initialized")

	return &Tracker{
		watcher: w,
		workDir: workDir,
		gitDir:  gitDir,
		branch:  branch,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// HasGit reports whether workDir is inside a git repository.
func (t *Tracker) HasGit() bool {
	return t.gitDir != ""
}

// Branch returns the last-observed current branch, or "" if HasGit is false.
func (t *Tracker) Branch() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.branch
}

// Start begins watching for branch changes. A no-op for a non-git Tracker.
func (t *Tracker) Start() {
	if t.watcher == nil {
		return
	}
	t.startMu.Lock()
	if t.started {
		t.startMu.Unlock()
		return
	}
	t.started = true
	t.startMu.Unlock()
	go t.run()
}

func (t *Tracker) run() {
	defer close(t.doneCh)

	for {
		select {
		case <-t.stopCh:
			return
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 &&
				(strings.HasSuffix(ev.Name, "HEAD") || strings.Contains(ev.Name, ".git")) {
				t.checkBranchChange()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Error().Err(err).Msg("git state tracker error")
		}
	}
}

func (t *Tracker) checkBranchChange() {
	newBranch := currentBranch(t.workDir)

	t.mu.Lock()
	changed := newBranch != t.branch
	if changed {
		t.branch = newBranch
	}
	t.mu.Unlock()

	if changed {
		logging.Logger.Info().Str("branch", newBranch).Msg("git branch changed")
		event.PublishSync(event.Event{
			Type: event.VcsBranchUpdated,
			Data: event.VcsBranchUpdatedData{Branch: newBranch},
		})
	}
}

// Stop stops the watcher. A no-op for a non-git Tracker.
func (t *Tracker) Stop() error {
	if t.watcher == nil {
		return nil
	}

	t.startMu.Lock()
	started := t.started
	t.startMu.Unlock()

	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}

	if started {
		<-t.doneCh
	}

	return t.watcher.Close()
}

func findGitDir(workDir string) string {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}

	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(workDir, gitDir)
	}
	return gitDir
}

func currentBranch(workDir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
