// Package config implements the layered configuration resolver (C1):
// global config file, project config file, then environment variables,
// each layer overriding the previous on a per-field basis.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds the standard XDG-style locations for Oxide's own data,
// distinct from the per-project .oxide/ directory.
type Paths struct {
	Data   string // ~/.local/share/oxide
	Config string // ~/.config/oxide
	Cache  string // ~/.cache/oxide
	State  string // ~/.local/state/oxide
}

// GetPaths returns the standard paths for Oxide's global data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "oxide"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "oxide"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "oxide"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "oxide"),
	}
}

// EnsurePaths creates all required global directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// SkillsDir returns the directory holding global prompt-template skill files.
func (p *Paths) SkillsDir() string {
	return filepath.Join(p.Config, "skills")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config.toml.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "config.toml")
}

// ProjectDir returns the per-project .oxide/ directory for directory.
func ProjectDir(directory string) string {
	return filepath.Join(directory, ".oxide")
}

// ProjectConfigPath returns the path to the project-local config.toml.
func ProjectConfigPath(directory string) string {
	return filepath.Join(ProjectDir(directory), "config.toml")
}

// ProjectInstructionsPath returns the path to the optional project-level
// CONFIG.md instructions file.
func ProjectInstructionsPath(directory string) string {
	return filepath.Join(ProjectDir(directory), "CONFIG.md")
}

// SessionsDir returns the per-project sessions directory.
func SessionsDir(directory string) string {
	return filepath.Join(ProjectDir(directory), "sessions")
}

// TasksDir returns the per-project tasks directory.
func TasksDir(directory string) string {
	return filepath.Join(ProjectDir(directory), "tasks")
}

// AuthPath returns the path to the global auth/credentials file.
func AuthPath() string {
	return filepath.Join(GetPaths().Data, "auth.json")
}

// EnsureProjectDirs creates the per-project .oxide/ substructure.
func EnsureProjectDirs(directory string) error {
	for _, dir := range []string{ProjectDir(directory), SessionsDir(directory), TasksDir(directory)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
