package tool

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnoreLines backstop what a repo's own .gitignore usually
// excludes, applied even when no .gitignore file is present.
var defaultIgnoreLines = []string{
	".git/",
	"node_modules/",
	"__pycache__/",
	"dist/",
	"build/",
	"target/",
	"vendor/",
	".venv/",
}

// loadIgnorer builds a gitignore-aware matcher rooted at dir, combining
// the directory's own .gitignore (if present) with a conservative
// default set so glob and grep never walk into build output or VCS
// internals.
func loadIgnorer(dir string) *gitignore.GitIgnore {
	lines := append([]string{}, defaultIgnoreLines...)
	if data, err := os.ReadFile(filepath.Join(dir, ".gitignore")); err == nil {
		lines = append(lines, splitLines(string(data))...)
	}
	return gitignore.CompileIgnoreLines(lines...)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
