package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/bmatcuk/doublestar/v4"
)

const grepDescription = `A powerful content search tool.

Usage:
- Supports full regex syntax (e.g., "log.*Error", "function\\s+\\w+")
- Filter files with glob parameter (e.g., "*.js", "**/*.tsx") or type parameter (e.g., "js", "py", "rust")
- Output modes: "files_with_matches" (default), "count", "content"
- Respects .gitignore`

// typeAliases maps a short file-type alias to the extensions it covers.
var typeAliases = map[string][]string{
	"js":   {"js", "jsx", "mjs", "cjs"},
	"ts":   {"ts", "tsx"},
	"py":   {"py"},
	"go":   {"go"},
	"rust": {"rs"},
	"rs":   {"rs"},
	"java": {"java"},
	"c":    {"c", "h"},
	"cpp":  {"cpp", "cc", "cxx", "hpp"},
	"rb":   {"rb"},
	"md":   {"md", "markdown"},
}

// GrepTool implements content search.
type GrepTool struct {
	workDir string
}

// GrepInput represents the input for the grep tool.
type GrepInput struct {
	Pattern         string `json:"pattern"`
	Path            string `json:"path,omitempty"`
	Glob            string `json:"glob,omitempty"`
	Type            string `json:"type,omitempty"`
	OutputMode      string `json:"output_mode,omitempty"` // files_with_matches | count | content
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	HeadLimit       int    `json:"head_limit,omitempty"`
	Offset          int    `json:"offset,omitempty"`
	ContextBefore   int    `json:"before,omitempty"`
	ContextAfter    int    `json:"after,omitempty"`
}

// NewGrepTool creates a new grep tool.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) ID() string          { return "grep_search" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "The regex pattern to search for in file contents"},
			"path": {"type": "string", "description": "Base directory to search (default: current working directory)"},
			"glob": {"type": "string", "description": "Nested glob on file name, e.g. \"*.js\""},
			"type": {"type": "string", "description": "File type alias, e.g. \"js\", \"ts\", \"rust\""},
			"output_mode": {"type": "string", "enum": ["files_with_matches", "count", "content"]},
			"case_insensitive": {"type": "boolean"},
			"head_limit": {"type": "integer"},
			"offset": {"type": "integer"},
			"before": {"type": "integer", "description": "Lines of context before a match (content mode)"},
			"after": {"type": "integer", "description": "Lines of context after a match (content mode)"}
		},
		"required": ["pattern"]
	}`)
}

// GrepMatch represents a search match.
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	flags := "(?s)" // dot matches newline
	if params.CaseInsensitive {
		flags += "(?i)"
	}
	re, err := regexp.Compile(flags + params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	searchPath := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		searchPath = toolCtx.WorkDir
	}
	if params.Path != "" {
		searchPath = params.Path
	}

	ignorer := loadIgnorer(searchPath)
	exts := typeAliases[strings.ToLower(params.Type)]

	outputMode := params.OutputMode
	if outputMode == "" {
		outputMode = "files_with_matches"
	}

	var matches []GrepMatch
	fileCount := map[string]int{}

	walkErr := filepath.WalkDir(searchPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(searchPath, p)
		if relErr != nil {
			rel = p
		}
		if d.IsDir() {
			if ignorer.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ignorer.MatchesPath(rel) {
			return nil
		}
		if len(exts) > 0 && !hasAnyExt(p, exts) {
			return nil
		}
		if params.Glob != "" {
			if ok, _ := doublestar.Match(params.Glob, filepath.Base(p)); !ok {
				return nil
			}
		}
		searchFile(p, re, &matches, fileCount)
		return nil
	})
	_ = walkErr

	switch outputMode {
	case "count":
		return formatGrepCount(fileCount, params)
	case "content":
		return formatGrepContent(matches, params)
	default:
		return formatGrepFiles(fileCount, params)
	}
}

func hasAnyExt(path string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func searchFile(path string, re *regexp.Regexp, matches *[]GrepMatch, fileCount map[string]int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			fileCount[path]++
			*matches = append(*matches, GrepMatch{File: path, Line: lineNum, Content: line})
		}
	}
}

func applyHeadOffset(n, offset, headLimit int) (int, int) {
	start := offset
	if start > n {
		start = n
	}
	end := n
	if headLimit > 0 && start+headLimit < end {
		end = start + headLimit
	}
	return start, end
}

func formatGrepFiles(fileCount map[string]int, params GrepInput) (*Result, error) {
	files := make([]string, 0, len(fileCount))
	for f := range fileCount {
		files = append(files, f)
	}
	sort.Strings(files)
	start, end := applyHeadOffset(len(files), params.Offset, params.HeadLimit)
	files = files[start:end]

	if len(files) == 0 {
		return &Result{Title: "Search results", Output: "No matches found", Metadata: map[string]any{"count": 0}}, nil
	}
	return &Result{
		Title:    fmt.Sprintf("Found matches in %d files", len(files)),
		Output:   strings.Join(files, "\n"),
		Metadata: map[string]any{"count": len(files)},
	}, nil
}

func formatGrepCount(fileCount map[string]int, params GrepInput) (*Result, error) {
	files := make([]string, 0, len(fileCount))
	for f := range fileCount {
		files = append(files, f)
	}
	sort.Strings(files)
	start, end := applyHeadOffset(len(files), params.Offset, params.HeadLimit)
	files = files[start:end]

	var sb strings.Builder
	total := 0
	for _, f := range files {
		fmt.Fprintf(&sb, "%s:%d\n", f, fileCount[f])
		total += fileCount[f]
	}
	return &Result{
		Title:    fmt.Sprintf("%d matches across %d files", total, len(files)),
		Output:   sb.String(),
		Metadata: map[string]any{"count": total},
	}, nil
}

func formatGrepContent(matches []GrepMatch, params GrepInput) (*Result, error) {
	start, end := applyHeadOffset(len(matches), params.Offset, params.HeadLimit)
	matches = matches[start:end]

	if len(matches) == 0 {
		return &Result{Title: "Search results", Output: "No matches found", Metadata: map[string]any{"count": 0}}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		var lines []string
		if params.ContextBefore > 0 || params.ContextAfter > 0 {
			if data, err := os.ReadFile(m.File); err == nil {
				lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
			}
		}
		for n := m.Line - params.ContextBefore; n < m.Line; n++ {
			if n >= 1 && n <= len(lines) {
				fmt.Fprintf(&sb, "%s-%d- %s\n", m.File, n, lines[n-1])
			}
		}
		fmt.Fprintf(&sb, "%s:%d: %s\n", m.File, m.Line, m.Content)
		for n := m.Line + 1; n <= m.Line+params.ContextAfter && n <= len(lines); n++ {
			fmt.Fprintf(&sb, "%s-%d- %s\n", m.File, n, lines[n-1])
		}
	}
	return &Result{
		Title:    fmt.Sprintf("Found %d matches", len(matches)),
		Output:   sb.String(),
		Metadata: map[string]any{"count": len(matches)},
	}, nil
}

func (t *GrepTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
