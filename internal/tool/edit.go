package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/oxide-run/oxide/internal/config"
)

const editDescription = `Applies a unified-diff patch to a file.

Usage:
- filePath must point to an existing regular file
- patch is a unified diff (the kind "diff -u" or a patch-producing agent emits)
- A preview of the change is shown and confirmed before writing, unless previewing is disabled
- Self-confirming: the pipeline does not prompt separately for this tool`

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// ConfirmPatchFunc asks the user to approve or cancel a previewed
// patch. The first returned option index means approve; any other
// selection means cancel.
type ConfirmPatchFunc func(ctx context.Context, question string, diff string) (int, error)

// EditTool implements patch-based file editing.
type EditTool struct {
	workDir       string
	previewEnabled bool
	confirm       ConfirmPatchFunc
}

// EditInput represents the input for the edit tool.
type EditInput struct {
	FilePath string `json:"filePath"`
	Patch    string `json:"patch"`
	Question string `json:"question,omitempty"`
}

// NewEditTool creates a new patch-based edit tool. Preview defaults to
// enabled, following the OXIDE_EDIT_PREVIEW env override (§6).
func NewEditTool(workDir string) *EditTool {
	return &EditTool{
		workDir:        workDir,
		previewEnabled: config.EditPreviewEnabled(),
	}
}

// WithConfirm sets the preview confirmation callback.
func (t *EditTool) WithConfirm(fn ConfirmPatchFunc) *EditTool {
	t.confirm = fn
	return t
}

// SelfConfirming declares that this tool handles its own confirmation
// so the wrapper pipeline (§4.5 step 3) must not double-prompt.
func (t *EditTool) SelfConfirming() bool { return true }

func (t *EditTool) ID() string          { return "edit_file" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {"type": "string", "description": "The absolute path to the file to edit"},
			"patch": {"type": "string", "description": "A unified-diff patch to apply"},
			"question": {"type": "string", "description": "Optional confirmation prompt to show the user"}
		},
		"required": ["filePath", "patch"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %s", params.FilePath)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", params.FilePath)
	}

	before, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	patchText := params.Patch
	patches, err := parsePatch(patchText)
	if err != nil {
		if isHunkHeaderMismatch(err) {
			repaired, repairErr := repairHunkHeaders(patchText)
			if repairErr == nil {
				if p2, err2 := parsePatch(repaired); err2 == nil {
					patches = p2
					patchText = repaired
					err = nil
				}
			}
		}
	}
	if err != nil {
		return nil, diagnosticParseError(patchText, err)
	}

	dmp := diffmatchpatch.New()
	after, applied := dmp.PatchApply(patches, string(before))
	if !allApplied(applied) {
		return nil, diagnosticApplyError(len(before), applied)
	}

	added, removed := countPatchLines(patchText)

	if t.previewEnabled {
		question := params.Question
		if question == "" {
			question = fmt.Sprintf("Apply this patch to %s?", filepath.Base(params.FilePath))
		}
		diffText, _, _ := buildDiffMetadata(params.FilePath, string(before), after, t.workDir)
		if t.confirm != nil {
			choice, err := t.confirm(ctx, question, diffText)
			if err != nil {
				return nil, err
			}
			if choice != 0 {
				return &Result{
					Title:  fmt.Sprintf("Cancelled edit of %s", filepath.Base(params.FilePath)),
					Output: "Edit cancelled by user; operation cancelled by user; do not retry unless re-requested",
					Metadata: map[string]any{
						"file":      params.FilePath,
						"cancelled": true,
					},
				}, nil
			}
		}
	}

	if err := os.WriteFile(params.FilePath, []byte(after), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("Edited %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Applied patch: +%d -%d lines", added, removed),
		Metadata: map[string]any{
			"file":    params.FilePath,
			"added":   added,
			"removed": removed,
		},
	}, nil
}

func (t *EditTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

func parsePatch(text string) ([]diffmatchpatch.Patch, error) {
	dmp := diffmatchpatch.New()
	return dmp.PatchFromText(text)
}

// isHunkHeaderMismatch detects the specific diagnostic the repair pass
// knows how to fix: a hunk header whose line counts don't match the
// body that follows it.
func isHunkHeaderMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "hunk header does not match hunk")
}

// repairHunkHeaders recomputes each hunk header's old/new line counts
// by counting context/removed lines (old) and context/added lines
// (new) in the hunk body, preserving the original starting line
// numbers and any trailing comment on the header line.
func repairHunkHeaders(patch string) (string, error) {
	lines := strings.Split(patch, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		m := hunkHeaderRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			i++
			continue
		}
		oldStart := m[1]
		newStart := m[3]
		trailer := m[5]

		j := i + 1
		oldCount, newCount := 0, 0
		var body []string
		for j < len(lines) {
			bl := lines[j]
			if hunkHeaderRe.MatchString(bl) || strings.HasPrefix(bl, "--- ") || strings.HasPrefix(bl, "+++ ") {
				break
			}
			if strings.HasPrefix(bl, "\\ No newline") {
				body = append(body, bl)
				j++
				continue
			}
			if bl == "" {
				break
			}
			switch bl[0] {
			case ' ':
				oldCount++
				newCount++
			case '-':
				oldCount++
			case '+':
				newCount++
			default:
				break
			}
			body = append(body, bl)
			j++
		}

		header := fmt.Sprintf("@@ -%s,%d +%s,%d @@%s", oldStart, oldCount, newStart, newCount, trailer)
		out = append(out, header)
		out = append(out, body...)
		i = j
	}
	return strings.Join(out, "\n"), nil
}

func allApplied(applied []bool) bool {
	if len(applied) == 0 {
		return false
	}
	for _, ok := range applied {
		if !ok {
			return false
		}
	}
	return true
}

func diagnosticParseError(patch string, cause error) error {
	lines := strings.Split(patch, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	return fmt.Errorf(
		"failed to parse patch: %w\n\nfirst lines of patch:\n%s\n\ncommon causes: missing @@ hunk header, "+
			"mismatched old/new line counts, or a patch copied without its context lines",
		cause, strings.Join(lines, "\n"))
}

func diagnosticApplyError(fileLen int, applied []bool) error {
	failed := 0
	for _, ok := range applied {
		if !ok {
			failed++
		}
	}
	return fmt.Errorf(
		"failed to apply %d of %d hunks against a %d-byte file; "+
			"common causes: the file has drifted since the patch was generated, mismatched context lines, "+
			"or whitespace differences", failed, len(applied), fileLen)
}

// countPatchLines counts added/removed lines directly from a unified
// diff's body, ignoring hunk headers and file headers.
func countPatchLines(patch string) (added, removed int) {
	scanner := bufio.NewScanner(strings.NewReader(patch))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") || strings.HasPrefix(line, "@@"):
			continue
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
