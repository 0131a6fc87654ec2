package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	einotool "github.com/cloudwego/eino/components/tool"
)

const searchReplaceDescription = `Replaces text in a file, tolerating minor drift from the original context.

Usage:
- Tries an exact byte-range match first
- Falls back to line-by-line matching with each line trimmed, so indentation or
  trailing whitespace drift does not cause a miss
- If both fail, falls back to a fuzzy match against the most similar block of
  lines in the file (normalized Levenshtein similarity, threshold 0.85);
  fuzzy matches always replace exactly one location regardless of allow_multiple
- Fails if the search text is not found, or is found more than once and
  allow_multiple is not set`

// fuzzyMatchThreshold is the minimum normalized similarity a candidate
// block must reach to be accepted as a fuzzy match.
const fuzzyMatchThreshold = 0.85

// SearchReplaceTool implements robust search-and-replace (§4.7.2 semantics).
type SearchReplaceTool struct {
	workDir string
}

// SearchReplaceInput represents the input for the search_replace tool.
type SearchReplaceInput struct {
	FilePath       string `json:"filePath"`
	SearchContent  string `json:"search_content"`
	ReplaceContent string `json:"replace_content"`
	AllowMultiple  bool   `json:"allow_multiple,omitempty"`
}

// NewSearchReplaceTool creates a new search_replace tool.
func NewSearchReplaceTool(workDir string) *SearchReplaceTool {
	return &SearchReplaceTool{workDir: workDir}
}

func (t *SearchReplaceTool) ID() string          { return "search_replace" }
func (t *SearchReplaceTool) Description() string { return searchReplaceDescription }

func (t *SearchReplaceTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {"type": "string", "description": "The absolute path to the file to modify"},
			"search_content": {"type": "string", "description": "The text to find"},
			"replace_content": {"type": "string", "description": "The text to replace it with"},
			"allow_multiple": {"type": "boolean", "description": "Allow replacing more than one match (default: false)"}
		},
		"required": ["filePath", "search_content", "replace_content"]
	}`)
}

type byteRange struct{ start, end int }

func (t *SearchReplaceTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params SearchReplaceInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)

	ranges := exactMatches(text, params.SearchContent)
	if len(ranges) == 0 {
		ranges = robustLineMatches(text, params.SearchContent)
	}
	if len(ranges) == 0 {
		if r, ok := fuzzyMatch(text, params.SearchContent); ok {
			ranges = []byteRange{r}
		}
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("search_content not found in %s", params.FilePath)
	}
	if len(ranges) > 1 && !params.AllowMultiple {
		return nil, fmt.Errorf("search_content matches %d locations; set allow_multiple or provide more context to disambiguate", len(ranges))
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start > ranges[j].start })
	result := text
	for _, r := range ranges {
		result = result[:r.start] + params.ReplaceContent + result[r.end:]
	}

	if err := os.WriteFile(params.FilePath, []byte(result), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &Result{
		Title:  fmt.Sprintf("Replaced in %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Replaced %d occurrence(s)", len(ranges)),
		Metadata: map[string]any{
			"file":         params.FilePath,
			"replacements": len(ranges),
		},
	}, nil
}

func exactMatches(text, search string) []byteRange {
	if search == "" {
		return nil
	}
	var ranges []byteRange
	offset := 0
	for {
		idx := strings.Index(text[offset:], search)
		if idx < 0 {
			break
		}
		start := offset + idx
		end := start + len(search)
		ranges = append(ranges, byteRange{start: start, end: end})
		offset = end
	}
	return ranges
}

// robustLineMatches splits the search text into trimmed lines and scans
// the file (split with newlines preserved) for a contiguous run of
// file lines whose trimmed forms equal the search lines.
func robustLineMatches(text, search string) []byteRange {
	searchLines := strings.Split(search, "\n")
	for i := range searchLines {
		searchLines[i] = strings.TrimSpace(searchLines[i])
	}
	if len(searchLines) == 0 {
		return nil
	}

	fileLines := strings.SplitAfter(text, "\n")
	var ranges []byteRange
	offset := 0
	offsets := make([]int, len(fileLines)+1)
	for i, l := range fileLines {
		offsets[i] = offset
		offset += len(l)
	}
	offsets[len(fileLines)] = offset

	n := len(searchLines)
	for i := 0; i+n <= len(fileLines); i++ {
		match := true
		for j := 0; j < n; j++ {
			if strings.TrimSpace(strings.TrimRight(fileLines[i+j], "\n")) != searchLines[j] {
				match = false
				break
			}
		}
		if match {
			ranges = append(ranges, byteRange{start: offsets[i], end: offsets[i+n]})
		}
	}
	return ranges
}

// fuzzyMatch scans text for the window of lines most similar to search
// and returns its byte range, accepting only matches at or above
// fuzzyMatchThreshold.
func fuzzyMatch(text, search string) (byteRange, bool) {
	searchLines := strings.Split(search, "\n")
	n := len(searchLines)
	if n == 0 {
		return byteRange{}, false
	}

	fileLines := strings.SplitAfter(text, "\n")
	if n > len(fileLines) {
		return byteRange{}, false
	}

	offsets := make([]int, len(fileLines)+1)
	offset := 0
	for i, l := range fileLines {
		offsets[i] = offset
		offset += len(l)
	}
	offsets[len(fileLines)] = offset

	searchBlock := strings.TrimRight(search, "\n")

	bestSimilarity := 0.0
	bestStart, bestEnd := -1, -1
	for i := 0; i+n <= len(fileLines); i++ {
		block := strings.TrimRight(strings.Join(fileLines[i:i+n], ""), "\n")
		sim := similarity(block, searchBlock)
		if sim > bestSimilarity {
			bestSimilarity = sim
			bestStart, bestEnd = offsets[i], offsets[i+n]
		}
	}

	if bestStart < 0 || bestSimilarity < fuzzyMatchThreshold {
		return byteRange{}, false
	}
	return byteRange{start: bestStart, end: bestEnd}, true
}

// similarity returns normalized Levenshtein similarity in [0,1]; 1
// means identical. Long inputs fall back to a length-ratio
// approximation to avoid quadratic blowup.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > 10000 || len(b) > 10000 {
		maxLen, minLen := len(a), len(b)
		if minLen > maxLen {
			maxLen, minLen = minLen, maxLen
		}
		return float64(minLen) / float64(maxLen)
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

func (t *SearchReplaceTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
