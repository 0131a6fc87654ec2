package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptValidateToolResultLinkage(t *testing.T) {
	t.Run("accepts a result that follows its tool-use", func(t *testing.T) {
		tr := Transcript{
			{Role: RoleAssistant, Content: []ContentBlock{ToolUseBlock("call-1", "read_file", nil)}},
			{Role: RoleToolResult, Content: []ContentBlock{ToolResultBlock("call-1", "contents", false)}},
		}
		require.NoError(t, tr.ValidateToolResultLinkage())
	})

	t.Run("rejects a result with no matching tool-use", func(t *testing.T) {
		tr := Transcript{
			{Role: RoleToolResult, Content: []ContentBlock{ToolResultBlock("call-missing", "contents", false)}},
		}
		err := tr.ValidateToolResultLinkage()
		require.Error(t, err)
		var dangling *DanglingToolResultError
		require.ErrorAs(t, err, &dangling)
		assert.Equal(t, "call-missing", dangling.ToolUseID)
	})

	t.Run("rejects a result that precedes its tool-use", func(t *testing.T) {
		tr := Transcript{
			{Role: RoleToolResult, Content: []ContentBlock{ToolResultBlock("call-1", "contents", false)}},
			{Role: RoleAssistant, Content: []ContentBlock{ToolUseBlock("call-1", "read_file", nil)}},
		}
		require.Error(t, tr.ValidateToolResultLinkage())
	})
}

func TestTranscriptToolUseIDs(t *testing.T) {
	tr := Transcript{
		{Role: RoleAssistant, Content: []ContentBlock{
			ToolUseBlock("call-1", "read_file", nil),
			ToolUseBlock("call-2", "grep_search", nil),
		}},
	}
	assert.Equal(t, []string{"call-1", "call-2"}, tr.ToolUseIDs())
}

func TestTranscriptLastText(t *testing.T) {
	t.Run("empty transcript", func(t *testing.T) {
		assert.Equal(t, "", Transcript(nil).LastText())
	})

	t.Run("concatenates text blocks of the final assistant message", func(t *testing.T) {
		tr := Transcript{
			{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}},
			{Role: RoleAssistant, Content: []ContentBlock{TextBlock("hello "), TextBlock("there")}},
		}
		assert.Equal(t, "hello there", tr.LastText())
	})

	t.Run("non-assistant final message yields empty string", func(t *testing.T) {
		tr := Transcript{
			{Role: RoleAssistant, Content: []ContentBlock{TextBlock("done")}},
			{Role: RoleUser, Content: []ContentBlock{TextBlock("thanks")}},
		}
		assert.Equal(t, "", tr.LastText())
	})
}

func TestRecentHistoryPushEvictsOldest(t *testing.T) {
	h := &RecentHistory{Cap: 2}
	h.Push("a")
	h.Push("b")
	h.Push("c")
	assert.Equal(t, []string{"b", "c"}, h.Entries)
}
