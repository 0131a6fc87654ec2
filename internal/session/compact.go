package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/oxide-run/oxide/internal/provider"
	"github.com/oxide-run/oxide/pkg/types"
)

// CompactionConfig controls message compaction behavior.
type CompactionConfig struct {
	// MinMessagesToKeep is the minimum number of trailing messages left
	// verbatim after compaction.
	MinMessagesToKeep int

	// SummaryMaxTokens bounds the summary the model is asked to produce.
	SummaryMaxTokens int

	// ContextThreshold is the fraction of the estimated context window
	// (max output tokens times contextWindowMultiple) that a
	// transcript's estimated size must cross before compaction runs.
	ContextThreshold float64
}

// DefaultCompactionConfig mirrors the reference implementation's tuning.
var DefaultCompactionConfig = CompactionConfig{
	MinMessagesToKeep: 4,
	SummaryMaxTokens:  2000,
	ContextThreshold:  0.75,
}

// contextWindowMultiple scales maxTokens (an output-token budget) up
// to a rough stand-in for the model's input context window, since the
// loop does not otherwise carry a per-model context-length figure
// here — types.Model.ContextLength would be the precise source once
// the loop is threaded through with the resolved *types.Model rather
// than a bare model ID string.
const contextWindowMultiple = 8

// estimateTokens applies the reference implementation's ~4-chars-per-token
// heuristic across a transcript's text content.
func estimateTokens(transcript types.Transcript) int {
	var chars int
	for _, msg := range transcript {
		for _, b := range msg.Content {
			chars += len(b.Text) + len(b.ResultBody)
		}
	}
	return chars / 4
}

// shouldCompact reports whether transcript's estimated size has
// crossed DefaultCompactionConfig.ContextThreshold of the estimated
// context window.
func shouldCompact(transcript types.Transcript, maxTokens int) bool {
	if len(transcript) <= DefaultCompactionConfig.MinMessagesToKeep {
		return false
	}
	window := maxTokens * contextWindowMultiple
	return estimateTokens(transcript) > int(float64(window)*DefaultCompactionConfig.ContextThreshold)
}

// compactionSystemPrompt is the system prompt for generating summaries.
const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// compactTranscript summarizes every message but the trailing
// MinMessagesToKeep into a single synthetic assistant message, then
// persists the replacement transcript via store.Replace. It returns
// the new, shorter transcript.
func compactTranscript(ctx context.Context, store *Store, providers *provider.Registry, sessionID string, transcript types.Transcript) (types.Transcript, error) {
	if len(transcript) <= DefaultCompactionConfig.MinMessagesToKeep {
		return transcript, nil
	}

	keepFrom := len(transcript) - DefaultCompactionConfig.MinMessagesToKeep
	toCompact := transcript[:keepFrom]
	kept := transcript[keepFrom:]

	model, err := providers.DefaultModel()
	if err != nil {
		return nil, err
	}
	prov, err := providers.Get(model.ProviderID)
	if err != nil {
		return nil, err
	}

	req := provider.BuildRequest(model.ID, compactionSystemPrompt, types.Transcript{
		{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock(buildSummaryPrompt(toCompact))}},
	}, nil, DefaultCompactionConfig.SummaryMaxTokens, 0)

	result, err := provider.Complete(ctx, prov, req)
	if err != nil {
		return nil, fmt.Errorf("summarize transcript: %w", err)
	}

	summaryText := types.Transcript{*result}.LastText()
	summary := types.Message{
		Role:    types.RoleAssistant,
		Content: []types.ContentBlock{types.TextBlock("Summary of earlier conversation:\n\n" + summaryText)},
	}

	replacement := append(types.Transcript{summary}, kept...)
	if err := store.Replace(ctx, sessionID, replacement); err != nil {
		return nil, err
	}
	return replacement, nil
}

// buildSummaryPrompt renders messages as a plain USER:/ASSISTANT:
// transcript for the summarizer, truncating long tool output.
func buildSummaryPrompt(messages types.Transcript) string {
	var prompt strings.Builder

	prompt.WriteString("Please summarize the following conversation, focusing on:\n")
	prompt.WriteString("1. Key decisions and outcomes\n")
	prompt.WriteString("2. Files that were modified\n")
	prompt.WriteString("3. Important context for continuing the work\n\n")
	prompt.WriteString("---\n\n")

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			prompt.WriteString("USER:\n")
		case types.RoleToolResult:
			prompt.WriteString("TOOL RESULT:\n")
		default:
			prompt.WriteString("ASSISTANT:\n")
		}

		for _, block := range msg.Content {
			switch block.Type {
			case types.BlockText:
				prompt.WriteString(block.Text)
				prompt.WriteString("\n")
			case types.BlockToolUse:
				prompt.WriteString(fmt.Sprintf("[Tool call: %s]\n", block.ToolName))
			case types.BlockToolResult:
				output := block.ResultBody
				if len(output) > 500 {
					output = output[:500] + "..."
				}
				prompt.WriteString(output)
				prompt.WriteString("\n")
			}
		}
		prompt.WriteString("\n")
	}

	return prompt.String()
}
