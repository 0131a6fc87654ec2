package session

import (
	"context"
	"strings"

	"github.com/oxide-run/oxide/internal/provider"
	"github.com/oxide-run/oxide/pkg/types"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, ≤50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an
- Always output something meaningful

Examples:
"debug 500 errors in production" → Debugging production 500 errors
"refactor user service" → Refactoring user service
"implement rate limiting" → Implementing rate limiting`

const defaultTitlePrefix = "New Session"

// isDefaultTitle checks if a title is the default "New Session" title.
func isDefaultTitle(title string) bool {
	return title == "" || title == defaultTitlePrefix || strings.HasPrefix(title, defaultTitlePrefix)
}

// ensureTitle generates a title for sessionID if it's still using the
// default title. Failures are swallowed — title generation is a
// convenience, not a requirement of completing the request.
func ensureTitle(ctx context.Context, store *Store, providers *provider.Registry, sessionID, userContent string) {
	model, err := providers.DefaultModel()
	if err != nil {
		return
	}
	prov, err := providers.Get(model.ProviderID)
	if err != nil {
		return
	}

	req := provider.BuildRequest(model.ID, titleSystemPrompt, types.Transcript{
		{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock("Generate a title for this conversation:\n\n" + userContent)}},
	}, nil, 50, 0)

	result, err := provider.Complete(ctx, prov, req)
	if err != nil {
		return
	}

	titleText := strings.TrimSpace(types.Transcript{*result}.LastText())
	for _, line := range strings.Split(titleText, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			titleText = line
			break
		}
	}
	if len(titleText) > 100 {
		titleText = titleText[:97] + "..."
	}
	if titleText == "" {
		return
	}

	_ = store.SetTitle(ctx, sessionID, titleText)
}
