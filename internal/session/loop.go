package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/oxide-run/oxide/internal/agent"
	"github.com/oxide-run/oxide/internal/event"
	"github.com/oxide-run/oxide/internal/logging"
	"github.com/oxide-run/oxide/internal/ozerr"
	"github.com/oxide-run/oxide/internal/provider"
	"github.com/oxide-run/oxide/internal/tool"
	"github.com/oxide-run/oxide/pkg/types"
)

const (
	// DefaultMaxTurns bounds a single request's tool-use round trips
	// (§4.8). Exceeding it ends the turn with a TurnBudgetExhausted
	// message rather than looping forever.
	DefaultMaxTurns = 10

	// MaxRetries is the maximum number of provider-request retries.
	MaxRetries = 3
	// RetryInitialInterval is the initial exponential-backoff interval.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime caps the total retry budget for one request.
	RetryMaxElapsedTime = 2 * time.Minute
)

// newRetryBackoff builds an exponential backoff with jitter for
// provider requests, aborting early if ctx is cancelled.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Loop implements the agent execution loop (C8): it assembles a
// request from the system preamble, a session's transcript, and a new
// user input, drives it through a provider with tool-use round trips,
// and stores the result.
type Loop struct {
	store     *Store
	providers *provider.Registry
	tools     *tool.Registry
	wrapper   *tool.Wrapper
	agents    *agent.Registry
	config    *types.Config
	workDir   string
	maxTurns  int
}

// NewLoop wires a Loop around its collaborators. config may be nil,
// in which case built-in defaults apply throughout.
func NewLoop(store *Store, providers *provider.Registry, tools *tool.Registry, wrapper *tool.Wrapper, agents *agent.Registry, config *types.Config, workDir string) *Loop {
	return &Loop{
		store:     store,
		providers: providers,
		tools:     tools,
		wrapper:   wrapper,
		agents:    agents,
		config:    config,
		workDir:   workDir,
		maxTurns:  DefaultMaxTurns,
	}
}

// RunResult is what a completed (or cancelled, or budget-exhausted)
// request produced.
type RunResult struct {
	SessionID string
	Text      string
	Turns     int
}

// modelSettings resolves the effective provider, model, temperature
// and max-output-tokens for agentName, layering agent.<role> config
// overrides (§6) on top of the agent's own Model/Temperature and
// falling back to default.* last.
func (l *Loop) modelSettings(ag *agent.Agent, agentName string) (providerID, modelID string, temperature float64, maxTokens int) {
	if l.config != nil {
		temperature = l.config.Default.Temperature
		maxTokens = l.config.Default.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	modelString := ""
	if l.config != nil {
		modelString = l.config.Default.Model
	}

	if ag.Model != nil {
		providerID, modelID = ag.Model.ProviderID, ag.Model.ModelID
	} else if modelString != "" {
		providerID, modelID = provider.ParseModelString(modelString)
	}
	if ag.Temperature != 0 {
		temperature = ag.Temperature
	}

	if l.config != nil {
		if override, ok := l.config.Agent[agentName]; ok {
			if override.Model != "" {
				providerID, modelID = provider.ParseModelString(override.Model)
			}
			if override.Temperature != nil {
				temperature = *override.Temperature
			}
			if override.MaxTokens > 0 {
				maxTokens = override.MaxTokens
			}
		}
	}

	return providerID, modelID, temperature, maxTokens
}

// toolSchemas builds the tool-call schema list for ag, skipping tools
// the agent disables (§3.4 per-agent tool gating).
func (l *Loop) toolSchemas(ag *agent.Agent) []provider.ToolInfo {
	if l.tools == nil {
		return nil
	}
	var out []provider.ToolInfo
	for _, t := range l.tools.List() {
		if !ag.ToolEnabled(t.ID()) {
			continue
		}
		out = append(out, provider.ToolInfo{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// Run processes one user request to completion (§4.8): it appends
// userInput to sessionID's transcript, then alternates provider
// requests with tool-use round trips until the assistant responds
// with text only, the turn cap is hit, or ctx is cancelled.
func (l *Loop) Run(ctx context.Context, sessionID, agentName, userInput string) (*RunResult, error) {
	ag, err := l.agents.Get(agentName)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %s: %w", agentName, err)
	}

	providerID, modelID, temperature, maxTokens := l.modelSettings(ag, agentName)
	prov, err := l.providers.Get(providerID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider %s: %w", providerID, err)
	}

	transcript, meta, err := l.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	userMsg := types.Message{Role: types.RoleUser, Content: []types.ContentBlock{types.TextBlock(userInput)}}
	if err := l.store.Append(ctx, sessionID, userMsg); err != nil {
		return nil, err
	}
	transcript = append(transcript, userMsg)

	if isDefaultTitle(meta.Title) {
		ensureTitle(ctx, l.store, l.providers, sessionID, userInput)
	}

	if shouldCompact(transcript, maxTokens) {
		if compacted, err := compactTranscript(ctx, l.store, l.providers, sessionID, transcript); err == nil {
			transcript = compacted
		} else {
			logging.Logger.Warn().Err(err).Str("session", sessionID).Msg("compaction failed, continuing uncompacted")
		}
	}

	systemPreamble := NewSystemPrompt(l.workDir, ag, providerID, modelID).Build()
	schemas := l.toolSchemas(ag)

	turns := 0
	for {
		if ctx.Err() != nil {
			return l.finishWithText(ctx, sessionID, "request cancelled", turns)
		}

		if turns >= l.maxTurns {
			exhausted := &ozerr.TurnBudgetExhausted{Limit: l.maxTurns}
			return l.finishWithText(ctx, sessionID, exhausted.Error(), turns)
		}
		turns++

		req := provider.BuildRequest(modelID, systemPreamble, transcript, schemas, maxTokens, temperature)

		assistantMsg, err := l.completeWithRetry(ctx, sessionID, prov, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return l.finishWithText(ctx, sessionID, "request cancelled", turns)
			}
			return nil, &ozerr.ProviderError{Provider: providerID, Err: err}
		}

		if err := l.store.Append(ctx, sessionID, *assistantMsg); err != nil {
			return nil, err
		}
		transcript = append(transcript, *assistantMsg)

		toolUses := toolUseBlocks(assistantMsg.Content)
		if len(toolUses) == 0 {
			text := types.Transcript{*assistantMsg}.LastText()
			return &RunResult{SessionID: sessionID, Text: text, Turns: turns}, nil
		}

		for _, use := range toolUses {
			if ctx.Err() != nil {
				return l.finishWithText(ctx, sessionID, "request cancelled mid-tool-call", turns)
			}

			result := l.runTool(ctx, sessionID, ag.Name, use)
			resultMsg := types.Message{
				Role:    types.RoleToolResult,
				Content: []types.ContentBlock{types.ToolResultBlock(use.ToolUseID, result.body, result.isError)},
			}
			if err := l.store.Append(ctx, sessionID, resultMsg); err != nil {
				return nil, err
			}
			transcript = append(transcript, resultMsg)
		}
	}
}

// toolRunResult is the outcome of one wrapped tool call, flattened to
// the body/is_error shape a tool-result block carries.
type toolRunResult struct {
	body    string
	isError bool
}

// runTool executes one tool-use block through the wrapper pipeline
// (§4.5), which already performs gatekeeper evaluation and trust-score
// bookkeeping — runTool must not repeat that bookkeeping itself.
func (l *Loop) runTool(ctx context.Context, sessionID, agentName string, use types.ContentBlock) toolRunResult {
	input, err := json.Marshal(use.ToolInput)
	if err != nil {
		return toolRunResult{body: fmt.Sprintf("invalid tool input: %v", err), isError: true}
	}

	toolCtx := &tool.Context{
		SessionID: sessionID,
		CallID:    use.ToolUseID,
		Agent:     agentName,
		WorkDir:   l.workDir,
		AbortCh:   ctx.Done(),
	}

	result, err := l.wrapper.Execute(ctx, use.ToolName, input, toolCtx)
	if err != nil {
		return toolRunResult{body: err.Error(), isError: true}
	}
	if result.Error != nil {
		return toolRunResult{body: result.Error.Error(), isError: true}
	}
	return toolRunResult{body: result.Output}
}

// completeWithRetry drains a streaming completion, publishing text
// deltas as it goes and retrying transient provider failures with
// exponential backoff. It returns the fully assembled assistant
// message.
func (l *Loop) completeWithRetry(ctx context.Context, sessionID string, prov provider.Provider, req *provider.CompletionRequest) (*types.Message, error) {
	var msg *types.Message

	op := func() error {
		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		m, err := l.drainStream(ctx, sessionID, stream)
		if err != nil {
			return err
		}
		msg = m
		return nil
	}

	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return nil, err
	}
	return msg, nil
}

// drainStream reads deltas off stream, publishing a message.part.updated
// event per text delta and per completed tool-use block, and returns
// the assembled assistant message.
func (l *Loop) drainStream(ctx context.Context, sessionID string, stream *provider.CompletionStream) (*types.Message, error) {
	messageID := ulid.Make().String()

	var text string
	toolInputs := map[string]string{} // call id -> accumulated JSON args
	toolNames := map[string]string{}  // call id -> tool name
	var toolOrder []string

	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		if chunk == nil {
			continue
		}

		if chunk.Content != "" {
			text += chunk.Content
			event.Publish(event.Event{
				Type: event.MessagePartUpdated,
				Data: event.MessagePartUpdatedData{
					SessionID: sessionID,
					MessageID: messageID,
					Block:     types.TextBlock(chunk.Content),
					Delta:     chunk.Content,
				},
			})
		}

		for _, tc := range chunk.ToolCalls {
			id := tc.ID
			if id == "" && len(toolOrder) > 0 {
				id = toolOrder[len(toolOrder)-1]
			}
			if _, seen := toolInputs[id]; !seen {
				toolOrder = append(toolOrder, id)
			}
			toolInputs[id] += tc.Function.Arguments
			if tc.Function.Name != "" {
				toolNames[id] = tc.Function.Name
			}
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	blocks := []types.ContentBlock{}
	if text != "" {
		blocks = append(blocks, types.TextBlock(text))
	}
	for _, id := range toolOrder {
		var input map[string]any
		_ = json.Unmarshal([]byte(toolInputs[id]), &input)
		block := types.ToolUseBlock(id, toolNames[id], input)
		blocks = append(blocks, block)
		event.Publish(event.Event{
			Type: event.MessagePartUpdated,
			Data: event.MessagePartUpdatedData{SessionID: sessionID, MessageID: messageID, Block: block},
		})
	}

	return &types.Message{Role: types.RoleAssistant, Content: blocks}, nil
}

// finishWithText appends a final assistant message carrying text
// (used for turn-budget-exhausted and cancellation outcomes, §4.8)
// and returns it as the run's result. It persists with a
// cancellation-tolerant context since ctx itself may already be done.
func (l *Loop) finishWithText(ctx context.Context, sessionID, text string, turns int) (*RunResult, error) {
	msg := types.Message{Role: types.RoleAssistant, Content: []types.ContentBlock{types.TextBlock(text)}}
	if err := l.store.Append(context.WithoutCancel(ctx), sessionID, msg); err != nil {
		return nil, err
	}
	return &RunResult{SessionID: sessionID, Text: text, Turns: turns}, nil
}

// ExecuteSubtask implements tool.TaskExecutor, letting the task tool
// spawn a nested agent loop in its own session (§4.8 delegation).
func (l *Loop) ExecuteSubtask(ctx context.Context, sessionID string, agentName string, prompt string, opts tool.TaskOptions) (*tool.TaskResult, error) {
	subSessionID, err := l.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create subtask session: %w", err)
	}

	result, err := l.Run(ctx, subSessionID, agentName, prompt)
	if err != nil {
		return &tool.TaskResult{SessionID: subSessionID, Error: err.Error()}, nil
	}

	return &tool.TaskResult{
		Output:    result.Text,
		SessionID: subSessionID,
		Metadata:  map[string]any{"turns": result.Turns, "parentSession": sessionID},
	}, nil
}

func toolUseBlocks(blocks []types.ContentBlock) []types.ContentBlock {
	var out []types.ContentBlock
	for _, b := range blocks {
		if b.Type == types.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}
