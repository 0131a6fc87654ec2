package types

// Model describes one LLM model a provider exposes, used by the
// provider registry to resolve a default.model config string and to
// report capability flags (tool-use, vision, reasoning) to callers.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning"`
	InputPrice        float64      `json:"inputPrice"`
	OutputPrice       float64      `json:"outputPrice"`
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions carries provider-specific model capability flags that
// don't warrant a top-level field.
type ModelOptions struct {
	PromptCaching  bool `json:"promptCaching,omitempty"`
	ExtendedOutput bool `json:"extendedOutput,omitempty"`
}
