package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/oxide-run/oxide/internal/logging"
	"github.com/oxide-run/oxide/pkg/types"
)

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns all models from all providers.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	// Sort by quality/priority
	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns the default model named by default.model.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Default.Model != "" {
		providerID, modelID := ParseModelString(r.config.Default.Model)
		if providerID != "" {
			return r.GetModel(providerID, modelID)
		}
		// No "provider/model" prefix: search every registered provider
		// for a model with this ID.
		for _, p := range r.List() {
			for _, m := range p.Models() {
				if m.ID == modelID {
					return &m, nil
				}
			}
		}
	}

	// Default to Claude Sonnet if available
	model, err := r.GetModel("anthropic", "claude-sonnet-4-20250514")
	if err == nil {
		return model, nil
	}

	// Fall back to first available model
	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// modelPriority returns sorting priority for models.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// firstEnv returns the first non-empty value among the named environment
// variables, checked in order, or "" if none are set.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// InitializeProviders registers a driver for every credential it can find.
// default.model may carry a "provider/model" prefix (§3.6) to pick among
// them; otherwise DefaultModel looks a bare model ID up across the
// registered drivers and, failing that, uses anthropic/claude-sonnet-4-20250514
// or else the highest-ranked model by modelPriority; registration order
// plays no part. Unlike a single-provider config table, every available credential
// gets a driver so the registry can route per-agent model overrides
// (agent.<role>.model, §6) to a different provider than the default.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)

	preferredProvider, preferredModel := "", ""
	if config != nil && config.Default.Model != "" {
		preferredProvider, preferredModel = ParseModelString(config.Default.Model)
	}

	modelFor := func(providerID, fallback string) string {
		if providerID == preferredProvider && preferredModel != "" {
			return preferredModel
		}
		return fallback
	}

	baseURL := firstEnv("OXIDE_BASE_URL", "API_URL")

	if apiKey := firstEnv("OXIDE_AUTH_TOKEN", "ANTHROPIC_API_KEY", "API_KEY"); apiKey != "" {
		p, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			ID:        "anthropic",
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     modelFor("anthropic", firstEnv("MODEL_NAME", "MODEL")),
			MaxTokens: safeMaxTokens(config, 8192),
		})
		if err != nil {
			logging.Logger.Warn().Err(err).Msg("failed to create anthropic provider")
		} else {
			registry.Register(p)
			logging.Logger.Info().Str("provider", "anthropic").Msg("registered provider")
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		p, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			ID:        "openai",
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     modelFor("openai", firstEnv("MODEL_NAME", "MODEL")),
			MaxTokens: safeMaxTokens(config, 4096),
		})
		if err != nil {
			logging.Logger.Warn().Err(err).Msg("failed to create openai provider")
		} else {
			registry.Register(p)
			logging.Logger.Info().Str("provider", "openai").Msg("registered provider")
		}
	}

	if apiKey := os.Getenv("ARK_API_KEY"); apiKey != "" {
		p, err := NewArkProvider(ctx, &ArkConfig{
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     modelFor("ark", firstEnv("MODEL_NAME", "MODEL")),
			MaxTokens: safeMaxTokens(config, 4096),
		})
		if err != nil {
			logging.Logger.Warn().Err(err).Msg("failed to create ark provider")
		} else {
			registry.Register(p)
			logging.Logger.Info().Str("provider", "ark").Msg("registered provider")
		}
	}

	if len(registry.providers) == 0 {
		logging.Logger.Warn().Msg("no provider credentials found in environment")
	}

	return registry, nil
}

// safeMaxTokens returns config.Default.MaxTokens when set, else fallback.
// config may be nil when InitializeProviders is called without a resolved
// Config (tests, early bootstrap).
func safeMaxTokens(c *types.Config, fallback int) int {
	if c == nil || c.Default.MaxTokens <= 0 {
		return fallback
	}
	return c.Default.MaxTokens
}
