package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/oxide-run/oxide/internal/logging"
	"github.com/oxide-run/oxide/internal/ozerr"
	"github.com/oxide-run/oxide/pkg/types"
)

// defaultBaseURL is used when no layer sets default.base_url.
const defaultBaseURL = "https://api.anthropic.com"

// Load resolves configuration in priority order: global config.toml,
// project-local .oxide/config.toml, then environment variables (C1).
// Returns an immutable snapshot; directory may be "" to skip the
// project layer (e.g. when running outside any project).
func Load(directory string) (*types.Config, error) {
	cfg := &types.Config{
		Default: types.DefaultConfig{
			BaseURL:            defaultBaseURL,
			Model:              "claude-sonnet-4-5",
			MaxTokens:          8192,
			Temperature:        0.7,
			StreamCharsPerTick: 8,
			Stream:             true,
		},
		Agent:       make(map[string]types.AgentOverride),
		Trust:       types.DefaultTrustConfig(),
		Features:    types.FeaturesConfig{},
		Theme:       types.ThemeConfig{Mode: "auto"},
		Permissions: types.PermissionLists{},
	}

	if err := loadLayer(GlobalConfigPath(), cfg); err != nil {
		return nil, err
	}
	if directory != "" {
		if err := loadLayer(ProjectConfigPath(directory), cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, &ozerr.ConfigError{Msg: "validation failed", Err: err}
	}
	return cfg, nil
}

// loadLayer merges one config.toml layer into cfg. A missing file is
// not an error — each layer is optional.
func loadLayer(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ozerr.ConfigError{Msg: "reading " + path, Err: err}
	}

	var layer types.Config
	if err := toml.Unmarshal(data, &layer); err != nil {
		return &ozerr.ConfigError{Msg: "parsing " + path, Err: err}
	}

	mergeConfig(cfg, &layer)
	logging.Debug().Str("path", path).Msg("config layer applied")
	return nil
}

// mergeConfig overlays source's set fields onto target, field by field.
func mergeConfig(target, source *types.Config) {
	if source.Default.BaseURL != "" {
		target.Default.BaseURL = source.Default.BaseURL
	}
	if source.Default.Model != "" {
		target.Default.Model = source.Default.Model
	}
	if source.Default.MaxTokens != 0 {
		target.Default.MaxTokens = source.Default.MaxTokens
	}
	if source.Default.Temperature != 0 {
		target.Default.Temperature = source.Default.Temperature
	}
	if source.Default.StreamCharsPerTick != 0 {
		target.Default.StreamCharsPerTick = source.Default.StreamCharsPerTick
	}

	for role, override := range source.Agent {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentOverride)
		}
		target.Agent[role] = override
	}

	for name, server := range source.MCP {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPServerConfig)
		}
		target.MCP[name] = server
	}

	if source.Theme.Mode != "" {
		target.Theme.Mode = source.Theme.Mode
	}
	if source.Theme.CustomTheme != "" {
		target.Theme.CustomTheme = source.Theme.CustomTheme
	}

	if source.Features.EnableMCP {
		target.Features.EnableMCP = true
	}
	if source.Features.EnableMultimodal {
		target.Features.EnableMultimodal = true
	}

	if len(source.Permissions.Allow) > 0 {
		target.Permissions.Allow = source.Permissions.Allow
	}
	if len(source.Permissions.Deny) > 0 {
		target.Permissions.Deny = source.Permissions.Deny
	}

	if source.Trust.InitialScore != 0 {
		target.Trust.InitialScore = source.Trust.InitialScore
	}
	if source.Trust.AutoApproveThreshold != 0 {
		target.Trust.AutoApproveThreshold = source.Trust.AutoApproveThreshold
	}
	if source.Trust.Increment != 0 {
		target.Trust.Increment = source.Trust.Increment
	}
	if source.Trust.Decrement != 0 {
		target.Trust.Decrement = source.Trust.Decrement
	}
}

// applyEnvOverrides applies the environment variables named in the
// external interfaces section, each taking priority over both config
// file layers.
func applyEnvOverrides(cfg *types.Config) {
	if token := firstNonEmptyEnv("OXIDE_AUTH_TOKEN", "ANTHROPIC_API_KEY", "API_KEY"); token != "" {
		cfg.Default.AuthToken = types.NewSecret(token)
	}
	if baseURL := firstNonEmptyEnv("OXIDE_BASE_URL", "API_URL"); baseURL != "" {
		cfg.Default.BaseURL = baseURL
	}
	if model := firstNonEmptyEnv("MODEL_NAME", "MODEL"); model != "" {
		cfg.Default.Model = model
	}
	if maxTokens := os.Getenv("MAX_TOKENS"); maxTokens != "" {
		if n, err := strconv.Atoi(maxTokens); err == nil {
			cfg.Default.MaxTokens = n
		} else {
			logging.Warn().Str("value", maxTokens).Msg("MAX_TOKENS is not an integer, ignoring")
		}
	}
	if temp := os.Getenv("TEMPERATURE"); temp != "" {
		if f, err := strconv.ParseFloat(temp, 64); err == nil {
			cfg.Default.Temperature = f
		} else {
			logging.Warn().Str("value", temp).Msg("TEMPERATURE is not a float, ignoring")
		}
	}
	if chars := os.Getenv("STREAM_CHARS_PER_TICK"); chars != "" {
		if n, err := strconv.Atoi(chars); err == nil {
			cfg.Default.StreamCharsPerTick = n
		}
	}
}

func firstNonEmptyEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// EditPreviewEnabled reports OXIDE_EDIT_PREVIEW, defaulting to true.
func EditPreviewEnabled() bool {
	v, ok := os.LookupEnv("OXIDE_EDIT_PREVIEW")
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// TUIModeEnabled reports OXIDE_TUI_MODE (1 = use terminal picker rather
// than numeric stdin prompts).
func TUIModeEnabled() bool {
	return os.Getenv("OXIDE_TUI_MODE") == "1"
}

// Save writes cfg to path as TOML, creating parent directories as needed.
// The AuthToken field is never written: it is excluded from marshalling
// via its Secret type regardless, but config files are sourced from
// disk only for non-secret fields by policy (§4.1/§6).
func Save(cfg *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &ozerr.ConfigError{Msg: "creating " + dir, Err: err}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return &ozerr.ConfigError{Msg: "marshalling config", Err: err}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ozerr.ConfigError{Msg: "writing " + path, Err: err}
	}
	return nil
}
