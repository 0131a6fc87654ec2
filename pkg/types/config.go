package types

// Config is the fully-resolved, immutable configuration snapshot handed
// to the rest of the system for the duration of a session (C1).
type Config struct {
	Default      DefaultConfig            `toml:"default"`
	Agent        map[string]AgentOverride `toml:"agent"`
	Theme        ThemeConfig              `toml:"theme"`
	Features     FeaturesConfig           `toml:"features"`
	Permissions  PermissionLists          `toml:"permissions"`
	Trust        TrustConfig              `toml:"trust"`
	MCP          map[string]MCPServerConfig `toml:"mcp"`
}

// MCPServerConfig describes one configured MCP server, keyed by name
// under the `mcp.<name>` table. Exactly one of Command (stdio) or URL
// (sse/streamable-http) should be set, selected by Transport.
type MCPServerConfig struct {
	Transport  string            `toml:"transport"` // "stdio", "sse", or "streamable-http"
	Command    string            `toml:"command,omitempty"`
	Args       []string          `toml:"args,omitempty"`
	Env        map[string]string `toml:"env,omitempty"`
	URL        string            `toml:"url,omitempty"`
	Headers    map[string]string `toml:"headers,omitempty"`
	ToolPrefix string            `toml:"tool_prefix,omitempty"`
	Enabled    bool              `toml:"enabled"`
}

// DefaultConfig carries the default provider/model settings (§3.6).
type DefaultConfig struct {
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	MaxTokens         int     `toml:"max_tokens"`
	Temperature       float64 `toml:"temperature"`
	StreamCharsPerTick int    `toml:"stream_chars_per_tick"`
	Stream            bool    `toml:"stream"`

	// AuthToken is never populated from a config file; it is resolved
	// exclusively through Secret/environment lookup (C2) and kept out
	// of the TOML-marshalled surface.
	AuthToken Secret `toml:"-"`
}

// AgentOverride holds per-agent-role overrides, keyed by role name
// (explore, plan, code_reviewer, …) under the `agent.<role>` table.
type AgentOverride struct {
	Model       string   `toml:"model,omitempty"`
	Temperature *float64 `toml:"temperature,omitempty"`
	MaxTokens   int      `toml:"max_tokens,omitempty"`
}

// ThemeConfig is consumed only by the (out-of-scope) TUI renderer but
// resolved here since it is part of the layered config surface.
type ThemeConfig struct {
	Mode         string `toml:"mode"`
	CustomTheme  string `toml:"custom_theme,omitempty"`
}

// FeaturesConfig toggles optional subsystems.
type FeaturesConfig struct {
	EnableMCP         bool `toml:"enable_mcp"`
	EnableMultimodal  bool `toml:"enable_multimodal"`
}

// PermissionLists are tool-name allow/deny lists (§4.1: no name may
// appear in both).
type PermissionLists struct {
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// TrustConfig seeds the HITL gatekeeper's trust-score state machine (§3.5).
type TrustConfig struct {
	InitialScore         float64 `toml:"initial_score"`
	AutoApproveThreshold float64 `toml:"auto_approve_threshold"`
	Increment            float64 `toml:"increment"`
	Decrement            float64 `toml:"decrement"`
}

// DefaultTrustConfig mirrors the reference implementation's defaults.
func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		InitialScore:         0.5,
		AutoApproveThreshold: 0.8,
		Increment:            0.02,
		Decrement:            0.05,
	}
}

// Validate enforces §4.1's field constraints.
func (c *Config) Validate() error {
	if c.Default.Model == "" {
		return &ConfigFieldError{Field: "default.model", Reason: "must not be empty"}
	}
	if c.Default.Temperature < 0.0 || c.Default.Temperature > 1.0 {
		return &ConfigFieldError{Field: "default.temperature", Reason: "must be within [0.0, 1.0]"}
	}
	if c.Default.MaxTokens <= 0 {
		return &ConfigFieldError{Field: "default.max_tokens", Reason: "must be positive"}
	}
	deny := make(map[string]bool, len(c.Permissions.Deny))
	for _, d := range c.Permissions.Deny {
		deny[d] = true
	}
	for _, a := range c.Permissions.Allow {
		if deny[a] {
			return &ConfigFieldError{Field: "permissions", Reason: "tool \"" + a + "\" appears in both allow and deny lists"}
		}
	}
	return nil
}

// ConfigFieldError names the offending field and why it failed validation.
type ConfigFieldError struct {
	Field  string
	Reason string
}

func (e *ConfigFieldError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}
