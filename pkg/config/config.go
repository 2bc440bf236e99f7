package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type AgentDefaults struct {
	Workspace         string  `json:"workspace"`
	Model             string  `json:"model"`
	Provider          string  `json:"provider,omitempty"`
	MaxTokens         int     `json:"maxTokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"maxToolIterations"`
	// MemoryWindow is the session length that triggers consolidation.
	MemoryWindow int `json:"memoryWindow"`
	// InterleavedThinking inserts a reflection turn after each tool batch.
	InterleavedThinking *bool `json:"interleavedThinking,omitempty"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase,omitempty"`
}

type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	Zhipu      ProviderConfig `json:"zhipu"`
	VLLM       ProviderConfig `json:"vllm"`
	Gemini     ProviderConfig `json:"gemini"`
}

type WebSearchConfig struct {
	APIKey     string `json:"apiKey"`
	MaxResults int    `json:"maxResults"`
}

type WebToolsConfig struct {
	Search WebSearchConfig `json:"search"`
}

type ExecToolConfig struct {
	Timeout             int  `json:"timeout"`
	RestrictToWorkspace bool `json:"restrictToWorkspace"`
}

type FileToolsConfig struct {
	RestrictToWorkspace bool `json:"restrictToWorkspace"`
}

type ToolsConfig struct {
	Web   WebToolsConfig  `json:"web"`
	Exec  ExecToolConfig  `json:"exec"`
	Files FileToolsConfig `json:"files"`
}

type HeartbeatConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"intervalSeconds"`
}

type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Tools     ToolsConfig     `json:"tools"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

// InterleavedThinkingEnabled reports whether the reflection steering turn is
// enabled. Defaults to on when unset.
func (d *AgentDefaults) InterleavedThinkingEnabled() bool {
	if d.InterleavedThinking == nil {
		return true
	}
	return *d.InterleavedThinking
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:         filepath.Join(".calico", "workspace"),
				Model:             "gpt-4o-mini",
				MaxTokens:         8192,
				Temperature:       0.7,
				MaxToolIterations: 20,
				MemoryWindow:      50,
			},
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				Search: WebSearchConfig{MaxResults: 5},
			},
			Exec: ExecToolConfig{
				Timeout:             60,
				RestrictToWorkspace: true,
			},
			Files: FileToolsConfig{
				RestrictToWorkspace: true,
			},
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			IntervalSeconds: 30 * 60,
		},
	}
}

// LoadConfig reads the configuration file, falling back to defaults when it
// does not exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(".calico", "config.json")
	}

	cfg := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
