// Package config handles loanagent configuration loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/loanagent/config.yaml, /etc/loanagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "loanagent", "config.yaml"))
	}

	paths = append(paths, "/etc/loanagent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all loanagent configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Models      ModelsConfig      `yaml:"models"`
	Anthropic   AnthropicConfig   `yaml:"anthropic"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Agent       AgentConfig       `yaml:"agent"`
	Database    DatabaseConfig    `yaml:"database"`
	MarketRates MarketRatesConfig `yaml:"market_rates"`
	Usage       UsageConfig       `yaml:"usage"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines which model answers requests and where it lives.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic, gemini
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key is present.
func (c GeminiConfig) Configured() bool { return c.APIKey != "" }

// AgentConfig bounds a single orchestration run.
type AgentConfig struct {
	// MaxTurns is the maximum number of model invocations per request.
	MaxTurns int `yaml:"max_turns"`
	// Timeout bounds the whole run, model and tool calls combined.
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig locates the account and loan records.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `yaml:"driver"`
	// DSN is passed to the driver unchanged. For sqlite it is a file path.
	DSN string `yaml:"dsn"`
	// QueryTimeout bounds each lookup a tool performs.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// MarketRatesConfig holds the published rates returned by the
// get_current_mortgage_rate tool.
type MarketRatesConfig struct {
	Fixed30 float64 `yaml:"fixed_30"`
	Fixed15 float64 `yaml:"fixed_15"`
	ARM51   float64 `yaml:"arm_5_1"`
}

// UsageConfig controls the tool and model usage ledger.
type UsageConfig struct {
	// DBPath defaults to <data_dir>/usage.db. "-" disables recording.
	DBPath string `yaml:"db_path"`
}

// Enabled reports whether usage recording is on.
func (c UsageConfig) Enabled() bool { return c.DBPath != "-" }

// MQTTConfig defines the optional telemetry publisher.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // mqtt://host:1883 or mqtts://host:8883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Configured reports whether a broker URL is present.
func (c MQTTConfig) Configured() bool { return c.Broker != "" }

var validDrivers = map[string]bool{"sqlite": true, "postgres": true, "mysql": true}

var validProviders = map[string]bool{"ollama": true, "anthropic": true, "gemini": true}

// LoadEnvFile loads KEY=value pairs from path into the process
// environment without overriding variables that are already set. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references from the environment, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, suitable
// for a local Ollama and a SQLite database under ./data.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8000
	}
	if c.Models.Default == "" {
		c.Models.Default = "qwen3:4b"
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}
	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = 10
	}
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = 20 * time.Second
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = filepath.Join(c.DataDir, "bank.db")
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 5 * time.Second
	}
	if c.MarketRates == (MarketRatesConfig{}) {
		c.MarketRates = MarketRatesConfig{Fixed30: 6.875, Fixed15: 6.125, ARM51: 5.750}
	}
	if c.Usage.DBPath == "" {
		c.Usage.DBPath = filepath.Join(c.DataDir, "usage.db")
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "loanagent"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "loanagent"
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be at least 1, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent.timeout must be positive, got %s", c.Agent.Timeout)
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver %q not supported (valid: sqlite, postgres, mysql)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	for _, m := range c.Models.Available {
		if !validProviders[m.Provider] {
			return fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider)
		}
		if m.Provider == "anthropic" && !c.Anthropic.Configured() {
			return fmt.Errorf("model %q uses anthropic but anthropic.api_key is empty", m.Name)
		}
		if m.Provider == "gemini" && !c.Gemini.Configured() {
			return fmt.Errorf("model %q uses gemini but gemini.api_key is empty", m.Name)
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q not supported (valid: text, json)", c.LogFormat)
	}
	return nil
}

// ProviderFor returns the provider configured for model, or "ollama"
// when the model is not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	return "ollama"
}
