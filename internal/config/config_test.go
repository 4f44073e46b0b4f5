package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600)
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Listen.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Listen.Port)
	}
	if cfg.Agent.MaxTurns != 10 {
		t.Errorf("max_turns = %d, want 10", cfg.Agent.MaxTurns)
	}
	if cfg.Agent.Timeout != 20*time.Second {
		t.Errorf("timeout = %s, want 20s", cfg.Agent.Timeout)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != filepath.Join("./data", "bank.db") {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.MarketRates.Fixed30 != 6.875 || cfg.MarketRates.Fixed15 != 6.125 || cfg.MarketRates.ARM51 != 5.750 {
		t.Errorf("market rates = %+v", cfg.MarketRates)
	}
	if !cfg.Usage.Enabled() {
		t.Error("usage should be enabled by default")
	}
	if cfg.MQTT.Configured() {
		t.Error("mqtt should not be configured by default")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("LOANAGENT_TEST_KEY", "secret123")
	path := writeConfig(t, "anthropic:\n  api_key: ${LOANAGENT_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Anthropic.APIKey, "secret123")
	}
}

func TestLoad_AgentDurations(t *testing.T) {
	path := writeConfig(t, "agent:\n  max_turns: 4\n  timeout: 45s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.MaxTurns != 4 {
		t.Errorf("max_turns = %d, want 4", cfg.Agent.MaxTurns)
	}
	if cfg.Agent.Timeout != 45*time.Second {
		t.Errorf("timeout = %s, want 45s", cfg.Agent.Timeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad driver", "database:\n  driver: oracle\n  dsn: x\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"negative turns", "agent:\n  max_turns: -1\n"},
		{"unknown provider", "models:\n  available:\n    - name: x\n      provider: nope\n"},
		{"anthropic without key", "models:\n  available:\n    - name: claude\n      provider: anthropic\n"},
		{"gemini without key", "models:\n  available:\n    - name: gemini-2.5-flash\n      provider: gemini\n"},
		{"bad log level", "log_level: loud\n"},
		{"bad log format", "log_format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Errorf("Load(%q) should fail", tt.body)
			}
		})
	}
}

func TestProviderFor(t *testing.T) {
	cfg := Default()
	cfg.Models.Available = []ModelConfig{{Name: "claude-sonnet", Provider: "anthropic"}}

	if got := cfg.ProviderFor("claude-sonnet"); got != "anthropic" {
		t.Errorf("ProviderFor(claude-sonnet) = %q", got)
	}
	if got := cfg.ProviderFor("qwen3:4b"); got != "ollama" {
		t.Errorf("ProviderFor(qwen3:4b) = %q, want ollama", got)
	}
}

func TestUsageDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "usage:\n  db_path: \"-\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Usage.Enabled() {
		t.Error("db_path \"-\" should disable usage recording")
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("LOANAGENT_ENV_PROBE=from-file\n"), 0600)
	t.Setenv("LOANAGENT_ENV_PROBE", "")
	os.Unsetenv("LOANAGENT_ENV_PROBE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile error: %v", err)
	}
	if got := os.Getenv("LOANAGENT_ENV_PROBE"); got != "from-file" {
		t.Errorf("LOANAGENT_ENV_PROBE = %q, want from-file", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLogLevel(%q) err = %v, wantErr %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, LevelTrace))
	if a.Value.String() != "TRACE" {
		t.Errorf("trace level rendered as %q", a.Value.String())
	}
	b := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, slog.LevelInfo))
	if b.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Error("info level should be unchanged")
	}
}
