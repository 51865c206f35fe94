package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secret store.
type mockSecrets struct {
	values map[string]string
}

func (m mockSecrets) Get(service, account string) (string, error) {
	if v, ok := m.values[account]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, mockSecrets{values: map[string]string{"proxy.openrouter_api_key": "k"}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Agent.MaxTurns != 5 {
		t.Errorf("Agent.MaxTurns = %d, want 5", cfg.Agent.MaxTurns)
	}
	if cfg.Proxy.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("Proxy.BaseURL = %q", cfg.Proxy.BaseURL)
	}
	if cfg.Proxy.DefaultModel != "openai/gpt-4o-mini" {
		t.Errorf("Proxy.DefaultModel = %q", cfg.Proxy.DefaultModel)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if !cfg.Scraper.Enabled {
		t.Error("Scraper.Enabled = false, want true")
	}
	if got := cfg.Scraper.IntervalDuration(); got != 10*time.Minute {
		t.Errorf("Scraper.IntervalDuration() = %v, want 10m", got)
	}
	origins := cfg.Server.Origins()
	if len(origins) != 2 || origins[0] != "http://localhost:3000" {
		t.Errorf("Server.Origins() = %v", origins)
	}
}

// TestFileValues verifies that fields are read from the JSON file.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 9000,
  "agent.max_turns": "8",
  "proxy.default_model": "openai/gpt-4o",
  "scraper.enabled": false,
  "scraper.interval": "30m",
  "integrations.enable_google_maps": "true",
  "tools.disabled": "save_to_sheets, get_weather_for_location"
}`)

	cfg, err := loadWith(b, mockSecrets{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Agent.MaxTurns != 8 {
		t.Errorf("Agent.MaxTurns = %d, want 8", cfg.Agent.MaxTurns)
	}
	if cfg.Proxy.DefaultModel != "openai/gpt-4o" {
		t.Errorf("Proxy.DefaultModel = %q", cfg.Proxy.DefaultModel)
	}
	if cfg.Scraper.Enabled {
		t.Error("Scraper.Enabled = true, want false")
	}
	if got := cfg.Scraper.IntervalDuration(); got != 30*time.Minute {
		t.Errorf("IntervalDuration = %v, want 30m", got)
	}
	if !cfg.Integrations.EnableGoogleMaps {
		t.Error("EnableGoogleMaps = false, want true")
	}
	disabled := cfg.Tools.DisabledSet()
	if !disabled["save_to_sheets"] || !disabled["get_weather_for_location"] || len(disabled) != 2 {
		t.Errorf("DisabledSet = %v", disabled)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 9000}`)

	t.Setenv("OUTING_SERVER_PORT", "9100")
	t.Setenv("OUTING_OPENROUTER_API_KEY", "env-key")

	cfg, err := loadWith(b, mockSecrets{values: map[string]string{"proxy.openrouter_api_key": "file-key"}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Proxy.OpenRouterAPIKey != "env-key" {
		t.Errorf("OpenRouterAPIKey = %q, want %q", cfg.Proxy.OpenRouterAPIKey, "env-key")
	}
}

// TestSecretsFallback verifies the secrets file is consulted when env has no key.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, mockSecrets{values: map[string]string{
		"proxy.openrouter_api_key":         "secret-key",
		"integrations.openweather_api_key": "weather-key",
	}}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Proxy.OpenRouterAPIKey != "secret-key" {
		t.Errorf("OpenRouterAPIKey = %q", cfg.Proxy.OpenRouterAPIKey)
	}
	if cfg.Integrations.OpenWeatherAPIKey != "weather-key" {
		t.Errorf("OpenWeatherAPIKey = %q", cfg.Integrations.OpenWeatherAPIKey)
	}
}

// TestMissingRequiredField verifies a clear error when the API key is missing everywhere.
func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	_, err := loadWith(b, mockSecrets{}, true)
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err.Error())
	}

	if _, err := loadWith(b, mockSecrets{}, false); err != nil {
		t.Errorf("client load should not require the key: %v", err)
	}
}

func TestMissingKeyErrorKeepsSecretsPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("OUTING_SECRETS_FILE", "/srv/100%data/secrets.json")
	b := writeTempConfig(t, `{}`)

	_, err := loadWith(b, mockSecrets{}, true)
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.HasSuffix(err.Error(), "OUTING_OPENROUTER_API_KEY or /srv/100%data/secrets.json") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		file string
		want string
	}{
		{"zero turns", `{"agent.max_turns": 0}`, "max_turns"},
		{"unknown backend", `{"storage.backend": "postgres"}`, "unknown storage.backend"},
		{"mongo without uri", `{"storage.backend": "mongo"}`, "mongo_uri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWith(writeTempConfig(t, tt.file), mockSecrets{}, false)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	if err := setKeyIn(b, "server.port", "9200"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := setKeyIn(b, "scraper.enabled", "false"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := setKeyIn(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyIn(b, "nope", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded := newFileBackend(b.path)
	port, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || port != 9200 {
		t.Errorf("server.port = %d ok=%v err=%v", port, ok, err)
	}
	enabled, ok, err := reloaded.GetBool("scraper.enabled")
	if err != nil || !ok || enabled {
		t.Errorf("scraper.enabled = %v ok=%v err=%v", enabled, ok, err)
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.OpenRouterAPIKey = "sk-or-abcdef1234"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "proxy.openrouter_api_key" {
			if ki.Value != "****1234" {
				t.Errorf("masked value = %q, want %q", ki.Value, "****1234")
			}
			return
		}
	}
	t.Fatal("proxy.openrouter_api_key missing from ShowAll")
}
