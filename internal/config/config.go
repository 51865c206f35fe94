package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Proxy        ProxyConfig
	Agent        AgentConfig
	Storage      StorageConfig
	Cache        CacheConfig
	Scraper      ScraperConfig
	Integrations IntegrationsConfig
	Tools        ToolsConfig
	Log          LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins string // comma-separated
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	BaseURL          string
	DefaultModel     string
}

type AgentConfig struct {
	MaxTurns int
}

type StorageConfig struct {
	Backend       string // "sqlite" or "mongo"
	DataDir       string
	MongoURI      string
	MongoDatabase string
}

type CacheConfig struct {
	RedisURL string
}

type ScraperConfig struct {
	Enabled  bool
	Interval string
}

type IntegrationsConfig struct {
	GoogleMapsAPIKey      string
	OpenWeatherAPIKey     string
	EnableGoogleMaps      bool
	SheetsCredentialsFile string
}

type ToolsConfig struct {
	Disabled string // comma-separated tool names
}

type LogConfig struct {
	Level string
}

// Origins returns the CORS allow-list as a slice.
func (c ServerConfig) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// IntervalDuration parses the scrape interval, falling back to 10 minutes.
func (c ScraperConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// DisabledSet returns the disabled tool names as a lookup set.
func (c ToolsConfig) DisabledSet() map[string]bool {
	set := make(map[string]bool)
	for _, name := range splitList(c.Disabled) {
		set[name] = true
	}
	return set
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8000,
			AllowedOrigins: "http://localhost:3000,http://127.0.0.1:3000",
		},
		Proxy: ProxyConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "openai/gpt-4o-mini",
		},
		Agent: AgentConfig{
			MaxTurns: 5,
		},
		Storage: StorageConfig{
			Backend:       "sqlite",
			DataDir:       defaultDataDir(),
			MongoDatabase: "activities_agent",
		},
		Scraper: ScraperConfig{
			Enabled:  true,
			Interval: "10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, environment variables,
// and the secrets file. OUTING_* environment variables override file values.
// An OpenRouter API key is required.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretsFile{}, true)
}

// LoadClient is like Load but does not require the OpenRouter API key.
// CLI commands that only talk to a running server use it.
func LoadClient() (Config, error) {
	return loadWith(newPlatformBackend(), secretsFile{}, false)
}

// secretStore abstracts secret lookup for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, ss secretStore, requireKey bool) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, ss)

	if cfg.Agent.MaxTurns <= 0 {
		return Config{}, fmt.Errorf("invalid config: agent.max_turns must be positive, got %d", cfg.Agent.MaxTurns)
	}
	switch cfg.Storage.Backend {
	case "sqlite":
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			return Config{}, fmt.Errorf("invalid config: storage.backend is mongo but storage.mongo_uri is empty")
		}
	default:
		return Config{}, fmt.Errorf("invalid config: unknown storage.backend %q", cfg.Storage.Backend)
	}

	if requireKey && cfg.Proxy.OpenRouterAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenRouter API key. "+
			"Set it via environment variable OUTING_OPENROUTER_API_KEY or %s", secretsFilePath())
	}

	return cfg, nil
}

// applySecrets fills secret keys still empty after env overrides from the secrets store.
func applySecrets(cfg *Config, ss secretStore) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if cur, _ := s.extract(*cfg).(string); cur != "" {
			continue
		}
		if v, err := ss.Get("outing", s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
