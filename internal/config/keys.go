package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "OUTING_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "OUTING_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "OUTING_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.base_url", typ: kString, env: "OUTING_PROXY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.BaseURL },
	},
	{
		key: "proxy.default_model", typ: kString, env: "OUTING_PROXY_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "agent.max_turns", typ: kInt, env: "OUTING_AGENT_MAX_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Agent.MaxTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.MaxTurns },
	},
	{
		key: "storage.backend", typ: kString, env: "OUTING_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "OUTING_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.mongo_uri", typ: kString, env: "OUTING_MONGODB_URI",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoURI = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoURI },
	},
	{
		key: "storage.mongo_database", typ: kString, env: "OUTING_MONGODB_DATABASE",
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoDatabase = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoDatabase },
	},
	{
		key: "cache.redis_url", typ: kString, env: "OUTING_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisURL },
	},
	{
		key: "scraper.enabled", typ: kBool, env: "OUTING_SCRAPER_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Scraper.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Scraper.Enabled },
	},
	{
		key: "scraper.interval", typ: kString, env: "OUTING_SCRAPER_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scraper.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scraper.Interval },
	},
	{
		key: "integrations.google_maps_api_key", typ: kString, env: "OUTING_GOOGLE_MAPS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Integrations.GoogleMapsAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Integrations.GoogleMapsAPIKey },
	},
	{
		key: "integrations.openweather_api_key", typ: kString, env: "OUTING_OPENWEATHER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Integrations.OpenWeatherAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Integrations.OpenWeatherAPIKey },
	},
	{
		key: "integrations.enable_google_maps", typ: kBool, env: "OUTING_ENABLE_GOOGLE_MAPS",
		apply:   func(cfg *Config, v any) { cfg.Integrations.EnableGoogleMaps = v.(bool) },
		extract: func(cfg Config) any { return cfg.Integrations.EnableGoogleMaps },
	},
	{
		key: "integrations.sheets_credentials_file", typ: kString, env: "OUTING_SHEETS_CREDENTIALS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Integrations.SheetsCredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Integrations.SheetsCredentialsFile },
	},
	{
		key: "tools.disabled", typ: kString, env: "OUTING_TOOLS_DISABLED",
		apply:   func(cfg *Config, v any) { cfg.Tools.Disabled = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.Disabled },
	},
	{
		key: "log.level", typ: kString, env: "OUTING_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s: %v. Using default value.\n", s.key, err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
