package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/outing/internal/activities"
	"github.com/kalambet/outing/internal/config"
	"github.com/kalambet/outing/internal/history"
	"github.com/kalambet/outing/internal/places"
	"github.com/kalambet/outing/internal/preferences"
	"github.com/kalambet/outing/internal/sheets"
	"github.com/kalambet/outing/internal/storage"
	"github.com/kalambet/outing/internal/tools"
	"github.com/kalambet/outing/internal/toolset"
	"github.com/kalambet/outing/internal/weather"
)

const scrapeHTTPTimeout = 30 * time.Second

// documentStore holds preferences and chat histories. Implemented by
// storage.Store and storage.MongoStore.
type documentStore interface {
	preferences.Store
	history.Store
}

// app is the wired set of services shared by serve and mcp.
type app struct {
	store      *storage.Store
	prefs      *preferences.Manager
	history    *history.Service
	activities *activities.Service
	fetcher    *places.Fetcher
	tools      *tools.Registry

	closers []io.Closer
}

func setupLogging(level string, w io.Writer) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// buildApp opens storage and the activity cache and registers the tools.
// The caller must call Close.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	// The SQLite store always backs the job queue and the default cache.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	var docs documentStore = store
	if cfg.Storage.Backend == "mongo" {
		m, err := storage.OpenMongo(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening mongo storage: %w", err)
		}
		a.closers = append(a.closers, m)
		docs = m
		slog.Info("using mongo for preferences and chat history", "database", cfg.Storage.MongoDatabase)
	}

	var cache activities.Cache = activities.NewSQLiteCache(store)
	if cfg.Cache.RedisURL != "" {
		rc, err := activities.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, rc)
		cache = rc
		slog.Info("using redis activity cache")
	}

	a.prefs = preferences.NewManager(docs)
	a.history = history.NewService(docs)

	scraper := activities.NewScraper(&http.Client{Timeout: scrapeHTTPTimeout}, activities.DefaultSites()...)
	a.activities = activities.NewService(cache, scraper)

	mapsClient, err := places.NewMapsClient(cfg.Integrations.GoogleMapsAPIKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating maps client: %w", err)
	}
	if mapsClient == nil && cfg.Integrations.EnableGoogleMaps {
		slog.Warn("google maps enabled but no API key set; place search will report an error")
	}
	forecaster := weather.NewClient(cfg.Integrations.OpenWeatherAPIKey)
	searcher := places.NewSearcher(mapsClient, forecaster, cfg.Integrations.EnableGoogleMaps)
	a.fetcher = places.NewFetcher(searcher, a.prefs)

	deps := toolset.Deps{
		Activities:  a.activities,
		Places:      searcher,
		Weather:     forecaster,
		Preferences: a.prefs,
		Disabled:    cfg.Tools.DisabledSet(),
	}
	if file := cfg.Integrations.SheetsCredentialsFile; file != "" {
		w, err := sheets.NewWriter(ctx, file)
		if err != nil {
			slog.Warn("google sheets unavailable", "error", err)
		} else {
			deps.Sheets = w
		}
	}

	a.tools, err = toolset.Build(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	slog.Info("tools registered", "tools", strings.Join(a.tools.Names(), ","))

	return a, nil
}

// Close releases storage and cache connections in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
