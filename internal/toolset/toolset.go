// Package toolset wires the outing integrations into a tool registry.
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kalambet/outing/internal/activities"
	"github.com/kalambet/outing/internal/places"
	"github.com/kalambet/outing/internal/preferences"
	"github.com/kalambet/outing/internal/sheets"
	"github.com/kalambet/outing/internal/storage"
	"github.com/kalambet/outing/internal/tools"
	"github.com/kalambet/outing/internal/weather"
)

// Tool names as the model sees them.
const (
	ScrapeActivities      = "scrape_activities"
	SearchPlacesForDates  = "search_places_for_dates"
	GetWeatherForLocation = "get_weather_for_location"
	SaveToSheets          = "save_to_sheets"
	GetUserPreferences    = "get_user_preferences"
	UpdateUserPreferences = "update_user_preferences"
)

// DisplayNames are user-facing labels for each tool.
var DisplayNames = map[string]string{
	SearchPlacesForDates:  "Google Maps",
	GetWeatherForLocation: "Weather",
	ScrapeActivities:      "Web Scraper",
	SaveToSheets:          "Google Sheets",
	GetUserPreferences:    "Preferences",
	UpdateUserPreferences: "Preferences",
}

type ActivitySearcher interface {
	Search(ctx context.Context, req activities.SearchRequest) ([]activities.Activity, error)
}

type PlaceSearcher interface {
	Search(ctx context.Context, q places.Query) places.Result
}

type Forecaster interface {
	Current(ctx context.Context, location, date string) (*weather.Report, error)
}

type SheetWriter interface {
	Save(ctx context.Context, rows []sheets.Row, spreadsheetID string) (sheets.Result, error)
}

type PreferenceStore interface {
	Get(ctx context.Context, userID string) (storage.Preferences, error)
	Update(ctx context.Context, userID string, patch preferences.Patch) (storage.Preferences, error)
}

// Deps are the integrations behind the tools. A nil dependency leaves its
// tools unregistered.
type Deps struct {
	Activities  ActivitySearcher
	Places      PlaceSearcher
	Weather     Forecaster
	Sheets      SheetWriter
	Preferences PreferenceStore

	// Disabled tool names are never registered.
	Disabled map[string]bool
}

// Build registers every available tool and freezes the registry.
func Build(d Deps) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	var all []tools.Tool
	if d.Preferences != nil {
		all = append(all, getPreferencesTool(d.Preferences), updatePreferencesTool(d.Preferences))
	}
	if d.Activities != nil {
		all = append(all, scrapeTool(d.Activities))
	}
	if d.Places != nil {
		all = append(all, placesTool(d.Places))
	}
	if d.Weather != nil {
		all = append(all, weatherTool(d.Weather))
	}
	if d.Sheets != nil {
		all = append(all, sheetsTool(d.Sheets))
	}

	for _, t := range all {
		name := t.Spec().Name
		if d.Disabled[name] {
			slog.Info("tool disabled by config", "tool", name)
			continue
		}
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("registering tools: %w", err)
		}
	}
	reg.Freeze()
	return reg, nil
}

func str(desc string) *tools.Schema {
	return &tools.Schema{Type: "string", Description: desc}
}

func num(desc string) *tools.Schema {
	return &tools.Schema{Type: "number", Description: desc}
}

func strArray(desc string) *tools.Schema {
	return &tools.Schema{Type: "array", Description: desc, Items: &tools.Schema{Type: "string"}}
}

func getPreferencesTool(prefs PreferenceStore) tools.Tool {
	spec := tools.Spec{
		Name:        GetUserPreferences,
		Description: "Get user preferences including location, interests, budget, and date preferences",
		Parameters: &tools.Schema{
			Type:       "object",
			Properties: map[string]*tools.Schema{"user_id": str("The user's unique identifier")},
			Required:   []string{"user_id"},
		},
		UserScoped: true,
	}
	return tools.Func(spec, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			UserID string `json:"user_id"`
		}
		if err := tools.Bind(raw, &args); err != nil {
			return nil, err
		}
		return prefs.Get(ctx, args.UserID)
	})
}

func updatePreferencesTool(prefs PreferenceStore) tools.Tool {
	spec := tools.Spec{
		Name:        UpdateUserPreferences,
		Description: "Update user preferences. Only provide fields that should be updated.",
		Parameters: &tools.Schema{
			Type: "object",
			Properties: map[string]*tools.Schema{
				"user_id":    str("The user's unique identifier"),
				"location":   str("Preferred location (city, neighborhood, etc.)"),
				"interests":  strArray("List of interests (e.g., ['outdoor', 'art', 'music'])"),
				"budget_min": num("Minimum budget in dollars"),
				"budget_max": num("Maximum budget in dollars"),
			},
			Required: []string{"user_id"},
		},
		UserScoped: true,
	}
	return tools.Func(spec, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			UserID    string   `json:"user_id"`
			Location  *string  `json:"location"`
			Interests []string `json:"interests"`
			BudgetMin *float64 `json:"budget_min"`
			BudgetMax *float64 `json:"budget_max"`
		}
		if err := tools.Bind(raw, &args); err != nil {
			return nil, err
		}
		return prefs.Update(ctx, args.UserID, preferences.Patch{
			Location:  args.Location,
			Interests: args.Interests,
			BudgetMin: args.BudgetMin,
			BudgetMax: args.BudgetMax,
		})
	})
}

func scrapeTool(svc ActivitySearcher) tools.Tool {
	spec := tools.Spec{
		Name:        ScrapeActivities,
		Description: "Search for activities and events in NYC from cached scraped data (sources: theskint, timeout, eventbrite). Returns events matching the query and filters.",
		Parameters: &tools.Schema{
			Type: "object",
			Properties: map[string]*tools.Schema{
				"query":      str("Search query for activities (e.g., 'free comedy', 'outdoor events', 'live music', 'art gallery')"),
				"location_a": str("Primary location/neighborhood (e.g., 'Brooklyn', 'Manhattan', 'East Village')"),
				"location_b": str("Optional second location for finding activities in a broader area"),
				"filters": {
					Type:        "object",
					Description: "Optional filters",
					Properties: map[string]*tools.Schema{
						"category":  str("Activity category (e.g., 'Music', 'Comedy', 'Arts', 'Food & Drink', 'Outdoor', 'Theater')"),
						"max_price": num("Maximum price in dollars (events marked 'Free' are always included)"),
						"source":    str("Filter by source site: 'theskint', 'timeout', or 'eventbrite'"),
					},
				},
			},
			Required: []string{"query"},
		},
	}
	return tools.Func(spec, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Query     string             `json:"query"`
			LocationA string             `json:"location_a"`
			LocationB string             `json:"location_b"`
			Filters   activities.Filters `json:"filters"`
		}
		if err := tools.Bind(raw, &args); err != nil {
			return nil, err
		}
		return svc.Search(ctx, activities.SearchRequest{
			Query:     args.Query,
			LocationA: args.LocationA,
			LocationB: args.LocationB,
			Filters:   args.Filters,
		})
	})
}

func placesTool(searcher PlaceSearcher) tools.Tool {
	spec := tools.Spec{
		Name:        SearchPlacesForDates,
		Description: "Search for date activities near one location or between two locations using Google Maps. Intelligently chooses search strategy: for transit-friendly cities (NYC, SF, Chicago), searches along transit stops (clustered to reduce API calls); for car-centric areas, searches around midpoint. Finds places like coffee shops, restaurants, parks, and attractions.",
		Parameters: &tools.Schema{
			Type: "object",
			Properties: map[string]*tools.Schema{
				"location1":      str("First/primary location (address or coordinates as 'lat,lng')"),
				"location2":      str("Second location (optional - if provided, searches between locations; if omitted, searches near location1)"),
				"place_types":    strArray("List of place types to search for (e.g., ['cafe', 'restaurant', 'park', 'tourist_attraction'])"),
				"price_level":    {Type: "integer", Description: "Maximum price level filter (0-4, where 0=Free, 1=Inexpensive, 2=Moderate, 3=Expensive, 4=Very Expensive)"},
				"min_rating":     num("Minimum rating threshold (default: 4.0, scale: 1.0-5.0)"),
				"radius":         num("Search radius in miles per search point (default: 0.5mi, auto-expanded for car-centric areas)"),
				"check_weather":  {Type: "boolean", Description: "Whether to include weather information for outdoor activities (default: false)"},
				"user_interests": strArray("List of user interests for matching against reviews (e.g., ['outdoor', 'art', 'coffee'])"),
			},
			Required: []string{"location1"},
		},
	}
	return tools.Func(spec, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var q places.Query
		if err := tools.Bind(raw, &q); err != nil {
			return nil, err
		}
		return searcher.Search(ctx, q), nil
	})
}

func weatherTool(fc Forecaster) tools.Tool {
	spec := tools.Spec{
		Name:        GetWeatherForLocation,
		Description: "Get current weather information for a location. Useful for determining if outdoor activities are suitable.",
		Parameters: &tools.Schema{
			Type: "object",
			Properties: map[string]*tools.Schema{
				"location": str("Location (address, city name, or coordinates as 'lat,lng')"),
				"date":     str("Optional date for weather forecast (format: 'YYYY-MM-DD'). Default: current weather"),
			},
			Required: []string{"location"},
		},
	}
	return tools.Func(spec, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Location string `json:"location"`
			Date     string `json:"date"`
		}
		if err := tools.Bind(raw, &args); err != nil {
			return nil, err
		}
		return fc.Current(ctx, args.Location, args.Date)
	})
}

func sheetsTool(w SheetWriter) tools.Tool {
	row := &tools.Schema{
		Type: "object",
		Properties: map[string]*tools.Schema{
			"name":          {Type: "string"},
			"location":      {Type: "string"},
			"description":   {Type: "string"},
			"price":         {Type: "string"},
			"opening_hours": str("Opening hours or event time"),
			"category":      {Type: "string"},
			"url":           {Type: "string"},
		},
	}
	spec := tools.Spec{
		Name:        SaveToSheets,
		Description: "Save a list of activities to a Google Sheet. Creates a new sheet if spreadsheet_id is not provided.",
		Parameters: &tools.Schema{
			Type: "object",
			Properties: map[string]*tools.Schema{
				"activities":     {Type: "array", Description: "List of activity objects to save", Items: row},
				"spreadsheet_id": str("Optional existing Google Sheet ID. If not provided, creates a new sheet."),
			},
			Required: []string{"activities"},
		},
	}
	return tools.Func(spec, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Activities    []sheets.Row `json:"activities"`
			SpreadsheetID string       `json:"spreadsheet_id"`
		}
		if err := tools.Bind(raw, &args); err != nil {
			return nil, err
		}
		return w.Save(ctx, args.Activities, args.SpreadsheetID)
	})
}
