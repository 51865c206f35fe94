package places

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/outing/internal/storage"
)

var interestPlaceTypes = map[string][]string{
	"outdoor":             {"park", "hiking_area", "campground"},
	"art":                 {"art_gallery", "museum"},
	"music":               {"night_club", "bar"},
	"food":                {"restaurant", "bakery"},
	"coffee":              {"cafe"},
	"unique coffee shops": {"cafe"},
	"romantic":            {"restaurant", "spa"},
	"shopping":            {"shopping_mall", "clothing_store"},
	"entertainment":       {"movie_theater", "amusement_park", "bowling_alley"},
	"nature":              {"park", "zoo", "aquarium"},
	"walks":               {"park", "tourist_attraction"},
	"beautiful views":     {"tourist_attraction", "park"},
	"views":               {"tourist_attraction", "park"},
}

// PlaceTypesFor maps user interests to Google place types. Unknown
// interests are used as place types directly. The result is sorted.
func PlaceTypesFor(interests []string) []string {
	set := map[string]bool{}
	for _, interest := range interests {
		lower := strings.ToLower(strings.TrimSpace(interest))
		if lower == "" {
			continue
		}
		if types, ok := interestPlaceTypes[lower]; ok {
			for _, t := range types {
				set[t] = true
			}
			continue
		}
		set[strings.ReplaceAll(lower, " ", "_")] = true
	}
	if len(set) == 0 {
		return append([]string(nil), DefaultPlaceTypes...)
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// PriceLevelFor maps a maximum budget in dollars to a Google price level
// (0 free through 4 very expensive).
func PriceLevelFor(budgetMax *float64) *int {
	if budgetMax == nil {
		return nil
	}
	var level int
	switch b := *budgetMax; {
	case b <= 0:
		level = 0
	case b <= 15:
		level = 1
	case b <= 30:
		level = 2
	case b <= 60:
		level = 3
	default:
		level = 4
	}
	return &level
}

// PreferenceSource returns a user's saved preferences.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (storage.Preferences, error)
}

// PreferencesUsed echoes the search parameters derived from preferences.
type PreferencesUsed struct {
	Interests  []string `json:"interests"`
	BudgetMax  *float64 `json:"budget_max"`
	PlaceTypes []string `json:"place_types"`
	PriceLevel *int     `json:"price_level"`
}

// FetchResult is the response of the preference-driven activity lookup.
type FetchResult struct {
	Activities      []Place          `json:"activities"`
	SearchMode      string           `json:"search_mode,omitempty"`
	QueryLocations  []PointSummary   `json:"query_locations,omitempty"`
	LocationA       string           `json:"location_a"`
	LocationB       *string          `json:"location_b"`
	PreferencesUsed *PreferencesUsed `json:"preferences_used,omitempty"`
	TotalCount      int              `json:"total_count"`
	Error           string           `json:"error,omitempty"`
}

// Fetcher runs place searches using a user's saved interests and budget.
type Fetcher struct {
	searcher *Searcher
	prefs    PreferenceSource
}

func NewFetcher(searcher *Searcher, prefs PreferenceSource) *Fetcher {
	return &Fetcher{searcher: searcher, prefs: prefs}
}

// Fetch searches around locationA, or between locationA and locationB, with
// place types and price level derived from userID's preferences.
func (f *Fetcher) Fetch(ctx context.Context, locationA, locationB, userID string) (FetchResult, error) {
	prefs, err := f.prefs.Get(ctx, userID)
	if err != nil {
		return FetchResult{}, fmt.Errorf("loading preferences for %s: %w", userID, err)
	}

	interests := prefs.Interests
	if interests == nil {
		interests = []string{}
	}
	used := &PreferencesUsed{
		Interests:  interests,
		BudgetMax:  prefs.BudgetMax,
		PlaceTypes: PlaceTypesFor(interests),
		PriceLevel: PriceLevelFor(prefs.BudgetMax),
	}

	minRating, radius := DefaultMinRating, DefaultRadius
	res := f.searcher.Search(ctx, Query{
		Location1:     locationA,
		Location2:     locationB,
		PlaceTypes:    used.PlaceTypes,
		PriceLevel:    used.PriceLevel,
		MinRating:     &minRating,
		Radius:        &radius,
		UserInterests: interests,
	})

	out := FetchResult{
		Activities: []Place{},
		LocationA:  locationA,
		LocationB:  res.Location2,
	}
	if res.Error != nil {
		out.Error = *res.Error
		return out, nil
	}

	out.Activities = res.Activities
	out.SearchMode = res.SearchMode
	out.QueryLocations = res.SearchPoints
	out.PreferencesUsed = used
	out.TotalCount = len(res.Activities)
	return out, nil
}
