package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/kalambet/outing/internal/weather"
)

// Search modes reported in Result.SearchMode.
const (
	ModeMock           = "mock"
	ModeError          = "error"
	ModeSingleLocation = "single_location"
	ModeTransitStops   = "transit_stops"
	ModeMidpoint       = "midpoint"
)

// DefaultPlaceTypes is used when a request names no place types.
var DefaultPlaceTypes = []string{"cafe", "restaurant", "park", "tourist_attraction"}

const (
	DefaultMinRating = 4.0
	DefaultRadius    = 0.5

	errNoAPIKey = "GOOGLE_MAPS_API_KEY not set (integrations.google_maps_api_key)"
)

var detailFields = []maps.PlaceDetailsFieldMask{
	"name", "formatted_address", "rating", "price_level",
	"opening_hours", "reviews", "geometry", "url", "types",
}

// Maps is the part of the Google Maps client used here. *maps.Client
// satisfies it.
type Maps interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	PlaceDetails(ctx context.Context, r *maps.PlaceDetailsRequest) (maps.PlaceDetailsResult, error)
}

// Forecaster looks up current weather for a location string.
type Forecaster interface {
	Current(ctx context.Context, location, date string) (*weather.Report, error)
}

// NewMapsClient builds a Google Maps client. An empty key yields a nil
// client, which Search reports as a configuration error.
func NewMapsClient(apiKey string) (Maps, error) {
	if apiKey == "" {
		return nil, nil
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}
	return c, nil
}

// Place is a date activity found through Google Maps.
type Place struct {
	Name         string          `json:"name"`
	Location     string          `json:"location"`
	Description  string          `json:"description"`
	Price        string          `json:"price,omitempty"`
	OpeningHours string          `json:"opening_hours,omitempty"`
	URL          string          `json:"url,omitempty"`
	Category     string          `json:"category"`
	PlaceID      string          `json:"gmaps_place_id"`
	Rating       float64         `json:"gmaps_rating,omitempty"`
	PriceLevel   *int            `json:"gmaps_price_level,omitempty"`
	NearStop     string          `json:"near_stop"`
	Coordinates  *LatLng         `json:"coordinates,omitempty"`
	Weather      *weather.Report `json:"weather_info,omitempty"`
}

// Query is a search_places_for_dates request.
type Query struct {
	Location1     string   `json:"location1"`
	Location2     string   `json:"location2,omitempty"`
	PlaceTypes    []string `json:"place_types,omitempty"`
	PriceLevel    *int     `json:"price_level,omitempty"`
	MinRating     *float64 `json:"min_rating,omitempty"`
	Radius        *float64 `json:"radius,omitempty"`
	CheckWeather  bool     `json:"check_weather,omitempty"`
	UserInterests []string `json:"user_interests,omitempty"`
}

// Result is the outcome of a search. Error is set instead of returning a Go
// error so the model sees which strategy was tried.
type Result struct {
	Activities   []Place        `json:"activities"`
	Count        int            `json:"count"`
	Location1    string         `json:"location1"`
	Location2    *string        `json:"location2"`
	SearchMode   string         `json:"search_mode"`
	SearchPoints []PointSummary `json:"search_points"`
	Error        *string        `json:"error"`
}

// TransitResult lists the stops on the first transit route between two places.
type TransitResult struct {
	Stops     []Stop  `json:"stops"`
	LocationA string  `json:"location_a"`
	LocationB string  `json:"location_b"`
	StopCount int     `json:"stop_count"`
	Error     *string `json:"error"`
}

// Searcher finds date spots near one location or between two.
type Searcher struct {
	maps    Maps
	weather Forecaster
	enabled bool
	pick    func(n int) int
}

// NewSearcher creates a Searcher. When enabled is false every search
// returns canned data and m may be nil. forecaster may be nil.
func NewSearcher(m Maps, forecaster Forecaster, enabled bool) *Searcher {
	return &Searcher{maps: m, weather: forecaster, enabled: enabled, pick: rand.IntN}
}

// TransitStops returns the transit stops, in travel order, on the first
// transit route from a to b.
func (s *Searcher) TransitStops(ctx context.Context, a, b string) TransitResult {
	res := TransitResult{LocationA: a, LocationB: b, Stops: []Stop{}}

	if !s.enabled {
		res.Stops = sample(s.pick, mockTransitStops, 3, 6)
		res.StopCount = len(res.Stops)
		slog.Debug("maps disabled, returning mock transit stops", "count", res.StopCount)
		return res
	}
	if s.maps == nil {
		res.Error = ptr(errNoAPIKey)
		return res
	}

	routes, _, err := s.maps.Directions(ctx, &maps.DirectionsRequest{
		Origin:      a,
		Destination: b,
		Mode:        maps.TravelModeTransit,
	})
	if err != nil {
		res.Error = ptr("Error getting transit stops: " + err.Error())
		return res
	}
	if len(routes) == 0 {
		res.Error = ptr(fmt.Sprintf("No transit route found between %s and %s", a, b))
		return res
	}

	seen := map[string]bool{}
	add := func(stop maps.TransitStop, line maps.TransitLine) {
		if stop.Name == "" || seen[stop.Name] {
			return
		}
		seen[stop.Name] = true
		kind := line.Vehicle.Type
		if kind == "" {
			kind = "TRANSIT"
		}
		name := line.ShortName
		if name == "" {
			name = line.Name
		}
		res.Stops = append(res.Stops, Stop{
			Name:     stop.Name,
			Lat:      stop.Location.Lat,
			Lng:      stop.Location.Lng,
			Type:     kind,
			LineName: name,
		})
	}

	for _, leg := range routes[0].Legs {
		if leg == nil {
			continue
		}
		for _, step := range leg.Steps {
			if step == nil || step.TravelMode != "TRANSIT" || step.TransitDetails == nil {
				continue
			}
			td := step.TransitDetails
			add(td.DepartureStop, td.Line)
			add(td.ArrivalStop, td.Line)
		}
	}
	res.StopCount = len(res.Stops)
	return res
}

// Search picks a strategy and collects rated places around each search
// point. Two locations are searched along transit stops when a transit
// route with at least two stops exists, otherwise around their midpoint
// with a wider radius.
func (s *Searcher) Search(ctx context.Context, q Query) Result {
	placeTypes := q.PlaceTypes
	if len(placeTypes) == 0 {
		placeTypes = DefaultPlaceTypes
	}
	minRating := DefaultMinRating
	if q.MinRating != nil {
		minRating = *q.MinRating
	}
	radius := DefaultRadius
	if q.Radius != nil && *q.Radius > 0 {
		radius = *q.Radius
	}

	if !s.enabled {
		acts := sample(s.pick, mockPlaces, 3, 6)
		for i := range acts {
			acts[i].NearStop = q.Location1
		}
		slog.Debug("maps disabled, returning mock places", "count", len(acts))
		return newResult(q, ModeMock, acts, []SearchPoint{{Name: q.Location1, Type: "mock"}}, "")
	}
	if s.maps == nil {
		return newResult(q, ModeError, nil, nil, errNoAPIKey)
	}

	mode := ModeSingleLocation
	var points []SearchPoint

	switch {
	case q.Location2 != "":
		transit := s.TransitStops(ctx, q.Location1, q.Location2)
		if len(transit.Stops) >= 2 {
			mode = ModeTransitStops
			points = ClusterStops(transit.Stops, clusterThresholdMiles)
			slog.Debug("clustered transit stops", "stops", len(transit.Stops), "points", len(points))
			radius *= 1.5
			break
		}

		mode = ModeMidpoint
		a, errA := s.geocode(ctx, q.Location1)
		b, errB := s.geocode(ctx, q.Location2)
		if errA != nil || errB != nil {
			slog.Warn("geocoding failed", "location1", q.Location1, "location2", q.Location2, "error", errors.Join(errA, errB))
			return newResult(q, ModeError, nil, nil,
				fmt.Sprintf("Could not geocode locations. Location1: %s, Location2: %s", q.Location1, q.Location2))
		}
		mid := Midpoint(a.LatLng, b.LatLng)
		points = []SearchPoint{{Name: "Midpoint", Lat: mid.Lat, Lng: mid.Lng, Type: "midpoint"}}
		radius = math.Max(radius*4, 2.0)

	default:
		origin, err := s.geocode(ctx, q.Location1)
		if err != nil {
			slog.Warn("geocoding failed", "location", q.Location1, "error", err)
			return newResult(q, ModeError, nil, nil, "Could not geocode location: "+q.Location1)
		}
		points = []SearchPoint{{Name: origin.Address, Lat: origin.Lat, Lng: origin.Lng, Type: "origin"}}
	}

	limit := 5
	if mode == ModeMidpoint {
		limit = 10
	}

	acts, err := s.collect(ctx, q, points, placeTypes, minRating, radius, limit)
	if err != nil {
		return newResult(q, ModeError, nil, nil, "Error searching places: "+err.Error())
	}

	sort.SliceStable(acts, func(i, j int) bool { return acts[i].Rating > acts[j].Rating })
	return newResult(q, mode, acts, points, "")
}

func (s *Searcher) collect(ctx context.Context, q Query, points []SearchPoint, placeTypes []string, minRating, radius float64, limit int) ([]Place, error) {
	meters := uint(radius * metersPerMile)
	seen := map[string]bool{}
	acts := []Place{}

	for _, point := range points {
		center := &maps.LatLng{Lat: point.Lat, Lng: point.Lng}

		for _, placeType := range placeTypes {
			resp, err := s.maps.NearbySearch(ctx, &maps.NearbySearchRequest{
				Location: center,
				Radius:   meters,
				Type:     maps.PlaceType(placeType),
			})
			if err != nil {
				return nil, fmt.Errorf("nearby search for %s: %w", placeType, err)
			}
			results := resp.Results
			if len(results) == 0 {
				text, err := s.maps.TextSearch(ctx, &maps.TextSearchRequest{
					Query:    placeType,
					Location: center,
					Radius:   meters,
				})
				if err != nil {
					return nil, fmt.Errorf("text search for %s: %w", placeType, err)
				}
				results = text.Results
			}
			if len(results) > limit {
				results = results[:limit]
			}

			for _, r := range results {
				if seen[r.PlaceID] {
					continue
				}
				seen[r.PlaceID] = true

				rating := float64(r.Rating)
				if rating > 0 && rating < minRating {
					continue
				}
				if q.PriceLevel != nil && r.PriceLevel > *q.PriceLevel {
					continue
				}

				place, err := s.details(ctx, r, placeType, point.Name, q.UserInterests)
				if err != nil {
					slog.Warn("place details failed", "place_id", r.PlaceID, "error", err)
					continue
				}
				if q.CheckWeather && s.weather != nil && place.Coordinates != nil {
					loc := strconv.FormatFloat(place.Coordinates.Lat, 'f', -1, 64) + "," +
						strconv.FormatFloat(place.Coordinates.Lng, 'f', -1, 64)
					if report, err := s.weather.Current(ctx, loc, ""); err == nil {
						place.Weather = report
					}
				}
				acts = append(acts, place)
			}
		}
	}
	return acts, nil
}

func (s *Searcher) details(ctx context.Context, r maps.PlacesSearchResult, placeType, nearStop string, interests []string) (Place, error) {
	d, err := s.maps.PlaceDetails(ctx, &maps.PlaceDetailsRequest{PlaceID: r.PlaceID, Fields: detailFields})
	if err != nil {
		return Place{}, err
	}

	p := Place{
		Name:        firstNonEmpty(d.Name, r.Name, "Unknown"),
		Location:    firstNonEmpty(d.FormattedAddress, r.Vicinity, "Unknown"),
		Description: AnalyzeReviews(d.Reviews, interests).Summary,
		URL:         d.URL,
		Category:    categoryName(placeType),
		PlaceID:     r.PlaceID,
		Rating:      float64(r.Rating),
		NearStop:    nearStop,
	}
	if r.PriceLevel > 0 {
		p.PriceLevel = ptr(r.PriceLevel)
		p.Price = strings.Repeat("$", r.PriceLevel)
	}
	if d.OpeningHours != nil && len(d.OpeningHours.WeekdayText) > 0 {
		p.OpeningHours = strings.Join(d.OpeningHours.WeekdayText, "; ")
	}
	if loc := d.Geometry.Location; loc.Lat != 0 || loc.Lng != 0 {
		p.Coordinates = &LatLng{Lat: loc.Lat, Lng: loc.Lng}
	}
	return p, nil
}

type geocoded struct {
	LatLng
	Address string
}

func (s *Searcher) geocode(ctx context.Context, location string) (geocoded, error) {
	results, err := s.maps.Geocode(ctx, &maps.GeocodingRequest{Address: location})
	if err != nil {
		return geocoded{}, fmt.Errorf("geocoding %q: %w", location, err)
	}
	if len(results) == 0 {
		return geocoded{}, fmt.Errorf("geocoding %q: no results", location)
	}
	g := results[0]
	return geocoded{
		LatLng:  LatLng{Lat: g.Geometry.Location.Lat, Lng: g.Geometry.Location.Lng},
		Address: firstNonEmpty(g.FormattedAddress, location),
	}, nil
}

func newResult(q Query, mode string, acts []Place, points []SearchPoint, errMsg string) Result {
	if acts == nil {
		acts = []Place{}
	}
	res := Result{
		Activities:   acts,
		Count:        len(acts),
		Location1:    q.Location1,
		SearchMode:   mode,
		SearchPoints: make([]PointSummary, 0, len(points)),
	}
	if q.Location2 != "" {
		res.Location2 = ptr(q.Location2)
	}
	for _, p := range points {
		res.SearchPoints = append(res.SearchPoints, p.Summary())
	}
	if errMsg != "" {
		res.Error = ptr(errMsg)
	}
	return res
}

// categoryName turns a place type like "tourist_attraction" into
// "Tourist Attraction".
func categoryName(placeType string) string {
	words := strings.Fields(strings.ReplaceAll(placeType, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
