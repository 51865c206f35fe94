package places

import (
	"math"
	"strings"
	"testing"

	"googlemaps.github.io/maps"
)

func TestHaversine(t *testing.T) {
	// Union Square to Times Square is roughly 1.6 miles.
	d := Haversine(40.7359, -73.9911, 40.7580, -73.9855)
	if d < 1.4 || d > 1.7 {
		t.Errorf("distance = %.3f miles", d)
	}
	if Haversine(37.0, -122.0, 37.0, -122.0) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestMidpoint(t *testing.T) {
	m := Midpoint(LatLng{Lat: 40, Lng: -74}, LatLng{Lat: 41, Lng: -73})
	if m.Lat != 40.5 || m.Lng != -73.5 {
		t.Errorf("midpoint = %+v", m)
	}
}

func TestClusterStops(t *testing.T) {
	stops := []Stop{
		{Name: "Powell St", Lat: 37.7844, Lng: -122.4080, Type: "SUBWAY"},
		{Name: "Montgomery St", Lat: 37.7894, Lng: -122.4013, Type: "SUBWAY"},
		{Name: "Embarcadero", Lat: 37.7929, Lng: -122.3968, Type: "SUBWAY"},
		{Name: "Civic Center", Lat: 37.7796, Lng: -122.4139, Type: "SUBWAY"},
		{Name: "Downtown Berkeley", Lat: 37.8701, Lng: -122.2681, Type: "SUBWAY"},
	}

	points := ClusterStops(stops, clusterThresholdMiles)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2: %+v", len(points), points)
	}

	c := points[0]
	if c.Type != "clustered_stops" || c.StopCount != 4 {
		t.Errorf("cluster = %+v", c)
	}
	if c.Name != "Cluster: Powell St, Montgomery St, Embarcadero +1 more" {
		t.Errorf("cluster name = %q", c.Name)
	}
	wantLat := (37.7844 + 37.7894 + 37.7929 + 37.7796) / 4
	if math.Abs(c.Lat-wantLat) > 1e-9 {
		t.Errorf("centroid lat = %v, want %v", c.Lat, wantLat)
	}

	lone := points[1]
	if lone.Name != "Downtown Berkeley" || lone.Type != "SUBWAY" || lone.StopCount != 0 {
		t.Errorf("single stop point = %+v", lone)
	}
}

func TestClusterStops_ChainsThroughMembers(t *testing.T) {
	// C is more than 2 miles from A but within 2 miles of B.
	stops := []Stop{
		{Name: "A", Lat: 40.000, Lng: -74.0},
		{Name: "B", Lat: 40.025, Lng: -74.0},
		{Name: "C", Lat: 40.050, Lng: -74.0},
	}
	points := ClusterStops(stops, 2.0)
	if len(points) != 1 || !strings.HasSuffix(points[0].Name, "A, B, C") {
		t.Errorf("points = %+v", points)
	}
	if ClusterStops(nil, 2.0) != nil {
		t.Error("no stops should give no points")
	}
}

func TestAnalyzeReviews(t *testing.T) {
	reviews := []maps.PlaceReview{
		{Text: "A real hidden gem with a unique vibe."},
		{Text: "Authentic, special place. Great espresso!"},
	}

	got := AnalyzeReviews(reviews, []string{"coffee", "hiking", "Vibe"})
	if got.Summary != "Reviewers mention: hidden gem, unique, special. Matches interests: coffee, Vibe" {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.UniqueIndicators) != 4 {
		t.Errorf("indicators = %v", got.UniqueIndicators)
	}

	if got := AnalyzeReviews([]maps.PlaceReview{{Text: "fine"}}, nil); got.Summary != noReviewInsights {
		t.Errorf("summary = %q", got.Summary)
	}
	if got := AnalyzeReviews(nil, []string{"coffee"}); got.Summary != "" {
		t.Errorf("no reviews summary = %q, want empty", got.Summary)
	}
}

func TestPlaceTypesFor(t *testing.T) {
	got := strings.Join(PlaceTypesFor([]string{"Coffee", "beautiful views", "rock climbing"}), ",")
	if got != "cafe,park,rock_climbing,tourist_attraction" {
		t.Errorf("PlaceTypesFor = %s", got)
	}
	if got := PlaceTypesFor(nil); strings.Join(got, ",") != strings.Join(DefaultPlaceTypes, ",") {
		t.Errorf("defaults = %v", got)
	}
}

func TestPriceLevelFor(t *testing.T) {
	if PriceLevelFor(nil) != nil {
		t.Error("nil budget should give nil level")
	}
	tests := []struct {
		budget float64
		want   int
	}{
		{0, 0}, {-5, 0}, {15, 1}, {15.01, 2}, {30, 2}, {60, 3}, {200, 4},
	}
	for _, tt := range tests {
		b := tt.budget
		if got := PriceLevelFor(&b); got == nil || *got != tt.want {
			t.Errorf("PriceLevelFor(%v) = %v, want %d", tt.budget, got, tt.want)
		}
	}
}

func TestCategoryName(t *testing.T) {
	if got := categoryName("tourist_attraction"); got != "Tourist Attraction" {
		t.Errorf("categoryName = %q", got)
	}
	if got := categoryName("cafe"); got != "Cafe" {
		t.Errorf("categoryName = %q", got)
	}
}
