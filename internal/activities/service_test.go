package activities

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/outing/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type staticSource struct {
	acts  []Activity
	calls int
}

func (s *staticSource) ScrapeAll(context.Context) []Activity {
	s.calls++
	return s.acts
}

type failingCache struct {
	Cache
	err error
}

func (f failingCache) Save(context.Context, []Activity, time.Time) error { return f.err }

func floatPtr(f float64) *float64 { return &f }

var fixture = []Activity{
	{Name: "Comedy Cellar late show", Location: "Greenwich Village", Description: "Standup lineup", Price: "$20", Source: "timeout", Category: "Comedy"},
	{Name: "Prospect Park picnic", Location: "Brooklyn", Description: "Bring snacks", Price: "Free", Source: "theskint", Category: "Outdoor"},
	{Name: "Jazz brunch", Location: "Harlem", Description: "Live trio", Price: "", Source: "eventbrite", Category: "Music"},
	{Name: "Rooftop DJ set", Location: "Queens", Description: "Sunset party", Price: "Free/Cheap", Source: "theskint", Category: "Music"},
	{Name: "Gallery opening", Location: "NYC", Description: "New works", Price: "$45", Source: "timeout", Category: "Arts"},
}

func names(acts []Activity) string {
	var out []string
	for _, a := range acts {
		out = append(out, a.Name)
	}
	return strings.Join(out, "|")
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		f     Filters
		want  string
	}{
		{"query on name", "jazz", Filters{}, "Jazz brunch"},
		{"query on category", "music", Filters{}, "Jazz brunch|Rooftop DJ set"},
		{"query on description", "snacks", Filters{}, "Prospect Park picnic"},
		{"category substring", "", Filters{Category: "mus"}, "Jazz brunch|Rooftop DJ set"},
		{"source", "", Filters{Source: "TIMEOUT"}, "Comedy Cellar late show|Gallery opening"},
		// Free and unpriced always pass; "Free/Cheap" has no number and is dropped.
		{"max price", "", Filters{MaxPrice: floatPtr(25)}, "Comedy Cellar late show|Prospect Park picnic|Jazz brunch"},
		{"max price zero", "", Filters{MaxPrice: floatPtr(0)}, "Prospect Park picnic|Jazz brunch"},
		{"combined", "music", Filters{Source: "theskint"}, "Rooftop DJ set"},
		{"no match", "opera", Filters{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := names(Filter(fixture, tt.query, tt.f)); got != tt.want {
				t.Errorf("Filter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNearLocations(t *testing.T) {
	got := nearLocations(fixture, "Brooklyn", "Harlem")
	// Gallery opening is kept as a general NYC listing.
	if names(got) != "Prospect Park picnic|Jazz brunch|Gallery opening" {
		t.Errorf("nearLocations = %q", names(got))
	}

	// No location term matches anything and no NYC rows: list is unchanged.
	others := fixture[:2]
	if got := nearLocations(others, "Hoboken", ""); len(got) != 2 {
		t.Errorf("fallback returned %d rows, want 2", len(got))
	}

	if got := nearLocations(fixture, "", ""); len(got) != len(fixture) {
		t.Errorf("no locations filtered rows: %d", len(got))
	}
}

func TestSearch_EmptyCacheNotice(t *testing.T) {
	svc := NewService(NewSQLiteCache(openTestStore(t)), &staticSource{})

	got, err := svc.Search(context.Background(), SearchRequest{Query: "jazz"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "No activities cached yet" || got[0].Source != "system" || got[0].Category != "Notice" {
		t.Errorf("notice = %+v", got)
	}
	if !strings.Contains(got[0].Description, "POST /api/scrape") {
		t.Errorf("notice description = %q", got[0].Description)
	}
}

func TestSearch_NoMatchNotice(t *testing.T) {
	src := &staticSource{acts: fixture}
	svc := NewService(NewSQLiteCache(openTestStore(t)), src)
	ctx := context.Background()

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got, err := svc.Search(ctx, SearchRequest{Query: "opera"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "No activities found matching 'opera'" {
		t.Fatalf("notice = %+v", got)
	}
	if got[0].Description != "Try a different search term. There are 5 activities in the cache." {
		t.Errorf("description = %q", got[0].Description)
	}
}

func TestSearch_Matches(t *testing.T) {
	svc := NewService(NewSQLiteCache(openTestStore(t)), &staticSource{acts: fixture})
	ctx := context.Background()
	svc.Refresh(ctx)

	got, err := svc.Search(ctx, SearchRequest{Query: "music", LocationA: "Harlem"})
	if err != nil {
		t.Fatal(err)
	}
	if names(got) != "Jazz brunch" {
		t.Errorf("Search = %q", names(got))
	}
}

func TestRefreshAndStats(t *testing.T) {
	src := &staticSource{acts: fixture}
	svc := NewService(NewSQLiteCache(openTestStore(t)), src)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastUpdated != nil || stats.TotalActivities != 0 {
		t.Errorf("empty stats = %+v", stats)
	}

	res, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !res.Success || res.TotalActivities != 5 {
		t.Errorf("result = %+v", res)
	}
	if res.BySource["theskint"] != 2 || res.BySource["timeout"] != 2 || res.BySource["eventbrite"] != 1 {
		t.Errorf("by_source = %v", res.BySource)
	}

	stats, err = svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastUpdated == nil || stats.TotalActivities != 5 || stats.BySource["theskint"] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRefresh_SaveFailure(t *testing.T) {
	boom := errors.New("disk full")
	cache := failingCache{Cache: NewSQLiteCache(openTestStore(t)), err: boom}
	svc := NewService(cache, &staticSource{acts: fixture})

	res, err := svc.Refresh(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if res.Success || res.TotalActivities != 5 {
		t.Errorf("result = %+v", res)
	}
}
