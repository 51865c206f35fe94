package activities

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Filters narrow a cache search. Zero values mean "no filter".
type Filters struct {
	Category string   `json:"category,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// SearchRequest is the input of Service.Search.
type SearchRequest struct {
	Query     string  `json:"query"`
	LocationA string  `json:"location_a,omitempty"`
	LocationB string  `json:"location_b,omitempty"`
	Filters   Filters `json:"filters,omitempty"`
}

// Stats describes the cached snapshot.
type Stats struct {
	LastUpdated     *time.Time     `json:"last_updated"`
	TotalActivities int            `json:"total_activities"`
	BySource        map[string]int `json:"by_source"`
}

// RefreshResult reports one scrape run.
type RefreshResult struct {
	Success         bool           `json:"success"`
	TotalActivities int            `json:"total_activities"`
	BySource        map[string]int `json:"by_source"`
	DurationSeconds float64        `json:"duration_seconds"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Source yields fresh activities. Implemented by Scraper.
type Source interface {
	ScrapeAll(ctx context.Context) []Activity
}

// Service searches the activity cache and refreshes it from a Source.
type Service struct {
	cache  Cache
	source Source
	now    func() time.Time
	logger *slog.Logger
}

func NewService(cache Cache, source Source) *Service {
	return &Service{cache: cache, source: source, now: time.Now, logger: slog.Default()}
}

// Search filters cached activities. It never returns an empty list: when
// nothing matches, a single notice row explains why.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Activity, error) {
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return nil, err
	}

	results := Filter(snap.Activities, req.Query, req.Filters)
	results = nearLocations(results, req.LocationA, req.LocationB)

	if len(results) > 0 {
		return results, nil
	}
	if len(snap.Activities) == 0 {
		return []Activity{notice(
			"No activities cached yet",
			"The activity cache is empty. A background scraper will populate it shortly, or you can trigger a manual scrape via POST /api/scrape.",
		)}, nil
	}
	return []Activity{notice(
		fmt.Sprintf("No activities found matching '%s'", req.Query),
		fmt.Sprintf("Try a different search term. There are %d activities in the cache.", len(snap.Activities)),
	)}, nil
}

var priceNumberRe = regexp.MustCompile(`\d+`)

// Filter applies the query and filters to acts. The query matches name,
// description or category; free or unpriced listings always pass max_price.
func Filter(acts []Activity, query string, f Filters) []Activity {
	query = strings.ToLower(query)
	category := strings.ToLower(f.Category)
	source := strings.ToLower(f.Source)

	out := []Activity{}
	for _, a := range acts {
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Name), query) &&
			!strings.Contains(strings.ToLower(a.Description), query) &&
			!strings.Contains(strings.ToLower(a.Category), query) {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(a.Category), category) {
			continue
		}
		if f.MaxPrice != nil && !withinPrice(a.Price, *f.MaxPrice) {
			continue
		}
		if source != "" && !strings.Contains(strings.ToLower(a.Source), source) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func withinPrice(price string, max float64) bool {
	if price == "" || strings.EqualFold(price, "free") {
		return true
	}
	m := priceNumberRe.FindString(price)
	if m == "" {
		return false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return false
	}
	return float64(n) <= max
}

// nearLocations keeps activities mentioning any location term or NYC in
// general. If that leaves nothing, acts is returned unchanged.
func nearLocations(acts []Activity, locationA, locationB string) []Activity {
	terms := append(strings.Fields(strings.ToLower(locationA)), strings.Fields(strings.ToLower(locationB))...)
	if len(terms) == 0 {
		return acts
	}

	var matched []Activity
	for _, a := range acts {
		combined := strings.ToLower(a.Location + " " + a.Name + " " + a.Description)
		if strings.Contains(combined, "nyc") || strings.Contains(combined, "new york") || containsAny(combined, terms) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return acts
	}
	return matched
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Stats summarizes the cached snapshot.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		LastUpdated:     snap.LastUpdated,
		TotalActivities: len(snap.Activities),
		BySource:        countBySource(snap.Activities),
	}, nil
}

// Refresh scrapes every site and replaces the cached snapshot. The result
// is returned even when saving fails, with Success false.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	start := s.now()
	s.logger.Info("starting scrape", "at", start.UTC())

	acts := s.source.ScrapeAll(ctx)
	end := s.now()
	saveErr := s.cache.Save(ctx, acts, end)

	res := RefreshResult{
		Success:         saveErr == nil,
		TotalActivities: len(acts),
		BySource:        countBySource(acts),
		DurationSeconds: math.Round(end.Sub(start).Seconds()*100) / 100,
		Timestamp:       end.UTC(),
	}
	s.logger.Info("scrape finished", "success", res.Success, "activities", res.TotalActivities, "duration_seconds", res.DurationSeconds)
	return res, saveErr
}

func countBySource(acts []Activity) map[string]int {
	counts := make(map[string]int)
	for _, a := range acts {
		src := a.Source
		if src == "" {
			src = "unknown"
		}
		counts[src]++
	}
	return counts
}
