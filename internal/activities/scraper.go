package activities

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout = 15 * time.Second
	maxPageBytes   = 5 << 20
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Scraper fetches and parses listing sites.
type Scraper struct {
	client *http.Client
	sites  []Site
	logger *slog.Logger
}

// NewScraper creates a Scraper over sites. With no sites it uses DefaultSites.
func NewScraper(client *http.Client, sites ...Site) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if len(sites) == 0 {
		sites = DefaultSites()
	}
	return &Scraper{client: client, sites: sites, logger: slog.Default()}
}

// ScrapeAll scrapes every site concurrently and merges the results in site
// order, dropping repeated URLs. A failing site contributes nothing.
func (s *Scraper) ScrapeAll(ctx context.Context) []Activity {
	results := make([][]Activity, len(s.sites))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	for i, site := range s.sites {
		g.Go(func() error {
			acts, err := s.ScrapeSite(gCtx, site)
			if err != nil {
				s.logger.Warn("scrape failed", "site", site.Name, "error", err)
				return nil
			}
			s.logger.Info("scraped site", "site", site.Name, "activities", len(acts))
			results[i] = acts
			return nil
		})
	}
	g.Wait()

	seen := make(map[string]bool)
	var out []Activity
	for _, acts := range results {
		for _, a := range acts {
			if a.URL != "" {
				if seen[a.URL] {
					continue
				}
				seen[a.URL] = true
			}
			out = append(out, a)
		}
	}
	return out
}

// ScrapeSite fetches one site and parses its listings.
func (s *Scraper) ScrapeSite(ctx context.Context, site Site) ([]Activity, error) {
	doc, err := s.fetch(ctx, site.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", site.Name, err)
	}
	return site.Parse(doc, site.URL), nil
}

func (s *Scraper) fetch(ctx context.Context, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}
