package activities

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustParse(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return doc
}

const skintPage = `<html><body>
<div class="post entry">
  <h3>Free Jazz in Bryant Park</h3>
  <a href="/jazz-night">details</a>
  <p>Outdoor concert series, bring a blanket.</p>
  <span>tonight, free</span>
</div>
<div class="post">
  <h3>Tiny</h3>
</div>
<div class="post">
  <h2>Gallery crawl in Chelsea</h2>
  <a href="https://example.com/crawl">link</a>
  <p>Openings all evening. $5 suggested.</p>
  <span>12/14</span>
</div>
<div class="sidebar"><h3>Ignore this sidebar</h3></div>
<script>var free = "not text";</script>
</body></html>`

func TestParseSkint(t *testing.T) {
	acts := parseSkint(mustParse(t, skintPage), "https://www.theskint.com/")
	if len(acts) != 2 {
		t.Fatalf("got %d activities, want 2: %+v", len(acts), acts)
	}

	a := acts[0]
	if a.Name != "Free Jazz in Bryant Park" {
		t.Errorf("Name = %q", a.Name)
	}
	if a.URL != "https://www.theskint.com/jazz-night" {
		t.Errorf("URL = %q", a.URL)
	}
	if a.Description != "Outdoor concert series, bring a blanket." {
		t.Errorf("Description = %q", a.Description)
	}
	if !strings.EqualFold(a.Price, "free") {
		t.Errorf("Price = %q, want free", a.Price)
	}
	if a.Location != "NYC" || a.Source != "theskint" {
		t.Errorf("Location/Source = %q/%q", a.Location, a.Source)
	}
	if a.Category != "Music" {
		t.Errorf("Category = %q, want Music", a.Category)
	}

	b := acts[1]
	if b.URL != "https://example.com/crawl" {
		t.Errorf("absolute URL rewritten: %q", b.URL)
	}
	if b.Price != "$5" {
		t.Errorf("Price = %q, want $5", b.Price)
	}
	if b.Category != "Arts" {
		t.Errorf("Category = %q, want Arts", b.Category)
	}
}

func TestParseSkint_DefaultPriceAndFallbackContainers(t *testing.T) {
	page := `<html><body><ul>
<li><a href="/a">Poetry reading at the library</a></li>
</ul></body></html>`
	acts := parseSkint(mustParse(t, page), "https://www.theskint.com/")
	if len(acts) != 1 {
		t.Fatalf("got %d activities, want 1", len(acts))
	}
	if acts[0].Price != "Free/Cheap" {
		t.Errorf("Price = %q, want Free/Cheap", acts[0].Price)
	}
}

const timeoutPage = `<html><body>
<article>
  <h3>Rooftop cinema season opens</h3>
  <a href="/newyork/movies/rooftop">more</a>
  <div class="card-summary">Screenings under the stars.</div>
  <span class="venue-name">Williamsburg</span>
  <span class="price-tag">$20</span>
  <time class="date">Fri, Jun 6</time>
</article>
<article>
  <a href="/newyork/things/walk">Walking tour of the Bronx</a>
  <p>History and food stops.</p>
  <span>Tickets free</span>
</article>
</body></html>`

func TestParseTimeout(t *testing.T) {
	acts := parseTimeout(mustParse(t, timeoutPage), "https://www.timeout.com/newyork/things-to-do")
	if len(acts) != 2 {
		t.Fatalf("got %d activities, want 2: %+v", len(acts), acts)
	}

	a := acts[0]
	if a.Name != "Rooftop cinema season opens" || a.URL != "https://www.timeout.com/newyork/movies/rooftop" {
		t.Errorf("name/url = %q / %q", a.Name, a.URL)
	}
	if a.Location != "Williamsburg" || a.Price != "$20" || a.Date != "Fri, Jun 6" {
		t.Errorf("location/price/date = %q / %q / %q", a.Location, a.Price, a.Date)
	}
	if a.Description != "Screenings under the stars." {
		t.Errorf("Description = %q", a.Description)
	}

	b := acts[1]
	if b.Name != "Walking tour of the Bronx" {
		t.Errorf("Name = %q", b.Name)
	}
	if b.Location != "NYC" {
		t.Errorf("Location = %q, want NYC", b.Location)
	}
	if !strings.EqualFold(b.Price, "free") {
		t.Errorf("Price = %q, want free", b.Price)
	}
}

const eventbritePage = `<html><body>
<div class="event-card">
  <a href="https://www.eventbrite.com/e/salsa-night-123"><h3>Salsa Night Social</h3></a>
  <p class="event-card__location">Bushwick</p>
  <p>Beginner lesson then open dancing.</p>
  <span>Sat, Dec 20 9:00 PM</span>
  <span>From $15.00</span>
</div>
<div class="event-card">
  <a href="https://www.eventbrite.com/e/salsa-night-123"><h3>Salsa Night Social</h3></a>
</div>
<div class="event-card">
  <a href="/e/startup-mixer-9"><h3>Founders networking mixer</h3></a>
  <span class="ticket-price">Free</span>
</div>
</body></html>`

func TestParseEventbrite(t *testing.T) {
	acts := parseEventbrite(mustParse(t, eventbritePage), "")
	if len(acts) != 2 {
		t.Fatalf("got %d activities, want 2 (duplicate dropped): %+v", len(acts), acts)
	}

	a := acts[0]
	if a.Location != "Bushwick" {
		t.Errorf("Location = %q", a.Location)
	}
	if a.Price != "$15.00" {
		t.Errorf("Price = %q, want $15.00", a.Price)
	}
	if a.Date != "Dec 20" {
		t.Errorf("Date = %q, want Dec 20", a.Date)
	}

	b := acts[1]
	if b.URL != "https://www.eventbrite.com/e/startup-mixer-9" {
		t.Errorf("URL = %q", b.URL)
	}
	if b.Location != "New York, NY" {
		t.Errorf("Location = %q, want default", b.Location)
	}
	if b.Price != "Free" {
		t.Errorf("Price = %q, want Free", b.Price)
	}
	if b.Category != "Networking" {
		t.Errorf("Category = %q, want Networking", b.Category)
	}
}

func TestParseEventbrite_LinkFallback(t *testing.T) {
	page := `<html><body><section>
<a href="https://www.eventbrite.com/e/ceramics-workshop-5">Ceramics workshop for beginners</a>
<span>Jan 4, 2026</span>
</section></body></html>`
	acts := parseEventbrite(mustParse(t, page), "")
	if len(acts) != 1 {
		t.Fatalf("got %d activities, want 1", len(acts))
	}
	if acts[0].Name != "Ceramics workshop for beginners" {
		t.Errorf("Name = %q", acts[0].Name)
	}
	if acts[0].Date != "Jan 4, 2026" {
		t.Errorf("Date = %q", acts[0].Date)
	}
	if acts[0].Category != "Workshop" {
		t.Errorf("Category = %q", acts[0].Category)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Live jazz at Smalls", "Music"},
		{"Improv showcase", "Comedy"},
		// "art" also matches "party"; Arts is checked before Nightlife.
		{"Warehouse party", "Arts"},
		{"Wine tasting", "Food & Drink"},
		{"Sunrise yoga", "Fitness"},
		{"Documentary premiere", "Film"},
		{"Street fair on Court St", "Festival"},
		{"Quiet evening", "Other"},
	}
	for _, tt := range tests {
		if got := Categorize(tt.text); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestNewActivityTruncates(t *testing.T) {
	a := newActivity(strings.Repeat("n", 250), "", strings.Repeat("d", 600), "", strings.Repeat("x", 120), "", "test")
	if len(a.Name) != maxNameRunes || len(a.Description) != maxDescriptionRunes || len(a.Date) != maxDateRunes {
		t.Errorf("lengths = %d/%d/%d", len(a.Name), len(a.Description), len(a.Date))
	}
	if a.Location != "NYC" {
		t.Errorf("Location = %q, want NYC", a.Location)
	}
}
