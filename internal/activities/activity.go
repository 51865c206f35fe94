package activities

import (
	"strings"
)

// Activity is one scraped event listing.
type Activity struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Date        string `json:"date"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Category    string `json:"category"`
}

const (
	maxNameRunes        = 200
	maxLocationRunes    = 100
	maxDescriptionRunes = 500
	maxDateRunes        = 100
	defaultLocation     = "NYC"
)

type categoryRule struct {
	name     string
	keywords []string
}

// Checked in order; the first category with a matching keyword wins.
var categoryRules = []categoryRule{
	{"Music", []string{"concert", "music", "band", "dj", "jazz", "rock", "hip hop", "classical", "orchestra", "live music"}},
	{"Comedy", []string{"comedy", "standup", "stand-up", "comedian", "improv", "laugh"}},
	{"Arts", []string{"art", "gallery", "museum", "exhibition", "painting", "sculpture", "photography"}},
	{"Theater", []string{"theater", "theatre", "play", "musical", "broadway", "off-broadway", "drama"}},
	{"Food & Drink", []string{"food", "drink", "tasting", "wine", "beer", "cocktail", "restaurant", "dining", "brunch", "dinner"}},
	{"Fitness", []string{"yoga", "fitness", "workout", "run", "running", "cycling", "gym", "exercise", "dance class"}},
	{"Outdoor", []string{"outdoor", "park", "hiking", "nature", "garden", "rooftop", "picnic", "walking tour"}},
	{"Nightlife", []string{"party", "club", "nightclub", "nightlife", "dancing", "bar crawl"}},
	{"Workshop", []string{"workshop", "class", "learn", "course", "tutorial", "seminar"}},
	{"Networking", []string{"networking", "meetup", "social", "mixer", "professional"}},
	{"Film", []string{"film", "movie", "cinema", "screening", "documentary"}},
	{"Sports", []string{"sports", "game", "match", "basketball", "baseball", "football", "soccer"}},
	{"Family", []string{"family", "kids", "children", "kid-friendly"}},
	{"Festival", []string{"festival", "fair", "market", "street fair"}},
}

// Categorize assigns a category by substring keyword match, or "Other".
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.name
			}
		}
	}
	return "Other"
}

// newActivity builds a normalized activity with its category filled in.
func newActivity(name, location, description, price, date, url, source string) Activity {
	if location == "" {
		location = defaultLocation
	}
	return Activity{
		Name:        truncate(name, maxNameRunes),
		Location:    truncate(location, maxLocationRunes),
		Description: truncate(description, maxDescriptionRunes),
		Price:       price,
		Date:        truncate(date, maxDateRunes),
		URL:         url,
		Source:      source,
		Category:    Categorize(name + " " + description),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// notice is a placeholder row returned in place of search results.
func notice(name, description string) Activity {
	return Activity{
		Name:        name,
		Location:    defaultLocation,
		Description: description,
		Source:      "system",
		Category:    "Notice",
	}
}
