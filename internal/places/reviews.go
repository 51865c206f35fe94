package places

import (
	"strings"

	"googlemaps.github.io/maps"
)

var uniqueKeywords = []string{
	"hidden gem",
	"unique",
	"one-of-a-kind",
	"special",
	"unusual",
	"different",
	"authentic",
	"local favorite",
}

var interestKeywords = map[string][]string{
	"outdoor":  {"outdoor", "park", "hiking", "nature", "trail", "scenic"},
	"art":      {"art", "gallery", "museum", "exhibition", "creative"},
	"music":    {"music", "live", "performance", "concert", "jazz", "acoustic"},
	"food":     {"food", "cuisine", "restaurant", "dining", "menu", "delicious"},
	"coffee":   {"coffee", "cafe", "espresso", "latte", "brew"},
	"romantic": {"romantic", "intimate", "cozy", "date", "couple"},
}

const noReviewInsights = "No specific insights from reviews"

// ReviewAnalysis is what the reviews of a place say about it.
type ReviewAnalysis struct {
	Summary          string
	UniqueIndicators []string
	InterestMatches  []string
}

// AnalyzeReviews looks for uniqueness keywords in review text and matches
// the user's interests either literally or through related keywords.
func AnalyzeReviews(reviews []maps.PlaceReview, interests []string) ReviewAnalysis {
	if len(reviews) == 0 {
		return ReviewAnalysis{}
	}

	texts := make([]string, 0, len(reviews))
	for _, r := range reviews {
		texts = append(texts, r.Text)
	}
	all := strings.ToLower(strings.Join(texts, " "))

	var res ReviewAnalysis
	for _, kw := range uniqueKeywords {
		if strings.Contains(all, kw) {
			res.UniqueIndicators = append(res.UniqueIndicators, kw)
		}
	}

	seen := map[string]bool{}
	for _, interest := range interests {
		if seen[interest] {
			continue
		}
		lower := strings.ToLower(interest)
		if strings.Contains(all, lower) || containsAnyKeyword(all, interestKeywords[lower]) {
			seen[interest] = true
			res.InterestMatches = append(res.InterestMatches, interest)
		}
	}

	var parts []string
	if len(res.UniqueIndicators) > 0 {
		top := res.UniqueIndicators
		if len(top) > 3 {
			top = top[:3]
		}
		parts = append(parts, "Reviewers mention: "+strings.Join(top, ", "))
	}
	if len(res.InterestMatches) > 0 {
		parts = append(parts, "Matches interests: "+strings.Join(res.InterestMatches, ", "))
	}

	res.Summary = noReviewInsights
	if len(parts) > 0 {
		res.Summary = strings.Join(parts, ". ")
	}
	return res
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
