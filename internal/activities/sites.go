package activities

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	maxCardsPerSite = 30
	minNameRunes    = 5
)

// Site is one listings page and the parser that turns it into activities.
type Site struct {
	Name  string
	URL   string
	Parse func(doc *html.Node, pageURL string) []Activity
}

// DefaultSites returns the NYC listing sites in scrape order.
func DefaultSites() []Site {
	return []Site{
		{Name: "theskint", URL: "https://www.theskint.com/", Parse: parseSkint},
		{Name: "timeout", URL: "https://www.timeout.com/newyork/things-to-do", Parse: parseTimeout},
		{Name: "eventbrite", URL: "https://www.eventbrite.com/d/ny--new-york/events/", Parse: parseEventbrite},
	}
}

var (
	skintContainerRe = regexp.MustCompile(`(?i)entry|post|event`)
	skintDateRe      = regexp.MustCompile(`(?i)(today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{1,2}/\d{1,2}|\w+ \d{1,2})`)
	priceRe          = regexp.MustCompile(`(?i)\$\d+|\bfree\b`)

	timeoutCardRe     = regexp.MustCompile(`(?i)card|listing|tile`)
	timeoutSummaryRe  = regexp.MustCompile(`(?i)summary|description|excerpt`)
	timeoutLocationRe = regexp.MustCompile(`(?i)location|venue|neighborhood`)
	timeoutPriceRe    = regexp.MustCompile(`(?i)price|cost`)
	timeoutDateRe     = regexp.MustCompile(`(?i)date|time|when`)

	eventbriteCardRe     = regexp.MustCompile(`(?i)event-card|search-event`)
	eventbriteLinkRe     = regexp.MustCompile(`(?i)eventbrite\.com/e/`)
	eventbriteLocationRe = regexp.MustCompile(`(?i)location|venue`)
	eventbriteDateRe     = regexp.MustCompile(`(?i)date|time`)
	eventbritePriceRe    = regexp.MustCompile(`(?i)price|ticket`)
	eventbriteDateTextRe = regexp.MustCompile(`(\w{3,9}\s+\d{1,2}(?:,?\s+\d{4})?)|(\d{1,2}/\d{1,2})`)
	eventbritePriceText  = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d{2})?|\bfree\b`)
)

func firstCards(cards []*html.Node) []*html.Node {
	if len(cards) > maxCardsPerSite {
		return cards[:maxCardsPerSite]
	}
	return cards
}

func tooShort(name string) bool {
	return utf8.RuneCountInString(name) < minNameRunes
}

func hrefOr(link *html.Node, fallback string) string {
	if link == nil {
		return fallback
	}
	href, _ := attr(link, "href")
	return href
}

// parseSkint reads The Skint's daily free and cheap listings.
func parseSkint(doc *html.Node, pageURL string) []Activity {
	containers := findAll(doc, tagWithClass("div", skintContainerRe))
	if len(containers) == 0 {
		containers = findAll(doc, tagIs("article"))
	}
	if len(containers) == 0 {
		containers = findAll(doc, tagIs("li"))
	}

	var out []Activity
	for _, c := range firstCards(containers) {
		title := find(c, tagIs("h2", "h3", "h4", "a"))
		if title == nil {
			continue
		}
		name := textOf(title)
		if tooShort(name) {
			continue
		}

		eventURL := absolute(hrefOr(find(c, linkWithHref), pageURL), "https://www.theskint.com")
		description := textOf(find(c, tagIs("p")))

		full := textOf(c)
		price := priceRe.FindString(full)
		if price == "" {
			price = "Free/Cheap"
		}

		out = append(out, newActivity(name, defaultLocation, description, price, skintDateRe.FindString(full), eventURL, "theskint"))
	}
	return out
}

// parseTimeout reads Time Out New York's things-to-do cards.
func parseTimeout(doc *html.Node, pageURL string) []Activity {
	cards := findAll(doc, tagIs("article"))
	if len(cards) == 0 {
		cards = findAll(doc, tagWithClass("div", timeoutCardRe))
	}

	var out []Activity
	for _, card := range firstCards(cards) {
		title := find(card, tagIs("h2", "h3", "h4"))
		if title == nil {
			title = find(card, tagIs("a"))
		}
		if title == nil {
			continue
		}
		name := textOf(title)
		if tooShort(name) {
			continue
		}

		eventURL := absolute(hrefOr(find(card, linkWithHref), pageURL), "https://www.timeout.com")

		desc := find(card, tagIs("p"))
		if desc == nil {
			desc = find(card, tagWithClass("div", timeoutSummaryRe))
		}

		location := defaultLocation
		if el := find(card, anyWithClass(timeoutLocationRe)); el != nil {
			location = textOf(el)
		}

		var price string
		if el := find(card, anyWithClass(timeoutPriceRe)); el != nil {
			price = textOf(el)
		} else {
			price = priceRe.FindString(textOf(card))
		}

		date := textOf(find(card, anyWithClass(timeoutDateRe)))

		out = append(out, newActivity(name, location, textOf(desc), price, date, eventURL, "timeout"))
	}
	return out
}

// parseEventbrite reads Eventbrite's NYC search results. Cards repeat
// across result sections, so links are de-duplicated.
func parseEventbrite(doc *html.Node, _ string) []Activity {
	cards := findAll(doc, tagWithClass("div", eventbriteCardRe))
	if len(cards) == 0 {
		cards = findAll(doc, tagIs("article"))
	}
	if len(cards) == 0 {
		cards = findAll(doc, func(n *html.Node) bool {
			href, ok := attr(n, "href")
			return isElement(n, "a") && ok && eventbriteLinkRe.MatchString(href)
		})
	}

	seen := make(map[string]bool)
	var out []Activity
	for _, card := range firstCards(cards) {
		var link, container *html.Node
		var name string
		if isElement(card, "a") {
			link = card
			name = textOf(card)
			container = card.Parent
		} else {
			link = find(card, linkWithHref)
			name = textOf(find(card, tagIs("h2", "h3", "h4")))
			container = card
		}

		href := hrefOr(link, "")
		if href == "" {
			continue
		}
		eventURL := absolute(href, "https://www.eventbrite.com")
		if seen[eventURL] {
			continue
		}
		seen[eventURL] = true

		if name == "" {
			name = textOf(link)
		}
		if tooShort(name) {
			continue
		}

		description := textOf(find(container, tagIs("p")))

		location := "New York, NY"
		if el := find(container, anyWithClass(eventbriteLocationRe)); el != nil {
			location = textOf(el)
		}

		full := textOf(container)
		var date string
		if el := find(container, anyWithClass(eventbriteDateRe)); el != nil {
			date = textOf(el)
		} else {
			date = eventbriteDateTextRe.FindString(full)
		}

		var price string
		if el := find(container, anyWithClass(eventbritePriceRe)); el != nil {
			price = textOf(el)
		} else {
			price = eventbritePriceText.FindString(full)
		}

		out = append(out, newActivity(name, location, description, price, date, eventURL, "eventbrite"))
	}
	return out
}
