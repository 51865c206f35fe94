package places

// Canned San Francisco data returned when the Maps integration is disabled,
// so the app can be demoed without API spend.

var mockTransitStops = []Stop{
	{Name: "16th St Mission", Lat: 37.7650, Lng: -122.4197, Type: "SUBWAY", LineName: "BART"},
	{Name: "24th St Mission", Lat: 37.7522, Lng: -122.4181, Type: "SUBWAY", LineName: "BART"},
	{Name: "Powell St", Lat: 37.7844, Lng: -122.4080, Type: "SUBWAY", LineName: "BART"},
	{Name: "Montgomery St", Lat: 37.7894, Lng: -122.4013, Type: "SUBWAY", LineName: "BART"},
	{Name: "Embarcadero", Lat: 37.7929, Lng: -122.3968, Type: "SUBWAY", LineName: "BART"},
	{Name: "Church & Market", Lat: 37.7679, Lng: -122.4291, Type: "LIGHT_RAIL", LineName: "Muni Metro"},
	{Name: "Castro St", Lat: 37.7625, Lng: -122.4351, Type: "LIGHT_RAIL", LineName: "Muni Metro"},
	{Name: "Van Ness", Lat: 37.7752, Lng: -122.4192, Type: "SUBWAY", LineName: "Muni Metro"},
	{Name: "Civic Center", Lat: 37.7796, Lng: -122.4139, Type: "SUBWAY", LineName: "BART"},
	{Name: "Glen Park", Lat: 37.7329, Lng: -122.4332, Type: "SUBWAY", LineName: "BART"},
}

func ptr[T any](v T) *T { return &v }

var mockPlaces = []Place{
	{
		Name:         "[Stub] Dolores Park",
		Location:     "Dolores St & 19th St, San Francisco, CA 94114",
		Description:  "Reviewers mention: local favorite, unique. Matches interests: outdoor",
		OpeningHours: "Open 24 hours",
		URL:          "https://maps.google.com/?cid=mock1",
		Category:     "Park",
		PlaceID:      "ChIJmock_dolores_park",
		Rating:       4.7,
		PriceLevel:   ptr(0),
		Coordinates:  &LatLng{Lat: 37.7598, Lng: -122.4269},
	},
	{
		Name:         "[Stub] Sightglass Coffee",
		Location:     "270 7th St, San Francisco, CA 94103",
		Description:  "Reviewers mention: unique, authentic. Matches interests: coffee",
		Price:        "$$",
		OpeningHours: "Mon-Fri: 7AM-6PM; Sat-Sun: 8AM-6PM",
		URL:          "https://maps.google.com/?cid=mock2",
		Category:     "Cafe",
		PlaceID:      "ChIJmock_sightglass",
		Rating:       4.5,
		PriceLevel:   ptr(2),
		Coordinates:  &LatLng{Lat: 37.7771, Lng: -122.4074},
	},
	{
		Name:         "[Stub] Tartine Bakery",
		Location:     "600 Guerrero St, San Francisco, CA 94110",
		Description:  "Reviewers mention: local favorite, authentic. Matches interests: food, coffee",
		Price:        "$$",
		OpeningHours: "Mon-Sun: 7:30AM-7PM",
		URL:          "https://maps.google.com/?cid=mock5",
		Category:     "Cafe",
		PlaceID:      "ChIJmock_tartine",
		Rating:       4.5,
		PriceLevel:   ptr(2),
		Coordinates:  &LatLng{Lat: 37.7614, Lng: -122.4241},
	},
	{
		Name:         "[Stub] Lands End Trail",
		Location:     "Lands End Trail, San Francisco, CA 94121",
		Description:  "Reviewers mention: hidden gem, scenic. Matches interests: outdoor",
		OpeningHours: "Sunrise to Sunset",
		URL:          "https://maps.google.com/?cid=mock6",
		Category:     "Park",
		PlaceID:      "ChIJmock_lands_end",
		Rating:       4.8,
		PriceLevel:   ptr(0),
		Coordinates:  &LatLng{Lat: 37.7875, Lng: -122.5048},
	},
	{
		Name:         "[Stub] Stern Grove",
		Location:     "19th Ave & Sloat Blvd, San Francisco, CA 94132",
		Description:  "Reviewers mention: local favorite, unique. Matches interests: outdoor, music",
		OpeningHours: "Open 6AM-10PM daily",
		URL:          "https://maps.google.com/?cid=mock8",
		Category:     "Park",
		PlaceID:      "ChIJmock_stern_grove",
		Rating:       4.7,
		PriceLevel:   ptr(0),
		Coordinates:  &LatLng{Lat: 37.7327, Lng: -122.4710},
	},
	{
		Name:         "[Stub] California Academy of Sciences",
		Location:     "55 Music Concourse Dr, San Francisco, CA 94118",
		Description:  "Reviewers mention: one-of-a-kind, special, unique. Matches interests: art, outdoor",
		Price:        "$$$",
		OpeningHours: "Mon-Sat: 9:30AM-5PM; Sun: 11AM-5PM",
		URL:          "https://maps.google.com/?cid=mock12",
		Category:     "Tourist Attraction",
		PlaceID:      "ChIJmock_cal_academy",
		Rating:       4.6,
		PriceLevel:   ptr(3),
		Coordinates:  &LatLng{Lat: 37.7699, Lng: -122.4661},
	},
}

// sample returns between lo and hi distinct items from pool in random order.
func sample[T any](pick func(n int) int, pool []T, lo, hi int) []T {
	n := lo + pick(hi-lo+1)
	if n > len(pool) {
		n = len(pool)
	}
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		j := i + pick(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, pool[idx[i]])
	}
	return out
}
