package weather

const (
	recGreat = "Great weather for outdoor activities!"
	recRainy = "Rainy weather - consider indoor activities"
	recCold  = "Cold weather - dress warmly or choose indoor activities"
	recHot   = "Hot weather - stay hydrated or choose indoor activities"
	recOkay  = "Weather is okay for outdoor activities"
)

// Assess fills in the outdoor suitability fields. Reports without a
// condition or a non-zero temperature are left unassessed.
func Assess(r *Report) {
	if r.Condition == "" || r.Temperature == nil || *r.Temperature == 0 {
		return
	}
	temp := *r.Temperature

	suitable := true
	rec := recOkay
	switch {
	case (r.Condition == "clear" || r.Condition == "clouds") && temp >= 60 && temp <= 85:
		rec = recGreat
	case r.Condition == "rain" || r.Condition == "drizzle" || r.Condition == "thunderstorm":
		suitable, rec = false, recRainy
	case temp < 50:
		suitable, rec = false, recCold
	case temp > 90:
		suitable, rec = false, recHot
	}
	r.OutdoorSuitable = &suitable
	r.OutdoorRecommendation = rec
}
