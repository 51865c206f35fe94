package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/outing/internal/activities"
)

func handleActivities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID := q.Get("user_id")
		if userID == "" {
			userID = defaultUserID
		}

		locationA := strings.TrimSpace(q.Get("location_a"))
		if locationA == "" {
			prefs, err := deps.Preferences.Get(r.Context(), userID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
			if prefs.Location != nil {
				locationA = strings.TrimSpace(*prefs.Location)
			}
		}
		if locationA == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"location_a is required (or set a default location in user preferences)")
			return
		}

		res, err := deps.Fetcher.Fetch(r.Context(), locationA, strings.TrimSpace(q.Get("location_b")), userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type scrapeResponse struct {
	Message string `json:"message"`
	Queued  bool   `json:"queued"`
}

// handleScrape queues an immediate cache refresh. The worker runs it.
func handleScrape(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Jobs == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "scraper is disabled")
			return
		}
		if err := activities.EnqueueNow(deps.Jobs, 0, "manual"); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		deps.Logger.Info("scrape refresh queued", "reason", "manual")
		writeJSON(w, http.StatusAccepted, scrapeResponse{Message: "Scrape queued", Queued: true})
	}
}

func handleScrapeStatus(stats CacheStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stats == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "activity cache not configured")
			return
		}
		s, err := stats.Stats(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
