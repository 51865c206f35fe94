package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/outing/internal/preferences"
)

func handleListUsers(prefs PreferenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := prefs.ListUserIDs(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing users: %v", err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"users": ids})
	}
}

func handleGetPreferences(prefs PreferenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := prefs.Get(r.Context(), chi.URLParam(r, "user_id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdatePreferences(prefs PreferenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch preferences.Patch
		if !decodeBody(w, r, &patch) {
			return
		}
		userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		p, err := prefs.Update(r.Context(), userID, patch)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
