package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/outing/internal/storage"
)

const historyNotFound = "Chat history not found"

type saveHistoryRequest struct {
	ID       string            `json:"id"`
	Messages []storage.Message `json:"messages"`
}

func handleListHistories(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		if list == nil {
			list = []storage.ChatHistorySummary{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetHistory(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", historyNotFound)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func handleSaveHistory(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveHistoryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		h, err := svc.Save(r.Context(), req.ID, req.Messages)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func handleDeleteHistory(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := svc.Delete(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", historyNotFound)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history deleted", "id": id})
	}
}

func handleClearHistories(svc HistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Clear(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "All chat histories cleared"})
	}
}
