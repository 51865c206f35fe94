package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/outing/internal/activities"
	"github.com/kalambet/outing/internal/agent"
	"github.com/kalambet/outing/internal/places"
	"github.com/kalambet/outing/internal/preferences"
	"github.com/kalambet/outing/internal/proxy"
	"github.com/kalambet/outing/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ChatRunner runs one turn loop. Implemented by *agent.Loop.
type ChatRunner interface {
	Run(ctx context.Context, conversation []openai.ChatCompletionMessage) agent.Result
}

// ModelLister lists upstream models. Implemented by *proxy.Client.
type ModelLister interface {
	ListModels(ctx context.Context) ([]proxy.Model, error)
}

// PreferenceService is implemented by *preferences.Manager.
type PreferenceService interface {
	Get(ctx context.Context, userID string) (storage.Preferences, error)
	Update(ctx context.Context, userID string, patch preferences.Patch) (storage.Preferences, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// HistoryService is implemented by *history.Service.
type HistoryService interface {
	List(ctx context.Context) ([]storage.ChatHistorySummary, error)
	Get(ctx context.Context, id string) (storage.ChatHistory, error)
	Save(ctx context.Context, id string, messages []storage.Message) (storage.ChatHistory, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// ActivityFetcher runs a preference-driven place search. Implemented by
// *places.Fetcher.
type ActivityFetcher interface {
	Fetch(ctx context.Context, locationA, locationB, userID string) (places.FetchResult, error)
}

// CacheStats reports the scraped activity cache. Implemented by
// *activities.Service.
type CacheStats interface {
	Stats(ctx context.Context) (activities.Stats, error)
}

// Deps holds the services behind the HTTP API.
type Deps struct {
	Agent       ChatRunner
	Models      ModelLister
	Preferences PreferenceService
	History     HistoryService
	Fetcher     ActivityFetcher
	Activities  CacheStats

	// Jobs receives scrape refresh jobs. Nil disables POST /api/scrape.
	Jobs activities.JobStore

	// Disabled tool names, reported back when the model asks for one.
	Disabled map[string]bool

	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewHandler returns the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)
	r.Get("/v1/models", handleModels(deps.Models))

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", handleChat(deps))

		r.Get("/users", handleListUsers(deps.Preferences))
		r.Get("/preferences/{user_id}", handleGetPreferences(deps.Preferences))
		r.Put("/preferences/{user_id}", handleUpdatePreferences(deps.Preferences))

		r.Get("/activities", handleActivities(deps))

		r.Get("/chat-history", handleListHistories(deps.History))
		r.Post("/chat-history", handleSaveHistory(deps.History))
		r.Delete("/chat-history", handleClearHistories(deps.History))
		r.Get("/chat-history/{id}", handleGetHistory(deps.History))
		r.Delete("/chat-history/{id}", handleDeleteHistory(deps.History))

		r.Post("/scrape", handleScrape(deps))
		r.Get("/scrape/status", handleScrapeStatus(deps.Activities))
	})

	return r
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Activities Agent API", "status": "running"})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleModels(models ModelLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if models == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "model listing not configured")
			return
		}
		list, err := models.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		if list == nil {
			list = []proxy.Model{}
		}
		writeJSON(w, http.StatusOK, proxy.ModelList{Data: list})
	}
}

// decodeBody reads a size-limited JSON body into dst, writing a 400 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": apiError{Message: fmt.Sprintf(format, args...), Type: errType},
	})
}
