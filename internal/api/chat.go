package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/outing/internal/agent"
	"github.com/kalambet/outing/internal/history"
	"github.com/kalambet/outing/internal/storage"
	"github.com/kalambet/outing/internal/tools"
	"github.com/kalambet/outing/internal/toolset"
)

const (
	defaultUserID      = "default"
	emptyResponse      = "I couldn't generate a response."
	chatFailedResponse = "Sorry, I encountered an error. Please try again."
)

type chatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Response            string             `json:"response"`
	ToolResults         []agent.ToolResult `json:"tool_results"`
	ConversationID      string             `json:"conversation_id,omitempty"`
	SkippedToolsMessage string             `json:"skipped_tools_message,omitempty"`
	Error               *apiError          `json:"error,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if req.UserID == "" {
			req.UserID = defaultUserID
		}

		// Without a conversation id the run is stateless and nothing is
		// saved; clients that keep their own history post it separately.
		var conv []openai.ChatCompletionMessage
		persist := req.ConversationID != ""
		if persist {
			var err error
			conv, err = loadConversation(r.Context(), deps.History, req.ConversationID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
		}
		conv = append(conv, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Message,
		})

		ctx := tools.WithUserID(r.Context(), req.UserID)
		res := deps.Agent.Run(ctx, conv)

		// The turns are kept whether or not the loop succeeded.
		if persist {
			persistConversation(ctx, deps, req.ConversationID, res.Conversation)
		}

		resp := chatResponse{
			Response:            res.Response,
			ToolResults:         res.ToolResults,
			ConversationID:      req.ConversationID,
			SkippedToolsMessage: skippedToolsMessage(res.ToolResults, deps.Disabled),
		}
		if resp.ToolResults == nil {
			resp.ToolResults = []agent.ToolResult{}
		}

		code := http.StatusOK
		var upstream *agent.UpstreamError
		switch {
		case res.Err == nil:
			if resp.Response == "" {
				resp.Response = emptyResponse
			}
		case errors.As(res.Err, &upstream):
			deps.Logger.Error("chat failed", "user_id", req.UserID, "conversation_id", req.ConversationID, "error", res.Err)
			code = http.StatusBadGateway
			resp.Response = chatFailedResponse
			resp.Error = &apiError{Message: res.Err.Error(), Type: "upstream_error"}
		default:
			deps.Logger.Warn("chat did not finish", "user_id", req.UserID, "visits", res.Visits, "error", res.Err)
			code = http.StatusInternalServerError
			errType := "api_error"
			if errors.Is(res.Err, agent.ErrTurnLimitExceeded) {
				errType = "turn_limit_exceeded"
			} else {
				resp.Response = ""
			}
			if resp.Response == "" {
				resp.Response = chatFailedResponse
			}
			resp.Error = &apiError{Message: res.Err.Error(), Type: errType}
		}

		writeJSON(w, code, resp)
	}
}

// loadConversation returns the saved turns of id, or none when id has no
// history yet.
func loadConversation(ctx context.Context, svc HistoryService, id string) ([]openai.ChatCompletionMessage, error) {
	h, err := svc.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return history.ToOpenAI(h.Messages)
}

func persistConversation(ctx context.Context, deps Deps, id string, conv []openai.ChatCompletionMessage) {
	msgs, err := history.FromOpenAI(conv)
	if err != nil {
		deps.Logger.Error("encoding conversation", "conversation_id", id, "error", err)
		return
	}
	if _, err := deps.History.Save(ctx, id, msgs); err != nil {
		deps.Logger.Error("saving conversation", "conversation_id", id, "error", err)
	}
}

// skippedToolsMessage names the disabled tools the model tried to call.
func skippedToolsMessage(results []agent.ToolResult, disabled map[string]bool) string {
	var names []string
	seen := make(map[string]bool)
	for _, tr := range results {
		if !disabled[tr.Tool] {
			continue
		}
		name, ok := toolset.DisplayNames[tr.Tool]
		if !ok {
			name = tr.Tool
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Some tools are currently unavailable: " + strings.Join(names, ", ")
}
