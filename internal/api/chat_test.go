package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/outing/internal/agent"
	"github.com/kalambet/outing/internal/storage"
)

func TestChat_NewConversation(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/api/chat", `{"message":"Find me something fun in Brooklyn","user_id":"alice","conversation_id":"new-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body)
	}
	resp := decode[chatResponse](t, w)
	if resp.Response != "Hello!" || resp.ConversationID != "new-1" || resp.ToolResults == nil {
		t.Errorf("response = %+v", resp)
	}
	if ta.runner.userID != "alice" {
		t.Errorf("loop user = %q", ta.runner.userID)
	}
	if len(ta.runner.conv) != 1 || ta.runner.conv[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("conversation sent to loop = %+v", ta.runner.conv)
	}

	h, err := ta.history.Get(context.Background(), "new-1")
	if err != nil {
		t.Fatalf("history not saved: %v", err)
	}
	if len(h.Messages) != 2 || h.Messages[1].Content != "Hello!" || h.Title != "Find me something fun in Brooklyn" {
		t.Errorf("saved history = %+v", h)
	}
}

func TestChat_WithoutConversationIDSavesNothing(t *testing.T) {
	ta := newTestAPI(t)

	for i := 0; i < 2; i++ {
		w := ta.do(t, "POST", "/api/chat", `{"message":"Any jazz tonight?","user_id":"alice"}`)
		resp := decode[chatResponse](t, w)
		if w.Code != http.StatusOK || resp.Response != "Hello!" || resp.ConversationID != "" {
			t.Fatalf("response = %d %+v", w.Code, resp)
		}
	}

	list, err := ta.history.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("histories = %+v, want none", list)
	}
}

func TestChat_ContinuesConversation(t *testing.T) {
	ta := newTestAPI(t)

	prior := []storage.Message{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hey! Where are you?"},
	}
	if _, err := ta.history.Save(context.Background(), "c1", prior); err != nil {
		t.Fatal(err)
	}

	w := ta.do(t, "POST", "/api/chat", `{"message":"Queens","conversation_id":"c1"}`)
	resp := decode[chatResponse](t, w)
	if w.Code != http.StatusOK || resp.ConversationID != "c1" {
		t.Fatalf("response = %d %+v", w.Code, resp)
	}
	if len(ta.runner.conv) != 3 || ta.runner.conv[2].Content != "Queens" {
		t.Errorf("conversation sent to loop = %+v", ta.runner.conv)
	}
	if ta.runner.userID != defaultUserID {
		t.Errorf("user = %q, want default", ta.runner.userID)
	}

	h, _ := ta.history.Get(context.Background(), "c1")
	if len(h.Messages) != 4 || h.Title != "Hi" {
		t.Errorf("saved history = %+v", h)
	}
}

func TestChat_ToolTurnsRoundTrip(t *testing.T) {
	ta := newTestAPI(t)
	ta.runner.run = func(_ context.Context, conv []openai.ChatCompletionMessage) agent.Result {
		call := openai.ToolCall{
			ID:       "call_1",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: "get_weather_for_location", Arguments: `{"location":"Queens"}`},
		}
		result := json.RawMessage(`{"error":"tool not found: get_weather_for_location"}`)
		out := append(append([]openai.ChatCompletionMessage(nil), conv...),
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, ToolCalls: []openai.ToolCall{call}},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: string(result), ToolCallID: "call_1"},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "I can't check the weather right now."},
		)
		return agent.Result{
			State:        agent.Done,
			Conversation: out,
			Response:     "I can't check the weather right now.",
			ToolResults:  []agent.ToolResult{{Tool: "get_weather_for_location", Result: result}},
		}
	}

	w := ta.do(t, "POST", "/api/chat", `{"message":"Is it sunny?","conversation_id":"c2"}`)
	resp := decode[chatResponse](t, w)
	if len(resp.ToolResults) != 1 || resp.ToolResults[0].Tool != "get_weather_for_location" {
		t.Errorf("tool results = %+v", resp.ToolResults)
	}
	if resp.SkippedToolsMessage != "Some tools are currently unavailable: Weather" {
		t.Errorf("skipped = %q", resp.SkippedToolsMessage)
	}

	// The next request sees the tool turns exactly as they were run.
	ta.runner.run = reply("ok")
	ta.do(t, "POST", "/api/chat", `{"message":"thanks","conversation_id":"c2"}`)
	conv := ta.runner.conv
	if len(conv) != 5 {
		t.Fatalf("reloaded conversation has %d turns", len(conv))
	}
	if len(conv[1].ToolCalls) != 1 || conv[1].ToolCalls[0].ID != "call_1" || conv[1].ToolCalls[0].Function.Arguments != `{"location":"Queens"}` {
		t.Errorf("tool call turn = %+v", conv[1])
	}
	if conv[2].Role != openai.ChatMessageRoleTool || conv[2].ToolCallID != "call_1" {
		t.Errorf("tool turn = %+v", conv[2])
	}
}

func TestChat_EmptyResponse(t *testing.T) {
	ta := newTestAPI(t)
	ta.runner.run = reply("")

	w := ta.do(t, "POST", "/api/chat", `{"message":"hello"}`)
	if resp := decode[chatResponse](t, w); w.Code != http.StatusOK || resp.Response != emptyResponse {
		t.Errorf("response = %d %+v", w.Code, resp)
	}
}

func TestChat_UpstreamError(t *testing.T) {
	ta := newTestAPI(t)
	ta.runner.run = func(_ context.Context, conv []openai.ChatCompletionMessage) agent.Result {
		return agent.Result{
			State:        agent.Failed,
			Conversation: conv,
			Err:          &agent.UpstreamError{Err: errors.New("503 from provider")},
		}
	}

	w := ta.do(t, "POST", "/api/chat", `{"message":"hello","conversation_id":"c3"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	resp := decode[chatResponse](t, w)
	if resp.Response != chatFailedResponse || resp.Error == nil || resp.Error.Type != "upstream_error" {
		t.Errorf("response = %+v", resp)
	}

	h, err := ta.history.Get(context.Background(), "c3")
	if err != nil || len(h.Messages) != 1 {
		t.Errorf("failed turn not persisted: %+v %v", h, err)
	}
}

func TestChat_TurnLimit(t *testing.T) {
	tests := []struct {
		name    string
		partial string
		want    string
	}{
		{"with partial text", "Still looking...", "Still looking..."},
		{"without text", "", chatFailedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t)
			ta.runner.run = func(_ context.Context, conv []openai.ChatCompletionMessage) agent.Result {
				return agent.Result{
					State:        agent.Failed,
					Conversation: conv,
					Response:     tt.partial,
					Visits:       5,
					Err:          fmt.Errorf("%w after 5 model calls", agent.ErrTurnLimitExceeded),
				}
			}

			w := ta.do(t, "POST", "/api/chat", `{"message":"plan my week"}`)
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			resp := decode[chatResponse](t, w)
			if resp.Response != tt.want || resp.Error == nil || resp.Error.Type != "turn_limit_exceeded" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestChat_BadRequest(t *testing.T) {
	ta := newTestAPI(t)

	for _, body := range []string{`{"message":"   "}`, `{}`, `not json`} {
		w := ta.do(t, "POST", "/api/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, w.Code)
		}
		if errorMessage(t, w) == "" {
			t.Errorf("%s: missing error envelope: %s", body, w.Body)
		}
	}
	if ta.runner.conv != nil {
		t.Error("loop ran for an invalid request")
	}
}
