package history

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/outing/internal/storage"
)

// FromOpenAI converts conversation turns to their stored form.
func FromOpenAI(turns []openai.ChatCompletionMessage) ([]storage.Message, error) {
	out := make([]storage.Message, 0, len(turns))
	for i, t := range turns {
		m := storage.Message{Role: t.Role, Content: t.Content, ToolCallID: t.ToolCallID}
		if len(t.ToolCalls) > 0 {
			raw, err := json.Marshal(t.ToolCalls)
			if err != nil {
				return nil, fmt.Errorf("encoding tool calls of turn %d: %w", i, err)
			}
			m.ToolCalls = raw
		}
		out = append(out, m)
	}
	return out, nil
}

// ToOpenAI converts stored messages back to conversation turns.
func ToOpenAI(msgs []storage.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i, m := range msgs {
		t := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if len(m.ToolCalls) > 0 {
			if err := json.Unmarshal(m.ToolCalls, &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls of message %d: %w", i, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}
