// Package agent runs the model/tool turn loop for a single chat request.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// State is a turn loop state.
type State string

const (
	AwaitingModel  State = "AWAITING_MODEL"
	ExecutingTools State = "EXECUTING_TOOLS"
	Done           State = "DONE"
	Failed         State = "FAILED"
)

// DefaultMaxTurns bounds model visits when the caller passes zero.
const DefaultMaxTurns = 5

// ErrTurnLimitExceeded is reported when the model keeps requesting tools
// past the visit bound.
var ErrTurnLimitExceeded = errors.New("turn limit exceeded")

// UpstreamError wraps a failed or timed out model call.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "upstream model error: " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// ChatClient sends one chat completion request. *proxy.Client implements it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolInvoker lists and invokes tools. *tools.Registry implements it.
type ToolInvoker interface {
	OpenAITools() []openai.Tool
	Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (json.RawMessage, error)
}

// ToolResult records one executed tool call.
type ToolResult struct {
	Tool   string          `json:"tool"`
	Result json.RawMessage `json:"result"`
}

// Result is the outcome of one Run. Response is the final reply text on
// Done, and the last non-empty assistant text when the turn limit is hit.
type Result struct {
	State        State
	Conversation []openai.ChatCompletionMessage
	Response     string
	ToolResults  []ToolResult
	Visits       int
	Err          error
}

// Loop drives the model until it answers without tool calls.
type Loop struct {
	client   ChatClient
	tools    ToolInvoker
	model    string
	maxTurns int
	prompt   string
	hint     func(ctx context.Context) string
	logger   *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(p string) Option {
	return func(l *Loop) { l.prompt = p }
}

// WithHint appends request-specific context (e.g. saved preferences) to
// the system prompt. An empty hint is ignored.
func WithHint(fn func(ctx context.Context) string) Option {
	return func(l *Loop) { l.hint = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New creates a Loop. maxTurns <= 0 means DefaultMaxTurns.
func New(client ChatClient, tools ToolInvoker, model string, maxTurns int, opts ...Option) *Loop {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	l := &Loop{
		client:   client,
		tools:    tools,
		model:    model,
		maxTurns: maxTurns,
		prompt:   SystemPrompt,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxTurns returns the model visit bound.
func (l *Loop) MaxTurns() int { return l.maxTurns }

// Run appends model and tool turns to conversation until the model replies
// with text only, the visit bound is reached, or the model call fails. The
// input slice is never modified; Result.Conversation holds the extended copy.
func (l *Loop) Run(ctx context.Context, conversation []openai.ChatCompletionMessage) Result {
	res := Result{
		State:        AwaitingModel,
		Conversation: append([]openai.ChatCompletionMessage(nil), conversation...),
	}
	specs := l.tools.OpenAITools()
	var partial string

	for res.Visits < l.maxTurns {
		res.Visits++

		req := openai.ChatCompletionRequest{
			Model:    l.model,
			Messages: l.withSystem(ctx, res.Conversation),
		}
		if len(specs) > 0 {
			req.Tools = specs
			req.ToolChoice = "auto"
		}

		start := time.Now()
		resp, err := l.client.CreateChatCompletion(ctx, req)
		if err != nil {
			l.logger.Warn("model call failed", "visit", res.Visits, "error", err)
			res.State = Failed
			res.Err = &UpstreamError{Err: err}
			return res
		}
		if len(resp.Choices) == 0 {
			res.State = Failed
			res.Err = &UpstreamError{Err: errors.New("response has no choices")}
			return res
		}

		msg := resp.Choices[0].Message
		assistant := openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		}
		res.Conversation = append(res.Conversation, assistant)
		if msg.Content != "" {
			partial = msg.Content
		}

		l.logger.Debug("model replied",
			"visit", res.Visits,
			"tool_calls", len(msg.ToolCalls),
			"duration", time.Since(start),
		)

		if len(msg.ToolCalls) == 0 {
			res.State = Done
			res.Response = msg.Content
			return res
		}

		res.State = ExecutingTools
		for _, call := range msg.ToolCalls {
			out := l.execute(ctx, call)
			res.ToolResults = append(res.ToolResults, ToolResult{Tool: call.Function.Name, Result: out})
			res.Conversation = append(res.Conversation, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(out),
				ToolCallID: call.ID,
			})
		}
		res.State = AwaitingModel
	}

	res.State = Failed
	res.Response = partial
	res.Err = fmt.Errorf("%w after %d model calls", ErrTurnLimitExceeded, res.Visits)
	return res
}

// execute runs one tool call. Any failure becomes an {"error": ...} result
// so the model can react to it.
func (l *Loop) execute(ctx context.Context, call openai.ToolCall) json.RawMessage {
	name := call.Function.Name
	start := time.Now()

	out, err := l.tools.Invoke(ctx, name, json.RawMessage(call.Function.Arguments))
	if err != nil {
		l.logger.Warn("tool call failed", "tool", name, "error", err)
		return errorResult(err)
	}

	l.logger.Info("tool call", "tool", name, "duration", time.Since(start))
	return out
}

func errorResult(err error) json.RawMessage {
	b, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return json.RawMessage(`{"error":"tool failed"}`)
	}
	return b
}

func (l *Loop) withSystem(ctx context.Context, conv []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	prompt := l.prompt
	if l.hint != nil {
		if h := l.hint(ctx); h != "" {
			prompt += "\n\n" + h
		}
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(conv)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt})
	return append(msgs, conv...)
}
