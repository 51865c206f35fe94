package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Tool is a named function the model may call.
type Tool interface {
	Spec() Spec
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Spec describes a tool to the model.
type Spec struct {
	Name        string
	Description string
	Parameters  *Schema

	// UserScoped tools receive the request's user id as the "user_id"
	// argument when the model leaves it out.
	UserScoped bool
}

// OpenAI converts s to the function-calling wire shape.
func (s Spec) OpenAI() openai.Tool {
	params := s.Parameters
	if params == nil {
		params = &Schema{Type: "object", Properties: map[string]*Schema{}}
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		},
	}
}

// Func adapts a plain function to the Tool interface.
func Func(spec Spec, fn func(ctx context.Context, args json.RawMessage) (any, error)) Tool {
	return funcTool{spec: spec, fn: fn}
}

type funcTool struct {
	spec Spec
	fn   func(ctx context.Context, args json.RawMessage) (any, error)
}

func (t funcTool) Spec() Spec { return t.spec }

func (t funcTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	return t.fn(ctx, args)
}

var (
	// ErrToolNotFound is returned when the model names a tool that is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidArguments is returned when arguments are not JSON or fail the schema.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrFrozen is returned by Register after Freeze.
	ErrFrozen = errors.New("registry is frozen")
)

// ExecutionError wraps a failure raised by a tool's integration.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Registry maps tool names to implementations, preserving registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]Tool
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register appends a tool. Empty or duplicate names are rejected.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return errors.New("tool is nil")
	}
	name := tool.Spec().Name
	if name == "" {
		return errors.New("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registering %s: %w", name, ErrFrozen)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Specs returns the tool specs in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// OpenAITools returns Specs converted to the function-calling wire shape.
func (r *Registry) OpenAITools() []openai.Tool {
	specs := r.Specs()
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.OpenAI())
	}
	return out
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Invoke validates args against the tool's schema and calls it. The result
// is returned JSON-encoded.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	spec := tool.Spec()

	args, err := decodeArgs(rawArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	if spec.UserScoped {
		if _, has := args["user_id"]; !has {
			if uid := UserID(ctx); uid != "" {
				args["user_id"] = uid
			}
		}
	}
	if err := Validate(args, spec.Parameters); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}

	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}

	result, err := tool.Call(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			return nil, err
		}
		return nil, &ExecutionError{Tool: name, Err: err}
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, &ExecutionError{Tool: name, Err: fmt.Errorf("encoding result: %w", err)}
	}
	return out, nil
}

// Bind decodes validated arguments into dst. Tools call it from Call.
func Bind(args json.RawMessage, dst any) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// decodeArgs parses the model's argument string. An empty string is an
// empty object.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
