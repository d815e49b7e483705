// Package tool declares the tools the model may call and dispatches
// invocations by name. Every dispatch produces non-empty text: failures are
// described to the model instead of aborting the round.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/swaggest/jsonschema-go"
	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

var (
	ErrExecutorAlreadyRegistered = errors.New("tool executor already registered")
	ErrExecutorNotRegistered     = errors.New("tool executor not registered")
	ErrValidationFailed          = errors.New("tool arguments validation failed")
)

// Spec describes a tool to register. Args is a zero value of the argument
// struct; its JSON schema is reflected from the struct tags.
type Spec struct {
	Name        string
	Description string
	Args        any
	// Search tools are only offered when web search is enabled for the turn.
	Search bool
}

// Definition is a registered tool.
type Definition struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Search      bool

	executor Executor
}

// Registry holds tool definitions in registration order.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	order  []string
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{defs: make(map[string]*Definition), logger: logging.OrNop(logger)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(spec Spec, executor Executor) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" || executor == nil {
		return ErrExecutorNotRegistered
	}

	schema, err := reflectSchema(spec.Args)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return ErrExecutorAlreadyRegistered
	}
	r.defs[name] = &Definition{
		Name:        name,
		Description: spec.Description,
		Schema:      schema,
		Search:      spec.Search,
		executor:    executor,
	}
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, ErrExecutorNotRegistered
	}
	return def.executor, nil
}

// IsSearch reports whether name is a registered search tool.
func (r *Registry) IsSearch(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return ok && def.Search
}

// List returns the registered definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.defs[name])
	}
	return out
}

// Definitions returns the tool schemas offered to the model. Search tools
// are included only when includeSearch is set.
func (r *Registry) Definitions(includeSearch bool) []openai.Tool {
	defs := r.List()
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		if d.Search && !includeSearch {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema,
			},
		})
	}
	return out
}

// Execute runs the named tool and returns its text.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	return r.run(ctx, name, argsJSON).Text
}

// ExecuteSearch runs the named tool and returns its text and citations.
func (r *Registry) ExecuteSearch(ctx context.Context, name, argsJSON string) Result {
	return r.run(ctx, name, argsJSON)
}

func (r *Registry) run(ctx context.Context, name, argsJSON string) Result {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", name))
		return Result{Text: fmt.Sprintf("Unknown tool: %s", name)}
	}

	args := json.RawMessage(strings.TrimSpace(argsJSON))
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArgs(args, def.Schema); err != nil {
		return Result{Text: fmt.Sprintf("Tool %s failed: %v", name, err)}
	}

	res, err := def.executor.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution failed", zap.String("tool", name), zap.Error(err))
		return Result{Text: fmt.Sprintf("Tool %s failed: %v", name, err)}
	}
	if strings.TrimSpace(res.Text) == "" {
		res.Text = fmt.Sprintf("Tool %s returned no result.", name)
	}
	return res
}

// reflectSchema builds a closed object schema from the argument struct.
func reflectSchema(args any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`), nil
	}

	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(args, jsonschema.InlineRefs)
	if err != nil {
		return nil, fmt.Errorf("reflect schema: %w", err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}
	m["type"] = "object"
	m["additionalProperties"] = false
	return json.Marshal(m)
}

func validateArgs(args, schemaRaw json.RawMessage) error {
	var input map[string]any
	if err := json.Unmarshal(args, &input); err != nil || input == nil {
		return fmt.Errorf("%w: arguments must be a JSON object", ErrValidationFailed)
	}

	var schema map[string]any
	if err := json.Unmarshal(schemaRaw, &schema); err != nil {
		return fmt.Errorf("%w: invalid schema", ErrValidationFailed)
	}

	for _, key := range stringSlice(schema["required"]) {
		if _, ok := input[key]; !ok {
			return fmt.Errorf("%w: missing required field %q", ErrValidationFailed, key)
		}
	}

	if allow, ok := schema["additionalProperties"].(bool); ok && !allow {
		props, _ := schema["properties"].(map[string]any)
		for key := range input {
			if _, known := props[key]; !known {
				return fmt.Errorf("%w: unknown field %q", ErrValidationFailed, key)
			}
		}
	}
	return nil
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
