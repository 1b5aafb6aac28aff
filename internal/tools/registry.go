package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tool is one registered capability.
type Tool interface {
	Name() string
	Description() string
	Schema() ParamSchema
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Registry is the closed set of capabilities available to the model. All
// tools are registered at startup; dispatch by unregistered name is a
// failed result, never a panic.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	log   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool. Registering the same name twice is a startup
// mistake and returned as an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool: duplicate name %q", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers tools and panics on duplicates. Intended for
// startup wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Definitions returns the capability catalogue in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch decodes rawArgs and executes the named capability. It never
// returns an error or panics: unknown names, malformed arguments, executor
// errors and executor panics all come back as failed Results so the
// calling loop can hand them to the model and continue.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string) (result *Result) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("tool", name).Any("panic", rec).Msg("tool panicked")
			result = Fail(fmt.Sprintf("tool %q panicked: %v", name, rec))
		}
		r.log.Debug().
			Str("tool", name).
			Bool("success", result.Success).
			Dur("duration", time.Since(start)).
			Msg("tool dispatched")
	}()

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Fail(fmt.Sprintf("unknown tool %q", name))
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return Fail(fmt.Sprintf("invalid arguments for %q: %v", name, err))
		}
	}
	if err := validateArgs(t.Schema(), args); err != nil {
		return Fail(fmt.Sprintf("invalid arguments for %q: %v", name, err))
	}

	res, err := t.Execute(ctx, args)
	if err != nil {
		return Fail(fmt.Sprintf("tool %q failed: %v", name, err))
	}
	if res == nil {
		return Fail(fmt.Sprintf("tool %q returned no result", name))
	}
	return res
}

// validateArgs enforces required fields and primitive types at the
// registry boundary so individual tools can trust their inputs.
func validateArgs(schema ParamSchema, args map[string]any) error {
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("missing required field %q", req)
		}
	}
	for key, val := range args {
		prop, ok := schema.Properties[key]
		if !ok {
			continue
		}
		if !typeMatches(prop.Type, val) {
			return fmt.Errorf("field %q: expected %s", key, prop.Type)
		}
		if len(prop.Enum) > 0 {
			s, _ := val.(string)
			if !contains(prop.Enum, s) {
				return fmt.Errorf("field %q: must be one of %v", key, prop.Enum)
			}
		}
	}
	return nil
}

func typeMatches(schemaType string, val any) bool {
	switch schemaType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
