package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Tool is a named, schema-described capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON-schema description of the argument bag.
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// GenerateSchema renders a tool in OpenAI function-calling format.
func GenerateSchema(tool Tool) map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"parameters":  tool.Parameters(),
		},
	}
}

// Registry holds the available tools keyed by name and wraps every
// invocation so that execution never raises: unknown names, invalid
// arguments, tool errors and panics all come back as result text.
type Registry struct {
	tools map[string]Tool
	names []string
	log   *zap.SugaredLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool. Registering an existing name replaces the previous
// tool; the later registration wins.
func (r *Registry) Register(tool Tool) {
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.names = append(r.names, name)
	}
	r.tools[name] = tool
}

// Unregister removes a tool by name, ignoring unknown names.
func (r *Registry) Unregister(name string) {
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Execute runs a tool by name. Arguments are validated against the tool's
// schema before the tool body runs; a validation failure means the body is
// never invoked. The result is always text; success and failure are
// communicated through content, never through control flow.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("tool panicked", "tool", name, "panic", rec)
			result = fmt.Sprintf("Error executing %s: %v", name, rec)
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: tool '%s' not found", name)
	}

	if errs := ValidateArgs(args, tool.Parameters()); len(errs) > 0 {
		return fmt.Sprintf("Error: invalid parameters for tool '%s': %s", name, strings.Join(errs, "; "))
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}
	return out
}

// Definitions returns the schema catalogue for every registered tool, in
// registration order.
func (r *Registry) Definitions() []map[string]interface{} {
	defs := make([]map[string]interface{}, 0, len(r.tools))
	for _, name := range r.names {
		defs = append(defs, GenerateSchema(r.tools[name]))
	}
	return defs
}
