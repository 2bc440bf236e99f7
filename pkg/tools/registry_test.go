package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/calicobot/calico/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name    string
	params  map[string]interface{}
	fn      func(ctx context.Context, args map[string]interface{}) (string, error)
	invoked bool
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub tool" }

func (t *stubTool) Parameters() map[string]interface{} {
	if t.params != nil {
		return t.params
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	t.invoked = true
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	return "ok", nil
}

func TestExecuteUnknownToolReturnsText(t *testing.T) {
	r := NewRegistry(logging.Nop())
	result := r.Execute(context.Background(), "missing", nil)
	assert.Equal(t, "Error: tool 'missing' not found", result)
}

func TestExecuteToolErrorBecomesText(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&stubTool{name: "boom", fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
		return "", errors.New("disk on fire")
	}})

	result := r.Execute(context.Background(), "boom", map[string]interface{}{})
	assert.Equal(t, "Error executing boom: disk on fire", result)
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&stubTool{name: "panicky", fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
		panic("unexpected nil")
	}})

	result := r.Execute(context.Background(), "panicky", map[string]interface{}{})
	assert.Contains(t, result, "Error executing panicky")
	assert.Contains(t, result, "unexpected nil")
}

func TestExecuteValidationFailureSkipsToolBody(t *testing.T) {
	tool := &stubTool{
		name: "greet",
		params: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"name"},
		},
	}
	r := NewRegistry(logging.Nop())
	r.Register(tool)

	result := r.Execute(context.Background(), "greet", map[string]interface{}{})
	assert.Contains(t, result, "Error: invalid parameters for tool 'greet'")
	assert.False(t, tool.invoked, "tool body must not run when validation fails")
}

func TestRegisterLastWins(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&stubTool{name: "dup", fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
		return "first", nil
	}})
	r.Register(&stubTool{name: "dup", fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
		return "second", nil
	}})

	assert.Equal(t, 1, r.Len())
	result := r.Execute(context.Background(), "dup", map[string]interface{}{})
	assert.Equal(t, "second", result)
}

func TestDefinitionsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&stubTool{name: "alpha"})
	r.Register(&stubTool{name: "beta"})
	r.Register(&stubTool{name: "alpha"}) // replacement keeps original slot

	defs := r.Definitions()
	require.Len(t, defs, 2)

	fn0 := defs[0]["function"].(map[string]interface{})
	fn1 := defs[1]["function"].(map[string]interface{})
	assert.Equal(t, "alpha", fn0["name"])
	assert.Equal(t, "beta", fn1["name"])
}

func TestUnregister(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.Register(&stubTool{name: "gone"})
	r.Unregister("gone")
	assert.False(t, r.Has("gone"))
	assert.Empty(t, r.Definitions())
}
