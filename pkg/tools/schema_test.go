package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateArgsRequired(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"path"},
	}

	errs := ValidateArgs(map[string]interface{}{}, schema)
	assert.Equal(t, []string{"missing required path"}, errs)

	errs = ValidateArgs(map[string]interface{}{"path": "/tmp/x"}, schema)
	assert.Empty(t, errs)
}

func TestValidateArgsTypeMismatch(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"count": map[string]interface{}{"type": "integer"},
		},
	}

	errs := ValidateArgs(map[string]interface{}{"count": "three"}, schema)
	assert.Equal(t, []string{"count should be integer"}, errs)

	// JSON numbers arrive as float64; whole values count as integers.
	errs = ValidateArgs(map[string]interface{}{"count": float64(3)}, schema)
	assert.Empty(t, errs)

	errs = ValidateArgs(map[string]interface{}{"count": 3.5}, schema)
	assert.Equal(t, []string{"count should be integer"}, errs)
}

func TestValidateArgsEnum(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"add", "list", "remove"},
			},
		},
	}

	errs := ValidateArgs(map[string]interface{}{"action": "destroy"}, schema)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "action must be one of")

	errs = ValidateArgs(map[string]interface{}{"action": "list"}, schema)
	assert.Empty(t, errs)
}

func TestValidateArgsNumericBounds(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":    "number",
				"minimum": 1,
				"maximum": 10,
			},
		},
	}

	assert.Empty(t, ValidateArgs(map[string]interface{}{"limit": 5.0}, schema))
	assert.NotEmpty(t, ValidateArgs(map[string]interface{}{"limit": 0.5}, schema))
	assert.NotEmpty(t, ValidateArgs(map[string]interface{}{"limit": 11.0}, schema))
}

func TestValidateArgsStringLength(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
				"maxLength": 5,
			},
		},
	}

	assert.NotEmpty(t, ValidateArgs(map[string]interface{}{"content": ""}, schema))
	assert.NotEmpty(t, ValidateArgs(map[string]interface{}{"content": "toolong"}, schema))
	assert.Empty(t, ValidateArgs(map[string]interface{}{"content": "ok"}, schema))
}

func TestValidateArgsNestedObject(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"options": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"mode": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"mode"},
			},
		},
	}

	errs := ValidateArgs(map[string]interface{}{
		"options": map[string]interface{}{},
	}, schema)
	assert.Equal(t, []string{"missing required options.mode"}, errs)

	errs = ValidateArgs(map[string]interface{}{
		"options": map[string]interface{}{"mode": 42},
	}, schema)
	assert.Equal(t, []string{"options.mode should be string"}, errs)
}

func TestValidateArgsArrayItems(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	}

	errs := ValidateArgs(map[string]interface{}{
		"tags": []interface{}{"good", 7},
	}, schema)
	assert.Equal(t, []string{"tags[1] should be string"}, errs)
}

func TestValidateArgsNilSchema(t *testing.T) {
	assert.Empty(t, ValidateArgs(map[string]interface{}{"anything": true}, nil))
}
