package tools

import (
	"fmt"
	"math"
)

// ValidateArgs checks an argument bag against a JSON-schema object
// definition. It returns a list of human-readable violations; an empty list
// means the arguments are acceptable. Supported constraints: type, required,
// enum, minimum/maximum, minLength/maxLength, nested object properties and
// array items.
func ValidateArgs(args map[string]interface{}, schema map[string]interface{}) []string {
	if schema == nil {
		return nil
	}
	root := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		root[k] = v
	}
	root["type"] = "object"
	return validateValue(args, root, "")
}

func validateValue(val interface{}, schema map[string]interface{}, path string) []string {
	label := path
	if label == "" {
		label = "parameter"
	}

	typeName, _ := schema["type"].(string)
	if typeName != "" && !typeMatches(val, typeName) {
		return []string{fmt.Sprintf("%s should be %s", label, typeName)}
	}

	var errs []string

	if enum, ok := schema["enum"]; ok && !enumContains(enum, val) {
		errs = append(errs, fmt.Sprintf("%s must be one of %v", label, enum))
	}

	switch typeName {
	case "integer", "number":
		n := toFloat(val)
		if min, ok := schemaNumber(schema, "minimum"); ok && n < min {
			errs = append(errs, fmt.Sprintf("%s must be >= %v", label, min))
		}
		if max, ok := schemaNumber(schema, "maximum"); ok && n > max {
			errs = append(errs, fmt.Sprintf("%s must be <= %v", label, max))
		}
	case "string":
		s, _ := val.(string)
		if min, ok := schemaNumber(schema, "minLength"); ok && len(s) < int(min) {
			errs = append(errs, fmt.Sprintf("%s must be at least %d chars", label, int(min)))
		}
		if max, ok := schemaNumber(schema, "maxLength"); ok && len(s) > int(max) {
			errs = append(errs, fmt.Sprintf("%s must be at most %d chars", label, int(max)))
		}
	case "object":
		obj, _ := val.(map[string]interface{})
		props, _ := schema["properties"].(map[string]interface{})
		for _, key := range requiredKeys(schema) {
			if _, present := obj[key]; !present {
				errs = append(errs, "missing required "+joinPath(path, key))
			}
		}
		for key, v := range obj {
			propSchema, ok := props[key].(map[string]interface{})
			if !ok {
				continue
			}
			errs = append(errs, validateValue(v, propSchema, joinPath(path, key))...)
		}
	case "array":
		items, ok := schema["items"].(map[string]interface{})
		if ok {
			arr, _ := val.([]interface{})
			for i, item := range arr {
				errs = append(errs, validateValue(item, items, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	}

	return errs
}

func typeMatches(val interface{}, typeName string) bool {
	switch typeName {
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	case "number":
		return isNumeric(val)
	case "integer":
		if !isNumeric(val) {
			return false
		}
		f := toFloat(val)
		return f == math.Trunc(f)
	default:
		return true
	}
}

func isNumeric(val interface{}) bool {
	switch val.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func toFloat(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func schemaNumber(schema map[string]interface{}, key string) (float64, bool) {
	v, ok := schema[key]
	if !ok || !isNumeric(v) {
		return 0, false
	}
	return toFloat(v), true
}

func enumContains(enum interface{}, val interface{}) bool {
	switch e := enum.(type) {
	case []interface{}:
		for _, item := range e {
			if item == val {
				return true
			}
		}
	case []string:
		s, ok := val.(string)
		if !ok {
			return false
		}
		for _, item := range e {
			if item == s {
				return true
			}
		}
	}
	return false
}

func requiredKeys(schema map[string]interface{}) []string {
	var keys []string
	switch req := schema["required"].(type) {
	case []string:
		keys = req
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				keys = append(keys, s)
			}
		}
	}
	return keys
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
