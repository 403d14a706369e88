// Package jsonutil decodes loosely-typed JSON coming back from LLMs, which
// routinely return numbers or booleans where the schema asks for strings.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling
// cases where a model returns a number or boolean instead of a string.
// Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleStringMap converts a raw JSON object into a string map, passing
// each value through FlexibleStringValue. Returns nil for null/absent
// input or anything that is not an object; replacement maps are provenance
// data and a malformed one must not fail validation.
func FlexibleStringMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil
	}

	out := make(map[string]string, len(rawMap))
	for k, v := range rawMap {
		out[k] = FlexibleStringValue(v)
	}
	return out
}
