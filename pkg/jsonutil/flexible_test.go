package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"string", `"institutions"`, "institutions"},
		{"integer", `42`, "42"},
		{"float", `3.5`, "3.5"},
		{"bool", `true`, "true"},
		{"null", `null`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FlexibleStringValue(json.RawMessage(tt.raw)))
		})
	}
}

func TestFlexibleStringMap(t *testing.T) {
	raw := json.RawMessage(`{"schools": "institutions", "county": "region", "rank": 1}`)
	got := FlexibleStringMap(raw)
	assert.Equal(t, map[string]string{
		"schools": "institutions",
		"county":  "region",
		"rank":    "1",
	}, got)

	assert.Nil(t, FlexibleStringMap(json.RawMessage(`null`)))
	assert.Nil(t, FlexibleStringMap(json.RawMessage(`["not", "a", "map"]`)))
	assert.Nil(t, FlexibleStringMap(nil))
}
