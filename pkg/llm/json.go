package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that some models emit at
// the start of a response.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// missingCommaPattern matches adjacent JSON objects with the separator
// dropped, the most common malformation in long batch responses.
var missingCommaPattern = regexp.MustCompile(`\}[\s\n]*\{`)

// trailingCommaPattern matches a comma directly before a closing bracket.
var trailingCommaPattern = regexp.MustCompile(`,[\s\n]*([\]\}])`)

// ExtractJSONArray pulls the first balanced JSON array out of a model
// response that may contain <think> tags, markdown fences or prose. When
// the extracted text is not valid JSON it attempts mechanical repairs
// (missing commas between objects, trailing commas); repaired reports
// whether that was needed so callers can count corrected responses
// separately from clean ones.
func ExtractJSONArray(response string) (jsonStr string, repaired bool, err error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	candidate, ok := extractBalanced(cleaned, '[', ']')
	if !ok {
		return "", false, fmt.Errorf("no JSON array found in response")
	}

	if json.Valid([]byte(candidate)) {
		return candidate, false, nil
	}

	fixed := missingCommaPattern.ReplaceAllString(candidate, "},{")
	fixed = trailingCommaPattern.ReplaceAllString(fixed, "$1")
	if json.Valid([]byte(fixed)) {
		return fixed, true, nil
	}

	return "", false, fmt.Errorf("response JSON is malformed beyond repair")
}

// ExtractJSONObject pulls the first balanced JSON object out of a response.
func ExtractJSONObject(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	candidate, ok := extractBalanced(cleaned, '{', '}')
	if !ok {
		return "", fmt.Errorf("no JSON object found in response")
	}
	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("response JSON object is malformed")
	}
	return candidate, nil
}

// extractBalanced finds the first balanced JSON structure starting with
// openChar, tracking string literals and escapes so brackets inside values
// do not miscount depth.
func extractBalanced(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
