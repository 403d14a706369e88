package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"unauthorized", errors.New("401 Unauthorized"), ErrorTypeAuth, false},
		{"bad api key", errors.New("invalid api key provided"), ErrorTypeAuth, false},
		{"missing model", errors.New("model gpt-5o does not exist"), ErrorTypeModel, false},
		{"bad endpoint", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"rate limited", errors.New("429 Too Many Requests"), ErrorTypeRateLimit, true},
		{"server error", errors.New("503 Service Unavailable"), ErrorTypeTransport, true},
		{"timeout", errors.New("request timed out"), ErrorTypeTransport, true},
		{"anthropic overloaded", errors.New("overloaded_error: please retry"), ErrorTypeTransport, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.IsRetryable())
		})
	}
}

func TestClassifyError_PreservesStructuredError(t *testing.T) {
	orig := NewError(ErrorTypeMaxTokens, "completion hit the output token limit", true, nil)
	assert.Same(t, orig, ClassifyError(orig))
}

func TestClassifyFinishReason(t *testing.T) {
	assert.Nil(t, classifyFinishReason("stop", "m"))
	assert.Nil(t, classifyFinishReason("end_turn", "m"))

	err := classifyFinishReason("length", "m")
	assert.Equal(t, ErrorTypeMaxTokens, err.Type)
	assert.True(t, err.IsRetryable())

	err = classifyFinishReason("content_filter", "m")
	assert.Equal(t, ErrorTypeRecitation, err.Type)
}
