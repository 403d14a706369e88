package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a failed or unusable model response.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeMaxTokens means the response was cut off at the output
	// token limit. Retried, but callers should consider smaller batches.
	ErrorTypeMaxTokens ErrorType = "max_tokens"
	// ErrorTypeRecitation means the provider refused the output for
	// content/recitation reasons.
	ErrorTypeRecitation ErrorType = "recitation"
	ErrorTypeEmpty      ErrorType = "empty_output"
	ErrorTypeTransport  ErrorType = "transport"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error is a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable implements retry.RetryableError so the retry package can
// check retryability without importing llm.
func (e *Error) IsRetryable() bool { return e.Retryable }

// NewError creates a structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// ClassifyError categorizes a provider error into a structured Error so the
// retry loop and stats accounting see a consistent taxonomy.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		e := NewError(ErrorTypeAuth, "authentication failed", false, err)
		e.StatusCode = statusCode
		return e

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		e := NewError(ErrorTypeModel, "model not found", false, err)
		e.StatusCode = statusCode
		return e

	case strings.Contains(errStr, "404"):
		e := NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
		e.StatusCode = statusCode
		return e

	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests"):
		e := NewError(ErrorTypeRateLimit, "rate limited", true, err)
		e.StatusCode = statusCode
		return e

	case statusCode >= 500,
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "overloaded"):
		e := NewError(ErrorTypeTransport, "transient transport failure", true, err)
		e.StatusCode = statusCode
		return e
	}

	e := NewError(ErrorTypeUnknown, "unclassified failure", false, err)
	e.StatusCode = statusCode
	return e
}
