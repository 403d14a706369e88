// Package logging builds the shared zap logger and keeps credentials out
// of log output.
package logging

import (
	"regexp"

	"go.uber.org/zap"
)

// New creates the pipeline logger. Local runs get the development config
// (console encoding, human timestamps); anything else gets production JSON.
func New(env string) (*zap.Logger, error) {
	if env == "local" {
		cfg := zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		return cfg.Build()
	}
	return zap.NewProduction()
}

const redacted = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host credentials embedded in a URL-style DSN
	credsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)

	// api_key=xxxx / apikey=xxxx values
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{16,}`)
)

// SanitizeDSN removes credentials from a connection string before logging.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	out := passwordPattern.ReplaceAllString(dsn, "${1}="+redacted)
	out = credsPattern.ReplaceAllString(out, "://"+redacted+"@")
	out = apiKeyPattern.ReplaceAllString(out, "${1}="+redacted)
	return out
}
