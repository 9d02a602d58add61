// Package logging builds the process-wide JSON logger and the attribute
// helpers that scope log lines to a component, request, or job.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON logger at the given level. Output goes to stderr
// so command stdout stays free for result documents.
func NewLogger(level string) *slog.Logger {
	lvl := ParseLevel(level)
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent scopes a logger to one subsystem (api, runner, pose, emit).
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithRequestID scopes a logger to one HTTP request.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithJobID scopes a logger to one analysis job.
func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With("job_id", jobID)
}

// SanitizeToken masks an auth token for log output, keeping only the last
// four characters. Tokens too short to mask safely come back as "****".
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return "..." + token[len(token)-4:]
}
