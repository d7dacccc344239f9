// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"log/slog"
	"strings"
)

// LogLevel represents the severity of a log message in the vgi_rpc protocol.
type LogLevel string

const (
	// LogException is the most severe level, used for unrecoverable errors
	// that terminate request processing.
	LogException LogLevel = "EXCEPTION"
	// LogError indicates a recoverable error condition.
	LogError LogLevel = "ERROR"
	// LogWarn indicates a warning that may require attention.
	LogWarn LogLevel = "WARN"
	// LogInfo indicates a normal informational message.
	LogInfo LogLevel = "INFO"
	// LogDebug indicates a verbose diagnostic message.
	LogDebug LogLevel = "DEBUG"
	// LogTrace is the least severe level, used for fine-grained tracing.
	LogTrace LogLevel = "TRACE"
)

// logLevelPriority returns a numeric priority for log levels (lower = more severe).
func logLevelPriority(level LogLevel) int {
	switch level {
	case LogException:
		return 0
	case LogError:
		return 1
	case LogWarn:
		return 2
	case LogInfo:
		return 3
	case LogDebug:
		return 4
	case LogTrace:
		return 5
	default:
		return 6
	}
}

// ParseLogLevel converts a case-insensitive level name into a LogLevel.
// Unknown names map to LogInfo.
func ParseLogLevel(s string) LogLevel {
	switch lvl := LogLevel(strings.ToUpper(strings.TrimSpace(s))); lvl {
	case LogException, LogError, LogWarn, LogInfo, LogDebug, LogTrace:
		return lvl
	case "WARNING":
		return LogWarn
	default:
		return LogInfo
	}
}

// slogLevel maps a protocol level onto the nearest slog level.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogException, LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// KV is a key-value pair for structured log extras.
type KV struct {
	Key   string
	Value string
}

// LogMessage represents a log record travelling between engine and client.
type LogMessage struct {
	Level   LogLevel
	Message string
	Extras  map[string]string
}

// logTo writes a remote log record to logger, tagged with its method.
func (m LogMessage) logTo(ctx context.Context, logger *slog.Logger, method string) {
	attrs := make([]any, 0, 2+2*len(m.Extras))
	attrs = append(attrs, "method", method)
	for k, v := range m.Extras {
		attrs = append(attrs, k, v)
	}
	logger.Log(ctx, m.Level.slogLevel(), m.Message, attrs...)
}
