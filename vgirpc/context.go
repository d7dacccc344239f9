// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"fmt"
)

// CallContext carries one request through a handler: who asked, what they
// asked for, and the log records to send back with the response.
type CallContext struct {
	Ctx context.Context
	// RequestID is echoed in every response batch for this request.
	RequestID string
	ServerID  string
	Method    string
	// LogLevel is the lowest severity the client asked to receive.
	LogLevel LogLevel
	// Metadata is the request batch metadata, including traceparent when
	// the client propagates traces.
	Metadata map[string]string
	logs     []LogMessage
}

// Enabled reports whether a record at level would reach the client.
func (c *CallContext) Enabled(level LogLevel) bool {
	return logLevelPriority(level) <= logLevelPriority(c.LogLevel)
}

// ClientLog queues a log record for the client. Records below the
// client-requested level are dropped here rather than on the wire.
func (c *CallContext) ClientLog(level LogLevel, msg string, extras ...KV) {
	if !c.Enabled(level) {
		return
	}
	rec := LogMessage{Level: level, Message: msg}
	if len(extras) > 0 {
		rec.Extras = make(map[string]string, len(extras))
		for _, kv := range extras {
			rec.Extras[kv.Key] = kv.Value
		}
	}
	c.logs = append(c.logs, rec)
}

// ClientLogf is ClientLog with a formatted message and no extras.
func (c *CallContext) ClientLogf(level LogLevel, format string, args ...any) {
	if !c.Enabled(level) {
		return
	}
	c.ClientLog(level, fmt.Sprintf(format, args...))
}

func (c *CallContext) drainLogs() []LogMessage {
	logs := c.logs
	c.logs = nil
	return logs
}
