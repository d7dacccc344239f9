// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
)

// ErrRpc is a sentinel for use with errors.Is to check whether any error in a
// chain is an *RpcError.
var ErrRpc = &RpcError{}

// ErrTransportClosed is returned by calls made on a transport that was closed,
// or that was aborted because a call's context was cancelled mid-exchange.
var ErrTransportClosed = errors.New("vgirpc: transport closed")

// RpcError represents an error in the vgi_rpc protocol. On the client side it
// carries the exception reported by the remote engine.
type RpcError struct {
	Type      string // e.g. "ValueError", "RuntimeError"
	Message   string
	Traceback string
	RequestID string
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is supports errors.Is by matching any *RpcError target.
func (e *RpcError) Is(target error) bool {
	_, ok := target.(*RpcError)
	return ok
}

// stackFrame represents a single frame in a Go stack trace,
// matching the Python wire format for error batch log_extra.
type stackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// errorExtra is the JSON structure carried in vgi_rpc.log_extra
// for EXCEPTION-level log batches.
type errorExtra struct {
	ExceptionType    string       `json:"exception_type"`
	ExceptionMessage string       `json:"exception_message"`
	Traceback        string       `json:"traceback,omitempty"`
	Frames           []stackFrame `json:"frames,omitempty"`
}

// buildErrorExtra creates the JSON string for vgi_rpc.log_extra from an error.
// Stack information is only included when debug is set.
func buildErrorExtra(err error, debug bool) string {
	extra := errorExtra{
		ExceptionType:    fmt.Sprintf("%T", err),
		ExceptionMessage: err.Error(),
	}
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		extra.ExceptionType = rpcErr.Type
		extra.ExceptionMessage = rpcErr.Message
	}

	if debug {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		extra.Traceback = string(buf[:n])

		pcs := make([]uintptr, 10)
		n = runtime.Callers(2, pcs)
		frames := runtime.CallersFrames(pcs[:n])
		for len(extra.Frames) < 5 {
			frame, more := frames.Next()
			extra.Frames = append(extra.Frames, stackFrame{
				File:     frame.File,
				Line:     frame.Line,
				Function: frame.Function,
			})
			if !more {
				break
			}
		}
	}

	data, _ := json.Marshal(extra)
	return string(data)
}

// parseErrorBatch rebuilds an *RpcError from the metadata of an EXCEPTION batch.
// A missing or malformed log_extra degrades to a RuntimeError carrying the
// plain log message.
func parseErrorBatch(meta map[string]string) *RpcError {
	rpcErr := &RpcError{
		Type:      "RuntimeError",
		Message:   meta[MetaLogMessage],
		RequestID: meta[MetaRequestID],
	}
	raw, ok := meta[MetaLogExtra]
	if !ok {
		return rpcErr
	}
	var extra errorExtra
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return rpcErr
	}
	if extra.ExceptionType != "" {
		rpcErr.Type = extra.ExceptionType
	}
	if extra.ExceptionMessage != "" {
		rpcErr.Message = extra.ExceptionMessage
	}
	rpcErr.Traceback = extra.Traceback
	return rpcErr
}
