// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/google/uuid"
)

// Client issues calls to a remote engine over a Transport.
type Client struct {
	transport Transport
	logger    *slog.Logger
	logLevel  LogLevel
	hook      CallHook
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger routes engine log batches to logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogLevel sets the minimum severity the engine should send back.
func WithLogLevel(level LogLevel) ClientOption {
	return func(c *Client) { c.logLevel = level }
}

// WithCallHook installs an observability hook around every call.
func WithCallHook(hook CallHook) ClientOption {
	return func(c *Client) { c.hook = hook }
}

// NewClient creates a client on top of t.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		logger:    slog.Default(),
		logLevel:  LogInfo,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCallHook replaces the call hook.
func (c *Client) SetCallHook(hook CallHook) {
	c.hook = hook
}

// Logger returns the logger engine log records are written to.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) onLog(ctx context.Context, method string) func(LogMessage) {
	return func(m LogMessage) { m.logTo(ctx, c.logger, method) }
}

// invoke sends the request for method and hands the connection to read.
func (c *Client) invoke(ctx context.Context, method, methodType string, params any,
	read func(ctx context.Context, conn Conn, stats *CallStatistics) error) (err error) {

	info := &CallInfo{
		Method:     method,
		MethodType: methodType,
		RequestID:  uuid.NewString(),
		Metadata:   map[string]string{},
	}
	stats := &CallStatistics{}

	if c.hook != nil {
		var token HookToken
		var hookCtx context.Context
		hookCtx, token = c.hook.OnCallStart(ctx, info)
		if hookCtx != nil {
			ctx = hookCtx
		}
		defer func() { c.hook.OnCallEnd(ctx, token, info, stats, err) }()
	}

	batch, err := encodeParams(params)
	if err != nil {
		return fmt.Errorf("%s: encoding parameters: %w", method, err)
	}
	defer batch.Release()

	conn, err := c.transport.Open(ctx, method, methodType == DispatchMethodStream)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := WriteRequest(conn, method, info.RequestID, c.logLevel, batch, info.Metadata); err != nil {
		return c.callError(ctx, err)
	}
	stats.RecordInput(batch.NumRows(), batchBufferSize(batch))

	if err := read(ctx, conn, stats); err != nil {
		return c.callError(ctx, err)
	}
	return nil
}

// callError prefers the context error when a call was cut short.
func (c *Client) callError(ctx context.Context, err error) error {
	if errors.Is(err, ErrRpc) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Call invokes a unary method and decodes its result into R.
// P must be a struct with `vgirpc` tags, or nil for parameterless methods.
func Call[R any, P any](ctx context.Context, c *Client, method string, params P) (R, error) {
	var out R
	err := c.invoke(ctx, method, DispatchMethodUnary, params, func(ctx context.Context, conn Conn, stats *CallStatistics) error {
		batch, err := readResponse(conn, c.onLog(ctx, method))
		if err != nil {
			return err
		}
		defer batch.Release()
		stats.RecordOutput(batch.NumRows(), batchBufferSize(batch))
		return decodeResult(batch, reflect.ValueOf(&out).Elem())
	})
	return out, err
}

// CallVoid invokes a unary method that returns nothing.
func CallVoid[P any](ctx context.Context, c *Client, method string, params P) error {
	return c.invoke(ctx, method, DispatchMethodUnary, params, func(ctx context.Context, conn Conn, stats *CallStatistics) error {
		batch, err := readResponse(conn, c.onLog(ctx, method))
		if err != nil {
			return err
		}
		batch.Release()
		return nil
	})
}

// Produce invokes a producer method and calls onBatch for every data batch.
// The batch is only valid during the callback. Returning an error from
// onBatch stops the stream and is returned from Produce.
func Produce[P any](ctx context.Context, c *Client, method string, params P, onBatch func(arrow.RecordBatch) error) error {
	return c.invoke(ctx, method, DispatchMethodStream, params, func(ctx context.Context, conn Conn, stats *CallStatistics) error {
		return c.consumeStream(ctx, conn, method, stats, onBatch)
	})
}

// Describe fetches the engine's method catalog.
func (c *Client) Describe(ctx context.Context) (*Description, error) {
	var desc *Description
	err := c.invoke(ctx, "__describe__", DispatchMethodUnary, nil, func(ctx context.Context, conn Conn, stats *CallStatistics) error {
		batch, err := readResponse(conn, c.onLog(ctx, "__describe__"))
		if err != nil {
			return err
		}
		defer batch.Release()
		desc, err = parseDescribeBatch(batch)
		return err
	})
	return desc, err
}

// consumeStream reads a producer output stream. On lockstep connections a
// tick is written before each batch is requested, and closing the tick
// stream tells the engine to stop.
func (c *Client) consumeStream(ctx context.Context, conn Conn, method string, stats *CallStatistics,
	onBatch func(arrow.RecordBatch) error) error {

	tickSchema := arrow.NewSchema(nil, nil)
	var ticks *ipc.Writer
	ticksOpen := false
	closeTicks := func() error {
		if !ticksOpen {
			return nil
		}
		ticksOpen = false
		return ticks.Close()
	}
	tick := func() error {
		b := emptyBatch(tickSchema)
		defer b.Release()
		return ticks.Write(b)
	}

	if conn.Lockstep() {
		ticks = ipc.NewWriter(conn, ipc.WithSchema(tickSchema))
		ticksOpen = true
		if err := tick(); err != nil {
			return fmt.Errorf("writing tick: %w", err)
		}
	}

	reader, err := ipc.NewReader(conn)
	if err != nil {
		_ = closeTicks()
		return fmt.Errorf("reading %s output stream: %w", method, err)
	}
	defer reader.Release()

	onLog := c.onLog(ctx, method)
	var rpcErr *RpcError
	var stopErr error
	for reader.Next() {
		batch := reader.RecordBatch()
		kind, meta := classifyBatch(batch)
		switch kind {
		case BatchLog:
			onLog(logFromMeta(meta))
			continue
		case BatchError:
			if rpcErr == nil {
				rpcErr = parseErrorBatch(meta)
			}
			continue
		}

		stats.RecordOutput(batch.NumRows(), batchBufferSize(batch))
		if stopErr == nil {
			stopErr = onBatch(batch)
		}
		if stopErr == nil {
			stopErr = ctx.Err()
		}
		if !ticksOpen {
			continue
		}
		if stopErr != nil {
			if err := closeTicks(); err != nil {
				return fmt.Errorf("closing tick stream: %w", err)
			}
			continue
		}
		if err := tick(); err != nil {
			return fmt.Errorf("writing tick: %w", err)
		}
	}
	readErr := reader.Err()
	if err := closeTicks(); err != nil && readErr == nil {
		readErr = fmt.Errorf("closing tick stream: %w", err)
	}

	switch {
	case rpcErr != nil:
		return rpcErr
	case stopErr != nil:
		return stopErr
	default:
		return readErr
	}
}

// decodeResult reads the "result" column of a unary response into dst.
func decodeResult(batch arrow.RecordBatch, dst reflect.Value) error {
	idx := batch.Schema().FieldIndices("result")
	if len(idx) == 0 || batch.NumRows() == 0 {
		return fmt.Errorf("response carries no result")
	}
	return decodeValue(batch.Column(idx[0]), 0, dst)
}
