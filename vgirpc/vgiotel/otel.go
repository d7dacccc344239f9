// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package vgiotel provides OpenTelemetry instrumentation for vgi-rpc clients
// and servers. Clients get a span per call whose context is propagated to the
// engine in request metadata; servers continue that trace.
//
// Usage:
//
//	client := vgirpc.NewClient(transport)
//	vgiotel.InstrumentClient(client, vgiotel.DefaultConfig())
package vgiotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Query-farm/vgi-dpf/vgirpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "vgi_rpc"

// OtelConfig configures OpenTelemetry instrumentation.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator injects or extracts trace context in request metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value.
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with tracing, metrics and exception
// recording enabled. Providers are resolved from the global SDK.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

func (cfg *OtelConfig) resolve(defaultService string) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultService
	}
}

// instruments is the tracer plus the request/duration pair for one side.
type instruments struct {
	cfg      OtelConfig
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(cfg OtelConfig, side string) *instruments {
	in := &instruments{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		in.requests, _ = meter.Int64Counter("rpc."+side+".requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of RPC requests"),
		)
		in.duration, _ = meter.Float64Histogram("rpc."+side+".duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of RPC requests"),
		)
	}
	return in
}

// spanToken is the HookToken handed from start to end callbacks.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

func (in *instruments) start(ctx context.Context, kind trace.SpanKind, method, methodType string, extra ...attribute.KeyValue) (context.Context, *spanToken) {
	if !in.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "vgi_rpc"),
		attribute.String("rpc.service", in.cfg.ServiceName),
		attribute.String("rpc.method", method),
		attribute.String("rpc.vgi_rpc.method_type", methodType),
	}
	attrs = append(attrs, extra...)
	attrs = append(attrs, in.cfg.CustomAttributes...)

	ctx, span := in.tracer.Start(ctx, fmt.Sprintf("vgi_rpc/%s", method),
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

func (in *instruments) end(ctx context.Context, token vgirpc.HookToken, method, methodType string, stats *vgirpc.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}

	if in.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "vgi_rpc"),
			attribute.String("rpc.service", in.cfg.ServiceName),
			attribute.String("rpc.method", method),
			attribute.String("rpc.vgi_rpc.method_type", methodType),
			attribute.String("status", status),
		)
		if in.requests != nil {
			in.requests.Add(ctx, 1, metricAttrs)
		}
		if in.duration != nil {
			in.duration.Record(ctx, time.Since(st.startTime).Seconds(), metricAttrs)
		}
	}

	if st.span == nil || !st.span.IsRecording() {
		return
	}
	if stats != nil {
		st.span.SetAttributes(
			attribute.Int64("rpc.vgi_rpc.input_batches", stats.InputBatches),
			attribute.Int64("rpc.vgi_rpc.output_batches", stats.OutputBatches),
			attribute.Int64("rpc.vgi_rpc.input_rows", stats.InputRows),
			attribute.Int64("rpc.vgi_rpc.output_rows", stats.OutputRows),
			attribute.Int64("rpc.vgi_rpc.input_bytes", stats.InputBytes),
			attribute.Int64("rpc.vgi_rpc.output_bytes", stats.OutputBytes),
		)
	}
	if err != nil {
		st.span.SetStatus(codes.Error, err.Error())
		if in.cfg.RecordExceptions {
			st.span.RecordError(err)
		}
		errType := fmt.Sprintf("%T", err)
		var rpcErr *vgirpc.RpcError
		if errors.As(err, &rpcErr) {
			errType = rpcErr.Type
		}
		st.span.SetAttributes(attribute.String("rpc.vgi_rpc.error_type", errType))
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
	st.span.End()
}

// InstrumentServer attaches a dispatch hook that continues client traces
// and records rpc.server.* metrics.
func InstrumentServer(server *vgirpc.Server, cfg OtelConfig) {
	defaultService := server.ServiceName()
	if defaultService == "" {
		defaultService = "GoRpcServer"
	}
	cfg.resolve(defaultService)
	server.SetDispatchHook(&serverHook{newInstruments(cfg, "server")})
}

type serverHook struct{ *instruments }

func (h *serverHook) OnDispatchStart(ctx context.Context, info vgirpc.DispatchInfo) (context.Context, vgirpc.HookToken) {
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}
	return h.start(ctx, trace.SpanKindServer, info.Method, info.MethodType,
		attribute.String("rpc.vgi_rpc.server_id", info.ServerID))
}

func (h *serverHook) OnDispatchEnd(ctx context.Context, token vgirpc.HookToken, info vgirpc.DispatchInfo, stats *vgirpc.CallStatistics, err error) {
	h.end(ctx, token, info.Method, info.MethodType, stats, err)
}

// ClientHook returns a call hook that opens a client span per call, injects
// its context into the request metadata, and records rpc.client.* metrics.
// Pass it with vgirpc.WithCallHook to trace a client from its first call.
func ClientHook(cfg OtelConfig) vgirpc.CallHook {
	cfg.resolve("dpf")
	return &clientHook{newInstruments(cfg, "client")}
}

// InstrumentClient attaches ClientHook(cfg) to an existing client.
func InstrumentClient(client *vgirpc.Client, cfg OtelConfig) {
	client.SetCallHook(ClientHook(cfg))
}

type clientHook struct{ *instruments }

func (h *clientHook) OnCallStart(ctx context.Context, info *vgirpc.CallInfo) (context.Context, vgirpc.HookToken) {
	ctx, token := h.start(ctx, trace.SpanKindClient, info.Method, info.MethodType,
		attribute.String("rpc.vgi_rpc.request_id", info.RequestID))
	if h.cfg.Propagator != nil {
		h.cfg.Propagator.Inject(ctx, propagation.MapCarrier(info.Metadata))
	}
	return ctx, token
}

func (h *clientHook) OnCallEnd(ctx context.Context, token vgirpc.HookToken, info *vgirpc.CallInfo, stats *vgirpc.CallStatistics, err error) {
	h.end(ctx, token, info.Method, info.MethodType, stats, err)
}
