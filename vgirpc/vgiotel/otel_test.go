// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgiotel_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
	"github.com/Query-farm/vgi-dpf/vgirpc"
	"github.com/Query-farm/vgi-dpf/vgirpc/vgiotel"
)

type telemetry struct {
	spans   *tracetest.SpanRecorder
	metrics *sdkmetric.ManualReader
	cfg     vgiotel.OtelConfig
}

func newTelemetry(t *testing.T, service string) *telemetry {
	t.Helper()
	tel := &telemetry{
		spans:   tracetest.NewSpanRecorder(),
		metrics: sdkmetric.NewManualReader(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tel.spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(tel.metrics))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	tel.cfg = vgiotel.DefaultConfig()
	tel.cfg.TracerProvider = tp
	tel.cfg.MeterProvider = mp
	tel.cfg.Propagator = propagation.TraceContext{}
	tel.cfg.ServiceName = service
	return tel
}

func (tel *telemetry) requestCounts(t *testing.T, name string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.metrics.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is a %T", name, m.Data)
			for _, dp := range sum.DataPoints {
				method, _ := dp.Attributes.Value("rpc.method")
				status, _ := dp.Attributes.Value("status")
				counts[method.AsString()+"/"+status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestClientAndServerSpans(t *testing.T) {
	client := newTelemetry(t, "dpf-client")
	server := newTelemetry(t, "")

	engine := enginetest.New(t.TempDir())
	rpcServer := engine.NewServer()
	vgiotel.InstrumentServer(rpcServer, server.cfg)
	handler := vgirpc.NewHttpServer(rpcServer)
	ts := httptest.NewServer(handler)
	defer func() {
		ts.Close()
		_ = handler.Close()
	}()

	tr, err := vgirpc.NewHTTPTransport(ts.URL, vgirpc.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	rpcClient := vgirpc.NewClient(tr)
	vgiotel.InstrumentClient(rpcClient, client.cfg)

	ctx := context.Background()
	s, err := dpf.NewServer(ctx, rpcClient)
	require.NoError(t, err)
	defer s.Close()

	f, err := dpf.CreateScalarField(ctx, s, 3, dpf.Nodal)
	require.NoError(t, err)
	require.NoError(t, f.SetData(ctx, []float64{1, 2, 3}))
	_, err = dpf.NewOperator(ctx, s, "no_such_operator")
	require.Error(t, err)

	clientSpans := client.spans.Ended()
	serverSpans := server.spans.Ended()
	require.Len(t, clientSpans, 4)
	require.Len(t, serverSpans, 4)

	for i, cs := range clientSpans {
		ss := serverSpans[i]
		assert.Equal(t, trace.SpanKindClient, cs.SpanKind())
		assert.Equal(t, trace.SpanKindServer, ss.SpanKind())
		assert.Equal(t, cs.Name(), ss.Name())
		assert.Equal(t, cs.SpanContext().TraceID(), ss.SpanContext().TraceID(), "trace continues on the engine")
		assert.Equal(t, cs.SpanContext().SpanID(), ss.Parent().SpanID())
		assert.Equal(t, "dpf-client", attr(cs, "rpc.service").AsString())
		assert.Equal(t, "dpf-emulator", attr(ss, "rpc.service").AsString())
	}

	assert.Equal(t, "vgi_rpc/base.server_info", clientSpans[0].Name())
	assert.Equal(t, int64(1), attr(clientSpans[2], "rpc.vgi_rpc.input_rows").AsInt64())

	failed := clientSpans[3]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "ValueError", attr(failed, "rpc.vgi_rpc.error_type").AsString())
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)
	assert.Equal(t, codes.Error, serverSpans[3].Status().Code)

	assert.Equal(t, map[string]int64{
		"base.server_info/ok":   1,
		"field.create/ok":       1,
		"field.set_data/ok":     1,
		"operator.create/error": 1,
	}, client.requestCounts(t, "rpc.client.requests"))
	assert.Equal(t, client.requestCounts(t, "rpc.client.requests"), server.requestCounts(t, "rpc.server.requests"))
}

func TestTracingDisabled(t *testing.T) {
	tel := newTelemetry(t, "quiet")
	tel.cfg.EnableTracing = false

	engine := enginetest.New(t.TempDir())
	pipe, err := engine.Pipe()
	require.NoError(t, err)
	rpcClient := vgirpc.NewClient(pipe)
	vgiotel.InstrumentClient(rpcClient, tel.cfg)

	s, err := dpf.NewServer(context.Background(), rpcClient)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Empty(t, tel.spans.Ended())
	assert.Equal(t, map[string]int64{"base.server_info/ok": 1}, tel.requestCounts(t, "rpc.client.requests"))
}

func TestConnectTracesHandshake(t *testing.T) {
	tel := newTelemetry(t, "dpf-cli")

	engine := enginetest.New(t.TempDir())
	handler := vgirpc.NewHttpServer(engine.NewServer())
	ts := httptest.NewServer(handler)
	defer func() {
		ts.Close()
		_ = handler.Close()
	}()

	cfg := dpf.DefaultConfig()
	cfg.Address = ts.URL
	s, err := dpf.Connect(context.Background(), cfg,
		dpf.WithClientOptions(vgirpc.WithCallHook(vgiotel.ClientHook(tel.cfg))))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	spans := tel.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "vgi_rpc/base.server_info", spans[0].Name())
	assert.Equal(t, "dpf-cli", attr(spans[0], "rpc.service").AsString())
}
