// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// Pipe serves the engine on a goroutine over a pair of OS pipes and returns
// the client end. Closing the transport stops the goroutine.
func (e *Engine) Pipe() (*vgirpc.PipeTransport, error) {
	serverIn, clientOut, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	clientIn, serverOut, err := os.Pipe()
	if err != nil {
		serverIn.Close()
		clientOut.Close()
		return nil, err
	}
	server := e.NewServer()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(serverIn, serverOut)
		serverOut.Close()
		serverIn.Close()
	}()
	return vgirpc.NewPipeTransport(clientIn, clientOut, func() error {
		err := clientOut.Close()
		clientIn.Close()
		<-done
		return err
	}), nil
}

// Session starts an engine rooted in a test temp dir and connects a dpf
// session to it over pipes. Both are torn down when the test ends.
func Session(tb testing.TB, opts ...Option) (*Engine, *dpf.Server) {
	tb.Helper()
	e := New(tb.TempDir(), opts...)
	t, err := e.Pipe()
	if err != nil {
		tb.Fatalf("starting engine: %v", err)
	}
	s, err := dpf.NewServer(context.Background(), vgirpc.NewClient(t))
	if err != nil {
		_ = t.Close()
		tb.Fatalf("connecting to engine: %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return e, s
}

// HTTPSession is Session over an httptest server.
func HTTPSession(tb testing.TB, opts ...Option) (*Engine, *dpf.Server) {
	tb.Helper()
	e := New(tb.TempDir(), opts...)
	handler := vgirpc.NewHttpServer(e.NewServer())
	ts := httptest.NewServer(handler)
	t, err := vgirpc.NewHTTPTransport(ts.URL)
	if err != nil {
		ts.Close()
		tb.Fatalf("http transport: %v", err)
	}
	s, err := dpf.NewServer(context.Background(), vgirpc.NewClient(t))
	if err != nil {
		ts.Close()
		tb.Fatalf("connecting to engine: %v", err)
	}
	tb.Cleanup(func() {
		_ = s.Close()
		ts.Close()
		_ = handler.Close()
	})
	return e, s
}
