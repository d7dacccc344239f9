// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command dpf-emulator serves the in-memory engine on stdin/stdout, HTTP or
// a unix socket. It is meant for local development and tests of dpf clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/vgi-dpf/internal/enginetest"
	"github.com/Query-farm/vgi-dpf/vgirpc"
	"github.com/Query-farm/vgi-dpf/vgirpc/vgiotel"
)

type options struct {
	http        bool
	unix        string
	root        string
	version     string
	os          string
	compression int
	trace       bool
	verbose     bool
}

func main() {
	var o options
	cmd := &cobra.Command{
		Use:   "dpf-emulator",
		Short: "Serve an in-memory DPF engine",
		Long: `dpf-emulator serves an in-memory engine speaking the dpf protocol.

Without flags it talks on stdin/stdout. With --http it listens on a random
local port and prints PORT:<n>; with --unix it listens on the given socket
and prints UNIX:<path>.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.http, "http", false, "serve HTTP on 127.0.0.1 with a random port")
	f.StringVar(&o.unix, "unix", "", "serve on a unix domain socket at this path")
	f.StringVar(&o.root, "root", "", "directory for the file services (default: a new temp dir)")
	f.StringVar(&o.version, "engine-version", enginetest.DefaultVersion, "engine version to report")
	f.StringVar(&o.os, "os", "posix", `operating system to report ("posix" or "nt")`)
	f.IntVar(&o.compression, "compression", 3, "zstd level for HTTP responses (0 disables)")
	f.BoolVar(&o.trace, "trace", false, "write OpenTelemetry spans to stderr")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log debug messages to stderr")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	root := o.root
	if root == "" {
		dir, err := os.MkdirTemp("", "dpf-emulator-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		root = dir
	}
	engine := enginetest.New(root,
		enginetest.WithVersion(o.version),
		enginetest.WithOS(o.os),
		enginetest.WithLogger(logger),
	)
	server := engine.NewServer()
	server.SetDebugErrors(true)

	if o.trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer tp.Shutdown(context.Background())
		otel.SetTracerProvider(tp)
		cfg := vgiotel.DefaultConfig()
		cfg.ServiceName = "dpf-emulator"
		cfg.EnableMetrics = false
		cfg.Propagator = propagation.TraceContext{}
		vgiotel.InstrumentServer(server, cfg)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	switch {
	case o.http:
		return serveHTTP(ctx, server, o.compression, logger)
	case o.unix != "":
		return serveUnix(ctx, server, o.unix, logger)
	default:
		server.RunStdio()
		return nil
	}
}

func serveHTTP(ctx context.Context, server *vgirpc.Server, compression int, logger *slog.Logger) error {
	httpServer := vgirpc.NewHttpServer(server)
	defer httpServer.Close()
	if err := httpServer.SetCompressionLevel(compression); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Printf("PORT:%d\n", port)
	os.Stdout.Sync()
	logger.Info("serving http", "port", port)

	srv := &http.Server{Handler: httpServer}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve error: %w", err)
	}
	return nil
}

func serveUnix(ctx context.Context, server *vgirpc.Server, path string, logger *slog.Logger) error {
	os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on unix socket: %w", err)
	}
	defer os.Remove(path)
	fmt.Printf("UNIX:%s\n", path)
	os.Stdout.Sync()
	logger.Info("serving unix socket", "path", path)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return nil
		}
		server.ServeWithContext(ctx, conn, conn)
		conn.Close()
	}
}
