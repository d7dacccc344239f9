// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command dpf is a small client for a DPF engine: it reports what the engine
// is, lists and describes its operators, and moves files to and from it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/vgirpc"
	"github.com/Query-farm/vgi-dpf/vgirpc/vgiotel"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	config   string
	address  string
	command  string
	socket   string
	logLevel string
	trace    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "dpf",
		Short: "Talk to a DPF engine",
		Long: `dpf connects to a DPF engine and runs one command against it.

The engine is chosen by --address, --socket or --command, falling back to a
YAML --config file and then the DPF_ADDRESS, DPF_IP/DPF_PORT and
DPF_SERVER_COMMAND environment variables.`,
		Version:      dpf.Version,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "YAML connection config")
	pf.StringVar(&g.address, "address", "", "engine HTTP address, e.g. http://127.0.0.1:50052")
	pf.StringVar(&g.socket, "socket", "", "engine unix socket path")
	pf.StringVar(&g.command, "command", "", "engine command to launch on stdin/stdout")
	pf.StringVar(&g.logLevel, "log-level", "", "minimum engine log level to print (DEBUG, INFO, WARN, ERROR)")
	pf.BoolVar(&g.trace, "trace", false, "write OpenTelemetry spans and metrics to stderr")

	root.AddCommand(
		newInfoCmd(g),
		newDescribeCmd(g),
		newOpsCmd(g),
		newUploadCmd(g),
		newDownloadCmd(g),
	)
	return root
}

// session is a connected engine plus the teardown of everything connect set up.
type session struct {
	*dpf.Server
	shutdown func()
}

func (s *session) Close() {
	_ = s.Server.Close()
	s.shutdown()
}

// loadConfig reads --config and the environment, then applies the flags.
func (g *globals) loadConfig() (dpf.Config, error) {
	cfg, err := dpf.LoadConfig(g.config)
	if err != nil {
		return dpf.Config{}, err
	}
	switch {
	case g.address != "":
		cfg.Address = g.address
	case g.socket != "":
		cfg.Address, cfg.Socket = "", g.socket
	case g.command != "":
		cfg.Address, cfg.Socket, cfg.Command, cfg.Args = "", "", "", nil
		cfg.SetCommandLine(g.command)
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

func (g *globals) connect(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slogLevel(cfg.LogLevel)}))

	opts := []dpf.ServerOption{dpf.WithLogger(logger)}
	shutdown := func() {}
	if g.trace {
		hook, flush, err := instrument(cmd)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dpf.WithClientOptions(vgirpc.WithCallHook(hook)))
		shutdown = flush
	}
	s, err := dpf.Connect(ctx, cfg, opts...)
	if err != nil {
		shutdown()
		return nil, err
	}
	return &session{Server: s, shutdown: shutdown}, nil
}

// instrument builds a call hook exporting spans and metrics to stderr, and a
// function flushing them.
func instrument(cmd *cobra.Command) (vgirpc.CallHook, func(), error) {
	spans, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(cmd.ErrOrStderr()))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	reader := sdkmetric.NewPeriodicReader(metrics)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cfg := vgiotel.DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	cfg.ServiceName = "dpf"
	cfg.Propagator = propagation.TraceContext{}

	return vgiotel.ClientHook(cfg), func() {
		ctx := context.Background()
		_ = errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func newInfoCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print what the engine reports about itself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.connect(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			info := s.Info()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "server ip:      %s\n", info.IP)
			fmt.Fprintf(w, "server port:    %d\n", info.Port)
			fmt.Fprintf(w, "process id:     %d\n", info.ProcessID)
			fmt.Fprintf(w, "engine version: %s\n", info.Version)
			if v := s.AnsysVersion(); v != "" {
				fmt.Fprintf(w, "release:        %s\n", v)
			}
			fmt.Fprintf(w, "os:             %s\n", info.OS)
			fmt.Fprintf(w, "client version: %s\n", dpf.Version)
			return nil
		},
	}
}

func newDescribeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "List the remote methods the engine serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.connect(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			desc, err := s.Client().Describe(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "METHOD\tTYPE\tPARAMS")
			for _, m := range desc.Methods {
				params := "-"
				if m.ParamsSchema != nil && m.ParamsSchema.NumFields() > 0 {
					params = ""
					for i, f := range m.ParamsSchema.Fields() {
						if i > 0 {
							params += ", "
						}
						params += f.Name
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.MethodType, params)
			}
			return w.Flush()
		},
	}
}
