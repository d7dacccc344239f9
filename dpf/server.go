// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// ServerInfo describes the engine a Server is connected to.
type ServerInfo struct {
	IP        string
	Port      int
	ProcessID int
	Version   string
	OS        string
}

// Server is a session with one engine. It is safe for concurrent use; calls
// on pipe transports are serialized by the transport.
type Server struct {
	client *vgirpc.Client
	logger *slog.Logger
	info   ServerInfo
}

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger       *slog.Logger
	checkVersion bool
	clientOpts   []vgirpc.ClientOption
}

// WithLogger sets the logger used by the session.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = logger }
}

// WithVersionCheck controls whether engines older than MinServerVersion are
// rejected. On by default.
func WithVersionCheck(enabled bool) ServerOption {
	return func(o *serverOptions) { o.checkVersion = enabled }
}

// WithClientOptions passes extra options to the vgirpc client Connect
// builds, e.g. a call hook that should also see the handshake. NewServer
// ignores them.
func WithClientOptions(opts ...vgirpc.ClientOption) ServerOption {
	return func(o *serverOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

// Connect opens the transport described by cfg and starts a session.
func Connect(ctx context.Context, cfg Config, opts ...ServerOption) (*Server, error) {
	o := serverOptions{logger: slog.Default(), checkVersion: cfg.CheckVersion}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	t, err := cfg.transport(ctx, o.logger)
	if err != nil {
		return nil, err
	}
	client := vgirpc.NewClient(t, append([]vgirpc.ClientOption{
		vgirpc.WithLogger(o.logger),
		vgirpc.WithLogLevel(vgirpc.ParseLogLevel(cfg.LogLevel)),
	}, o.clientOpts...)...)
	s, err := NewServer(ctx, client, append([]ServerOption{WithVersionCheck(cfg.CheckVersion)}, opts...)...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewServer starts a session on an existing client. It fetches the engine's
// info and, unless disabled, checks its version.
func NewServer(ctx context.Context, client *vgirpc.Client, opts ...ServerOption) (*Server, error) {
	o := serverOptions{logger: client.Logger(), checkVersion: true}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{client: client, logger: o.logger}

	raw, err := vgirpc.Call[wire.EngineInfo](ctx, client, wire.ServerInfo, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("fetching server info: %w", err)
	}
	s.info = ServerInfo{
		IP:        raw.IP,
		Port:      int(raw.Port),
		ProcessID: int(raw.ProcessID),
		Version:   raw.Version,
		OS:        raw.OS,
	}
	if o.checkVersion && CompareVersions(s.info.Version, MinServerVersion) < 0 {
		return nil, fmt.Errorf("%w: server %s is older than required %s",
			ErrIncompatibleServer, s.info.Version, MinServerVersion)
	}
	s.logger.Debug("connected to engine", "version", s.info.Version, "os", s.info.OS, "pid", s.info.ProcessID)
	return s, nil
}

// Info returns what the engine reported about itself at connect time.
func (s *Server) Info() ServerInfo { return s.info }

// AnsysVersion returns the product release matching the engine version, or
// the empty string when unknown.
func (s *Server) AnsysVersion() string {
	return ServerToAnsysVersion[s.info.Version]
}

// MeetsVersion reports whether the engine is at least version v.
func (s *Server) MeetsVersion(v string) bool {
	return CompareVersions(s.info.Version, v) >= 0
}

// Client returns the underlying RPC client.
func (s *Server) Client() *vgirpc.Client { return s.client }

// Close ends the session and closes its transport. A spawned engine process
// is terminated.
func (s *Server) Close() error {
	if s == globalServer() {
		SetGlobalServer(nil)
	}
	return s.client.Close()
}

var (
	globalMu sync.RWMutex
	global   *Server
)

// SetGlobalServer sets the process-wide default server used wherever a nil
// *Server is passed.
func SetGlobalServer(s *Server) {
	globalMu.Lock()
	global = s
	globalMu.Unlock()
}

// GlobalServer returns the process-wide default server, or nil.
func GlobalServer() *Server {
	return globalServer()
}

func globalServer() *Server {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// resolve returns s, or the global server when s is nil.
func resolve(s *Server) (*Server, error) {
	if s != nil {
		return s, nil
	}
	if g := globalServer(); g != nil {
		return g, nil
	}
	return nil, ErrNoServer
}
