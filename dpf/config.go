// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/Query-farm/vgi-dpf/vgirpc"
	"gopkg.in/yaml.v3"
)

// Config selects and tunes the connection to an engine. Exactly one of
// Address, Socket or Command names the transport, checked in that order.
type Config struct {
	// Address is the engine's HTTP base URL, e.g. "http://127.0.0.1:50052".
	Address string `yaml:"address"`
	// Command launches a local engine speaking on stdin/stdout.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Socket is the path of a unix domain socket the engine listens on.
	Socket string `yaml:"socket"`
	// CompressionLevel enables zstd request bodies over HTTP (0 = off).
	CompressionLevel int `yaml:"compression_level"`
	// LogLevel is the minimum engine log severity forwarded to the logger.
	LogLevel string `yaml:"log_level"`
	// ConnectTimeout bounds opening the transport and the server_info handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// CheckVersion rejects engines older than MinServerVersion.
	CheckVersion bool `yaml:"check_version"`
}

// DefaultConfig returns a Config with no transport selected.
func DefaultConfig() Config {
	return Config{
		LogLevel:       string(vgirpc.LogInfo),
		ConnectTimeout: 5 * time.Minute,
		CheckVersion:   true,
	}
}

// LoadConfig reads a YAML config file over DefaultConfig and then applies
// environment overrides. An empty path only applies the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from DPF_ADDRESS, DPF_IP + DPF_PORT,
// DPF_SERVER_COMMAND and DPF_LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DPF_ADDRESS"); v != "" {
		c.Address = v
	} else if ip := getenv("DPF_IP"); ip != "" {
		port := getenv("DPF_PORT")
		if port == "" {
			port = "50052"
		}
		c.Address = "http://" + net.JoinHostPort(ip, port)
	}
	if v := getenv("DPF_SERVER_COMMAND"); v != "" {
		c.SetCommandLine(v)
	}
	if v := getenv("DPF_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// SetCommandLine splits line on white space into Command and Args. A blank
// line leaves both unchanged.
func (c *Config) SetCommandLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	c.Command, c.Args = fields[0], fields[1:]
}

// transport opens the transport the config names.
func (c Config) transport(ctx context.Context, logger *slog.Logger) (vgirpc.Transport, error) {
	switch {
	case c.Address != "":
		return vgirpc.NewHTTPTransport(c.Address, vgirpc.WithCompressionLevel(c.CompressionLevel))
	case c.Socket != "":
		return vgirpc.DialUnix(ctx, c.Socket)
	case c.Command != "":
		return vgirpc.StartProcess(c.Command, c.Args, logger)
	default:
		return nil, fmt.Errorf("%w: config names no address, socket or command", ErrNoServer)
	}
}
