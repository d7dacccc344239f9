// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		address string
		command string
		args    []string
		level   string
	}{
		{name: "nothing set", level: "INFO"},
		{
			name:    "address wins over ip",
			env:     map[string]string{"DPF_ADDRESS": "http://engine:1", "DPF_IP": "10.0.0.1"},
			address: "http://engine:1", level: "INFO",
		},
		{
			name:    "ip with default port",
			env:     map[string]string{"DPF_IP": "10.0.0.1"},
			address: "http://10.0.0.1:50052", level: "INFO",
		},
		{
			name:    "ip and port",
			env:     map[string]string{"DPF_IP": "::1", "DPF_PORT": "6000", "DPF_LOG_LEVEL": "DEBUG"},
			address: "http://[::1]:6000", level: "DEBUG",
		},
		{
			name:    "server command",
			env:     map[string]string{"DPF_SERVER_COMMAND": "dpf-emulator --root /tmp/x"},
			command: "dpf-emulator", args: []string{"--root", "/tmp/x"}, level: "INFO",
		},
		{
			name:  "blank server command",
			env:   map[string]string{"DPF_SERVER_COMMAND": "   "},
			level: "INFO",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := dpf.DefaultConfig()
			cfg.ApplyEnv(envOf(tt.env))
			assert.Equal(t, tt.address, cfg.Address)
			assert.Equal(t, tt.command, cfg.Command)
			if len(tt.args) > 0 {
				assert.Equal(t, tt.args, cfg.Args)
			} else {
				assert.Empty(t, cfg.Args)
			}
			assert.Equal(t, tt.level, cfg.LogLevel)
		})
	}
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"DPF_ADDRESS", "DPF_IP", "DPF_PORT", "DPF_SERVER_COMMAND", "DPF_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "dpf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket: /run/dpf.sock
compression_level: 3
log_level: WARNING
connect_timeout: 30s
check_version: false
`), 0o644))

	cfg, err := dpf.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/run/dpf.sock", cfg.Socket)
	assert.Equal(t, 3, cfg.CompressionLevel)
	assert.Equal(t, "WARNING", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.False(t, cfg.CheckVersion)
	assert.Empty(t, cfg.Address)

	t.Setenv("DPF_ADDRESS", "http://override:9")
	cfg, err = dpf.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9", cfg.Address)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := dpf.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, dpf.DefaultConfig(), cfg)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	cfg, err = dpf.LoadConfig(empty)
	require.NoError(t, err)
	assert.Equal(t, dpf.DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := dpf.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("adress: http://typo\n"), 0o644))
	_, err = dpf.LoadConfig(unknown)
	require.ErrorContains(t, err, "adress")
}

func TestSetCommandLine(t *testing.T) {
	cfg := dpf.DefaultConfig()
	cfg.SetCommandLine("  dpf-emulator\t--os nt ")
	assert.Equal(t, "dpf-emulator", cfg.Command)
	assert.Equal(t, []string{"--os", "nt"}, cfg.Args)

	cfg.SetCommandLine(" ")
	assert.Equal(t, "dpf-emulator", cfg.Command)
	assert.Equal(t, []string{"--os", "nt"}, cfg.Args)
}
