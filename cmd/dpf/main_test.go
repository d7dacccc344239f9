// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideConfig(t *testing.T) {
	for _, k := range []string{"DPF_ADDRESS", "DPF_IP", "DPF_PORT", "DPF_SERVER_COMMAND", "DPF_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("DPF_ADDRESS", "http://engine:50052")

	tests := []struct {
		name    string
		g       globals
		address string
		socket  string
		command string
		args    []string
	}{
		{name: "environment", address: "http://engine:50052"},
		{name: "socket flag", g: globals{socket: "/run/dpf.sock"}, socket: "/run/dpf.sock"},
		{
			name:    "command flag is split",
			g:       globals{command: "dpf-emulator --os nt"},
			command: "dpf-emulator", args: []string{"--os", "nt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.g.loadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.address, cfg.Address)
			assert.Equal(t, tt.socket, cfg.Socket)
			assert.Equal(t, tt.command, cfg.Command)
			assert.Equal(t, tt.args, cfg.Args)
		})
	}
}
