// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Query-farm/vgi-dpf/vgirpc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// requireRemote asserts err carries an engine error of the given type.
func requireRemote(t *testing.T, err error, typ string) *vgirpc.RpcError {
	t.Helper()
	var rpcErr *vgirpc.RpcError
	require.True(t, errors.As(err, &rpcErr), "want %s, got %v", typ, err)
	require.Equal(t, typ, rpcErr.Type)
	return rpcErr
}
