// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package internaltesting

import (
	"context"
	"net"

	"github.com/stretchr/testify/require"
)

// RequireRandomPort returns a port that was free on 127.0.0.1 a moment ago.
func RequireRandomPort(t require.TestingT) int {
	lis, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen on a random port")
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())
	return port
}
