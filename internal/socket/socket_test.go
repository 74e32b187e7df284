// Copyright (c) 2024 The Dgram Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build darwin || dragonfly || freebsd || linux

package socket

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
)

func loopbackSocket(t *testing.T) (int, int, endpoint.Endpoint) {
	fd, family, local, err := UDPSocket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fd) })
	require.Equal(t, unix.AF_INET, family)
	require.NotZero(t, local.Port())
	return fd, family, local
}

// recvEventually polls a non-blocking socket until a datagram shows up.
func recvEventually(t *testing.T, fd int, p []byte) (int, bool, endpoint.Endpoint) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, truncated, from, err := RecvFrom(fd, p)
		if errors.Is(err, errorx.ErrWouldBlock) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		require.NoError(t, err)
		return n, truncated, from
	}
	t.Fatal("no datagram received")
	return 0, false, endpoint.Endpoint{}
}

func TestUDPSocket_SendAndReceive(t *testing.T) {
	rfd, _, raddr := loopbackSocket(t)
	sfd, sfamily, saddr := loopbackSocket(t)

	n, err := SendTo(sfd, sfamily, []byte("hello"), raddr)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 64)
	n, truncated, from := recvEventually(t, rfd, buf)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.False(t, truncated)
	assert.True(t, from.Equal(saddr), "sender %s, want %s", from, saddr)
}

func TestRecvFrom_Truncated(t *testing.T) {
	rfd, _, raddr := loopbackSocket(t)
	sfd, sfamily, _ := loopbackSocket(t)

	_, err := SendTo(sfd, sfamily, []byte("0123456789"), raddr)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, truncated, _ := recvEventually(t, rfd, buf)
	assert.Equal(t, 4, n)
	assert.True(t, truncated)
	assert.Equal(t, "0123", string(buf[:n]))
}

func TestRecvFrom_EmptyDatagram(t *testing.T) {
	rfd, _, raddr := loopbackSocket(t)
	sfd, sfamily, saddr := loopbackSocket(t)

	n, err := SendTo(sfd, sfamily, []byte{}, raddr)
	require.NoError(t, err)
	require.Zero(t, n)

	buf := make([]byte, 16)
	n, truncated, from := recvEventually(t, rfd, buf)
	assert.Zero(t, n)
	assert.False(t, truncated)
	assert.True(t, from.Equal(saddr))
}

func TestRecvFrom_WouldBlock(t *testing.T) {
	fd, _, _ := loopbackSocket(t)
	_, _, from, err := RecvFrom(fd, make([]byte, 16))
	require.ErrorIs(t, err, errorx.ErrWouldBlock)
	assert.False(t, from.IsValid())
}

func TestSendTo_Unbound(t *testing.T) {
	fd, family, _ := loopbackSocket(t)
	_, err := SendTo(fd, family, []byte("x"), endpoint.Endpoint{})
	require.ErrorIs(t, err, errorx.ErrUnboundEndpoint)
}

func TestUDPConnect(t *testing.T) {
	fd, family, remote, err := UDPConnect("udp4", "127.0.0.1", 5353)
	require.NoError(t, err)
	defer unix.Close(fd) //nolint:errcheck
	assert.Equal(t, unix.AF_INET, family)
	assert.Equal(t, endpoint.IPv4(127, 0, 0, 1, 5353), remote)

	_, _, _, err = UDPConnect("udp4", "", 0)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "resolve", re.Op)
	assert.ErrorIs(t, err, errorx.ErrInvalidNetworkAddress)
}

func TestUDPSocket_ReuseOptions(t *testing.T) {
	opts := []Option{
		{SetSockopt: SetReuseAddr, Opt: 1},
		{SetSockopt: SetReuseport, Opt: 1},
	}
	fd1, _, local, err := UDPSocket("udp4", "127.0.0.1:0", opts...)
	require.NoError(t, err)
	defer unix.Close(fd1) //nolint:errcheck

	fd2, _, local2, err := UDPSocket("udp4", local.String(), opts...)
	require.NoError(t, err)
	defer unix.Close(fd2) //nolint:errcheck
	assert.Equal(t, local.Port(), local2.Port())

	got, err := LocalEndpoint(fd2)
	require.NoError(t, err)
	assert.True(t, got.Equal(local2))
}

func TestUDPSocket_InvalidProtocol(t *testing.T) {
	_, _, _, err := UDPSocket("tcp", "127.0.0.1:0")
	require.Error(t, err)
}
