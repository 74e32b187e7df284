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

package dgram

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
)

const testTimeout = 5 * time.Second

type bootNotifier struct {
	*BuiltinEventEngine
	booted chan Engine
}

func (s *bootNotifier) OnBoot(eng Engine) Action {
	s.booted <- eng
	return None
}

// runEngine starts an engine for handler on a loopback port picked by the kernel
// and returns the engine once it is ready along with the channel Run reports to.
func runEngine(t *testing.T, handler EventHandler, booted chan Engine, opts ...Option) (Engine, net.Addr, chan error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- Run(handler, "udp4://127.0.0.1:0", opts...) }()

	select {
	case eng := <-booted:
		addrs := eng.Addrs()
		require.NotEmpty(t, addrs)
		return eng, addrs[0], done
	case err := <-done:
		t.Fatalf("engine exited before booting: %v", err)
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for the engine to boot")
	}
	return Engine{}, nil, nil
}

func stopEngine(t *testing.T, eng Engine, done chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, eng.Stop(ctx))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("engine did not stop")
	}
}

func dialEngine(t *testing.T, addr net.Addr) *net.UDPConn {
	t.Helper()
	ep, ok := addr.(endpoint.Endpoint)
	require.True(t, ok)
	c, err := net.DialUDP("udp4", nil, ep.UDPAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.SetDeadline(time.Now().Add(testTimeout)))
	return c
}

type echoServer struct {
	bootNotifier
	truncated atomic.Int32
	empty     atomic.Int32
	opened    atomic.Int32
	closed    atomic.Int32
	traffic   atomic.Int32
}

func (s *echoServer) OnOpen(Conn) ([]byte, Action) {
	s.opened.Inc()
	return nil, None
}

func (s *echoServer) OnClose(Conn, error) Action {
	s.closed.Inc()
	return None
}

func (s *echoServer) OnTraffic(c Conn) Action {
	s.traffic.Inc()
	if c.Truncated() {
		s.truncated.Inc()
	}
	if len(c.Read()) == 0 {
		s.empty.Inc()
		return None
	}
	_, _ = c.Write(c.Read())
	return None
}

func newEchoServer() *echoServer {
	return &echoServer{bootNotifier: bootNotifier{booted: make(chan Engine, 1)}}
}

func TestEngine_Echo(t *testing.T) {
	svr := newEchoServer()
	eng, addr, done := runEngine(t, svr, svr.booted)

	c := dialEngine(t, addr)
	for _, msg := range []string{"hello", "datagram", "world"} {
		_, err := c.Write([]byte(msg))
		require.NoError(t, err)
		buf := make([]byte, 64)
		n, err := c.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, msg, string(buf[:n]))
	}

	// The last reply may be on the wire before its counters are updated.
	assert.Eventually(t, func() bool {
		return eng.Stats().Snapshot().DatagramsSent == 3
	}, testTimeout, 10*time.Millisecond)
	stats := eng.Stats().Snapshot()
	assert.Equal(t, uint64(3), stats.DatagramsReceived)
	assert.Equal(t, uint64(18), stats.BytesReceived)
	assert.Equal(t, uint64(18), stats.BytesSent)
	assert.Zero(t, eng.CountConnections())
	assert.Zero(t, svr.opened.Load())

	stopEngine(t, eng, done)
	assert.ErrorIs(t, eng.Validate(), errorx.ErrEngineInShutdown)
}

func TestEngine_EmptyAndTruncatedDatagrams(t *testing.T) {
	svr := newEchoServer()
	eng, addr, done := runEngine(t, svr, svr.booted, WithMaxDatagramSize(8))

	c := dialEngine(t, addr)
	_, err := c.Write([]byte{})
	require.NoError(t, err)

	_, err = c.Write(bytes.Repeat([]byte{'x'}, 20))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'x'}, 8), buf[:n])

	assert.Equal(t, int32(1), svr.empty.Load())
	assert.Equal(t, int32(1), svr.truncated.Load())
	stats := eng.Stats().Snapshot()
	assert.Equal(t, uint64(1), stats.Empty)
	assert.Equal(t, uint64(1), stats.Truncated)

	stopEngine(t, eng, done)
}

func TestEngine_SpawnPerPeer(t *testing.T) {
	svr := newEchoServer()
	eng, addr, done := runEngine(t, svr, svr.booted, WithSpawnPerPeer(true))

	local, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer local.Close() //nolint:errcheck
	require.NoError(t, local.SetDeadline(time.Now().Add(testTimeout)))

	serverAddr := addr.(endpoint.Endpoint).UDPAddr()
	var replyFrom *net.UDPAddr
	for _, msg := range []string{"first", "second"} {
		_, err = local.WriteToUDP([]byte(msg), serverAddr)
		require.NoError(t, err)
		buf := make([]byte, 64)
		n, from, err := local.ReadFromUDP(buf)
		require.NoError(t, err)
		assert.Equal(t, msg, string(buf[:n]))
		assert.NotEqual(t, serverAddr.Port, from.Port, "replies come from the spawned socket")
		if replyFrom != nil {
			assert.Equal(t, replyFrom.Port, from.Port)
		}
		replyFrom = from
	}

	// The spawned socket serves the peer directly as well.
	_, err = local.WriteToUDP([]byte("direct"), replyFrom)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, _, err := local.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(buf[:n]))

	assert.Equal(t, int32(1), svr.opened.Load())
	assert.Equal(t, 1, eng.CountConnections())

	stopEngine(t, eng, done)
	assert.Equal(t, int32(1), svr.closed.Load())
}

// unbindableServer makes every ephemeral socket creation fail by pointing the
// acceptors at an address that is not assigned to this host.
type unbindableServer struct {
	*echoServer
	listening chan net.Addr
}

func (s *unbindableServer) OnBoot(eng Engine) Action {
	s.listening <- eng.Addrs()[0]
	eng.eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		el.acceptor.ln.local = endpoint.IPv4(192, 0, 2, 1, 0)
		return true
	})
	return s.echoServer.OnBoot(eng)
}

func TestEngine_SpawnPerPeerSkipsUnbindablePeer(t *testing.T) {
	svr := &unbindableServer{echoServer: newEchoServer(), listening: make(chan net.Addr, 1)}
	eng, _, done := runEngine(t, svr, svr.booted, WithSpawnPerPeer(true))
	addr := <-svr.listening

	c := dialEngine(t, addr)
	_, err := c.Write([]byte("dropped"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return eng.Stats().Snapshot().DatagramsReceived >= 1
	}, testTimeout, 10*time.Millisecond)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = c.Read(make([]byte, 64))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())

	assert.Zero(t, svr.opened.Load())
	assert.Zero(t, svr.traffic.Load())
	assert.Zero(t, eng.CountConnections())
	assert.Zero(t, eng.Stats().Snapshot().DatagramsSent)

	stopEngine(t, eng, done)
	assert.Zero(t, svr.closed.Load())
}

type shutdownServer struct {
	bootNotifier
}

func (s *shutdownServer) OnTraffic(c Conn) Action {
	_, _ = c.Write(c.Read())
	return Shutdown
}

func TestEngine_ShutdownAction(t *testing.T) {
	svr := &shutdownServer{bootNotifier{booted: make(chan Engine, 1)}}
	_, addr, done := runEngine(t, svr, svr.booted)

	c := dialEngine(t, addr)
	_, err := c.Write([]byte("bye"))
	require.NoError(t, err)

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("engine did not shut down")
	}
}

type tickServer struct {
	bootNotifier
	ticks atomic.Int32
}

func (s *tickServer) OnTick() (time.Duration, Action) {
	if s.ticks.Inc() >= 3 {
		return time.Millisecond, Shutdown
	}
	return time.Millisecond, None
}

func TestEngine_Ticker(t *testing.T) {
	svr := &tickServer{bootNotifier: bootNotifier{booted: make(chan Engine, 1)}}
	_, _, done := runEngine(t, svr, svr.booted, WithTicker(true))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("ticker did not shut the engine down")
	}
	assert.GreaterOrEqual(t, svr.ticks.Load(), int32(3))
}

func TestEngine_MultipleEventLoops(t *testing.T) {
	svr := newEchoServer()
	eng, addr, done := runEngine(t, svr, svr.booted, WithNumEventLoop(2))

	addrs := eng.Addrs()
	require.Len(t, addrs, 2)
	assert.Equal(t, addrs[0].String(), addrs[1].String())

	c := dialEngine(t, addr)
	_, err := c.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	stopEngine(t, eng, done)
}

func TestRun_BadAddresses(t *testing.T) {
	events := new(BuiltinEventEngine)
	assert.Error(t, Run(events, "tcp://127.0.0.1:0"))
	assert.Error(t, Run(events, "udp4://127.0.0.1"))
	assert.Error(t, Run(events, "udp4://127.0.0.1:notaport"))
}

func TestStop_UnknownEngine(t *testing.T) {
	assert.ErrorIs(t, Stop(context.Background(), "udp://127.0.0.1:1"), errorx.ErrEngineInShutdown)
}

func TestParseProtoAddr(t *testing.T) {
	network, address := parseProtoAddr("udp6://[::1]:9000")
	assert.Equal(t, "udp6", network)
	assert.Equal(t, "[::1]:9000", address)

	network, address = parseProtoAddr("127.0.0.1:9000")
	assert.Equal(t, "udp", network)
	assert.Equal(t, "127.0.0.1:9000", address)
}
