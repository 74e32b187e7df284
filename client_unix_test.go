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
	"context"
	"net"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dgramio/dgram/internal/queue"
	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
)

// startUDPEchoServer echoes every datagram back to its sender until the test ends.
func startUDPEchoServer(t *testing.T) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := c.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_, _ = c.WriteToUDP(buf[:n], from)
		}
	}()
	return c
}

type clientEvents struct {
	*BuiltinEventEngine
	opened   atomic.Int32
	closed   chan error
	received chan []byte
	from     chan net.Addr
}

func newClientEvents() *clientEvents {
	return &clientEvents{
		closed:   make(chan error, 1),
		received: make(chan []byte, 16),
		from:     make(chan net.Addr, 16),
	}
}

func (ev *clientEvents) OnOpen(Conn) ([]byte, Action) {
	ev.opened.Inc()
	return []byte("greeting"), None
}

func (ev *clientEvents) OnClose(_ Conn, err error) Action {
	ev.closed <- err
	return None
}

func (ev *clientEvents) OnTraffic(c Conn) Action {
	ev.received <- append([]byte(nil), c.Read()...)
	ev.from <- c.RemoteAddr()
	return None
}

func (ev *clientEvents) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-ev.received:
		assert.Equal(t, want, string(got))
	case <-time.After(testTimeout):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func TestClient_DialAndEcho(t *testing.T) {
	svr := startUDPEchoServer(t)

	ev := newClientEvents()
	cli, err := NewClient(ev, WithNumEventLoop(2), WithLoadBalancing(DestinationHash))
	require.NoError(t, err)
	require.NoError(t, cli.Start())
	defer cli.Stop() //nolint:errcheck

	c, err := cli.Dial("udp4", svr.LocalAddr().String())
	require.NoError(t, err)
	assert.Equal(t, int32(1), ev.opened.Load())
	assert.Equal(t, svr.LocalAddr().String(), c.RemoteAddr().String())

	// The datagram returned by OnOpen goes out first.
	ev.expect(t, "greeting")
	from := <-ev.from
	assert.Equal(t, svr.LocalAddr().String(), from.String())
	require.NotNil(t, c.LocalAddr())

	for _, msg := range []string{"one", "two", "three"} {
		written := make(chan error, 1)
		require.NoError(t, c.AsyncWrite([]byte(msg), func(_ Conn, err error) error {
			written <- err
			return nil
		}))
		select {
		case err = <-written:
			require.NoError(t, err)
		case <-time.After(testTimeout):
			t.Fatal("timeout waiting for the write callback")
		}
		ev.expect(t, msg)
	}

	stats := cli.Stats().Snapshot()
	assert.Equal(t, uint64(4), stats.DatagramsReceived)
	assert.Equal(t, uint64(4), stats.DatagramsSent)

	require.NoError(t, c.Close())
	select {
	case err = <-ev.closed:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for OnClose")
	}
}

func TestClient_DialErrors(t *testing.T) {
	cli, err := NewClient(newClientEvents())
	require.NoError(t, err)
	require.NoError(t, cli.Start())
	defer cli.Stop() //nolint:errcheck

	_, err = cli.Dial("tcp", "127.0.0.1:9000")
	assert.ErrorIs(t, err, errorx.ErrUnsupportedProtocol)

	_, err = cli.Dial("udp4", "127.0.0.1")
	var resolveErr *ResolveError
	assert.ErrorAs(t, err, &resolveErr)

	_, err = cli.Dial("udp4", "127.0.0.1:99999")
	assert.ErrorIs(t, err, errorx.ErrInvalidNetworkAddress)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cli.DialContext(ctx, "udp4", "127.0.0.1:9000")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestClient_DialAfterStop(t *testing.T) {
	cli, err := NewClient(newClientEvents())
	require.NoError(t, err)
	require.NoError(t, cli.Start())
	require.NoError(t, cli.Stop())

	_, err = cli.Dial("udp4", "127.0.0.1:9000")
	assert.ErrorIs(t, err, errorx.ErrEngineInShutdown)
}

func openFds(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestClient_DialDuringShutdownReleasesSocket(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("descriptors are counted through /proc")
	}
	cli, err := NewClient(newClientEvents(), WithNumEventLoop(1))
	require.NoError(t, err)
	require.NoError(t, cli.Start())
	defer cli.Stop() //nolint:errcheck

	// The event-loops are gone but the client has not been stopped yet.
	cli.eng.shutdown(nil)
	cli.eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		require.NoError(t, el.poller.Trigger(queue.HighPriority,
			func(any) error { return errorx.ErrEngineShutdown }, nil))
		return true
	})
	require.NoError(t, cli.eng.concurrency.Wait())

	before := openFds(t)
	for i := 0; i < 3; i++ {
		_, err = cli.Dial("udp4", "127.0.0.1:9")
		assert.ErrorIs(t, err, errorx.ErrEngineInShutdown)
	}
	assert.Equal(t, before, openFds(t))
}

func TestClient_SendToOtherPeer(t *testing.T) {
	first := startUDPEchoServer(t)
	second := startUDPEchoServer(t)

	ev := newClientEvents()
	cli, err := NewClient(ev)
	require.NoError(t, err)
	require.NoError(t, cli.Start())
	defer cli.Stop() //nolint:errcheck

	c, err := cli.Dial("udp4", first.LocalAddr().String())
	require.NoError(t, err)
	ev.expect(t, "greeting")
	<-ev.from

	target, err := endpoint.FromUDPAddr(second.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	sent := make(chan error, 1)
	require.NoError(t, c.AsyncWrite([]byte("hop"), func(c Conn, err error) error {
		if err == nil {
			_, err = c.SendTo([]byte("aside"), target)
		}
		sent <- err
		return nil
	}))
	require.NoError(t, <-sent)

	// Both peers answer, a dialed Conn accepts datagrams from any sender.
	got := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case p := <-ev.received:
			got[string(p)] = true
		case <-time.After(testTimeout):
			t.Fatal("timeout waiting for replies")
		}
		from := <-ev.from
		assert.Equal(t, first.LocalAddr().String(), from.String(), "RemoteAddr stays the dialed peer")
	}
	assert.Equal(t, map[string]bool{"hop": true, "aside": true}, got)
}
