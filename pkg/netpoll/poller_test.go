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

package netpoll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/queue"
	errorx "github.com/dgramio/dgram/pkg/errors"
)

func socketPair(t *testing.T) (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPoller_ReadEventAndShutdown(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	rfd, wfd := socketPair(t)

	got := make(chan []byte, 1)
	pa := &PollAttachment{FD: rfd, Callback: func(fd int, ev IOEvent, _ IOFlags) error {
		if !IsReadEvent(ev) {
			return nil
		}
		buf := make([]byte, 64)
		n, err := unix.Read(fd, buf)
		if err != nil {
			return err
		}
		got <- buf[:n]
		return errorx.ErrEngineShutdown
	}}
	require.NoError(t, p.AddRead(pa))

	done := make(chan error, 1)
	go func() { done <- p.Polling() }()

	_, err = unix.Write(wfd, []byte("ping"))
	require.NoError(t, err)

	select {
	case data := <-got:
		require.Equal(t, []byte("ping"), data)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for read event")
	}
	select {
	case err = <-done:
		require.ErrorIs(t, err, errorx.ErrEngineShutdown)
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_TriggerAndWriteEvents(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	_, wfd := socketPair(t)

	writable := make(chan struct{}, 1)
	pa := &PollAttachment{FD: wfd, Callback: func(_ int, ev IOEvent, _ IOFlags) error {
		if IsWriteEvent(ev) {
			select {
			case writable <- struct{}{}:
			default:
			}
		}
		return nil
	}}
	require.NoError(t, p.AddRead(pa))

	done := make(chan error, 1)
	go func() { done <- p.Polling() }()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, p.Trigger(queue.LowPriority, func(any) error {
			order = append(order, i)
			return nil
		}, nil))
	}
	require.NoError(t, p.Trigger(queue.LowPriority, func(any) error {
		return p.ModReadWrite(pa)
	}, nil))

	select {
	case <-writable:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for write event")
	}

	require.NoError(t, p.Trigger(queue.HighPriority, func(any) error {
		if err := p.ModRead(pa); err != nil {
			return err
		}
		return errorx.ErrEngineShutdown
	}, nil))
	select {
	case err = <-done:
		require.ErrorIs(t, err, errorx.ErrEngineShutdown)
	case <-time.After(3 * time.Second):
		t.Fatal("poller did not stop")
	}
	require.Equal(t, []int{0, 1, 2}, order)
	require.NoError(t, p.Delete(wfd))
}
