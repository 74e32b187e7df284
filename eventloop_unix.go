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
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/queue"
	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/logging"
	"github.com/dgramio/dgram/pkg/netpoll"
)

// defaultTickDelay is used when OnTick does not ask for a positive delay.
const defaultTickDelay = time.Second

type eventloop struct {
	idx          int             // loop index in the engine loops list
	engine       *engine         // engine in loop
	poller       *netpoll.Poller // epoll or kqueue
	acceptor     *Acceptor       // creates the sockets of this loop, nil on client loops
	ln           *listener       // listening socket, nil on client loops
	listener     *broker         // broker of the listening socket
	brokers      map[int]*broker // brokers bound to a single peer
	count        atomic.Int32    // number of brokers in brokers
	eventHandler EventHandler    // user eventHandler
}

func (el *eventloop) getLogger() logging.Logger {
	return el.engine.opts.Logger
}

func (el *eventloop) countBrokers() int32 {
	return el.count.Load()
}

func (el *eventloop) run() error {
	if el.engine.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	err := el.poller.Polling()
	if errors.Is(err, errorx.ErrEngineShutdown) {
		el.getLogger().Debugf("event-loop(%d) is exiting in terms of the demand from user, %v", el.idx, err)
		err = nil
	} else if err != nil {
		el.getLogger().Errorf("event-loop(%d) is exiting due to error: %v", el.idx, err)
	}

	el.closeBrokers()
	el.engine.shutdown(err)

	return err
}

func (el *eventloop) closeBrokers() {
	for _, b := range el.brokers {
		_ = el.close(b, nil)
	}
}

// register adds b to the poller of the loop and opens it, it must run on the loop goroutine.
func (el *eventloop) register(b *broker) error {
	if err := el.poller.AddRead(&b.pollAttachment); err != nil {
		_ = unix.Close(b.fd)
		b.transport.Release()
		b.closed = true
		return err
	}
	el.brokers[b.fd] = b
	el.count.Inc()
	return el.open(b)
}

func (el *eventloop) open(b *broker) error {
	b.opened = true

	out, action := el.eventHandler.OnOpen(b)
	if out != nil {
		if _, err := b.Write(out); err != nil {
			el.getLogger().Warnf("failed to queue the first datagram of fd=%d: %v", b.fd, err)
		}
	}

	return el.handleAction(b, action)
}

func (el *eventloop) read(b *broker) error {
	if b.closed {
		return nil
	}

	if b.transport.ReadSome(b) == Failure {
		if b.listening {
			// A listening socket serves many peers, one of them misbehaving must not take it down.
			b.transport.PrepareNextRead(b)
			return nil
		}
		return el.close(b, errorx.ErrReadFailure)
	}
	if !b.transport.Sender().IsValid() {
		// Spurious readiness, nothing was pending.
		return nil
	}

	if b.peers != nil {
		return el.route(b)
	}

	action := el.eventHandler.OnTraffic(b)
	if !b.closed {
		b.transport.PrepareNextRead(b)
	}
	return el.handleAction(b, action)
}

// route hands the datagram received on a listening socket to the broker of its
// sender, the broker is spawned on an ephemeral socket the first time the sender shows up.
func (el *eventloop) route(ln *broker) error {
	defer ln.transport.PrepareNextRead(ln)

	from := ln.transport.Sender()
	peer, ok := ln.peers[from]
	if !ok {
		fd, tr := el.acceptor.AcceptEvent(ln)
		if fd == InvalidFD {
			return nil
		}
		tr.SetEndpoint(from)
		peer = newBroker(fd, ln.sock.family, el, tr)
		peer.parent = ln
		if local, err := localEndpoint(fd); err == nil {
			peer.local = local
		}
		ln.peers[from] = peer
		if err := el.acceptor.Init(peer); err != nil {
			delete(ln.peers, from)
			if errors.Is(err, errorx.ErrEngineShutdown) {
				return err
			}
			el.getLogger().Warnf("failed to start broker for peer %s in event-loop(%d): %v", from, el.idx, err)
			return nil
		}
		if peer.closed {
			return nil
		}
	}

	peer.handoff(ln.transport.Received(), ln.transport.Truncated())
	action := el.eventHandler.OnTraffic(peer)
	peer.handoff(nil, false)
	return el.handleAction(peer, action)
}

func (el *eventloop) write(b *broker) error {
	if b.closed {
		return nil
	}
	if b.transport.WriteSome(b) == Failure {
		return el.close(b, errorx.ErrWriteFailure)
	}
	return nil
}

func (el *eventloop) close(b *broker, err error) error {
	if b.closed || b.listening {
		return nil
	}

	// Send the residual datagrams to the peer before actually closing the socket.
	for b.transport.Writing() {
		pending := b.transport.PendingDatagrams()
		if b.transport.WriteSome(b) == Failure || b.transport.PendingDatagrams() == pending {
			break
		}
	}
	b.closed = true

	delete(el.brokers, b.fd)
	el.count.Dec()
	if b.parent != nil {
		delete(b.parent.peers, b.transport.Endpoint())
	}

	var action Action
	if b.opened {
		action = el.eventHandler.OnClose(b, err)
	}
	b.transport.Release()

	var errStr strings.Builder
	err0, err1 := el.poller.Delete(b.fd), unix.Close(b.fd)
	if err0 != nil {
		err0 = fmt.Errorf("failed to delete fd=%d from poller in event-loop(%d): %v",
			b.fd, el.idx, os.NewSyscallError("delete", err0))
		errStr.WriteString(err0.Error())
		errStr.WriteString(" | ")
	}
	if err1 != nil {
		err1 = fmt.Errorf("failed to close fd=%d in event-loop(%d): %v",
			b.fd, el.idx, os.NewSyscallError("close", err1))
		errStr.WriteString(err1.Error())
	}
	if errStr.Len() > 0 {
		return errors.New(strings.TrimSuffix(errStr.String(), " | "))
	}

	return el.handleAction(b, action)
}

func (el *eventloop) ticker(ctx context.Context) {
	var (
		action Action
		delay  time.Duration
		timer  *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		delay, action = el.eventHandler.OnTick()
		switch action {
		case None, Close:
		case Shutdown:
			// It seems reasonable to mark this as low-priority, waiting for some tasks like asynchronous writes
			// to finish up before shutting down the service.
			err := el.poller.Trigger(queue.LowPriority, func(_ any) error { return errorx.ErrEngineShutdown }, nil)
			if err != nil {
				el.getLogger().Debugf("failed to enqueue shutdown signal of low-priority for event-loop(%d): %v", el.idx, err)
			}
		}
		if delay <= 0 {
			delay = defaultTickDelay
		}
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			el.getLogger().Debugf("stopping ticker in event-loop(%d) from Engine, error:%v", el.idx, ctx.Err())
			return
		case <-timer.C:
		}
	}
}

func (el *eventloop) handleAction(b *broker, action Action) error {
	switch action {
	case None:
		return nil
	case Close:
		if b.listening {
			return nil
		}
		return el.close(b, nil)
	case Shutdown:
		return errorx.ErrEngineShutdown
	default:
		return nil
	}
}
