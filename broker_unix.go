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
	"net"

	"github.com/dgramio/dgram/internal/queue"
	"github.com/dgramio/dgram/internal/socket"
	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/netpoll"
)

// udpSocket is the Socket capability of a broker.
type udpSocket struct {
	fd     int
	family int
}

func (s udpSocket) Fd() int { return s.fd }

func (s udpSocket) RecvFrom(p []byte) (int, bool, endpoint.Endpoint, error) {
	return socket.RecvFrom(s.fd, p)
}

func (s udpSocket) SendTo(p []byte, to endpoint.Endpoint) (int, error) {
	return socket.SendTo(s.fd, s.family, p, to)
}

func localEndpoint(fd int) (endpoint.Endpoint, error) {
	return socket.LocalEndpoint(fd)
}

// broker binds one socket and its Transport to an event-loop, it drives the
// Transport on readiness events and is the Conn seen by the EventHandler.
type broker struct {
	fd             int
	sock           udpSocket
	loop           *eventloop
	transport      *Transport
	local          endpoint.Endpoint
	pollAttachment netpoll.PollAttachment
	ctx            any
	opened         bool
	closed         bool
	listening      bool

	// Set while the listening broker of this peer hands a datagram over.
	handedOver       bool
	inbound          []byte
	inboundTruncated bool

	parent *broker                       // listening broker which spawned this one
	peers  map[endpoint.Endpoint]*broker // spawned brokers, only on listening brokers
}

func newBroker(fd, family int, el *eventloop, tr *Transport) *broker {
	b := &broker{
		fd:        fd,
		sock:      udpSocket{fd: fd, family: family},
		loop:      el,
		transport: tr,
	}
	b.pollAttachment = netpoll.PollAttachment{FD: fd, Callback: b.processIO}
	return b
}

func (b *broker) processIO(_ int, ev netpoll.IOEvent, flags netpoll.IOFlags) error {
	el := b.loop
	if netpoll.IsWriteEvent(ev) {
		if err := el.write(b); err != nil {
			return err
		}
	}
	if netpoll.IsReadEvent(ev) || netpoll.IsErrorEvent(ev, flags) {
		return el.read(b)
	}
	return nil
}

func (b *broker) handoff(p []byte, truncated bool) {
	b.inbound, b.inboundTruncated, b.handedOver = p, truncated, p != nil
}

// ================================== Implementation of Context ==================================

func (b *broker) Socket() Socket { return b.sock }

func (b *broker) StartWriting() error {
	if b.closed {
		return errorx.ErrClosed
	}
	return b.loop.poller.ModReadWrite(&b.pollAttachment)
}

func (b *broker) StopWriting() error {
	if b.closed {
		return nil
	}
	return b.loop.poller.ModRead(&b.pollAttachment)
}

// Start registers the broker with its event-loop and opens it, it must be called on the loop goroutine.
func (b *broker) Start() error {
	return b.loop.register(b)
}

// ==================================== Implementation of Conn ====================================

func (b *broker) Context() any { return b.ctx }

func (b *broker) SetContext(ctx any) { b.ctx = ctx }

func (b *broker) LocalAddr() net.Addr {
	if b.local.Port() == 0 && !b.closed {
		// Dialed sockets are bound implicitly by their first send.
		if local, err := localEndpoint(b.fd); err == nil {
			b.local = local
		}
	}
	if !b.local.IsValid() || b.local.Port() == 0 {
		return nil
	}
	return b.local
}

func (b *broker) RemoteAddr() net.Addr {
	ep := b.transport.Endpoint()
	if b.listening {
		ep = b.transport.Sender()
	}
	if !ep.IsValid() {
		return nil
	}
	return ep
}

func (b *broker) Fd() int { return b.fd }

func (b *broker) Read() []byte {
	if b.handedOver {
		return b.inbound
	}
	if b.closed {
		return nil
	}
	return b.transport.Received()
}

func (b *broker) Truncated() bool {
	if b.handedOver {
		return b.inboundTruncated
	}
	return !b.closed && b.transport.Truncated()
}

func (b *broker) Write(p []byte) (int, error) {
	if b.closed {
		return 0, errorx.ErrClosed
	}
	if b.listening {
		return b.sendTo(p, b.transport.Sender())
	}
	if err := b.transport.WriteDatagram(p); err != nil {
		return 0, err
	}
	if err := b.transport.Flush(b); err != nil {
		// The datagram is reported as not written, it must not go out with a later one.
		b.transport.discardOpenDatagram()
		return 0, err
	}
	return len(p), nil
}

func (b *broker) SendTo(p []byte, addr net.Addr) (int, error) {
	if b.closed {
		return 0, errorx.ErrClosed
	}
	var (
		ep  endpoint.Endpoint
		err error
	)
	switch a := addr.(type) {
	case endpoint.Endpoint:
		ep = a
	case *net.UDPAddr:
		if ep, err = endpoint.FromUDPAddr(a); err != nil {
			return 0, err
		}
	default:
		return 0, errorx.ErrInvalidNetworkAddress
	}
	return b.sendTo(p, ep)
}

func (b *broker) sendTo(p []byte, to endpoint.Endpoint) (int, error) {
	if len(p) > b.transport.MaxDatagramSize() {
		return 0, errorx.ErrTooLarge
	}
	n, err := b.sock.SendTo(p, to)
	if err != nil {
		b.transport.stats.addWriteFailure()
		return 0, err
	}
	if n != len(p) {
		b.transport.stats.addShortSend()
		return n, errorx.ErrShortWrite
	}
	b.transport.stats.addSent(n)
	return n, nil
}

func (b *broker) AsyncWrite(p []byte, callback AsyncCallback) error {
	return b.loop.poller.Trigger(queue.LowPriority, func(any) (err error) {
		_, err = b.Write(p)
		if callback != nil {
			_ = callback(b, err)
		}
		return nil
	}, nil)
}

func (b *broker) Buffered() int {
	if b.closed {
		return 0
	}
	return b.transport.Buffered()
}

func (b *broker) Close() error {
	if b.listening {
		return errorx.ErrUnsupportedOp
	}
	return b.loop.poller.Trigger(queue.LowPriority, func(any) error {
		return b.loop.close(b, nil)
	}, nil)
}
