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

package dgram

import (
	"errors"

	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/logging"
	"github.com/dgramio/dgram/pkg/pool/bytebuffer"
	"github.com/dgramio/dgram/pkg/pool/byteslice"
)

// DefaultMaxDatagramSize is the largest payload a UDP datagram can carry in its 16-bit length field.
const DefaultMaxDatagramSize = 1<<16 - 1

// RWState is the outcome of a single read or write step of a Transport.
type RWState int

const (
	// Success means the step completed, possibly without moving any data.
	Success RWState = iota
	// Failure means the socket hit a hard error and the driver must tear it down.
	Failure
)

func (s RWState) String() string {
	if s == Success {
		return "success"
	}
	return "failure"
}

// Socket is the capability handed to a Transport for the duration of one call.
type Socket interface {
	// Fd returns the underlying descriptor.
	Fd() int
	// RecvFrom receives a single datagram into p. It returns errors.ErrWouldBlock
	// when nothing is pending and sets truncated when the datagram did not fit into p.
	RecvFrom(p []byte) (n int, truncated bool, from endpoint.Endpoint, err error)
	// SendTo sends p as one datagram to the endpoint, it returns errors.ErrWouldBlock
	// when the socket cannot take it right now.
	SendTo(p []byte, to endpoint.Endpoint) (n int, err error)
}

// Context is what the event-loop driver exposes to a Transport.
type Context interface {
	Socket() Socket
	// StartWriting subscribes the socket to write readiness.
	StartWriting() error
	// StopWriting drops the write readiness subscription.
	StopWriting() error
}

// Transport is the datagram read/write state machine of one socket.
//
// Outbound datagrams are staged in an offline buffer while another batch is
// being drained from the send buffer, the boundaries of the datagrams in each
// buffer are kept in a queue of sizes so that every datagram goes out in
// exactly one send call.
//
// A Transport is not safe for concurrent use, all methods must be called from
// the goroutine that owns its socket.
type Transport struct {
	maxDatagramSize int

	receive   []byte
	received  int
	truncated bool
	sender    endpoint.Endpoint

	// peer is the destination of outbound datagrams, the zero Endpoint means unbound.
	peer endpoint.Endpoint

	send      *bytebuffer.ByteBuffer
	sendSizes []int
	sendHead  int
	written   int

	offline      *bytebuffer.ByteBuffer
	offlineSizes []int
	offlineSum   int

	writing bool

	// seq invalidates DatagramWriters handed out before the latest BeginDatagram or buffer swap.
	seq uint64

	logger logging.Logger
	stats  *Stats
}

// NewTransport returns a Transport whose receive buffer holds maxDatagramSize bytes,
// DefaultMaxDatagramSize is used when maxDatagramSize is not positive.
func NewTransport(maxDatagramSize int) *Transport {
	if maxDatagramSize <= 0 || maxDatagramSize > DefaultMaxDatagramSize {
		maxDatagramSize = DefaultMaxDatagramSize
	}
	return &Transport{
		maxDatagramSize: maxDatagramSize,
		receive:         byteslice.Get(maxDatagramSize),
		send:            bytebuffer.Get(),
		offline:         bytebuffer.Get(),
		logger:          logging.GetDefaultLogger(),
	}
}

func (t *Transport) setLogger(logger logging.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

func (t *Transport) setStats(stats *Stats) {
	t.stats = stats
}

// ReadSome receives exactly one datagram from the socket of ctx.
//
// An empty datagram and a datagram truncated by the kernel are both reported as
// Success, the latter with Truncated set and ReceivedBytes capped to the buffer size.
// The sender of the first datagram becomes the destination when none is bound yet.
func (t *Transport) ReadSome(ctx Context) RWState {
	t.sender.Reset()
	n, truncated, from, err := ctx.Socket().RecvFrom(t.receive[:t.maxDatagramSize])
	if err != nil {
		if errors.Is(err, errorx.ErrWouldBlock) {
			return Success
		}
		t.logger.Errorf("recvfrom failed on fd=%d: %v", ctx.Socket().Fd(), err)
		t.stats.addReadFailure()
		return Failure
	}

	t.sender = from
	switch {
	case truncated:
		n = t.maxDatagramSize
		t.logger.Warnf("recvfrom cut off datagram from %s, only received %d bytes", from, n)
		t.stats.addTruncated()
	case n == 0:
		t.logger.Infof("received empty datagram from %s", from)
		t.stats.addEmpty()
	}
	t.received, t.truncated = n, truncated
	t.stats.addReceived(n)

	if !t.peer.IsValid() {
		t.peer = from
	}
	return Success
}

// PrepareNextRead makes the whole receive buffer available for the next datagram.
func (t *Transport) PrepareNextRead(Context) {
	t.received = 0
	t.truncated = false
	t.receive = t.receive[:t.maxDatagramSize]
}

// DatagramWriter appends the bytes of one outbound datagram to the offline buffer of a Transport.
//
// A writer is only valid until the next BeginDatagram or until its datagram is
// swapped into the send buffer, later writes fail with errors.ErrStaleDatagram.
type DatagramWriter struct {
	t   *Transport
	seq uint64
}

// Write appends p to the datagram.
func (w DatagramWriter) Write(p []byte) (int, error) {
	t := w.t
	if t == nil || t.offline == nil || w.seq != t.seq {
		return 0, errorx.ErrStaleDatagram
	}
	if t.offline.Len()-t.offlineSum+len(p) > t.maxDatagramSize {
		return 0, errorx.ErrTooLarge
	}
	return t.offline.Write(p)
}

// BeginDatagram starts a new outbound datagram and returns the writer its bytes must go through.
//
// The datagram opened by the previous call is finalized first, so each datagram has
// to be opened by its own BeginDatagram call.
func (t *Transport) BeginDatagram() DatagramWriter {
	if chunk := t.offline.Len() - t.offlineSum; chunk > 0 {
		t.offlineSizes = append(t.offlineSizes, chunk)
		t.offlineSum += chunk
	}
	t.seq++
	return DatagramWriter{t: t, seq: t.seq}
}

// WriteDatagram queues p as one outbound datagram without flushing it.
func (t *Transport) WriteDatagram(p []byte) error {
	if len(p) > t.maxDatagramSize {
		return errorx.ErrTooLarge
	}
	_, err := t.BeginDatagram().Write(p)
	return err
}

// discardOpenDatagram drops the bytes of the datagram that has not been finalized yet.
func (t *Transport) discardOpenDatagram() {
	t.offline.B = t.offline.B[:t.offlineSum]
	t.seq++
}

// Flush subscribes to write readiness and moves the staged datagrams into the
// send buffer unless a send cycle is already in progress.
func (t *Transport) Flush(ctx Context) error {
	if t.offline.Len() == 0 || t.writing {
		return nil
	}
	if err := ctx.StartWriting(); err != nil {
		return err
	}
	t.writing = true
	t.PrepareNextWrite(ctx)
	return nil
}

// PrepareNextWrite drops the drained send buffer and swaps in the staged datagrams,
// the send cycle ends when nothing is staged.
func (t *Transport) PrepareNextWrite(ctx Context) {
	t.written = 0
	t.send.Reset()
	t.sendSizes = t.sendSizes[:0]
	t.sendHead = 0

	if t.offline.Len() == 0 {
		t.writing = false
		if err := ctx.StopWriting(); err != nil {
			t.logger.Warnf("failed to stop writing on fd=%d: %v", ctx.Socket().Fd(), err)
		}
		return
	}

	if chunk := t.offline.Len() - t.offlineSum; chunk > 0 {
		t.offlineSizes = append(t.offlineSizes, chunk)
	}
	t.send, t.offline = exchangeBuffers(t.send, t.offline)
	t.sendSizes, t.offlineSizes = exchangeSizes(t.sendSizes, t.offlineSizes)
	t.offlineSum = 0
	t.seq++
}

func exchangeBuffers(send, offline *bytebuffer.ByteBuffer) (*bytebuffer.ByteBuffer, *bytebuffer.ByteBuffer) {
	return offline, send
}

func exchangeSizes(send, offline []int) ([]int, []int) {
	return offline, send[:0]
}

// WriteSome sends the datagram at the front of the send buffer to the bound destination.
//
// A would-block condition leaves everything in place and reports Success.
// A hard error or a datagram the kernel did not take as a whole is a Failure
// and leaves the send queue untouched.
func (t *Transport) WriteSome(ctx Context) RWState {
	if !t.writing {
		return Success
	}
	if t.sendHead >= len(t.sendSizes) {
		if t.written < t.send.Len() {
			t.logger.Errorf("send buffer of fd=%d holds %d bytes outside any datagram",
				ctx.Socket().Fd(), t.send.Len()-t.written)
			t.stats.addWriteFailure()
			return Failure
		}
		t.PrepareNextWrite(ctx)
		return Success
	}
	if !t.peer.IsValid() {
		t.logger.Errorf("sendto failed on fd=%d: %v", ctx.Socket().Fd(), errorx.ErrUnboundEndpoint)
		t.stats.addWriteFailure()
		return Failure
	}

	size := t.sendSizes[t.sendHead]
	chunk := t.send.B[t.written : t.written+size]
	n, err := ctx.Socket().SendTo(chunk, t.peer)
	if err != nil {
		if errors.Is(err, errorx.ErrWouldBlock) {
			return Success
		}
		t.logger.Errorf("sendto %s failed on fd=%d: %v", t.peer, ctx.Socket().Fd(), err)
		t.stats.addWriteFailure()
		return Failure
	}
	if n != size {
		t.logger.Errorf("failed to send complete datagram to %s, sent %d of %d bytes: %v",
			t.peer, n, size, errorx.ErrShortWrite)
		t.stats.addShortSend()
		return Failure
	}

	t.sendHead++
	t.written += n
	t.stats.addSent(n)
	if t.written == t.send.Len() {
		t.PrepareNextWrite(ctx)
	}
	return Success
}

// Received returns the payload of the last datagram read.
func (t *Transport) Received() []byte { return t.receive[:t.received] }

// ReceivedBytes returns the size of the last datagram read, capped to the buffer size.
func (t *Transport) ReceivedBytes() int { return t.received }

// Truncated reports whether the last datagram read did not fit into the receive buffer.
func (t *Transport) Truncated() bool { return t.truncated }

// Sender returns the origin of the last datagram read.
func (t *Transport) Sender() endpoint.Endpoint { return t.sender }

// Endpoint returns the destination of outbound datagrams, the zero Endpoint when unbound.
func (t *Transport) Endpoint() endpoint.Endpoint { return t.peer }

// SetEndpoint binds the destination of outbound datagrams, reads no longer override it.
func (t *Transport) SetEndpoint(ep endpoint.Endpoint) { t.peer = ep }

// Writing reports whether a send cycle is registered with the driver.
func (t *Transport) Writing() bool { return t.writing }

// Written returns the number of bytes already sent out of the send buffer.
func (t *Transport) Written() int { return t.written }

// PendingDatagrams returns the number of queued datagrams that have not been sent yet.
func (t *Transport) PendingDatagrams() int {
	n := len(t.sendSizes) - t.sendHead + len(t.offlineSizes)
	if t.offline.Len() > t.offlineSum {
		n++
	}
	return n
}

// Buffered returns the number of outbound bytes that have not been sent yet.
func (t *Transport) Buffered() int {
	return t.send.Len() - t.written + t.offline.Len()
}

// MaxDatagramSize returns the capacity of the receive buffer.
func (t *Transport) MaxDatagramSize() int { return t.maxDatagramSize }

// Release returns the buffers of t to their pools, t must not be used afterwards.
func (t *Transport) Release() {
	byteslice.Put(t.receive)
	bytebuffer.Put(t.send)
	bytebuffer.Put(t.offline)
	t.receive, t.send, t.offline = nil, nil, nil
	t.sendSizes, t.offlineSizes = nil, nil
	t.received, t.written, t.offlineSum, t.sendHead = 0, 0, 0, 0
	t.writing = false
	t.seq++
}
