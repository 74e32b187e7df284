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
	"strings"
	"sync"
	"time"

	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/logging"
)

// Action is an action that occurs after the completion of an event.
type Action int

const (
	// None indicates that no action should occur following an event.
	None Action = iota

	// Close closes the connection.
	Close

	// Shutdown shutdowns the engine.
	Shutdown
)

// Engine represents an engine context which provides information about the running engine
// and has control functions for managing state.
type Engine struct {
	eng *engine
}

// Validate checks whether the engine is available.
func (e Engine) Validate() error {
	if e.eng == nil {
		return errorx.ErrEmptyEngine
	}
	if e.eng.isInShutdown() {
		return errorx.ErrEngineInShutdown
	}
	return nil
}

// CountConnections counts the number of currently active brokers and returns it.
func (e Engine) CountConnections() (count int) {
	if e.Validate() != nil {
		return -1
	}

	e.eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		count += int(el.countBrokers())
		return true
	})
	return
}

// Stats returns the traffic counters of the engine.
func (e Engine) Stats() *Stats {
	if e.eng == nil {
		return nil
	}
	return e.eng.stats
}

// Addrs returns the local endpoints the engine is listening on, one per event-loop.
func (e Engine) Addrs() (addrs []net.Addr) {
	if e.eng == nil {
		return nil
	}
	e.eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		if el.ln != nil {
			addrs = append(addrs, el.ln.local)
		}
		return true
	})
	return
}

// Stop gracefully shuts down this Engine without interrupting any active event-loops,
// it waits indefinitely for brokers and event-loops to be closed and then shuts down.
func (e Engine) Stop(ctx context.Context) error {
	if err := e.Validate(); err != nil {
		return err
	}

	e.eng.shutdown(nil)

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if e.eng.isInShutdown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AsyncCallback is a callback which will be invoked after the asynchronous function finishes.
//
// Note that the parameter Conn might have been already released when it's UDP protocol,
// thus it shouldn't be accessed.
// This callback must not block, otherwise, it blocks the event-loop.
type AsyncCallback func(c Conn, err error) error

// Conn is the datagram endpoint handed to the EventHandler callbacks.
//
// A Conn created for a listening address serves every remote peer of that address:
// RemoteAddr is then the sender of the datagram currently being handled and Write
// replies to it right away. A Conn created by Client.Dial or for a peer spawned by
// the engine is bound to a single remote endpoint and queues its outbound datagrams,
// sending one per write readiness.
type Conn interface {
	// Context returns a user-defined context, it's not concurrency-safe,
	// you must invoke it within any method in EventHandler.
	Context() (ctx any)

	// SetContext sets a user-defined context, it's not concurrency-safe,
	// you must invoke it within any method in EventHandler.
	SetContext(ctx any)

	// LocalAddr is the connection's local socket address, it's not concurrency-safe,
	// you must invoke it within any method in EventHandler.
	LocalAddr() (addr net.Addr)

	// RemoteAddr is the connection's remote peer address, it's not concurrency-safe,
	// you must invoke it within any method in EventHandler.
	RemoteAddr() (addr net.Addr)

	// Fd returns the underlying file descriptor.
	Fd() int

	// Read returns the payload of the datagram being handled, it is only valid
	// during OnTraffic and must not be retained.
	Read() []byte

	// Truncated reports whether the datagram being handled was cut off because it
	// did not fit into the receive buffer.
	Truncated() bool

	// Write sends p as one datagram, it's not concurrency-safe,
	// you must invoke it within any method in EventHandler.
	Write(p []byte) (n int, err error)

	// SendTo sends p as one datagram to addr right away, it's not concurrency-safe,
	// you must invoke it within any method in EventHandler.
	SendTo(p []byte, addr net.Addr) (n int, err error)

	// AsyncWrite writes p as one datagram to the peer asynchronously, usually you would call
	// it in individual goroutines instead of the event-loop goroutines.
	AsyncWrite(p []byte, callback AsyncCallback) (err error)

	// Buffered returns the number of bytes queued for sending.
	Buffered() int

	// Close closes the current connection, it is concurrency-safe.
	Close() error
}

type (
	// EventHandler represents the engine events' callbacks for the Run call.
	// Each event has an Action return value that is used manage the state
	// of the connection and engine.
	EventHandler interface {
		// OnBoot fires when the engine is ready for accepting datagrams.
		// The parameter engine has information and various utilities.
		OnBoot(eng Engine) (action Action)

		// OnShutdown fires when the engine is being shut down, it is called right after
		// all event-loops and connections are closed.
		OnShutdown(eng Engine)

		// OnOpen fires when a Conn bound to a single remote peer has been opened.
		// The parameter out is queued as the first datagram for the peer.
		OnOpen(c Conn) (out []byte, action Action)

		// OnClose fires when a Conn has been closed.
		// The parameter err is the last known connection error.
		OnClose(c Conn, err error) (action Action)

		// OnTraffic fires once for every datagram received, including empty ones.
		OnTraffic(c Conn) (action Action)

		// OnTick fires immediately after the engine starts and will fire again
		// following the duration specified by the delay return value.
		OnTick() (delay time.Duration, action Action)
	}

	// BuiltinEventEngine is a built-in implementation of EventHandler which sets up each method with a default implementation,
	// you can compose it with your own implementation of EventHandler when you don't want to implement all methods
	// in EventHandler.
	BuiltinEventEngine struct{}
)

// OnBoot fires when the engine is ready for accepting datagrams.
func (*BuiltinEventEngine) OnBoot(_ Engine) (action Action) {
	return
}

// OnShutdown fires when the engine is being shut down.
func (*BuiltinEventEngine) OnShutdown(_ Engine) {
}

// OnOpen fires when a Conn bound to a single remote peer has been opened.
func (*BuiltinEventEngine) OnOpen(_ Conn) (out []byte, action Action) {
	return
}

// OnClose fires when a Conn has been closed.
func (*BuiltinEventEngine) OnClose(_ Conn, _ error) (action Action) {
	return
}

// OnTraffic fires once for every datagram received.
func (*BuiltinEventEngine) OnTraffic(_ Conn) (action Action) {
	return
}

// OnTick fires immediately after the engine starts and will fire again
// following the duration specified by the delay return value.
func (*BuiltinEventEngine) OnTick() (delay time.Duration, action Action) {
	return
}

// MaxEventLoops is the upper bound of event-loops an engine runs.
const MaxEventLoops = 1 << 12

// Run starts handling events on the specified address.
//
// Address should use a scheme prefix and be formatted
// like `udp://192.168.0.10:9851`.
// Valid network schemes:
//
//	udp   - bind to both IPv4 and IPv6
//	udp4  - IPv4
//	udp6  - IPv6
//
// The "udp" network scheme is assumed when one is not specified.
func Run(eventHandler EventHandler, protoAddr string, opts ...Option) (err error) {
	options := loadOptions(opts...)

	logger, logFlusher := logging.GetDefaultLogger(), logging.GetDefaultFlusher()
	if options.Logger == nil {
		if options.LogPath != "" {
			if logger, logFlusher, err = logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel); err != nil {
				return
			}
		}
		options.Logger = logger
	} else {
		logger = options.Logger
		logFlusher = nil
	}
	logging.SetDefaultLoggerAndFlusher(logger, logFlusher)

	defer logging.Cleanup()

	logging.Debugf("default logging level is %s", logging.LogLevel())

	// The maximum number of operating system threads that the Go program can use is initially set to 10000,
	// which should also be the maximum amount of I/O event-loops locked to OS threads that users can start up.
	if options.LockOSThread && options.NumEventLoop > 10000 {
		logging.Errorf("too many event-loops under LockOSThread mode, should be less than 10,000 "+
			"while you are trying to set up %d\n", options.NumEventLoop)
		return errorx.ErrTooManyEventLoopThreads
	}

	if options.MaxDatagramSize <= 0 || options.MaxDatagramSize > DefaultMaxDatagramSize {
		options.MaxDatagramSize = DefaultMaxDatagramSize
	}

	network, addr := parseProtoAddr(protoAddr)
	switch network {
	case "udp", "udp4", "udp6":
	default:
		return errorx.ErrUnsupportedProtocol
	}

	return run(eventHandler, network, addr, options, protoAddr)
}

var (
	allEngines sync.Map

	// shutdownPollInterval is how often we poll to check whether engine has been shut down during dgram.Stop().
	shutdownPollInterval = 500 * time.Millisecond
)

// Stop gracefully shuts down the engine without interrupting any active event-loops,
// it waits indefinitely for connections and event-loops to be closed and then shuts down.
func Stop(ctx context.Context, protoAddr string) error {
	var eng *engine
	if s, ok := allEngines.Load(protoAddr); ok {
		eng = s.(*engine)
		eng.shutdown(nil)
		defer allEngines.Delete(protoAddr)
	} else {
		return errorx.ErrEngineInShutdown
	}

	if eng.isInShutdown() {
		return errorx.ErrEngineInShutdown
	}

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if eng.isInShutdown() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseProtoAddr(protoAddr string) (network, address string) {
	network = "udp"
	address = strings.ToLower(protoAddr)
	if strings.Contains(address, "://") {
		pair := strings.Split(address, "://")
		network = pair[0]
		address = pair[1]
	}
	return
}
