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
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/socket"
	"github.com/dgramio/dgram/pkg/endpoint"
	"github.com/dgramio/dgram/pkg/logging"
)

// InvalidFD is returned in place of a descriptor when no socket could be created.
const InvalidFD = socket.InvalidFD

// ResolveError carries the cause of a failed resolution or socket creation.
type ResolveError = socket.ResolveError

func errUnsupportedNetwork(network string) error {
	return fmt.Errorf("unsupported network %q: %w", network, net.UnknownNetworkError(network))
}

// Starter is implemented by the event sources an Acceptor hands sockets to.
type Starter interface {
	Start() error
}

// Acceptor creates the sockets of a datagram endpoint and the Transports for the peers it hears from.
//
// Datagram sockets have no kernel-level connections, a logical connection to a
// newly observed peer is represented by a fresh ephemeral socket and Transport.
type Acceptor struct {
	opts   *Options
	logger logging.Logger
	stats  *Stats
	ln     *listener
}

// NewAcceptor returns an Acceptor creating sockets configured by opts.
func NewAcceptor(opts *Options) *Acceptor {
	if opts == nil {
		opts = new(Options)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Acceptor{opts: opts, logger: logger}
}

// Connect resolves host and port, preferring the given protocol family, and
// creates a socket for reaching the resolved remote endpoint.
// It returns a *ResolveError when either step fails.
func (a *Acceptor) Connect(host string, port uint16, preferred Protocol) (fd int, remote endpoint.Endpoint, err error) {
	return connectUDP(host, port, preferred, socketOptions(a.opts, "", "", false)...)
}

func connectUDP(host string, port uint16, preferred Protocol, sockOpts ...socket.Option) (int, endpoint.Endpoint, error) {
	fd, _, remote, err := socket.UDPConnect(preferred.network(), host, port, sockOpts...)
	if err != nil {
		return InvalidFD, remote, err
	}
	return fd, remote, nil
}

// Connect resolves host and port preferring the given protocol family, binds the
// resolved endpoint as destination and returns a socket for reaching it.
func (t *Transport) Connect(host string, port uint16, preferred Protocol) (int, error) {
	fd, remote, err := connectUDP(host, port, preferred)
	if err != nil {
		return InvalidFD, err
	}
	t.peer = remote
	return fd, nil
}

// CreateSocket creates a local socket bound to host and port, reuse enables
// SO_REUSEADDR and SO_REUSEPORT. An empty host binds the wildcard address.
func (a *Acceptor) CreateSocket(port uint16, host string, reuse bool) (int, error) {
	network := a.opts.PreferredProtocol.network()
	address := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
	ln, err := initListener(network, address, a.opts, reuse)
	if err != nil {
		return InvalidFD, &ResolveError{Op: "listen", Host: host, Port: port, Err: err}
	}
	a.ln = ln
	return ln.fd, nil
}

// AcceptEvent creates an ephemeral local socket and a fresh Transport for a newly observed peer.
// The socket has the address family of the socket created by CreateSocket. On failure the
// attempt is logged and skipped, InvalidFD and a nil Transport are returned.
func (a *Acceptor) AcceptEvent(ctx Context) (int, *Transport) {
	network, address := a.opts.PreferredProtocol.network(), ":0"
	if a.ln != nil {
		switch {
		case a.ln.family == unix.AF_INET:
			network = "udp4"
		case a.ln.network == "udp6":
			network = "udp6"
		default:
			network = "udp"
		}
		if addr := a.ln.local.Address(); addr.IsValid() && !addr.IsUnspecified() {
			address = net.JoinHostPort(addr.String(), "0")
		}
	}
	opts := *a.opts
	opts.ReusePort, opts.ReuseAddr, opts.BindToDevice = false, false, ""
	fd, _, _, err := socket.UDPSocket(network, address, socketOptions(&opts, "", "", false)...)
	if err != nil {
		lnFd := InvalidFD
		if ctx != nil {
			lnFd = ctx.Socket().Fd()
		}
		a.logger.Debugf("failed to create local endpoint for peer of fd=%d: %v", lnFd, err)
		return InvalidFD, nil
	}
	tr := NewTransport(a.opts.MaxDatagramSize)
	tr.setLogger(a.logger)
	tr.setStats(a.stats)
	return fd, tr
}

// Init starts the event source b so that it begins receiving readiness callbacks.
func (a *Acceptor) Init(b Starter) error {
	return b.Start()
}

// Close closes the socket created by CreateSocket.
func (a *Acceptor) Close() {
	if a.ln != nil {
		a.ln.close()
	}
}
