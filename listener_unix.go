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
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/socket"
	"github.com/dgramio/dgram/pkg/endpoint"
	"github.com/dgramio/dgram/pkg/logging"
)

type listener struct {
	once             sync.Once
	fd               int
	family           int
	local            endpoint.Endpoint
	sockOpts         []socket.Option
	network, address string
}

func (ln *listener) normalize() (err error) {
	switch ln.network {
	case "udp", "udp4", "udp6":
		ln.fd, ln.family, ln.local, err = socket.UDPSocket(ln.network, ln.address, ln.sockOpts...)
	default:
		err = &ResolveError{Op: "listen", Host: ln.address, Err: errUnsupportedNetwork(ln.network)}
	}
	return
}

func (ln *listener) close() {
	ln.once.Do(func() {
		if ln.fd > 0 {
			logging.Error(os.NewSyscallError("close", unix.Close(ln.fd)))
		}
	})
}

// socketOptions collects the socket options of options, reuse forces
// SO_REUSEADDR and SO_REUSEPORT on.
func socketOptions(options *Options, network, address string, reuse bool) (sockOpts []socket.Option) {
	if options.ReusePort || reuse {
		sockOpts = append(sockOpts, socket.Option{SetSockopt: socket.SetReuseport, Opt: 1})
	}
	if options.ReuseAddr || reuse {
		sockOpts = append(sockOpts, socket.Option{SetSockopt: socket.SetReuseAddr, Opt: 1})
	}
	if options.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockopt: socket.SetRecvBuffer, Opt: options.SocketRecvBuffer})
	}
	if options.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockopt: socket.SetSendBuffer, Opt: options.SocketSendBuffer})
	}
	if address != "" {
		if setter := socket.SetMulticastMembership(network, address); setter != nil {
			sockOpts = append(sockOpts, socket.Option{SetSockopt: setter, Opt: options.MulticastInterfaceIndex})
		}
	}
	if ifname := options.BindToDevice; ifname != "" {
		sockOpts = append(sockOpts, socket.Option{SetSockopt: func(fd, _ int) error {
			return socket.SetBindToDevice(fd, ifname)
		}})
	}
	return
}

func initListener(network, addr string, options *Options, reuse bool) (l *listener, err error) {
	l = &listener{
		network:  network,
		address:  addr,
		sockOpts: socketOptions(options, network, addr, reuse),
	}
	err = l.normalize()
	return
}
