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
	"net"
	"net/netip"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
)

// GetUDPSockAddr resolves addr for proto and returns the socket address, its family
// and whether the socket must be restricted to IPv6.
func GetUDPSockAddr(proto, addr string) (sa unix.Sockaddr, family int, ep endpoint.Endpoint, ipv6only bool, err error) {
	var (
		udpVersion string
		udpAddr    *net.UDPAddr
	)

	if udpAddr, err = net.ResolveUDPAddr(proto, addr); err != nil {
		return
	}
	if udpVersion, err = determineUDPProto(proto, udpAddr); err != nil {
		return
	}
	if ep, err = endpoint.FromUDPAddr(udpAddr); err != nil {
		return
	}

	switch udpVersion {
	case "udp4":
		sa, family = ep.Sockaddr(), unix.AF_INET
	case "udp6":
		ipv6only = true
		fallthrough
	case "udp":
		if len(udpAddr.IP) == 0 {
			ep = endpoint.New(netip.IPv6Unspecified(), ep.Port())
		}
		sa, family = ep.Sockaddr6(), unix.AF_INET6
	default:
		err = errorx.ErrUnsupportedProtocol
	}
	return
}

// determineUDPProto derives the actual protocol version from the size of the
// resolved IP address when the protocol is "udp", otherwise it keeps the one given by the caller.
func determineUDPProto(proto string, addr *net.UDPAddr) (string, error) {
	if addr.IP.To4() != nil {
		return "udp4", nil
	}
	if addr.IP.To16() != nil {
		return "udp6", nil
	}
	switch proto {
	case "udp", "udp4", "udp6":
		return proto, nil
	}
	return "", errorx.ErrUnsupportedUDPProtocol
}

// UDPSocket creates a non-blocking datagram socket bound to addr and returns
// its descriptor, family and the bound local endpoint.
func UDPSocket(proto, addr string, sockopts ...Option) (fd, family int, local endpoint.Endpoint, err error) {
	var (
		ipv6only bool
		sockaddr unix.Sockaddr
	)

	if sockaddr, family, local, ipv6only, err = GetUDPSockAddr(proto, addr); err != nil {
		return InvalidFD, 0, local, err
	}

	if fd, err = sysSocket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP); err != nil {
		return InvalidFD, 0, local, os.NewSyscallError("socket", err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = InvalidFD
		}
	}()

	if family == unix.AF_INET6 {
		if err = SetIPv6Only(fd, boolint(ipv6only)); err != nil {
			return
		}
	}

	// Allow broadcast.
	if err = SetBroadcast(fd, 1); err != nil {
		return
	}

	for _, sockopt := range sockopts {
		if err = sockopt.SetSockopt(fd, sockopt.Opt); err != nil {
			return
		}
	}

	if err = os.NewSyscallError("bind", unix.Bind(fd, sockaddr)); err != nil {
		return
	}

	// Pick up the port chosen by the kernel when binding to port 0.
	if bound, e := unix.Getsockname(fd); e == nil {
		if ep := endpoint.FromSockaddr(bound); ep.IsValid() {
			local = ep
		}
	}
	return
}

// UDPConnect resolves host:port for proto and creates an unbound non-blocking
// datagram socket of the matching family, the kernel picks the local port on
// the first send. The resolved remote endpoint is returned alongside the descriptor.
func UDPConnect(proto, host string, port uint16, sockopts ...Option) (fd, family int, remote endpoint.Endpoint, err error) {
	addr := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
	var udpAddr *net.UDPAddr
	if udpAddr, err = net.ResolveUDPAddr(proto, addr); err != nil {
		return InvalidFD, 0, remote, &ResolveError{Op: "resolve", Host: host, Port: port, Err: err}
	}
	if udpAddr.IP == nil {
		return InvalidFD, 0, remote, &ResolveError{Op: "resolve", Host: host, Port: port, Err: errorx.ErrInvalidNetworkAddress}
	}
	if remote, err = endpoint.FromUDPAddr(udpAddr); err != nil {
		return InvalidFD, 0, remote, &ResolveError{Op: "resolve", Host: host, Port: port, Err: err}
	}

	family = unix.AF_INET6
	if remote.Is4() {
		family = unix.AF_INET
	}
	if fd, err = sysSocket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP); err != nil {
		return InvalidFD, 0, remote, &ResolveError{Op: "socket", Host: host, Port: port, Err: os.NewSyscallError("socket", err)}
	}
	for _, sockopt := range sockopts {
		if err = sockopt.SetSockopt(fd, sockopt.Opt); err != nil {
			_ = unix.Close(fd)
			return InvalidFD, 0, remote, &ResolveError{Op: "setsockopt", Host: host, Port: port, Err: err}
		}
	}
	return fd, family, remote, nil
}

// LocalEndpoint returns the endpoint the socket fd is bound to.
func LocalEndpoint(fd int) (endpoint.Endpoint, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return endpoint.Endpoint{}, os.NewSyscallError("getsockname", err)
	}
	return endpoint.FromSockaddr(sa), nil
}

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}
