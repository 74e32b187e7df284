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

// Package endpoint provides the value type identifying a datagram peer.
//
// An Endpoint is comparable, so it can be used directly as a map key,
// and it is ordered lexicographically on (address, port) for sorted containers.
// The zero Endpoint is invalid and stands for "no peer known yet".
package endpoint

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/cespare/xxhash/v2"

	errorx "github.com/dgramio/dgram/pkg/errors"
)

// Endpoint is an address and a port identifying a network peer.
type Endpoint struct {
	addr netip.Addr
	port uint16
}

// New returns an endpoint for addr and port.
// IPv4-mapped IPv6 addresses are unmapped, so that both forms compare equal.
func New(addr netip.Addr, port uint16) Endpoint {
	return Endpoint{addr: addr.Unmap(), port: port}
}

// IPv4 returns an endpoint for the IPv4 address a.b.c.d and port.
func IPv4(a, b, c, d byte, port uint16) Endpoint {
	return Endpoint{addr: netip.AddrFrom4([4]byte{a, b, c, d}), port: port}
}

// FromAddrPort converts a netip.AddrPort into an Endpoint.
func FromAddrPort(ap netip.AddrPort) Endpoint {
	return New(ap.Addr(), ap.Port())
}

// FromUDPAddr converts a *net.UDPAddr into an Endpoint.
func FromUDPAddr(ua *net.UDPAddr) (Endpoint, error) {
	if ua == nil {
		return Endpoint{}, errorx.ErrInvalidEndpoint
	}
	if ua.Port < 0 || ua.Port > 0xffff {
		return Endpoint{}, fmt.Errorf("%w: port %d out of range", errorx.ErrInvalidEndpoint, ua.Port)
	}
	addr, ok := netip.AddrFromSlice(ua.IP)
	if !ok {
		if len(ua.IP) != 0 {
			return Endpoint{}, fmt.Errorf("%w: %s", errorx.ErrInvalidEndpoint, ua.IP)
		}
		addr = netip.IPv4Unspecified()
	}
	if ua.Zone != "" {
		addr = addr.WithZone(ua.Zone)
	}
	return New(addr, uint16(ua.Port)), nil
}

// Parse parses "ip:port" or "[ipv6]:port".
func Parse(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", errorx.ErrInvalidEndpoint, err)
	}
	return FromAddrPort(ap), nil
}

// Address returns the address of the endpoint.
func (e Endpoint) Address() netip.Addr { return e.addr }

// Port returns the port of the endpoint.
func (e Endpoint) Port() uint16 { return e.port }

// SetAddress replaces the address of the endpoint.
func (e *Endpoint) SetAddress(addr netip.Addr) { e.addr = addr.Unmap() }

// SetPort replaces the port of the endpoint.
func (e *Endpoint) SetPort(port uint16) { e.port = port }

// Reset turns e back into the zero Endpoint.
func (e *Endpoint) Reset() { *e = Endpoint{} }

// IsValid reports whether e carries an address.
func (e Endpoint) IsValid() bool { return e.addr.IsValid() }

// Is4 reports whether the address of e is an IPv4 address.
func (e Endpoint) Is4() bool { return e.addr.Is4() }

// Equal reports whether e and other have the same address and port.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.port == other.port && e.addr == other.addr
}

// Compare returns an integer comparing e and other lexicographically on (address, port).
// The result is 0 if e == other, -1 if e < other and +1 if e > other.
func (e Endpoint) Compare(other Endpoint) int {
	if c := e.addr.Compare(other.addr); c != 0 {
		return c
	}
	switch {
	case e.port < other.port:
		return -1
	case e.port > other.port:
		return 1
	}
	return 0
}

// Less reports whether e sorts before other.
func (e Endpoint) Less(other Endpoint) bool { return e.Compare(other) < 0 }

// Hash returns a 64-bit digest of the endpoint, equal endpoints hash to the same value.
func (e Endpoint) Hash() uint64 {
	var b [18]byte
	a16 := e.addr.As16()
	copy(b[:16], a16[:])
	binary.BigEndian.PutUint16(b[16:], e.port)
	return xxhash.Sum64(b[:])
}

// AddrPort converts e into a netip.AddrPort.
func (e Endpoint) AddrPort() netip.AddrPort { return netip.AddrPortFrom(e.addr, e.port) }

// UDPAddr converts e into a *net.UDPAddr, it returns nil for the zero Endpoint.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	if !e.IsValid() {
		return nil
	}
	return net.UDPAddrFromAddrPort(e.AddrPort())
}

// String returns "ip:port", or "invalid endpoint" for the zero value.
func (e Endpoint) String() string {
	if !e.IsValid() {
		return "invalid endpoint"
	}
	if e.addr.Is4() {
		return e.addr.String() + ":" + strconv.FormatUint(uint64(e.port), 10)
	}
	return e.AddrPort().String()
}

// Network implements net.Addr.
func (e Endpoint) Network() string {
	if e.addr.Is4() {
		return "udp4"
	}
	return "udp6"
}

var _ net.Addr = Endpoint{}
