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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package endpoint

import (
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// FromSockaddr converts a unix.Sockaddr into an Endpoint.
// It returns the zero Endpoint for non-IP socket addresses.
func FromSockaddr(sa unix.Sockaddr) Endpoint {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return Endpoint{addr: netip.AddrFrom4(sa.Addr), port: uint16(sa.Port)}
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			addr = addr.WithZone(zoneToString(int(sa.ZoneId)))
		}
		return New(addr, uint16(sa.Port))
	}
	return Endpoint{}
}

// Sockaddr converts e into a unix.Sockaddr of the family matching its address.
// It returns nil for the zero Endpoint.
func (e Endpoint) Sockaddr() unix.Sockaddr {
	switch {
	case !e.IsValid():
		return nil
	case e.addr.Is4():
		return &unix.SockaddrInet4{Port: int(e.port), Addr: e.addr.As4()}
	default:
		sa := &unix.SockaddrInet6{Port: int(e.port), Addr: e.addr.As16()}
		if zone := e.addr.Zone(); zone != "" {
			if iface, err := net.InterfaceByName(zone); err == nil {
				sa.ZoneId = uint32(iface.Index)
			}
		}
		return sa
	}
}

// Sockaddr6 converts e into a unix.SockaddrInet6, mapping IPv4 addresses
// into the IPv6 space so that they can be reached through a dual-stack socket.
func (e Endpoint) Sockaddr6() unix.Sockaddr {
	if !e.IsValid() {
		return nil
	}
	sa := &unix.SockaddrInet6{Port: int(e.port), Addr: e.addr.As16()}
	if zone := e.addr.Zone(); zone != "" {
		if iface, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(iface.Index)
		}
	}
	return sa
}

func zoneToString(zone int) string {
	if ifi, err := net.InterfaceByIndex(zone); err == nil {
		return ifi.Name
	}
	return strconv.Itoa(zone)
}
