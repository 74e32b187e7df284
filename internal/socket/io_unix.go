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
	"os"

	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
)

// RecvFrom receives a single datagram from fd into p.
//
// truncated is set when the datagram was larger than p and its tail was discarded
// by the kernel. An empty datagram is reported as n == 0 with a nil error.
// errors.ErrWouldBlock is returned when no datagram is pending.
func RecvFrom(fd int, p []byte) (n int, truncated bool, from endpoint.Endpoint, err error) {
	var (
		flags int
		sa    unix.Sockaddr
	)
	for {
		n, _, flags, sa, err = unix.Recvmsg(fd, p, nil, 0)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
	case unix.EAGAIN:
		return 0, false, from, errorx.ErrWouldBlock
	default:
		return 0, false, from, os.NewSyscallError("recvmsg", err)
	}
	if n < 0 {
		n = 0
	}
	return n, flags&unix.MSG_TRUNC != 0, endpoint.FromSockaddr(sa), nil
}

// SendTo sends p as a single datagram to the endpoint to via fd.
// family is the address family of fd, IPv4 destinations are mapped
// into the IPv6 space on AF_INET6 sockets.
// errors.ErrWouldBlock is returned when the socket send buffer is full.
func SendTo(fd, family int, p []byte, to endpoint.Endpoint) (n int, err error) {
	if !to.IsValid() {
		return 0, errorx.ErrUnboundEndpoint
	}
	sa := to.Sockaddr()
	if family == unix.AF_INET6 {
		sa = to.Sockaddr6()
	}
	for {
		n, err = unix.SendmsgN(fd, p, nil, sa, 0)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		return n, nil
	case unix.EAGAIN:
		return 0, errorx.ErrWouldBlock
	default:
		return 0, os.NewSyscallError("sendmsg", err)
	}
}
