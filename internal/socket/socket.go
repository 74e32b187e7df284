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

// Package socket creates non-blocking datagram sockets and performs
// the raw receive/send calls on them.
package socket

import (
	"fmt"
	"strconv"
)

// InvalidFD is the sentinel returned in place of a descriptor on failure.
const InvalidFD = -1

// Option is used for setting an option on socket.
type Option struct {
	SetSockopt func(int, int) error
	Opt        int
}

// ResolveError is returned when a datagram endpoint cannot be resolved or its socket cannot be created.
type ResolveError struct {
	Op   string
	Host string
	Port uint16
	Err  error
}

func (e *ResolveError) Error() string {
	host := e.Host
	if host == "" {
		host = "*"
	}
	return fmt.Sprintf("dgram: %s %s:%s: %v", e.Op, host, strconv.FormatUint(uint64(e.Port), 10), e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
