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

/*
Package dgram is an event-driven datagram networking library. It makes direct epoll and kqueue syscalls rather
than using the standard Go net package, and drives non-blocking UDP sockets from a small set of event-loops.

Each socket is handled by a Transport which receives exactly one datagram per read readiness and sends exactly one
queued datagram per write readiness. Datagrams queued while a batch is in flight are staged in a second buffer and
swapped in once the batch is drained, so datagram boundaries are preserved and nothing is ever sent partially.

Echo server built upon dgram is shown below:

	package main

	import (
		"log"

		"github.com/dgramio/dgram"
	)

	type echoServer struct {
		*dgram.BuiltinEventEngine
	}

	func (es *echoServer) OnTraffic(c dgram.Conn) dgram.Action {
		_, _ = c.Write(c.Read())
		return dgram.None
	}

	func main() {
		echo := new(echoServer)
		log.Fatal(dgram.Run(echo, "udp://:9000", dgram.WithMulticore(true)))
	}
*/
package dgram
