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

// Package errors defines common errors for dgram.
package errors

import "errors"

var (
	// ErrEngineShutdown occurs when the engine is closing.
	ErrEngineShutdown = errors.New("dgram: engine is going to be shutdown")
	// ErrEngineInShutdown occurs when attempting to shut the engine down more than once.
	ErrEngineInShutdown = errors.New("dgram: engine is already in shutdown")
	// ErrEmptyEngine occurs when trying to do something with an empty engine.
	ErrEmptyEngine = errors.New("dgram: the internal engine is empty")
	// ErrUnsupportedProtocol occurs when trying to use a protocol that is not supported.
	ErrUnsupportedProtocol = errors.New("dgram: only udp/udp4/udp6 are supported")
	// ErrUnsupportedUDPProtocol occurs when the address family cannot be derived for a UDP protocol.
	ErrUnsupportedUDPProtocol = errors.New("dgram: only udp/udp4/udp6 are supported")
	// ErrUnsupportedOp occurs when calling some methods that are either not supported or have not been implemented yet.
	ErrUnsupportedOp = errors.New("dgram: unsupported operation")
	// ErrInvalidNetworkAddress occurs when the network address is invalid.
	ErrInvalidNetworkAddress = errors.New("dgram: invalid network address")
	// ErrInvalidEndpoint occurs when an endpoint cannot be parsed or converted.
	ErrInvalidEndpoint = errors.New("dgram: invalid endpoint")
	// ErrUnboundEndpoint occurs when a datagram is about to be sent before any destination is known.
	ErrUnboundEndpoint = errors.New("dgram: transport has no destination endpoint")
	// ErrShortWrite occurs when the kernel accepted fewer bytes than a whole datagram.
	ErrShortWrite = errors.New("dgram: datagram was not sent as a single unit")
	// ErrWouldBlock occurs when a non-blocking socket call has nothing to do.
	ErrWouldBlock = errors.New("dgram: operation would block")
	// ErrClosed occurs when operating on a closed connection.
	ErrClosed = errors.New("dgram: connection is closed")
	// ErrReadFailure occurs when a socket is torn down after a hard receive error.
	ErrReadFailure = errors.New("dgram: failed to receive datagram")
	// ErrWriteFailure occurs when a socket is torn down after a hard or short send.
	ErrWriteFailure = errors.New("dgram: failed to send datagram")
	// ErrStaleDatagram occurs when writing through a DatagramWriter whose datagram was already finalized.
	ErrStaleDatagram = errors.New("dgram: datagram is no longer open for writing")
	// ErrTooLarge occurs when a datagram exceeds the configured maximum datagram size.
	ErrTooLarge = errors.New("dgram: datagram exceeds the maximum datagram size")
	// ErrNoIPv4AddressOnInterface occurs when an IPv4 multicast address is set on an interface but IPv4 is not configured.
	ErrNoIPv4AddressOnInterface = errors.New("dgram: no IPv4 address on interface")
	// ErrTooManyEventLoopThreads occurs when attempting to set up more than 10,000 event-loop goroutines under LockOSThread mode.
	ErrTooManyEventLoopThreads = errors.New("dgram: too many event-loops under LockOSThread mode")
)
