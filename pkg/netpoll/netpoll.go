// Copyright (c) 2024 The Dgram Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build darwin || dragonfly || freebsd || linux

/*
Package netpoll provides the readiness multiplexer that drives dgram transports.

The underlying facility of event notification is OS-specific:
  - epoll on Linux - https://man7.org/linux/man-pages/man7/epoll.7.html
  - kqueue on *BSD/Darwin - https://man.freebsd.org/cgi/man.cgi?kqueue

A Poller is owned by exactly one event-loop goroutine. File descriptors are
registered with a PollAttachment whose callback is invoked on that goroutine
whenever the descriptor becomes readable or writable:

	poller, err := netpoll.OpenPoller()
	if err != nil {
		// handle error
	}
	defer poller.Close()

	pa := &netpoll.PollAttachment{FD: fd, Callback: func(fd int, ev netpoll.IOEvent, flags netpoll.IOFlags) error {
		if netpoll.IsReadEvent(ev) {
			// read one datagram
		}
		return nil
	}}
	_ = poller.AddRead(pa)
	_ = poller.Polling()

Other goroutines never touch the registered descriptors directly, they hand
work to the event-loop through Poller.Trigger instead.
*/
package netpoll

// PollEventHandler is the callback for I/O events notified by the poller.
type PollEventHandler func(fd int, event IOEvent, flags IOFlags) error

// PollAttachment is the user data attached to a file descriptor registered in the poller.
type PollAttachment struct {
	FD       int
	Callback PollEventHandler
}
