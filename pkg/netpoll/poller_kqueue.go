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

//go:build darwin || dragonfly || freebsd

package netpoll

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/queue"
	"github.com/dgramio/dgram/pkg/logging"
)

// Poller represents a poller which is in charge of monitoring file-descriptors.
type Poller struct {
	fd          int
	attachments map[int]*PollAttachment
	chores
}

// OpenPoller instantiates a poller.
func OpenPoller() (poller *Poller, err error) {
	poller = new(Poller)
	if poller.fd, err = unix.Kqueue(); err != nil {
		poller = nil
		err = os.NewSyscallError("kqueue", err)
		return
	}
	unix.CloseOnExec(poller.fd)
	if _, err = unix.Kevent(poller.fd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil); err != nil {
		_ = poller.Close()
		poller = nil
		err = os.NewSyscallError("kevent add|clear", err)
		return
	}
	poller.attachments = make(map[int]*PollAttachment)
	return
}

// Close closes the poller.
func (p *Poller) Close() error {
	return os.NewSyscallError("close", unix.Close(p.fd))
}

var note = []unix.Kevent_t{{
	Ident:  0,
	Filter: unix.EVFILT_USER,
	Fflags: unix.NOTE_TRIGGER,
}}

func (p *Poller) wakeup() error {
	_, err := unix.Kevent(p.fd, note, nil, nil)
	if err == unix.EAGAIN {
		return nil
	}
	return os.NewSyscallError("kevent trigger", err)
}

// Trigger enqueues task and wakes up the poller to process pending tasks.
// It is safe to call from any goroutine.
func (p *Poller) Trigger(priority queue.EventPriority, fn queue.Func, param any) error {
	if p.enqueue(priority, fn, param) {
		return p.wakeup()
	}
	return nil
}

// Polling blocks the current goroutine, waiting for network-events and
// dispatching them to the callbacks of the registered attachments.
// It returns when a callback or a task reports errors.ErrEngineShutdown.
func (p *Poller) Polling() error {
	el := newEventList(InitPollEventsCap)

	var (
		ts       unix.Timespec
		tsp      *unix.Timespec
		doChores bool
	)
	for {
		n, err := unix.Kevent(p.fd, nil, el.events, tsp)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			tsp = nil
			runtime.Gosched()
			continue
		} else if err != nil {
			logging.Errorf("error occurs in kqueue: %v", os.NewSyscallError("kevent wait", err))
			return err
		}
		tsp = &ts

		for i := 0; i < n; i++ {
			ev := &el.events[i]
			if ev.Filter == unix.EVFILT_USER { // poller is awakened to run tasks in queues.
				doChores = true
				continue
			}
			if err = dispatch(p.attachments, int(ev.Ident), ev.Filter, ev.Flags); err != nil {
				return err
			}
		}

		if doChores {
			doChores = false
			leftover, err := p.run()
			if err != nil {
				return err
			}
			if leftover {
				if err = p.wakeup(); err != nil {
					doChores = true
				}
			}
		}

		if n == el.size {
			el.expand()
		} else if n < el.size>>1 {
			el.shrink()
		}
	}
}

func (p *Poller) kevent(fd int, filter, flags int, name string) error {
	var ev [1]unix.Kevent_t
	unix.SetKevent(&ev[0], fd, filter, flags)
	_, err := unix.Kevent(p.fd, ev[:], nil, nil)
	return os.NewSyscallError(name, err)
}

// AddRead registers the given file-descriptor with readable event to the poller.
func (p *Poller) AddRead(pa *PollAttachment) error {
	if err := p.kevent(pa.FD, unix.EVFILT_READ, unix.EV_ADD, "kevent add"); err != nil {
		return err
	}
	p.attachments[pa.FD] = pa
	return nil
}

// AddReadWrite registers the given file-descriptor with readable and writable events to the poller.
func (p *Poller) AddReadWrite(pa *PollAttachment) error {
	if err := p.AddRead(pa); err != nil {
		return err
	}
	return p.kevent(pa.FD, unix.EVFILT_WRITE, unix.EV_ADD, "kevent add")
}

// ModRead renews the given file-descriptor with readable event in the poller.
func (p *Poller) ModRead(pa *PollAttachment) error {
	err := p.kevent(pa.FD, unix.EVFILT_WRITE, unix.EV_DELETE, "kevent delete")
	if se, ok := err.(*os.SyscallError); ok && se.Err == unix.ENOENT {
		err = nil
	}
	p.attachments[pa.FD] = pa
	return err
}

// ModReadWrite renews the given file-descriptor with readable and writable events in the poller.
func (p *Poller) ModReadWrite(pa *PollAttachment) error {
	p.attachments[pa.FD] = pa
	return p.kevent(pa.FD, unix.EVFILT_WRITE, unix.EV_ADD, "kevent add")
}

// Delete removes the given file-descriptor from the poller.
// Closing the descriptor drops its kevents, so only the attachment is forgotten here.
func (p *Poller) Delete(fd int) error {
	delete(p.attachments, fd)
	return nil
}
