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

//go:build linux

package netpoll

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/queue"
	"github.com/dgramio/dgram/pkg/logging"
)

// Poller represents a poller which is in charge of monitoring file-descriptors.
type Poller struct {
	fd          int    // epoll fd
	efd         int    // eventfd
	efdBuf      []byte // efd buffer to read an 8-byte integer
	attachments map[int]*PollAttachment
	chores
}

// OpenPoller instantiates a poller.
func OpenPoller() (poller *Poller, err error) {
	poller = new(Poller)
	if poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		poller = nil
		err = os.NewSyscallError("epoll_create1", err)
		return
	}
	if poller.efd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		_ = unix.Close(poller.fd)
		poller = nil
		err = os.NewSyscallError("eventfd", err)
		return
	}
	poller.efdBuf = make([]byte, 8)
	poller.attachments = make(map[int]*PollAttachment)
	if err = os.NewSyscallError("epoll_ctl add", unix.EpollCtl(poller.fd, unix.EPOLL_CTL_ADD, poller.efd,
		&unix.EpollEvent{Fd: int32(poller.efd), Events: ReadEvents})); err != nil {
		_ = poller.Close()
		poller = nil
	}
	return
}

// Close closes the poller.
func (p *Poller) Close() error {
	_ = unix.Close(p.efd)
	return os.NewSyscallError("close", unix.Close(p.fd))
}

// Make the endianness of bytes compatible with more linux OSs under different processor-architectures,
// according to http://man7.org/linux/man-pages/man2/eventfd.2.html.
var (
	u uint64 = 1
	b        = (*(*[8]byte)(unsafe.Pointer(&u)))[:]
)

func (p *Poller) wakeup() (err error) {
	for {
		_, err = unix.Write(p.efd, b)
		if err == unix.EAGAIN {
			_, _ = unix.Read(p.efd, p.efdBuf)
			continue
		}
		return os.NewSyscallError("write", err)
	}
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
	var doChores bool

	msec := -1
	for {
		n, err := unix.EpollWait(p.fd, el.events, msec)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			msec = -1
			runtime.Gosched()
			continue
		} else if err != nil {
			logging.Errorf("error occurs in epoll: %v", os.NewSyscallError("epoll_wait", err))
			return err
		}
		msec = 0

		for i := 0; i < n; i++ {
			ev := &el.events[i]
			if fd := int(ev.Fd); fd == p.efd { // poller is awakened to run tasks in queues.
				_, _ = unix.Read(p.efd, p.efdBuf)
				doChores = true
			} else if err = dispatch(p.attachments, fd, ev.Events, 0); err != nil {
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
					logging.Errorf("failed to notify next round of event-loop for leftover tasks, %v", err)
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

func (p *Poller) ctl(op int, pa *PollAttachment, ev uint32, name string) error {
	if err := unix.EpollCtl(p.fd, op, pa.FD, &unix.EpollEvent{Fd: int32(pa.FD), Events: ev}); err != nil {
		return os.NewSyscallError(name, err)
	}
	p.attachments[pa.FD] = pa
	return nil
}

// AddRead registers the given file-descriptor with readable event to the poller.
func (p *Poller) AddRead(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_ADD, pa, ReadEvents, "epoll_ctl add")
}

// AddReadWrite registers the given file-descriptor with readable and writable events to the poller.
func (p *Poller) AddReadWrite(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_ADD, pa, ReadWriteEvents, "epoll_ctl add")
}

// ModRead renews the given file-descriptor with readable event in the poller.
func (p *Poller) ModRead(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_MOD, pa, ReadEvents, "epoll_ctl mod")
}

// ModReadWrite renews the given file-descriptor with readable and writable events in the poller.
func (p *Poller) ModReadWrite(pa *PollAttachment) error {
	return p.ctl(unix.EPOLL_CTL_MOD, pa, ReadWriteEvents, "epoll_ctl mod")
}

// Delete removes the given file-descriptor from the poller.
func (p *Poller) Delete(fd int) error {
	delete(p.attachments, fd)
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}
