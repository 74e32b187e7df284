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

package netpoll

import (
	"errors"
	"sync/atomic"

	"github.com/dgramio/dgram/internal/queue"
	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/logging"
)

// chores holds the tasks handed to an event-loop by other goroutines.
type chores struct {
	wakeupCall           int32
	asyncTaskQueue       queue.TaskQueue // queue with low priority
	urgentAsyncTaskQueue queue.TaskQueue // queue with high priority
}

// enqueue queues the task and reports whether the caller must wake the poller up.
func (c *chores) enqueue(priority queue.EventPriority, fn queue.Func, param any) bool {
	task := queue.GetTask()
	task.Exec, task.Param = fn, param
	if priority == queue.HighPriority {
		c.urgentAsyncTaskQueue.Enqueue(task)
	} else {
		c.asyncTaskQueue.Enqueue(task)
	}
	return atomic.CompareAndSwapInt32(&c.wakeupCall, 0, 1)
}

func runTask(task *queue.Task) error {
	err := task.Exec(task.Param)
	if errors.Is(err, errorx.ErrEngineShutdown) {
		return err
	}
	if err != nil {
		logging.Warnf("error occurs in asynchronous task, %v", err)
	}
	return nil
}

// run executes all urgent tasks and a bounded batch of ordinary ones,
// it reports whether leftovers need another round.
func (c *chores) run() (leftover bool, err error) {
	if err = c.urgentAsyncTaskQueue.Drain(0, runTask); err != nil {
		return
	}
	if err = c.asyncTaskQueue.Drain(MaxAsyncTasksAtOneTime, runTask); err != nil {
		return
	}
	atomic.StoreInt32(&c.wakeupCall, 0)
	leftover = (!c.asyncTaskQueue.IsEmpty() || !c.urgentAsyncTaskQueue.IsEmpty()) &&
		atomic.CompareAndSwapInt32(&c.wakeupCall, 0, 1)
	return
}

func dispatch(attachments map[int]*PollAttachment, fd int, ev IOEvent, flags IOFlags) error {
	pa, ok := attachments[fd]
	if !ok || pa.Callback == nil {
		return nil
	}
	err := pa.Callback(fd, ev, flags)
	if errors.Is(err, errorx.ErrEngineShutdown) {
		return err
	}
	if err != nil {
		logging.Warnf("error occurs in event-loop on fd=%d: %v", fd, err)
	}
	return nil
}
