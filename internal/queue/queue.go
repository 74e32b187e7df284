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

// Package queue provides the task queue through which other goroutines hand work to an event-loop.
package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Func is the callback run by an event-loop for a queued task.
type Func func(any) error

// Task is a queued callback with its parameter.
type Task struct {
	Exec  Func
	Param any
}

var taskPool = sync.Pool{New: func() any { return new(Task) }}

// GetTask gets a cached Task from pool.
func GetTask() *Task {
	return taskPool.Get().(*Task)
}

// PutTask puts the trashy Task back in pool.
func PutTask(task *Task) {
	task.Exec, task.Param = nil, nil
	taskPool.Put(task)
}

// TaskQueue is a multi-producer, single-consumer queue of tasks.
// Producers append under a spin-lock, the consumer takes the whole
// backlog at once and runs it without holding the lock.
type TaskQueue struct {
	lock   spinLock
	tasks  []*Task
	spare  []*Task
	length int32
}

// Enqueue appends task to the queue.
func (q *TaskQueue) Enqueue(task *Task) {
	q.lock.Lock()
	q.tasks = append(q.tasks, task)
	atomic.StoreInt32(&q.length, int32(len(q.tasks)))
	q.lock.Unlock()
}

// Length returns the number of pending tasks.
func (q *TaskQueue) Length() int32 {
	return atomic.LoadInt32(&q.length)
}

// IsEmpty reports whether the queue holds no task.
func (q *TaskQueue) IsEmpty() bool {
	return q.Length() == 0
}

// Drain runs at most max pending tasks in FIFO order (all of them if max <= 0),
// returning the first error a task reports. Tasks left over stay queued.
func (q *TaskQueue) Drain(max int, run func(*Task) error) error {
	q.lock.Lock()
	batch := q.tasks
	if max > 0 && len(batch) > max {
		rest := append(q.spare[:0], batch[max:]...)
		q.spare = batch[:0]
		batch = batch[:max]
		q.tasks = rest
	} else {
		q.tasks = q.spare[:0]
		q.spare = nil
	}
	atomic.StoreInt32(&q.length, int32(len(q.tasks)))
	q.lock.Unlock()

	var err error
	for i, task := range batch {
		if err == nil {
			err = run(task)
		}
		PutTask(task)
		batch[i] = nil
	}

	q.lock.Lock()
	if q.spare == nil {
		q.spare = batch[:0]
	}
	q.lock.Unlock()
	return err
}

type spinLock uint32

const maxBackoff = 16

func (sl *spinLock) Lock() {
	backoff := 1
	for !atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackoff {
			backoff <<= 1
		}
	}
}

func (sl *spinLock) Unlock() {
	atomic.StoreUint32((*uint32)(sl), 0)
}

// EventPriority is the priority of a task handed to an event-loop.
type EventPriority int

const (
	// HighPriority is for tasks expected to run as soon as possible,
	// such as flushing outbound datagrams and closing connections.
	HighPriority EventPriority = iota
	// LowPriority is for tasks that may wait behind others.
	LowPriority
)
