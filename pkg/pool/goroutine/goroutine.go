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

// Package goroutine provides the worker pool that runs blocking work, such as
// name resolution for dialed peers, outside of the event-loops.
package goroutine

import (
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dgramio/dgram/pkg/logging"
)

const (
	// DefaultPoolSize caps the number of blocking jobs running at once.
	DefaultPoolSize = 1 << 12

	// ExpiryDuration is the interval time to clean up those expired workers.
	ExpiryDuration = 10 * time.Second
)

func init() {
	// The pool of ants is never used, release its workers.
	ants.Release()
}

// Pool is the alias of ants.Pool.
type Pool = ants.Pool

// DefaultWorkerPool is the worker pool shared by all clients.
var DefaultWorkerPool = Default()

// New returns a pool running at most size jobs at once. Submit blocks while the
// pool is full unless nonblocking is set, ants.ErrPoolOverload is returned then.
// A panicking job is logged and does not take the process down.
func New(size int, nonblocking bool) (*Pool, error) {
	return ants.NewPool(size,
		ants.WithExpiryDuration(ExpiryDuration),
		ants.WithNonblocking(nonblocking),
		ants.WithPanicHandler(func(v interface{}) {
			logging.Errorf("worker exits from panic: %v", v)
		}))
}

// Default instantiates a blocking pool with the capacity of DefaultPoolSize.
func Default() *Pool {
	p, _ := New(DefaultPoolSize, false)
	return p
}
