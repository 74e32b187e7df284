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

// Package byteslice provides pooled fixed-length byte slices for receive buffers.
package byteslice

import "github.com/gobwas/pool/pbytes"

// Get returns a byte slice of length size from the built-in pool.
// Sizes outside the pooled range are allocated directly.
func Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	return pbytes.GetLen(size)
}

// Put returns the byte slice to the built-in pool.
func Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	pbytes.Put(buf)
}
