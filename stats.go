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

package dgram

import "go.uber.org/atomic"

// Stats counts the traffic of an engine or a client, it is safe for concurrent use.
// The counters are updated by the event-loops and can be read from any goroutine.
type Stats struct {
	datagramsIn   atomic.Uint64
	datagramsOut  atomic.Uint64
	bytesIn       atomic.Uint64
	bytesOut      atomic.Uint64
	truncated     atomic.Uint64
	empty         atomic.Uint64
	readFailures  atomic.Uint64
	writeFailures atomic.Uint64
	shortSends    atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	DatagramsReceived uint64
	DatagramsSent     uint64
	BytesReceived     uint64
	BytesSent         uint64
	Truncated         uint64
	Empty             uint64
	ReadFailures      uint64
	WriteFailures     uint64
	ShortSends        uint64
}

// Snapshot loads all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		DatagramsReceived: s.datagramsIn.Load(),
		DatagramsSent:     s.datagramsOut.Load(),
		BytesReceived:     s.bytesIn.Load(),
		BytesSent:         s.bytesOut.Load(),
		Truncated:         s.truncated.Load(),
		Empty:             s.empty.Load(),
		ReadFailures:      s.readFailures.Load(),
		WriteFailures:     s.writeFailures.Load(),
		ShortSends:        s.shortSends.Load(),
	}
}

func (s *Stats) addReceived(n int) {
	if s != nil {
		s.datagramsIn.Inc()
		s.bytesIn.Add(uint64(n))
	}
}

func (s *Stats) addSent(n int) {
	if s != nil {
		s.datagramsOut.Inc()
		s.bytesOut.Add(uint64(n))
	}
}

func (s *Stats) addTruncated() {
	if s != nil {
		s.truncated.Inc()
	}
}

func (s *Stats) addEmpty() {
	if s != nil {
		s.empty.Inc()
	}
}

func (s *Stats) addReadFailure() {
	if s != nil {
		s.readFailures.Inc()
	}
}

func (s *Stats) addWriteFailure() {
	if s != nil {
		s.writeFailures.Inc()
	}
}

func (s *Stats) addShortSend() {
	if s != nil {
		s.shortSends.Inc()
	}
}
