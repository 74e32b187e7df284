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

// Package metrics exposes the traffic counters of dgram engines and clients to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dgramio/dgram"
)

// StatsSource is implemented by anything able to report traffic counters,
// *dgram.Stats in practice.
type StatsSource interface {
	Snapshot() dgram.StatsSnapshot
}

type counter struct {
	desc  *prometheus.Desc
	value func(dgram.StatsSnapshot) uint64
}

// Collector is a prometheus.Collector reading a StatsSource on every scrape.
type Collector struct {
	source   StatsSource
	counters []counter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector whose metrics are prefixed with namespace, "dgram" if empty.
// constLabels are attached to every metric, they tell apart several engines registered together.
func NewCollector(namespace string, source StatsSource, constLabels prometheus.Labels) *Collector {
	if namespace == "" {
		namespace = "dgram"
	}
	newDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}
	return &Collector{
		source: source,
		counters: []counter{
			{newDesc("datagrams_received_total", "Number of datagrams received."),
				func(s dgram.StatsSnapshot) uint64 { return s.DatagramsReceived }},
			{newDesc("datagrams_sent_total", "Number of datagrams sent."),
				func(s dgram.StatsSnapshot) uint64 { return s.DatagramsSent }},
			{newDesc("received_bytes_total", "Payload bytes received."),
				func(s dgram.StatsSnapshot) uint64 { return s.BytesReceived }},
			{newDesc("sent_bytes_total", "Payload bytes sent."),
				func(s dgram.StatsSnapshot) uint64 { return s.BytesSent }},
			{newDesc("truncated_datagrams_total", "Number of datagrams cut off by the receive buffer."),
				func(s dgram.StatsSnapshot) uint64 { return s.Truncated }},
			{newDesc("empty_datagrams_total", "Number of zero-length datagrams received."),
				func(s dgram.StatsSnapshot) uint64 { return s.Empty }},
			{newDesc("read_failures_total", "Number of failed receive calls."),
				func(s dgram.StatsSnapshot) uint64 { return s.ReadFailures }},
			{newDesc("write_failures_total", "Number of failed send calls."),
				func(s dgram.StatsSnapshot) uint64 { return s.WriteFailures }},
			{newDesc("short_sends_total", "Number of datagrams the kernel accepted only partially."),
				func(s dgram.StatsSnapshot) uint64 { return s.ShortSends }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.Snapshot()
	for _, m := range c.counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value(snapshot)))
	}
}
