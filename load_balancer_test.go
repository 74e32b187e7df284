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

package dgram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgramio/dgram/pkg/endpoint"
)

func newTestLoadBalancer(lb LoadBalancing, n int) loadBalancer {
	b := newLoadBalancer(lb)
	for i := 0; i < n; i++ {
		b.register(new(eventloop))
	}
	return b
}

func TestLoadBalancer_RoundRobin(t *testing.T) {
	lb := newTestLoadBalancer(RoundRobin, 3)
	require.Equal(t, 3, lb.len())

	var got []int
	for i := 0; i < 6; i++ {
		got = append(got, lb.next(endpoint.Endpoint{}).idx)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, got)
	assert.Nil(t, lb.index(3))
	assert.Nil(t, lb.index(-1))
}

func TestLoadBalancer_LeastConnections(t *testing.T) {
	lb := newTestLoadBalancer(LeastConnections, 3)
	lb.index(0).count.Store(4)
	lb.index(1).count.Store(1)
	lb.index(2).count.Store(2)
	assert.Equal(t, 1, lb.next(endpoint.Endpoint{}).idx)

	lb.index(1).count.Store(5)
	assert.Equal(t, 2, lb.next(endpoint.Endpoint{}).idx)
}

func TestLoadBalancer_DestinationHash(t *testing.T) {
	lb := newTestLoadBalancer(DestinationHash, 4)
	ep := endpoint.IPv4(10, 0, 0, 1, 53)
	first := lb.next(ep)
	for i := 0; i < 10; i++ {
		assert.Same(t, first, lb.next(ep))
	}
	assert.Equal(t, int(ep.Hash()%4), first.idx)
}

func TestLoadBalancer_Iterate(t *testing.T) {
	lb := newTestLoadBalancer(RoundRobin, 4)
	var visited []int
	lb.iterate(func(i int, el *eventloop) bool {
		visited = append(visited, el.idx)
		return i < 1
	})
	assert.Equal(t, []int{0, 1}, visited)
}

func TestOptions(t *testing.T) {
	opts := loadOptions(
		WithMulticore(true),
		WithNumEventLoop(3),
		WithLoadBalancing(LeastConnections),
		WithReusePort(true),
		WithSpawnPerPeer(true),
		WithMaxDatagramSize(1500),
		WithPreferredProtocol(IPv6),
		WithBindToDevice("lo"),
	)
	assert.True(t, opts.Multicore)
	assert.Equal(t, 3, opts.NumEventLoop)
	assert.Equal(t, 3, determineEventLoops(opts))
	assert.Equal(t, LeastConnections, opts.LB)
	assert.True(t, opts.ReusePort)
	assert.True(t, opts.SpawnPerPeer)
	assert.Equal(t, 1500, opts.MaxDatagramSize)
	assert.Equal(t, "udp6", opts.PreferredProtocol.network())
	assert.Equal(t, "lo", opts.BindToDevice)

	assert.Equal(t, MaxEventLoops, determineEventLoops(&Options{NumEventLoop: MaxEventLoops + 1}))
	assert.Equal(t, 1, determineEventLoops(&Options{}))

	assert.Equal(t, "any", AnyProtocol.String())
	assert.Equal(t, "ipv4", IPv4.String())
	assert.Equal(t, "udp", AnyProtocol.network())
}
