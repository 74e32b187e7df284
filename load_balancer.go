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
	"go.uber.org/atomic"

	"github.com/dgramio/dgram/pkg/endpoint"
)

// LoadBalancing represents the type of load-balancing algorithm.
type LoadBalancing int

const (
	// RoundRobin assigns the next dialed peer to the event-loop by polling event-loop list.
	RoundRobin LoadBalancing = iota

	// LeastConnections assigns the next dialed peer to the event-loop that is
	// serving the least number of active brokers at the current time.
	LeastConnections

	// DestinationHash assigns the next dialed peer to the event-loop by hashing its endpoint.
	DestinationHash
)

type (
	// loadBalancer is an interface which manipulates the event-loop set.
	loadBalancer interface {
		register(*eventloop)
		next(endpoint.Endpoint) *eventloop
		index(int) *eventloop
		iterate(func(int, *eventloop) bool)
		len() int
	}

	baseLoadBalancer struct {
		eventLoops []*eventloop
		size       int
	}

	// roundRobinLoadBalancer with Round-Robin algorithm.
	roundRobinLoadBalancer struct {
		baseLoadBalancer
		nextIndex atomic.Uint64
	}

	// leastConnectionsLoadBalancer with Least-Connections algorithm.
	leastConnectionsLoadBalancer struct {
		baseLoadBalancer
	}

	// destinationHashLoadBalancer with Hash algorithm.
	destinationHashLoadBalancer struct {
		baseLoadBalancer
	}
)

func newLoadBalancer(lb LoadBalancing) loadBalancer {
	switch lb {
	case LeastConnections:
		return new(leastConnectionsLoadBalancer)
	case DestinationHash:
		return new(destinationHashLoadBalancer)
	default:
		return new(roundRobinLoadBalancer)
	}
}

// ==================================== Implementation of base load-balancer ====================================

func (lb *baseLoadBalancer) register(el *eventloop) {
	el.idx = lb.size
	lb.eventLoops = append(lb.eventLoops, el)
	lb.size++
}

func (lb *baseLoadBalancer) index(i int) *eventloop {
	if i >= lb.size || i < 0 {
		return nil
	}
	return lb.eventLoops[i]
}

func (lb *baseLoadBalancer) iterate(f func(int, *eventloop) bool) {
	for i, el := range lb.eventLoops {
		if !f(i, el) {
			break
		}
	}
}

func (lb *baseLoadBalancer) len() int {
	return lb.size
}

// ==================================== Implementation of Round-Robin load-balancer ====================================

// next returns the eligible event-loop based on Round-Robin algorithm.
func (lb *roundRobinLoadBalancer) next(_ endpoint.Endpoint) (el *eventloop) {
	el = lb.eventLoops[(lb.nextIndex.Inc()-1)%uint64(lb.size)]
	return
}

// ================================= Implementation of Least-Connections load-balancer =================================

// next returns the event-loop which currently serves the fewest brokers.
func (lb *leastConnectionsLoadBalancer) next(_ endpoint.Endpoint) (el *eventloop) {
	el = lb.eventLoops[0]
	minN := el.countBrokers()
	for _, v := range lb.eventLoops[1:] {
		if n := v.countBrokers(); n < minN {
			minN = n
			el = v
		}
	}
	return
}

// ======================================= Implementation of Hash load-balancer ========================================

// next returns the eligible event-loop by taking the remainder of the endpoint hash as the index of event-loop list.
func (lb *destinationHashLoadBalancer) next(ep endpoint.Endpoint) *eventloop {
	return lb.eventLoops[ep.Hash()%uint64(lb.size)]
}
