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
	"context"
	"net"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/dgramio/dgram/internal/queue"
	"github.com/dgramio/dgram/pkg/endpoint"
	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/netpoll"
)

type engine struct {
	opts         *Options     // options with engine
	protoAddr    string       // the address passed to Run
	eventLoops   loadBalancer // event-loops for handling events
	inShutdown   atomic.Bool  // whether the engine is in shutdown
	stats        *Stats       // traffic counters shared by all event-loops
	eventHandler EventHandler // user eventHandler
	turnOff      context.CancelFunc
	once         sync.Once
	concurrency  struct {
		*errgroup.Group

		ctx context.Context
	}
	ticker struct {
		ctx    context.Context    // context for ticker
		cancel context.CancelFunc // function to stop the ticker
	}
}

func newEngine(eventHandler EventHandler, options *Options) *engine {
	rootCtx, shutdown := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(rootCtx)
	eng := &engine{
		opts:         options,
		eventLoops:   newLoadBalancer(options.LB),
		stats:        new(Stats),
		eventHandler: eventHandler,
		turnOff:      shutdown,
	}
	eng.concurrency.Group, eng.concurrency.ctx = eg, ctx
	if options.Ticker {
		eng.ticker.ctx, eng.ticker.cancel = context.WithCancel(context.Background())
	}
	return eng
}

func (eng *engine) isInShutdown() bool {
	return eng.inShutdown.Load()
}

// shutdown signals the engine to shut down.
func (eng *engine) shutdown(err error) {
	if err != nil && err != errorx.ErrEngineShutdown {
		eng.opts.Logger.Errorf("engine is being shutdown with error: %v", err)
	}

	eng.once.Do(eng.turnOff)
}

func (eng *engine) newEventLoop() (*eventloop, error) {
	p, err := netpoll.OpenPoller()
	if err != nil {
		return nil, err
	}
	el := &eventloop{
		engine:       eng,
		poller:       p,
		brokers:      make(map[int]*broker),
		eventHandler: eng.eventHandler,
	}
	eng.eventLoops.register(el)
	return el, nil
}

func (eng *engine) closeEventLoops() {
	eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		if el.acceptor != nil {
			el.acceptor.Close()
		}
		if el.listener != nil {
			el.listener.transport.Release()
		}
		if err := el.poller.Close(); err != nil {
			eng.opts.Logger.Errorf("failed to close poller when stopping engine: %v", err)
		}
		return true
	})
}

// activateEventLoops creates one listening socket and poller per event-loop,
// the sockets share the address through SO_REUSEPORT when there are several.
func (eng *engine) activateEventLoops(numEventLoop int, address string) error {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return &ResolveError{Op: "listen", Host: address, Err: errorx.ErrInvalidNetworkAddress}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return &ResolveError{Op: "listen", Host: host, Err: errorx.ErrInvalidNetworkAddress}
	}

	for i := 0; i < numEventLoop; i++ {
		el, err := eng.newEventLoop()
		if err != nil {
			return err
		}
		acceptor := NewAcceptor(eng.opts)
		acceptor.stats = eng.stats
		el.acceptor = acceptor
		if i > 0 && port == 0 {
			// Every loop must listen on the port picked for the first one.
			port = uint64(eng.eventLoops.index(0).ln.local.Port())
		}
		fd, err := acceptor.CreateSocket(uint16(port), host, numEventLoop > 1)
		if err != nil {
			return err
		}
		el.ln = acceptor.ln

		tr := NewTransport(eng.opts.MaxDatagramSize)
		tr.setLogger(eng.opts.Logger)
		tr.setStats(eng.stats)
		el.listener = newBroker(fd, el.ln.family, el, tr)
		el.listener.listening = true
		el.listener.local = el.ln.local
		if eng.opts.SpawnPerPeer {
			el.listener.peers = make(map[endpoint.Endpoint]*broker)
		}
		if err = el.poller.AddRead(&el.listener.pollAttachment); err != nil {
			return err
		}
	}
	return nil
}

func (eng *engine) startEventLoops() {
	eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		eng.concurrency.Go(el.run)
		return true
	})

	if eng.opts.Ticker {
		el := eng.eventLoops.index(0)
		ctx := eng.ticker.ctx
		eng.concurrency.Go(func() error {
			el.ticker(ctx)
			return nil
		})
	}
}

func (eng *engine) stop(e Engine) {
	// Wait on a signal for shutdown
	<-eng.concurrency.ctx.Done()

	eng.eventHandler.OnShutdown(e)

	// Notify all event-loops to exit.
	eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		err := el.poller.Trigger(queue.HighPriority, func(_ any) error { return errorx.ErrEngineShutdown }, nil)
		if err != nil {
			eng.opts.Logger.Errorf("failed to enqueue shutdown signal of high-priority for event-loop(%d): %v", el.idx, err)
		}
		return true
	})

	// Stop the ticker.
	if eng.ticker.cancel != nil {
		eng.ticker.cancel()
	}

	if err := eng.concurrency.Wait(); err != nil {
		eng.opts.Logger.Errorf("engine shutdown error: %v", err)
	}

	// Close all listeners and pollers of event-loops.
	eng.closeEventLoops()

	allEngines.Delete(eng.protoAddr)

	// Put the engine into the shutdown state.
	eng.inShutdown.Store(true)
}

func determineEventLoops(opts *Options) int {
	numEventLoop := 1
	if opts.Multicore {
		numEventLoop = runtime.NumCPU()
	}
	if opts.NumEventLoop > 0 {
		numEventLoop = opts.NumEventLoop
	}
	if numEventLoop > MaxEventLoops {
		numEventLoop = MaxEventLoops
	}
	return numEventLoop
}

func run(eventHandler EventHandler, network, address string, options *Options, protoAddr string) error {
	switch network {
	case "udp4":
		options.PreferredProtocol = IPv4
	case "udp6":
		options.PreferredProtocol = IPv6
	}

	eng := newEngine(eventHandler, options)
	eng.protoAddr = protoAddr

	numEventLoop := determineEventLoops(options)
	if err := eng.activateEventLoops(numEventLoop, address); err != nil {
		eng.closeEventLoops()
		eng.opts.Logger.Errorf("dgram engine is stopping with error: %v", err)
		return err
	}

	e := Engine{eng}
	switch eng.eventHandler.OnBoot(e) {
	case None, Close:
	case Shutdown:
		eng.closeEventLoops()
		eng.inShutdown.Store(true)
		return nil
	}

	eng.startEventLoops()
	allEngines.Store(protoAddr, eng)
	eng.stop(e)

	return nil
}
