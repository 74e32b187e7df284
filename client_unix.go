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
	"errors"
	"net"
	"strconv"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/dgramio/dgram/internal/queue"
	errorx "github.com/dgramio/dgram/pkg/errors"
	"github.com/dgramio/dgram/pkg/logging"
	"github.com/dgramio/dgram/pkg/pool/goroutine"
)

// Client of dgram.
type Client struct {
	opts *Options
	eng  *engine
}

// NewClient creates an instance of Client.
func NewClient(eh EventHandler, opts ...Option) (cli *Client, err error) {
	options := loadOptions(opts...)
	cli = new(Client)
	cli.opts = options

	logger, logFlusher := logging.GetDefaultLogger(), logging.GetDefaultFlusher()
	if options.Logger == nil {
		if options.LogPath != "" {
			if logger, logFlusher, err = logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel); err != nil {
				return nil, err
			}
		}
		options.Logger = logger
	} else {
		logger = options.Logger
		logFlusher = nil
	}
	logging.SetDefaultLoggerAndFlusher(logger, logFlusher)

	if options.MaxDatagramSize <= 0 || options.MaxDatagramSize > DefaultMaxDatagramSize {
		options.MaxDatagramSize = DefaultMaxDatagramSize
	}

	cli.eng = newEngine(eh, options)
	return
}

// Start starts the client event-loop, handing IO events.
func (cli *Client) Start() error {
	numEventLoop := determineEventLoops(cli.opts)
	logging.Infof("Starting dgram client with %d event loops", numEventLoop)

	for i := 0; i < numEventLoop; i++ {
		if _, err := cli.eng.newEventLoop(); err != nil {
			cli.eng.closeEventLoops()
			return err
		}
	}

	cli.eng.eventHandler.OnBoot(Engine{cli.eng})
	cli.eng.startEventLoops()

	logging.Debugf("default logging level is %s", logging.LogLevel())

	return nil
}

// Stop stops the client event-loop.
func (cli *Client) Stop() error {
	cli.eng.shutdown(nil)

	cli.eng.eventHandler.OnShutdown(Engine{cli.eng})

	// Notify all event-loops to exit.
	cli.eng.eventLoops.iterate(func(_ int, el *eventloop) bool {
		logging.Error(el.poller.Trigger(queue.HighPriority,
			func(_ any) error { return errorx.ErrEngineShutdown }, nil))
		return true
	})

	// Stop the ticker.
	if cli.eng.ticker.cancel != nil {
		cli.eng.ticker.cancel()
	}

	// Wait for all event-loops to exit.
	err := cli.eng.concurrency.Wait()

	cli.eng.closeEventLoops()

	// Put the engine into the shutdown state.
	cli.eng.inShutdown.Store(true)

	// Flush the logger.
	logging.Cleanup()

	return err
}

// Stats returns the traffic counters of the client.
func (cli *Client) Stats() *Stats {
	return cli.eng.stats
}

// Dial resolves address on the network "udp", "udp4" or "udp6" and returns a Conn bound to it.
func (cli *Client) Dial(network, address string) (Conn, error) {
	return cli.DialContext(context.Background(), network, address)
}

type dialResult struct {
	fd  int
	tr  *Transport
	err error
}

// DialContext is like Dial but gives up waiting for the resolution once ctx is done.
func (cli *Client) DialContext(ctx context.Context, network, address string) (Conn, error) {
	if cli.eng.isInShutdown() {
		return nil, errorx.ErrEngineInShutdown
	}

	var proto Protocol
	switch network {
	case "udp":
		proto = cli.opts.PreferredProtocol
	case "udp4":
		proto = IPv4
	case "udp6":
		proto = IPv6
	default:
		return nil, errorx.ErrUnsupportedProtocol
	}
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, &ResolveError{Op: "dial", Host: address, Err: err}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, &ResolveError{Op: "dial", Host: host, Err: errorx.ErrInvalidNetworkAddress}
	}

	// Resolution may block, keep it off the caller's event-loops.
	resCh := make(chan dialResult, 1)
	err = goroutine.DefaultWorkerPool.Submit(func() {
		tr := NewTransport(cli.opts.MaxDatagramSize)
		fd, err := tr.Connect(host, uint16(port), proto)
		if err != nil {
			tr.Release()
			resCh <- dialResult{err: err}
			return
		}
		resCh <- dialResult{fd: fd, tr: tr}
	})
	if err != nil {
		return nil, err
	}

	var res dialResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		go func() {
			if res := <-resCh; res.err == nil {
				_ = unix.Close(res.fd)
				res.tr.Release()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	for _, opt := range socketOptions(cli.opts, "", "", false) {
		if err = opt.SetSockopt(res.fd, opt.Opt); err != nil {
			_ = unix.Close(res.fd)
			res.tr.Release()
			return nil, err
		}
	}
	res.tr.setLogger(cli.opts.Logger)
	res.tr.setStats(cli.eng.stats)

	remote := res.tr.Endpoint()
	family := unix.AF_INET6
	if remote.Is4() {
		family = unix.AF_INET
	}
	el := cli.eng.eventLoops.next(remote)
	b := newBroker(res.fd, family, el, res.tr)

	// owner settles who releases the socket when registration races with shutdown:
	// 1 once the event-loop has taken it, 2 once the caller has given up on it.
	var owner atomic.Int32
	registered := make(chan error, 1)
	err = el.poller.Trigger(queue.HighPriority, func(any) error {
		if !owner.CompareAndSwap(0, 1) {
			return nil
		}
		err := b.Start()
		registered <- err
		if errors.Is(err, errorx.ErrEngineShutdown) {
			return err
		}
		return nil
	}, nil)
	if err != nil {
		_ = unix.Close(res.fd)
		res.tr.Release()
		return nil, err
	}
	select {
	case err = <-registered:
	case <-cli.eng.concurrency.ctx.Done():
		if owner.CompareAndSwap(0, 2) {
			_ = unix.Close(res.fd)
			res.tr.Release()
		}
		return nil, errorx.ErrEngineInShutdown
	}
	if err != nil && !errors.Is(err, errorx.ErrEngineShutdown) {
		return nil, err
	}
	return b, nil
}
