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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dgramio/dgram"
	"github.com/dgramio/dgram/pkg/logging"
	"github.com/dgramio/dgram/pkg/metrics"
)

type echoServer struct {
	*dgram.BuiltinEventEngine

	metricsAddr string
	metricsSrv  *http.Server
}

func (s *echoServer) OnBoot(eng dgram.Engine) dgram.Action {
	for _, addr := range eng.Addrs() {
		logging.Infof("echo server is listening on %s", addr)
	}
	if s.metricsAddr == "" {
		return dgram.None
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector("dgram", eng.Stats(), nil))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.metricsSrv = &http.Server{Addr: s.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("metrics endpoint stopped: %v", err)
		}
	}()
	return dgram.None
}

func (s *echoServer) OnShutdown(dgram.Engine) {
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.metricsSrv.Shutdown(ctx)
	}
}

func (s *echoServer) OnOpen(c dgram.Conn) ([]byte, dgram.Action) {
	logging.Debugf("spawned socket for peer %s", c.RemoteAddr())
	return nil, dgram.None
}

func (s *echoServer) OnTraffic(c dgram.Conn) dgram.Action {
	if c.Truncated() {
		logging.Warnf("datagram from %s exceeded the receive buffer", c.RemoteAddr())
	}
	if _, err := c.Write(c.Read()); err != nil {
		logging.Warnf("failed to echo to %s: %v", c.RemoteAddr(), err)
	}
	return dgram.None
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo server until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := flags.cfg
			if address != "" {
				cfg.Address = address
			}
			opts, err := cfg.Options()
			if err != nil {
				return err
			}

			svr := &echoServer{metricsAddr: cfg.Metrics.Address}
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)
			go func() {
				if _, ok := <-sig; !ok {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				logging.Error(dgram.Stop(ctx, cfg.Address))
			}()

			if err = dgram.Run(svr, cfg.Address, opts...); err != nil {
				return fmt.Errorf("echo server on %s: %w", cfg.Address, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address to listen on, e.g. udp://:9000 (overrides the config file)")
	return cmd
}
