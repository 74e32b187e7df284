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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgramio/dgram/internal/config"
)

type rootFlags struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	flags := new(rootFlags)
	cmd := &cobra.Command{
		Use:   "dgram-echo",
		Short: "Datagram echo server and ping client",
		Long: `dgram-echo runs an echo server on top of the dgram event-loops or
pings a running server and reports round-trip times.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			if flags.cfg, err = config.Load(flags.cfgFile); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "YAML configuration file")

	cmd.AddCommand(newServeCmd(flags), newPingCmd(flags))
	return cmd
}

// splitProtoAddr splits "udp4://host:port" into its network and address,
// the network defaults to "udp".
func splitProtoAddr(protoAddr string) (network, address string) {
	if network, address, ok := strings.Cut(protoAddr, "://"); ok {
		return network, address
	}
	return "udp", protoAddr
}
