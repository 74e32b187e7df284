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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgramio/dgram"
)

type pingClient struct {
	*dgram.BuiltinEventEngine

	replies chan []byte
}

func (p *pingClient) OnTraffic(c dgram.Conn) dgram.Action {
	select {
	case p.replies <- append([]byte(nil), c.Read()...):
	default:
	}
	return dgram.None
}

func newPingCmd(flags *rootFlags) *cobra.Command {
	var (
		count    int
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ping <address>",
		Short: "Send datagrams to an echo server and report round-trip times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.cfg.Options()
			if err != nil {
				return err
			}
			pc := &pingClient{replies: make(chan []byte, 1)}
			cli, err := dgram.NewClient(pc, opts...)
			if err != nil {
				return err
			}
			if err = cli.Start(); err != nil {
				return err
			}
			defer cli.Stop() //nolint:errcheck

			network, address := splitProtoAddr(args[0])
			c, err := cli.Dial(network, address)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			received := 0
			for seq := 0; seq < count; seq++ {
				if seq > 0 {
					time.Sleep(interval)
				}
				payload := []byte(fmt.Sprintf("ping %d", seq))
				start := time.Now()
				if err = c.AsyncWrite(payload, nil); err != nil {
					return err
				}
				if ok := awaitReply(pc.replies, payload, timeout); !ok {
					fmt.Fprintf(out, "seq=%d timeout\n", seq)
					continue
				}
				received++
				fmt.Fprintf(out, "%d bytes from %s: seq=%d time=%s\n",
					len(payload), c.RemoteAddr(), seq, time.Since(start).Round(time.Microsecond))
			}
			fmt.Fprintf(out, "%d datagrams sent, %d received\n", count, received)
			if received == 0 {
				return errors.New("no reply received")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 4, "number of datagrams to send")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "delay between two datagrams")
	cmd.Flags().DurationVarP(&timeout, "timeout", "W", 2*time.Second, "time to wait for each reply")
	return cmd
}

// awaitReply waits for the echo of payload, stale replies of earlier datagrams are skipped.
func awaitReply(replies <-chan []byte, payload []byte, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case reply := <-replies:
			if string(reply) == string(payload) {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}
