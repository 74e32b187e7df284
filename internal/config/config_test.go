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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgramio/dgram"
	"github.com/dgramio/dgram/pkg/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dgram.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func apply(t *testing.T, cfg *Config) *dgram.Options {
	t.Helper()
	opts, err := cfg.Options()
	require.NoError(t, err)
	o := new(dgram.Options)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "udp://:9000", cfg.Address)
	assert.Equal(t, dgram.DefaultMaxDatagramSize, cfg.MaxDatagramSize)

	o := apply(t, cfg)
	assert.Equal(t, dgram.RoundRobin, o.LB)
	assert.Equal(t, dgram.AnyProtocol, o.PreferredProtocol)
	assert.Equal(t, logging.InfoLevel, o.LogLevel)
	assert.Empty(t, o.BindToDevice)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
address: udp4://127.0.0.1:5300
num_event_loop: 4
load_balancing: destination-hash
reuse_port: true
spawn_per_peer: true
max_datagram_size: 1500
preferred_protocol: ipv4
socket_recv_buffer: 65536
bind_to_device: lo
log:
  level: debug
metrics:
  address: 127.0.0.1:9100
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "udp4://127.0.0.1:5300", cfg.Address)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)

	o := apply(t, cfg)
	assert.Equal(t, 4, o.NumEventLoop)
	assert.Equal(t, dgram.DestinationHash, o.LB)
	assert.True(t, o.ReusePort)
	assert.True(t, o.SpawnPerPeer)
	assert.Equal(t, 1500, o.MaxDatagramSize)
	assert.Equal(t, dgram.IPv4, o.PreferredProtocol)
	assert.Equal(t, 65536, o.SocketRecvBuffer)
	assert.Equal(t, "lo", o.BindToDevice)
	assert.Equal(t, logging.DebugLevel, o.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "address: udp://:7000\nnum_event_loop: 2\n")
	t.Setenv("DGRAM_ADDRESS", "udp6://[::1]:7001")
	t.Setenv("DGRAM_NUM_EVENT_LOOP", "3")
	t.Setenv("DGRAM_SPAWN_PER_PEER", "TRUE")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "udp6://[::1]:7001", cfg.Address)
	assert.Equal(t, 3, cfg.NumEventLoop)
	assert.True(t, cfg.SpawnPerPeer)

	t.Setenv("DGRAM_NUM_EVENT_LOOP", "many")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"load balancing": "load_balancing: random\n",
		"protocol":       "preferred_protocol: ipx\n",
		"log level":      "log:\n  level: loud\n",
		"datagram size":  "max_datagram_size: 70000\n",
		"event loops":    "num_event_loop: -1\n",
		"malformed yaml": "address: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
