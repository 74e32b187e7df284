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

// Package config loads engine and client settings from YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgramio/dgram"
	"github.com/dgramio/dgram/pkg/logging"
)

// EnvPrefix prefixes the environment variables overriding file values.
const EnvPrefix = "DGRAM"

// Config mirrors dgram.Options in a serializable form.
type Config struct {
	Address                 string `yaml:"address"`
	Multicore               bool   `yaml:"multicore"`
	NumEventLoop            int    `yaml:"num_event_loop"`
	LoadBalancing           string `yaml:"load_balancing"`
	ReuseAddr               bool   `yaml:"reuse_addr"`
	ReusePort               bool   `yaml:"reuse_port"`
	SpawnPerPeer            bool   `yaml:"spawn_per_peer"`
	MaxDatagramSize         int    `yaml:"max_datagram_size"`
	PreferredProtocol       string `yaml:"preferred_protocol"`
	SocketRecvBuffer        int    `yaml:"socket_recv_buffer"`
	SocketSendBuffer        int    `yaml:"socket_send_buffer"`
	MulticastInterfaceIndex int    `yaml:"multicast_interface_index"`
	BindToDevice            string `yaml:"bind_to_device"`
	Ticker                  bool   `yaml:"ticker"`
	LockOSThread            bool   `yaml:"lock_os_thread"`

	Log struct {
		Path  string `yaml:"path"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Metrics struct {
		// Address the prometheus handler listens on, metrics are off when empty.
		Address string `yaml:"address"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Address:         "udp://:9000",
		MaxDatagramSize: dgram.DefaultMaxDatagramSize,
	}
}

// Load reads the YAML file at path over the defaults and applies environment overrides.
// An empty path yields the defaults with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	if val := os.Getenv(EnvPrefix + "_ADDRESS"); val != "" {
		c.Address = val
	}
	if val := os.Getenv(EnvPrefix + "_NUM_EVENT_LOOP"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s_NUM_EVENT_LOOP %q: %w", EnvPrefix, val, err)
		}
		c.NumEventLoop = n
	}
	if val := os.Getenv(EnvPrefix + "_SPAWN_PER_PEER"); val != "" {
		c.SpawnPerPeer = strings.ToLower(val) == "true"
	}
	if val := os.Getenv(EnvPrefix + "_METRICS_ADDRESS"); val != "" {
		c.Metrics.Address = val
	}
	return nil
}

// Validate reports the first setting that cannot be turned into options.
func (c *Config) Validate() error {
	if c.NumEventLoop < 0 || c.NumEventLoop > dgram.MaxEventLoops {
		return fmt.Errorf("num_event_loop must be within [0, %d], got %d", dgram.MaxEventLoops, c.NumEventLoop)
	}
	if c.MaxDatagramSize < 0 || c.MaxDatagramSize > dgram.DefaultMaxDatagramSize {
		return fmt.Errorf("max_datagram_size must be within [0, %d], got %d",
			dgram.DefaultMaxDatagramSize, c.MaxDatagramSize)
	}
	if _, err := parseLoadBalancing(c.LoadBalancing); err != nil {
		return err
	}
	if _, err := parseProtocol(c.PreferredProtocol); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Options converts the configuration into dgram options.
func (c *Config) Options() ([]dgram.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	lb, _ := parseLoadBalancing(c.LoadBalancing)
	proto, _ := parseProtocol(c.PreferredProtocol)
	lvl, _ := parseLevel(c.Log.Level)

	opts := []dgram.Option{
		dgram.WithMulticore(c.Multicore),
		dgram.WithNumEventLoop(c.NumEventLoop),
		dgram.WithLoadBalancing(lb),
		dgram.WithReuseAddr(c.ReuseAddr),
		dgram.WithReusePort(c.ReusePort),
		dgram.WithSpawnPerPeer(c.SpawnPerPeer),
		dgram.WithMaxDatagramSize(c.MaxDatagramSize),
		dgram.WithPreferredProtocol(proto),
		dgram.WithSocketRecvBuffer(c.SocketRecvBuffer),
		dgram.WithSocketSendBuffer(c.SocketSendBuffer),
		dgram.WithMulticastInterfaceIndex(c.MulticastInterfaceIndex),
		dgram.WithTicker(c.Ticker),
		dgram.WithLockOSThread(c.LockOSThread),
		dgram.WithLogLevel(lvl),
	}
	if c.BindToDevice != "" {
		opts = append(opts, dgram.WithBindToDevice(c.BindToDevice))
	}
	if c.Log.Path != "" {
		opts = append(opts, dgram.WithLogPath(c.Log.Path))
	}
	return opts, nil
}

func parseLoadBalancing(s string) (dgram.LoadBalancing, error) {
	switch strings.ToLower(s) {
	case "", "round-robin":
		return dgram.RoundRobin, nil
	case "least-connections":
		return dgram.LeastConnections, nil
	case "destination-hash":
		return dgram.DestinationHash, nil
	}
	return 0, fmt.Errorf("unknown load_balancing %q", s)
}

func parseProtocol(s string) (dgram.Protocol, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return dgram.AnyProtocol, nil
	case "ipv4":
		return dgram.IPv4, nil
	case "ipv6":
		return dgram.IPv6, nil
	}
	return 0, fmt.Errorf("unknown preferred_protocol %q", s)
}

func parseLevel(s string) (lvl logging.Level, err error) {
	if s == "" {
		return logging.InfoLevel, nil
	}
	if err = lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return
}
