/*
 * MIT License
 *
 * Copyright (c) 2022-2025  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tochemey/coordinate/coordinate"
	"github.com/tochemey/coordinate/internal/validation"
	"github.com/tochemey/coordinate/log"
)

const envPrefix = "COORDINATE"

const (
	backendMemory = "memory"
	backendNATS   = "nats"
	backendRedis  = "redis"
	backendEtcd   = "etcd"
	backendBolt   = "bolt"
)

// Config is the node configuration read from the config file and the
// COORDINATE_* environment variables
type Config struct {
	NodeID     string           `mapstructure:"node_id"`
	LogLevel   string           `mapstructure:"log_level"`
	Coordinate CoordinateConfig `mapstructure:"coordinate"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Lease      LeaseConfig      `mapstructure:"lease"`
	State      StateConfig      `mapstructure:"state"`
}

// CoordinateConfig holds the leadership and messaging timings
type CoordinateConfig struct {
	LeaseDuration      time.Duration `mapstructure:"lease_duration"`
	RenewLeaseGrace    time.Duration `mapstructure:"renew_lease_grace"`
	CheckLeaseInterval time.Duration `mapstructure:"check_lease_interval"`
	CheckLeaseJitter   time.Duration `mapstructure:"check_lease_jitter"`
	MessageAckTimeout  time.Duration `mapstructure:"message_ack_timeout"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout"`
	PeerIdleTimeout    time.Duration `mapstructure:"peer_idle_timeout"`
}

// PubSubConfig selects the node messaging backend
type PubSubConfig struct {
	Backend string      `mapstructure:"backend"`
	NATS    NATSConfig  `mapstructure:"nats"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// LeaseConfig selects the lease store
type LeaseConfig struct {
	Backend string      `mapstructure:"backend"`
	NATS    NATSConfig  `mapstructure:"nats"`
	Redis   RedisConfig `mapstructure:"redis"`
	Etcd    EtcdConfig  `mapstructure:"etcd"`
}

// StateConfig selects the actor state driver
type StateConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
	Bolt    BoltConfig  `mapstructure:"bolt"`
}

// NATSConfig locates a NATS server
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// RedisConfig locates a Redis server
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// EtcdConfig locates an etcd cluster
type EtcdConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
	Prefix    string   `mapstructure:"prefix"`
}

// BoltConfig locates the bbolt database file
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// loadConfig reads path when set, then applies the environment
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := coordinate.DefaultConfig()
	v.SetDefault("node_id", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("coordinate.lease_duration", defaults.LeaseDuration)
	v.SetDefault("coordinate.renew_lease_grace", defaults.RenewLeaseGrace)
	v.SetDefault("coordinate.check_lease_interval", defaults.CheckLeaseInterval)
	v.SetDefault("coordinate.check_lease_jitter", defaults.CheckLeaseJitter)
	v.SetDefault("coordinate.message_ack_timeout", defaults.MessageAckTimeout)
	v.SetDefault("coordinate.action_timeout", defaults.ActionTimeout)
	v.SetDefault("coordinate.peer_idle_timeout", defaults.PeerIdleTimeout)

	v.SetDefault("pubsub.backend", backendMemory)
	v.SetDefault("pubsub.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("pubsub.redis.url", "redis://127.0.0.1:6379/0")

	v.SetDefault("lease.backend", backendMemory)
	v.SetDefault("lease.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("lease.redis.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("lease.etcd.endpoints", []string{"127.0.0.1:2379"})

	v.SetDefault("state.backend", backendMemory)
	v.SetDefault("state.redis.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("state.bolt.path", "coordinate.db")
}

var _ validation.Validator = (*Config)(nil)

// Validate checks the backend selection and the timings
func (c *Config) Validate() error {
	chain := validation.New(validation.AllErrors()).
		AddAssertion(log.ParseLevel(c.LogLevel) != log.InvalidLevel, fmt.Sprintf("unsupported log level %q", c.LogLevel)).
		AddAssertion(slices.Contains([]string{backendMemory, backendNATS, backendRedis}, c.PubSub.Backend),
			fmt.Sprintf("unsupported pubsub backend %q", c.PubSub.Backend)).
		AddAssertion(slices.Contains([]string{backendMemory, backendNATS, backendRedis, backendEtcd}, c.Lease.Backend),
			fmt.Sprintf("unsupported lease backend %q", c.Lease.Backend)).
		AddAssertion(slices.Contains([]string{backendMemory, backendRedis, backendBolt}, c.State.Backend),
			fmt.Sprintf("unsupported state backend %q", c.State.Backend))

	if c.State.Backend == backendBolt {
		chain = chain.AddValidator(validation.NewEmptyStringValidator("state.bolt.path", c.State.Bolt.Path))
	}

	coordinateConfig := c.coordinateConfig()
	return chain.AddValidator(&coordinateConfig).Validate()
}

func (c *Config) coordinateConfig() coordinate.Config {
	return coordinate.Config{
		LeaseDuration:      c.Coordinate.LeaseDuration,
		RenewLeaseGrace:    c.Coordinate.RenewLeaseGrace,
		CheckLeaseInterval: c.Coordinate.CheckLeaseInterval,
		CheckLeaseJitter:   c.Coordinate.CheckLeaseJitter,
		MessageAckTimeout:  c.Coordinate.MessageAckTimeout,
		ActionTimeout:      c.Coordinate.ActionTimeout,
		PeerIdleTimeout:    c.Coordinate.PeerIdleTimeout,
	}
}
