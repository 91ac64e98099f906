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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/coordinate/coordinate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("With defaults", func(t *testing.T) {
		config, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, backendMemory, config.PubSub.Backend)
		assert.Equal(t, backendMemory, config.Lease.Backend)
		assert.Equal(t, backendMemory, config.State.Backend)
		assert.Equal(t, coordinate.DefaultLeaseDuration, config.Coordinate.LeaseDuration)
		assert.Equal(t, coordinate.DefaultActionTimeout, config.Coordinate.ActionTimeout)
	})
	t.Run("With config file", func(t *testing.T) {
		path := writeConfig(t, `
node_id: node-a
log_level: debug
coordinate:
  lease_duration: 5s
  renew_lease_grace: 2s
pubsub:
  backend: nats
  nats:
    url: nats://nats:4222
lease:
  backend: etcd
  etcd:
    endpoints: ["etcd-0:2379", "etcd-1:2379"]
state:
  backend: bolt
  bolt:
    path: /var/lib/coordinate/state.db
`)
		config, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "node-a", config.NodeID)
		assert.Equal(t, "debug", config.LogLevel)
		assert.Equal(t, 5*time.Second, config.Coordinate.LeaseDuration)
		assert.Equal(t, 2*time.Second, config.Coordinate.RenewLeaseGrace)
		assert.Equal(t, coordinate.DefaultCheckLeaseInterval, config.Coordinate.CheckLeaseInterval)
		assert.Equal(t, backendNATS, config.PubSub.Backend)
		assert.Equal(t, "nats://nats:4222", config.PubSub.NATS.URL)
		assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, config.Lease.Etcd.Endpoints)
		assert.Equal(t, "/var/lib/coordinate/state.db", config.State.Bolt.Path)
	})
	t.Run("With environment override", func(t *testing.T) {
		t.Setenv("COORDINATE_LEASE_BACKEND", "redis")
		t.Setenv("COORDINATE_LEASE_REDIS_URL", "redis://redis:6379/1")
		config, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, backendRedis, config.Lease.Backend)
		assert.Equal(t, "redis://redis:6379/1", config.Lease.Redis.URL)
	})
	t.Run("With unsupported backends", func(t *testing.T) {
		path := writeConfig(t, `
pubsub:
  backend: kafka
lease:
  backend: zookeeper
state:
  backend: bolt
  bolt:
    path: ""
`)
		_, err := loadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported pubsub backend "kafka"`)
		assert.Contains(t, err.Error(), `unsupported lease backend "zookeeper"`)
		assert.Contains(t, err.Error(), "state.bolt.path")
	})
	t.Run("With invalid timings", func(t *testing.T) {
		path := writeConfig(t, `
coordinate:
  lease_duration: 1s
  renew_lease_grace: 2s
`)
		_, err := loadConfig(path)
		require.Error(t, err)
	})
	t.Run("With invalid log level", func(t *testing.T) {
		path := writeConfig(t, "log_level: verbose\n")
		_, err := loadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported log level")
	})
	t.Run("With unreadable config file", func(t *testing.T) {
		path := writeConfig(t, "pubsub: [memory\n")
		_, err := loadConfig(path)
		require.Error(t, err)
	})
}
