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

package nats

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

func startNatsServer(t *testing.T) *natsserver.Server {
	t.Helper()
	return startNatsServerOnPort(t, -1)
}

func startNatsServerOnPort(t *testing.T, port int) *natsserver.Server {
	t.Helper()
	serv, err := natsserver.NewServer(&natsserver.Options{
		Host: "127.0.0.1",
		Port: port,
	})
	require.NoError(t, err)

	ready := make(chan bool)
	go func() {
		ready <- true
		serv.Start()
	}()
	<-ready

	if !serv.ReadyForConnections(2 * time.Second) {
		t.Fatalf("nats-io server failed to start")
	}
	return serv
}

func TestDriver(t *testing.T) {
	t.Run("With publish and subscribe", func(t *testing.T) {
		ctx := context.Background()
		srv := startNatsServer(t)
		defer srv.Shutdown()

		driver, err := New(&Config{Server: srv.ClientURL()}, log.DiscardLogger)
		require.NoError(t, err)

		var (
			mu       sync.Mutex
			received []string
		)
		sub, err := driver.CreateNodeSubscriber(ctx, "node-a", func(_ context.Context, raw []byte) {
			mu.Lock()
			received = append(received, string(raw))
			mu.Unlock()
		})
		require.NoError(t, err)

		require.NoError(t, driver.PublishToNode(ctx, "node-a", []byte("hello")))
		require.NoError(t, driver.PublishToNode(ctx, "node-b", []byte("elsewhere")))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 1
		}, 2*time.Second, 10*time.Millisecond)

		mu.Lock()
		assert.Equal(t, []string{"hello"}, received)
		mu.Unlock()

		require.NoError(t, sub.Unsubscribe(ctx))
		require.NoError(t, sub.Unsubscribe(ctx))
		require.NoError(t, driver.Close())
		assert.ErrorIs(t, driver.PublishToNode(ctx, "node-a", nil), gerrors.ErrDriverClosed)
	})
	t.Run("With duplicate subscriber", func(t *testing.T) {
		ctx := context.Background()
		srv := startNatsServer(t)
		defer srv.Shutdown()

		driver, err := New(&Config{Server: srv.ClientURL()}, log.DiscardLogger)
		require.NoError(t, err)

		_, err = driver.CreateNodeSubscriber(ctx, "node-a", func(context.Context, []byte) {})
		require.NoError(t, err)
		_, err = driver.CreateNodeSubscriber(ctx, "node-a", func(context.Context, []byte) {})
		assert.Error(t, err)
		require.NoError(t, driver.Close())
	})
	t.Run("With server restart", func(t *testing.T) {
		ctx := context.Background()
		port := dynaport.Get(1)[0]
		srv := startNatsServerOnPort(t, port)

		driver, err := New(&Config{Server: srv.ClientURL(), ReconnectWait: 50 * time.Millisecond}, log.DiscardLogger)
		require.NoError(t, err)

		received := atomic.NewInt32(0)
		_, err = driver.CreateNodeSubscriber(ctx, "node-a", func(context.Context, []byte) {
			received.Inc()
		})
		require.NoError(t, err)

		srv.Shutdown()
		srv.WaitForShutdown()
		srv = startNatsServerOnPort(t, port)
		defer srv.Shutdown()

		// the subscription is restored once the client reconnects
		require.Eventually(t, func() bool {
			_ = driver.PublishToNode(ctx, "node-a", []byte("ping"))
			return received.Load() > 0
		}, 5*time.Second, 50*time.Millisecond)
		require.NoError(t, driver.Close())
	})
	t.Run("With invalid config", func(t *testing.T) {
		_, err := New(&Config{}, log.DiscardLogger)
		assert.Error(t, err)
	})
}
