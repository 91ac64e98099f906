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

// Package leasetest holds the behavior every lease.Store implementation must
// exhibit, run by each store's tests against its own backend.
package leasetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/lease"
)

// Run exercises store. Actor ids are random so that one backend can be
// shared by several runs.
func Run(t *testing.T, store lease.Store) {
	t.Helper()
	ctx := context.Background()
	const ttl = time.Second

	t.Run("With acquire on absent lease", func(t *testing.T) {
		actorID := "counter/" + uuid.NewString()
		record, err := store.Acquire(ctx, actorID, "node-a", ttl)
		require.NoError(t, err)
		assert.Equal(t, "node-a", record.NodeID)
		assert.True(t, record.HeldBy("node-a", time.Now()))

		current, err := store.Get(ctx, actorID)
		require.NoError(t, err)
		assert.Equal(t, "node-a", current.NodeID)
	})
	t.Run("With acquire on held lease", func(t *testing.T) {
		actorID := "counter/" + uuid.NewString()
		_, err := store.Acquire(ctx, actorID, "node-a", ttl)
		require.NoError(t, err)

		record, err := store.Acquire(ctx, actorID, "node-b", ttl)
		require.NoError(t, err)
		assert.Equal(t, "node-a", record.NodeID)

		record, err = store.Acquire(ctx, actorID, "node-a", ttl)
		require.NoError(t, err)
		assert.Equal(t, "node-a", record.NodeID)
	})
	t.Run("With acquire after expiry", func(t *testing.T) {
		actorID := "counter/" + uuid.NewString()
		_, err := store.Acquire(ctx, actorID, "node-a", 300*time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			record, err := store.Acquire(ctx, actorID, "node-b", ttl)
			return err == nil && record.NodeID == "node-b"
		}, 3*time.Second, 50*time.Millisecond)

		_, err = store.Renew(ctx, actorID, "node-a", ttl)
		assert.ErrorIs(t, err, gerrors.ErrLeaseLost)
	})
	t.Run("With renew", func(t *testing.T) {
		actorID := "counter/" + uuid.NewString()
		first, err := store.Acquire(ctx, actorID, "node-a", ttl)
		require.NoError(t, err)

		renewed, err := store.Renew(ctx, actorID, "node-a", 2*ttl)
		require.NoError(t, err)
		assert.Equal(t, "node-a", renewed.NodeID)
		assert.True(t, renewed.ExpiresAt.After(first.ExpiresAt))

		_, err = store.Renew(ctx, actorID, "node-b", ttl)
		assert.ErrorIs(t, err, gerrors.ErrLeaseLost)

		_, err = store.Renew(ctx, "counter/"+uuid.NewString(), "node-a", ttl)
		assert.ErrorIs(t, err, gerrors.ErrLeaseLost)
	})
	t.Run("With get on absent lease", func(t *testing.T) {
		_, err := store.Get(ctx, "counter/"+uuid.NewString())
		assert.ErrorIs(t, err, gerrors.ErrLeaseNotFound)
	})
	t.Run("With release", func(t *testing.T) {
		actorID := "counter/" + uuid.NewString()
		_, err := store.Acquire(ctx, actorID, "node-a", ttl)
		require.NoError(t, err)

		require.NoError(t, store.Release(ctx, actorID, "node-b"))
		current, err := store.Get(ctx, actorID)
		require.NoError(t, err)
		assert.Equal(t, "node-a", current.NodeID)

		require.NoError(t, store.Release(ctx, actorID, "node-a"))
		_, err = store.Get(ctx, actorID)
		assert.ErrorIs(t, err, gerrors.ErrLeaseNotFound)

		require.NoError(t, store.Release(ctx, actorID, "node-a"))

		record, err := store.Acquire(ctx, actorID, "node-b", ttl)
		require.NoError(t, err)
		assert.Equal(t, "node-b", record.NodeID)
	})
	t.Run("With concurrent acquire", func(t *testing.T) {
		actorID := "counter/" + uuid.NewString()
		nodes := []string{"node-a", "node-b", "node-c", "node-d", "node-e"}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners = make(map[string]struct{})
		)
		for _, node := range nodes {
			wg.Add(1)
			go func(node string) {
				defer wg.Done()
				record, err := store.Acquire(ctx, actorID, node, ttl)
				if err != nil || record.NodeID != node {
					return
				}
				mu.Lock()
				winners[node] = struct{}{}
				mu.Unlock()
			}(node)
		}
		wg.Wait()
		assert.Len(t, winners, 1)
	})
}
