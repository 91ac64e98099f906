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

// Package redis implements lease.Store on Redis keys with server-side expiry.
// Every conditional write runs as a Lua script so that the check and the
// write happen atomically.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/lease"
)

const defaultKeyPrefix = "coordinate:lease:"

var (
	// KEYS[1] lease key, ARGV[1] node id, ARGV[2] ttl in ms
	acquireScript = redis.NewScript(`
local holder = redis.call('GET', KEYS[1])
if holder == false or holder == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return {ARGV[1], tonumber(ARGV[2])}
end
return {holder, redis.call('PTTL', KEYS[1])}
`)

	renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

	getScript = redis.NewScript(`
local holder = redis.call('GET', KEYS[1])
if holder == false then
	return false
end
return {holder, redis.call('PTTL', KEYS[1])}
`)
)

// Store keeps one key per actor whose value is the holder node id
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ lease.Store = (*Store)(nil)

// Option configures the Store
type Option func(*Store)

// WithKeyPrefix sets the prefix of lease keys
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.keyPrefix = prefix
	}
}

// NewStore creates a Store. The store does not own the client.
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Acquire implements lease.Store
func (s *Store) Acquire(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	now := time.Now()
	values, err := acquireScript.Run(ctx, s.client, []string{s.key(actorID)}, nodeID, ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("lease/redis: acquire %s: %w", actorID, err)
	}
	return toRecord(actorID, values, now)
}

// Renew implements lease.Store
func (s *Store) Renew(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	now := time.Now()
	renewed, err := renewScript.Run(ctx, s.client, []string{s.key(actorID)}, nodeID, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("lease/redis: renew %s: %w", actorID, err)
	}

	if renewed == 0 {
		return nil, gerrors.ErrLeaseLost
	}
	return &lease.Record{ActorID: actorID, NodeID: nodeID, ExpiresAt: now.Add(ttl)}, nil
}

// Get implements lease.Store
func (s *Store) Get(ctx context.Context, actorID string) (*lease.Record, error) {
	now := time.Now()
	values, err := getScript.Run(ctx, s.client, []string{s.key(actorID)}).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gerrors.ErrLeaseNotFound
		}
		return nil, fmt.Errorf("lease/redis: get %s: %w", actorID, err)
	}
	return toRecord(actorID, values, now)
}

// Release implements lease.Store
func (s *Store) Release(ctx context.Context, actorID, nodeID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(actorID)}, nodeID).Err(); err != nil {
		return fmt.Errorf("lease/redis: release %s: %w", actorID, err)
	}
	return nil
}

// Close implements lease.Store
func (s *Store) Close() error {
	return nil
}

func (s *Store) key(actorID string) string {
	return s.keyPrefix + actorID
}

// toRecord converts a {holder, pttl} script reply
func toRecord(actorID string, values []any, now time.Time) (*lease.Record, error) {
	if len(values) != 2 {
		return nil, fmt.Errorf("lease/redis: unexpected script reply %v", values)
	}

	holder, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("lease/redis: unexpected holder %T", values[0])
	}

	pttl, ok := values[1].(int64)
	if !ok {
		return nil, fmt.Errorf("lease/redis: unexpected ttl %T", values[1])
	}

	// the key vanished between GET and PTTL or carries no expiry
	if pttl <= 0 {
		return nil, gerrors.ErrLeaseNotFound
	}

	return &lease.Record{
		ActorID:   actorID,
		NodeID:    holder,
		ExpiresAt: now.Add(time.Duration(pttl) * time.Millisecond),
	}, nil
}
