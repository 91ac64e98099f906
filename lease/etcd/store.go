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

// Package etcd implements lease.Store on etcd. Conditional writes are
// transactions guarded by the key create or mod revision.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/lease"
)

// Store keeps one JSON record per actor under the configured prefix
type Store struct {
	config *Config
	client *clientv3.Client
	kv     clientv3.KV
}

var _ lease.Store = (*Store)(nil)

// NewStore connects to etcd
func NewStore(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("lease/etcd: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		Username:    config.Username,
		Password:    config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("lease/etcd: connect: %w", err)
	}

	return &Store{
		config: config,
		client: client,
		kv:     clientv3.NewKV(client),
	}, nil
}

// Acquire implements lease.Store
func (s *Store) Acquire(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	key := s.key(actorID)
	for {
		current, modRevision, err := s.read(ctx, key)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		if current != nil && current.NodeID != nodeID && !current.Expired(now) {
			return current, nil
		}

		record := &lease.Record{ActorID: actorID, NodeID: nodeID, ExpiresAt: now.Add(ttl)}
		succeeded, err := s.put(ctx, key, record, s.compare(key, modRevision))
		if err != nil {
			return nil, fmt.Errorf("lease/etcd: acquire %s: %w", actorID, err)
		}

		if succeeded {
			return record, nil
		}
		// lost the race, read the winner
	}
}

// Renew implements lease.Store
func (s *Store) Renew(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	key := s.key(actorID)
	current, modRevision, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !current.HeldBy(nodeID, now) {
		return nil, gerrors.ErrLeaseLost
	}

	record := &lease.Record{ActorID: actorID, NodeID: nodeID, ExpiresAt: now.Add(ttl)}
	succeeded, err := s.put(ctx, key, record, s.compare(key, modRevision))
	if err != nil {
		return nil, fmt.Errorf("lease/etcd: renew %s: %w", actorID, err)
	}

	if !succeeded {
		return nil, gerrors.ErrLeaseLost
	}
	return record, nil
}

// Get implements lease.Store
func (s *Store) Get(ctx context.Context, actorID string) (*lease.Record, error) {
	current, _, err := s.read(ctx, s.key(actorID))
	if err != nil {
		return nil, err
	}

	if current.Expired(time.Now()) {
		return nil, gerrors.ErrLeaseNotFound
	}
	return current, nil
}

// Release implements lease.Store
func (s *Store) Release(ctx context.Context, actorID, nodeID string) error {
	key := s.key(actorID)
	current, modRevision, err := s.read(ctx, key)
	if err != nil {
		return err
	}

	if current == nil || current.NodeID != nodeID {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	// a failed comparison means another node took over; nothing to release
	if _, err := s.kv.Txn(opCtx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", modRevision)).
		Then(clientv3.OpDelete(key)).
		Commit(); err != nil {
		return fmt.Errorf("lease/etcd: release %s: %w", actorID, err)
	}
	return nil
}

// Close implements lease.Store
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(actorID string) string {
	return s.config.KeyPrefix + actorID
}

// read returns the stored record with its mod revision. An absent key yields
// a nil record and a zero revision.
func (s *Store) read(ctx context.Context, key string) (*lease.Record, int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.kv.Get(opCtx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("lease/etcd: get %s: %w", key, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, 0, nil
	}

	record, err := lease.Unmarshal(resp.Kvs[0].Value)
	if err != nil {
		return nil, 0, fmt.Errorf("lease/etcd: decode record: %w", err)
	}
	return record, resp.Kvs[0].ModRevision, nil
}

func (s *Store) compare(key string, modRevision int64) clientv3.Cmp {
	if modRevision == 0 {
		return clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	}
	return clientv3.Compare(clientv3.ModRevision(key), "=", modRevision)
}

func (s *Store) put(ctx context.Context, key string, record *lease.Record, cmp clientv3.Cmp) (bool, error) {
	payload, err := record.Marshal()
	if err != nil {
		return false, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.kv.Txn(opCtx).
		If(cmp).
		Then(clientv3.OpPut(key, string(payload))).
		Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}
