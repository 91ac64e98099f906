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

// Package nats implements lease.Store on a NATS JetStream KeyValue bucket.
// Records are JSON values; conditional writes rely on the entry revision.
package nats

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/lease"
)

// Store keeps one KV entry per actor
type Store struct {
	config *Config
	conn   *nats.Conn
	kv     nats.KeyValue
	owned  bool
}

var _ lease.Store = (*Store)(nil)

// NewStore connects to NATS and ensures the bucket exists
func NewStore(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("lease/nats: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := nats.Connect(config.URL, nats.Timeout(config.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("lease/nats: connect: %w", err)
	}

	kv, err := bucket(conn, config.Bucket)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Store{config: config, conn: conn, kv: kv, owned: true}, nil
}

// NewStoreFromConn creates a Store on an existing connection. The store does
// not own the connection.
func NewStoreFromConn(conn *nats.Conn, bucketName string) (*Store, error) {
	config := &Config{URL: conn.ConnectedUrl(), Bucket: bucketName}
	config.Sanitize()

	kv, err := bucket(conn, config.Bucket)
	if err != nil {
		return nil, err
	}
	return &Store{config: config, conn: conn, kv: kv}, nil
}

func bucket(conn *nats.Conn, name string) (nats.KeyValue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("lease/nats: jetstream: %w", err)
	}

	kv, err := js.KeyValue(name)
	if err == nil {
		return kv, nil
	}

	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: name, History: 1})
	if err != nil {
		// another node may have created the bucket concurrently
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			kv, err = js.KeyValue(name)
		}
		if err != nil {
			return nil, fmt.Errorf("lease/nats: create bucket: %w", err)
		}
	}
	return kv, nil
}

// Acquire implements lease.Store
func (s *Store) Acquire(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	key := recordKey(actorID)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, revision, err := s.read(key)
		if err != nil && !errors.Is(err, gerrors.ErrLeaseNotFound) {
			return nil, err
		}

		now := time.Now()
		if current != nil && current.NodeID != nodeID && !current.Expired(now) {
			return current, nil
		}

		record := &lease.Record{ActorID: actorID, NodeID: nodeID, ExpiresAt: now.Add(ttl)}
		payload, err := record.Marshal()
		if err != nil {
			return nil, err
		}

		if revision == 0 {
			_, err = s.kv.Create(key, payload)
		} else {
			_, err = s.kv.Update(key, payload, revision)
		}

		switch {
		case err == nil:
			return record, nil
		case isRevisionConflict(err):
			// lost the race, read the winner
			continue
		default:
			return nil, fmt.Errorf("lease/nats: acquire %s: %w", actorID, err)
		}
	}
}

// Renew implements lease.Store
func (s *Store) Renew(_ context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	key := recordKey(actorID)
	current, revision, err := s.read(key)
	if err != nil {
		if errors.Is(err, gerrors.ErrLeaseNotFound) {
			return nil, gerrors.ErrLeaseLost
		}
		return nil, err
	}

	now := time.Now()
	if current == nil || !current.HeldBy(nodeID, now) {
		return nil, gerrors.ErrLeaseLost
	}

	record := &lease.Record{ActorID: actorID, NodeID: nodeID, ExpiresAt: now.Add(ttl)}
	payload, err := record.Marshal()
	if err != nil {
		return nil, err
	}

	if _, err := s.kv.Update(key, payload, revision); err != nil {
		if isRevisionConflict(err) {
			return nil, gerrors.ErrLeaseLost
		}
		return nil, fmt.Errorf("lease/nats: renew %s: %w", actorID, err)
	}
	return record, nil
}

// Get implements lease.Store
func (s *Store) Get(_ context.Context, actorID string) (*lease.Record, error) {
	current, _, err := s.read(recordKey(actorID))
	if err != nil {
		return nil, err
	}

	if current == nil || current.Expired(time.Now()) {
		return nil, gerrors.ErrLeaseNotFound
	}
	return current, nil
}

// Release implements lease.Store
func (s *Store) Release(_ context.Context, actorID, nodeID string) error {
	key := recordKey(actorID)
	current, revision, err := s.read(key)
	if err != nil {
		if errors.Is(err, gerrors.ErrLeaseNotFound) {
			return nil
		}
		return err
	}

	if current == nil || current.NodeID != nodeID {
		return nil
	}

	if err := s.kv.Delete(key, nats.LastRevision(revision)); err != nil {
		if isRevisionConflict(err) || errors.Is(err, nats.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("lease/nats: release %s: %w", actorID, err)
	}
	return nil
}

// Close implements lease.Store
func (s *Store) Close() error {
	if s.owned {
		s.conn.Close()
	}
	return nil
}

// read returns the stored record and its revision. A deleted entry yields a
// nil record with the revision of the tombstone so that it can be overwritten.
func (s *Store) read(key string) (*lease.Record, uint64, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, 0, gerrors.ErrLeaseNotFound
		}
		return nil, 0, fmt.Errorf("lease/nats: get: %w", err)
	}

	if entry.Operation() != nats.KeyValuePut {
		return nil, entry.Revision(), nil
	}

	record, err := lease.Unmarshal(entry.Value())
	if err != nil {
		return nil, 0, fmt.Errorf("lease/nats: decode record: %w", err)
	}
	return record, entry.Revision(), nil
}

// recordKey maps an actor id onto the KV key alphabet
func recordKey(actorID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(actorID))
}

// isRevisionConflict returns true when the NATS error indicates a revision mismatch
func isRevisionConflict(err error) bool {
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) && apiErr != nil && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence {
		return true
	}
	return false
}
