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

// Package memory provides an in-process lease.Store shared by the nodes of a
// single process.
package memory

import (
	"context"
	"sync"
	"time"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/lease"
)

// Store is a mutex guarded lease table
type Store struct {
	mu      sync.Mutex
	records map[string]lease.Record
	now     func() time.Time
	closed  bool
}

var _ lease.Store = (*Store)(nil)

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		records: make(map[string]lease.Record),
		now:     time.Now,
	}
}

// Acquire implements lease.Store
func (s *Store) Acquire(_ context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, gerrors.ErrDriverClosed
	}

	now := s.now()
	current, ok := s.records[actorID]
	if ok && current.NodeID != nodeID && !current.Expired(now) {
		return &current, nil
	}

	record := lease.Record{ActorID: actorID, NodeID: nodeID, ExpiresAt: now.Add(ttl)}
	s.records[actorID] = record
	return &record, nil
}

// Renew implements lease.Store
func (s *Store) Renew(_ context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, gerrors.ErrDriverClosed
	}

	now := s.now()
	current, ok := s.records[actorID]
	if !ok || !current.HeldBy(nodeID, now) {
		return nil, gerrors.ErrLeaseLost
	}

	current.ExpiresAt = now.Add(ttl)
	s.records[actorID] = current
	return &current, nil
}

// Get implements lease.Store
func (s *Store) Get(_ context.Context, actorID string) (*lease.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, gerrors.ErrDriverClosed
	}

	current, ok := s.records[actorID]
	if !ok || current.Expired(s.now()) {
		return nil, gerrors.ErrLeaseNotFound
	}
	return &current, nil
}

// Release implements lease.Store
func (s *Store) Release(_ context.Context, actorID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gerrors.ErrDriverClosed
	}

	if current, ok := s.records[actorID]; ok && current.NodeID == nodeID {
		delete(s.records, actorID)
	}
	return nil
}

// Expire forces the actor lease to lapse, simulating a holder that stopped renewing
func (s *Store) Expire(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.records[actorID]; ok {
		current.ExpiresAt = s.now()
		s.records[actorID] = current
	}
}

// Close implements lease.Store
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
