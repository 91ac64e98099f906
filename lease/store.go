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

// Package lease defines the shared store that arbitrates actor leadership.
//
// A lease is a time-bounded record asserting which node may lead an actor.
// Stores guarantee that at most one node holds an unexpired record for a
// given actor by writing through their backend compare-and-set primitive.
package lease

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the shared lease store
type Store interface {
	// Acquire attempts to make nodeID the holder of the actor lease for ttl.
	// The attempt succeeds when the lease is absent, expired or already held
	// by nodeID. Acquire returns the record in force after the attempt:
	// callers compare Record.NodeID with their own id to learn the outcome.
	Acquire(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*Record, error)
	// Renew extends the lease held by nodeID for ttl. It returns
	// errors.ErrLeaseLost when the lease is no longer held by nodeID.
	Renew(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*Record, error)
	// Get returns the unexpired record of the actor or errors.ErrLeaseNotFound
	Get(ctx context.Context, actorID string) (*Record, error)
	// Release deletes the lease when it is held by nodeID. Releasing a lease
	// held by another node, or an absent lease, is a no-op.
	Release(ctx context.Context, actorID, nodeID string) error
	// Close releases the store resources
	Close() error
}

// Record is a lease record
type Record struct {
	ActorID   string    `json:"ai"`
	NodeID    string    `json:"n"`
	ExpiresAt time.Time `json:"exp"`
}

// HeldBy reports whether nodeID holds an unexpired lease at now
func (r *Record) HeldBy(nodeID string, now time.Time) bool {
	return r != nil && r.NodeID == nodeID && !r.Expired(now)
}

// Expired reports whether the record has lapsed at now
func (r *Record) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}

// Marshal encodes the record for stores that keep it as a value
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal decodes a record written with Marshal
func Unmarshal(raw []byte) (*Record, error) {
	record := new(Record)
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, err
	}
	return record, nil
}
