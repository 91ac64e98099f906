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

package coordinate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/lease"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/pubsub"
)

type counterState struct {
	Count int `json:"count"`
}

func counterDefinition() *actor.Definition {
	return &actor.Definition{
		Name:        "counter",
		CreateState: func() any { return &counterState{} },
		OnBeforeConnect: func(_ *actor.Context, params, _ json.RawMessage) (any, error) {
			if string(params) == `"reject"` {
				return nil, errors.New("rejected")
			}
			return nil, nil
		},
		Actions: map[string]actor.ActionFunc{
			"increment": func(ctx *actor.ActionContext, args []json.RawMessage) (any, error) {
				by, err := actor.Arg[int](args, 0)
				if err != nil {
					return nil, err
				}
				state := actor.StateAs[*counterState](ctx.Context)
				state.Count += by
				if err := ctx.Broadcast("newCount", state.Count); err != nil {
					return nil, err
				}
				return state.Count, nil
			},
			"get": func(ctx *actor.ActionContext, _ []json.RawMessage) (any, error) {
				return actor.StateAs[*counterState](ctx.Context).Count, nil
			},
			"fail": func(*actor.ActionContext, []json.RawMessage) (any, error) {
				return nil, errors.New("boom")
			},
		},
	}
}

func testConfig() *Config {
	return &Config{
		LeaseDuration:      400 * time.Millisecond,
		RenewLeaseGrace:    200 * time.Millisecond,
		CheckLeaseInterval: 50 * time.Millisecond,
		CheckLeaseJitter:   20 * time.Millisecond,
		MessageAckTimeout:  300 * time.Millisecond,
		ActionTimeout:      time.Second,
		PeerIdleTimeout:    time.Minute,
	}
}

func startNode(t *testing.T, driver pubsub.Driver, leases lease.Store, nodeID string, opts ...Option) *Topology {
	t.Helper()
	registry, err := actor.NewRegistry(counterDefinition())
	require.NoError(t, err)

	opts = append([]Option{
		WithNodeID(nodeID),
		WithLogger(log.DiscardLogger),
		WithConfig(testConfig()),
	}, opts...)

	topology, err := New(driver, leases, registry, opts...)
	require.NoError(t, err)
	require.NoError(t, topology.Start(context.Background()))
	return topology
}

func stopNode(t *testing.T, topology *Topology) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, topology.Stop(ctx))
}

func intArgs(values ...int) []json.RawMessage {
	args, err := actor.MarshalArgs(toAny(values)...)
	if err != nil {
		panic(err)
	}
	return args
}

func toAny(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// recordingSink is a ConnSink keeping what the actor sent
type recordingSink struct {
	mu          sync.Mutex
	messages    []actor.ToClient
	disconnects []string
}

var _ ConnSink = (*recordingSink)(nil)

func (r *recordingSink) SendMessage(_ context.Context, message json.RawMessage) error {
	toClient := actor.ToClient{}
	if err := json.Unmarshal(message, &toClient); err != nil {
		return err
	}
	r.mu.Lock()
	r.messages = append(r.messages, toClient)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Disconnect(_ context.Context, reason string) error {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, reason)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) received() []actor.ToClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]actor.ToClient(nil), r.messages...)
}

func (r *recordingSink) hasType(messageType actor.MessageType) bool {
	for _, message := range r.received() {
		if message.Type == messageType {
			return true
		}
	}
	return false
}

func (r *recordingSink) disconnected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.disconnects...)
}

var errStoreUnavailable = errors.New("lease store unavailable")

// flakyStore fails every lease write while failing is set
type flakyStore struct {
	lease.Store
	failing *atomic.Bool
}

func newFlakyStore(store lease.Store) *flakyStore {
	return &flakyStore{Store: store, failing: atomic.NewBool(false)}
}

func (s *flakyStore) Acquire(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	if s.failing.Load() {
		return nil, errStoreUnavailable
	}
	return s.Store.Acquire(ctx, actorID, nodeID, ttl)
}

func (s *flakyStore) Renew(ctx context.Context, actorID, nodeID string, ttl time.Duration) (*lease.Record, error) {
	if s.failing.Load() {
		return nil, errStoreUnavailable
	}
	return s.Store.Renew(ctx, actorID, nodeID, ttl)
}
