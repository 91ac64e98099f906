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

// Package memory provides an in-process pub/sub bus. Several nodes living in
// the same process share one Bus.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/pubsub"
)

const defaultBufferSize = 4096

// Filter decides whether a publish is delivered. Returning false drops the
// message, which lets tests simulate loss.
type Filter func(nodeID string, raw []byte) bool

// Bus is an in-process implementation of pubsub.Driver
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	filter      Filter
	bufferSize  int
	logger      log.Logger
	closed      *atomic.Bool
}

var _ pubsub.Driver = (*Bus)(nil)

// Option configures the Bus
type Option func(*Bus)

// WithBufferSize sets the per-node inbound buffer
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates an empty Bus
func NewBus(opts ...Option) *Bus {
	bus := &Bus{
		subscribers: make(map[string]*subscriber),
		bufferSize:  defaultBufferSize,
		logger:      log.DefaultLogger,
		closed:      atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// SetFilter installs a delivery filter. A nil filter delivers everything.
func (b *Bus) SetFilter(filter Filter) {
	b.mu.Lock()
	b.filter = filter
	b.mu.Unlock()
}

// CreateNodeSubscriber implements pubsub.Driver
func (b *Bus) CreateNodeSubscriber(ctx context.Context, nodeID string, handler pubsub.Handler) (pubsub.Subscription, error) {
	if b.closed.Load() {
		return nil, gerrors.ErrDriverClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[nodeID]; ok {
		return nil, fmt.Errorf("pubsub/memory: node %s already has a subscriber", nodeID)
	}

	sub := &subscriber{
		bus:     b,
		nodeID:  nodeID,
		inbox:   make(chan []byte, b.bufferSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.subscribers[nodeID] = sub
	go sub.loop(context.WithoutCancel(ctx), handler)
	return sub, nil
}

// PublishToNode implements pubsub.Driver. Publishing to a node without a
// subscriber silently drops the message.
func (b *Bus) PublishToNode(ctx context.Context, nodeID string, raw []byte) error {
	if b.closed.Load() {
		return gerrors.ErrDriverClosed
	}

	b.mu.RLock()
	sub, ok := b.subscribers[nodeID]
	filter := b.filter
	b.mu.RUnlock()

	if !ok {
		b.logger.Debugf("pubsub/memory: no subscriber for node %s, message dropped", nodeID)
		return nil
	}

	if filter != nil && !filter(nodeID, raw) {
		return nil
	}

	payload := make([]byte, len(raw))
	copy(payload, raw)

	select {
	case sub.inbox <- payload:
		return nil
	case <-sub.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unsubscribes every node
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe(context.Background())
	}
	return nil
}

type subscriber struct {
	bus      *Bus
	nodeID   string
	inbox    chan []byte
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

var _ pubsub.Subscription = (*subscriber)(nil)

func (s *subscriber) loop(ctx context.Context, handler pubsub.Handler) {
	defer close(s.stopped)
	for {
		select {
		case <-s.stop:
			return
		case raw := <-s.inbox:
			handler(ctx, raw)
		}
	}
}

// Unsubscribe implements pubsub.Subscription
func (s *subscriber) Unsubscribe(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.bus.mu.Lock()
		if current, ok := s.bus.subscribers[s.nodeID]; ok && current == s {
			delete(s.bus.subscribers, s.nodeID)
		}
		s.bus.mu.Unlock()
		close(s.stop)
	})

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
