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

// Package redis implements pubsub.Driver on Redis channels
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/pubsub"
)

// Driver publishes envelopes on <prefix>.node.<nodeID> channels
type Driver struct {
	config *Config
	logger log.Logger
	client *redis.Client

	mu            sync.Mutex
	subscriptions map[string]*subscription
	closed        *atomic.Bool
}

var _ pubsub.Driver = (*Driver)(nil)

// New creates a Driver and checks the server is reachable
func New(ctx context.Context, config *Config, logger log.Logger) (*Driver, error) {
	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.DefaultLogger
	}

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("pubsub/redis: invalid url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub/redis: failed to reach server: %w", err)
	}

	return NewFromClient(client, config, logger), nil
}

// NewFromClient creates a Driver on top of an existing client. The driver owns
// the client and closes it on Close.
func NewFromClient(client *redis.Client, config *Config, logger log.Logger) *Driver {
	config.Sanitize()
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Driver{
		config:        config,
		logger:        logger,
		client:        client,
		subscriptions: make(map[string]*subscription),
		closed:        atomic.NewBool(false),
	}
}

// CreateNodeSubscriber implements pubsub.Driver
func (d *Driver) CreateNodeSubscriber(ctx context.Context, nodeID string, handler pubsub.Handler) (pubsub.Subscription, error) {
	if d.closed.Load() {
		return nil, gerrors.ErrDriverClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscriptions[nodeID]; ok {
		return nil, fmt.Errorf("pubsub/redis: node %s already has a subscriber", nodeID)
	}

	channel := pubsub.NodeTopic(d.config.TopicPrefix, nodeID)
	pubSub := d.client.Subscribe(ctx, channel)
	// wait for the subscription confirmation so that publishes issued after
	// this call returns are not lost
	if _, err := pubSub.Receive(ctx); err != nil {
		_ = pubSub.Close()
		return nil, err
	}

	sub := &subscription{
		driver:  d,
		nodeID:  nodeID,
		pubSub:  pubSub,
		stopped: make(chan struct{}),
	}
	d.subscriptions[nodeID] = sub

	messages := pubSub.Channel(redis.WithChannelSize(d.config.ChannelSize))
	go sub.loop(context.WithoutCancel(ctx), messages, handler)
	d.logger.Debugf("pubsub/redis: node %s subscribed to %s", nodeID, channel)
	return sub, nil
}

// PublishToNode implements pubsub.Driver
func (d *Driver) PublishToNode(ctx context.Context, nodeID string, raw []byte) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}
	return d.client.Publish(ctx, pubsub.NodeTopic(d.config.TopicPrefix, nodeID), raw).Err()
}

// Close unsubscribes every node and closes the client
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subscriptions))
	for _, sub := range d.subscriptions {
		subs = append(subs, sub)
	}
	d.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe(context.Background())
	}
	return d.client.Close()
}

type subscription struct {
	driver  *Driver
	nodeID  string
	pubSub  *redis.PubSub
	stopped chan struct{}
	once    sync.Once
	err     error
}

func (s *subscription) loop(ctx context.Context, messages <-chan *redis.Message, handler pubsub.Handler) {
	defer close(s.stopped)
	for msg := range messages {
		handler(ctx, []byte(msg.Payload))
	}
}

// Unsubscribe implements pubsub.Subscription
func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.driver.mu.Lock()
		delete(s.driver.subscriptions, s.nodeID)
		s.driver.mu.Unlock()
		s.err = s.pubSub.Close()
	})

	select {
	case <-s.stopped:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
