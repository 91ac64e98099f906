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

// Package nats implements pubsub.Driver on core NATS subjects
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/pubsub"
)

// Driver publishes envelopes on <prefix>.node.<nodeID> subjects
type Driver struct {
	config *Config
	logger log.Logger
	conn   *nats.Conn

	mu            sync.Mutex
	subscriptions map[string]*subscription
	closed        *atomic.Bool
}

var _ pubsub.Driver = (*Driver)(nil)

// New connects to the NATS server described by config
func New(config *Config, logger log.Logger) (*Driver, error) {
	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.DefaultLogger
	}

	opts := nats.GetDefaultOptions()
	opts.Url = config.Server
	opts.Name = config.ConnectionName
	opts.ReconnectWait = config.ReconnectWait
	opts.MaxReconnect = -1

	var conn *nats.Conn
	retrier := retry.NewRetrier(config.MaxConnectRetries, 100*time.Millisecond, config.ReconnectWait)
	if err := retrier.Run(func() error {
		var err error
		conn, err = opts.Connect()
		return err
	}); err != nil {
		return nil, fmt.Errorf("pubsub/nats: failed to connect to %s: %w", config.Server, err)
	}

	return &Driver{
		config:        config,
		logger:        logger,
		conn:          conn,
		subscriptions: make(map[string]*subscription),
		closed:        atomic.NewBool(false),
	}, nil
}

// CreateNodeSubscriber implements pubsub.Driver
func (d *Driver) CreateNodeSubscriber(ctx context.Context, nodeID string, handler pubsub.Handler) (pubsub.Subscription, error) {
	if d.closed.Load() {
		return nil, gerrors.ErrDriverClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscriptions[nodeID]; ok {
		return nil, fmt.Errorf("pubsub/nats: node %s already has a subscriber", nodeID)
	}

	// nats calls an async subscription handler from a single goroutine
	handlerCtx := context.WithoutCancel(ctx)
	sub, err := d.conn.Subscribe(pubsub.NodeTopic(d.config.TopicPrefix, nodeID), func(msg *nats.Msg) {
		handler(handlerCtx, msg.Data)
	})
	if err != nil {
		return nil, err
	}

	if err := d.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	s := &subscription{driver: d, nodeID: nodeID, sub: sub}
	d.subscriptions[nodeID] = s
	d.logger.Debugf("pubsub/nats: node %s subscribed to %s", nodeID, sub.Subject)
	return s, nil
}

// PublishToNode implements pubsub.Driver
func (d *Driver) PublishToNode(_ context.Context, nodeID string, raw []byte) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}
	return d.conn.Publish(pubsub.NodeTopic(d.config.TopicPrefix, nodeID), raw)
}

// Close drains the connection
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	d.subscriptions = make(map[string]*subscription)
	d.mu.Unlock()

	if err := d.conn.Drain(); err != nil {
		d.conn.Close()
		return err
	}
	return nil
}

type subscription struct {
	driver *Driver
	nodeID string
	sub    *nats.Subscription
	once   sync.Once
	err    error
}

// Unsubscribe implements pubsub.Subscription
func (s *subscription) Unsubscribe(context.Context) error {
	s.once.Do(func() {
		s.driver.mu.Lock()
		delete(s.driver.subscriptions, s.nodeID)
		s.driver.mu.Unlock()

		if s.driver.closed.Load() {
			return
		}
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}
