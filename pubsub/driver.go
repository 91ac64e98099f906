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

// Package pubsub defines the transport the coordination layer relays
// envelopes over: one topic per node, point-to-point publish, no delivery or
// ordering guarantee.
package pubsub

import (
	"context"
)

// Handler receives the raw envelopes published to a node. A subscription
// calls its handler from a single goroutine, in receipt order.
type Handler func(ctx context.Context, raw []byte)

// Subscription is the live subscription of a node to its topic
type Subscription interface {
	// Unsubscribe stops delivery. It is idempotent.
	Unsubscribe(ctx context.Context) error
}

// Driver is implemented by the backing bus
type Driver interface {
	// CreateNodeSubscriber subscribes nodeID to its own topic. A driver
	// accepts a single subscription per node id.
	CreateNodeSubscriber(ctx context.Context, nodeID string, handler Handler) (Subscription, error)
	// PublishToNode publishes raw to the topic of nodeID. Delivery is best-effort.
	PublishToNode(ctx context.Context, nodeID string, raw []byte) error
	// Close releases the driver resources
	Close() error
}

// DefaultTopicPrefix prefixes every node topic
const DefaultTopicPrefix = "coordinate"

// NodeTopic returns the topic name a node subscribes to
func NodeTopic(prefix, nodeID string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + ".node." + nodeID
}
