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

// Package client is the in-process client of actors coordinated by a
// coordinate.Topology. A Client talks to any actor of the cluster through
// the local node: stateless actions and long-lived connections are routed to
// the actor leader whichever node it lives on.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tochemey/coordinate/coordinate"
	"github.com/tochemey/coordinate/log"
)

const (
	// DefaultReconnectFloor is the first delay between reconnect attempts
	DefaultReconnectFloor = 100 * time.Millisecond
	// DefaultReconnectCeiling caps the delay between reconnect attempts
	DefaultReconnectCeiling = 5 * time.Second
)

// Coordinator is the node-side surface a Client needs
type Coordinator interface {
	OpenConnection(ctx context.Context, actorID string, params, authData json.RawMessage, sink coordinate.ConnSink) (coordinate.Connection, error)
	CallAction(ctx context.Context, actorID, name string, args []json.RawMessage, params, authData json.RawMessage) (json.RawMessage, error)
}

var _ Coordinator = (*coordinate.Topology)(nil)

// Client creates actor handles
type Client struct {
	coordinator      Coordinator
	logger           log.Logger
	reconnectFloor   time.Duration
	reconnectCeiling time.Duration
}

// New creates a Client on top of the local node
func New(coordinator Coordinator, opts ...Option) *Client {
	client := &Client{
		coordinator:      coordinator,
		logger:           log.DefaultLogger,
		reconnectFloor:   DefaultReconnectFloor,
		reconnectCeiling: DefaultReconnectCeiling,
	}
	for _, opt := range opts {
		opt.Apply(client)
	}
	return client
}

// Actor returns a handle on the actor with the given id
func (c *Client) Actor(actorID string, opts ...HandleOption) *ActorHandle {
	handle := &ActorHandle{client: c, actorID: actorID}
	for _, opt := range opts {
		opt(handle)
	}
	return handle
}
