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

package client

import (
	"encoding/json"
	"time"

	"github.com/tochemey/coordinate/log"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(client *Client)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Client)

func (f OptionFunc) Apply(c *Client) {
	f(c)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *Client) {
		c.logger = logger
	})
}

// WithReconnectBackoff sets the bounds of the exponential delay between
// reconnect attempts
func WithReconnectBackoff(floor, ceiling time.Duration) Option {
	return OptionFunc(func(c *Client) {
		if floor > 0 && ceiling >= floor {
			c.reconnectFloor = floor
			c.reconnectCeiling = ceiling
		}
	})
}

// HandleOption configures an ActorHandle
type HandleOption func(*ActorHandle)

// WithParams sets the connection parameters handed to the actor
func WithParams(params json.RawMessage) HandleOption {
	return func(h *ActorHandle) {
		h.params = params
	}
}

// WithAuthData sets the authentication data handed to the actor
func WithAuthData(authData json.RawMessage) HandleOption {
	return func(h *ActorHandle) {
		h.authData = authData
	}
}
