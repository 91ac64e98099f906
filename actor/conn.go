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

package actor

import (
	"context"
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// DriverKind names the transport backing a connection
type DriverKind string

const (
	// DriverKindCoordinateRelay is a connection whose client lives on another
	// node. Its driver state is the origin node id.
	DriverKindCoordinateRelay DriverKind = "coordinateRelay"
	// DriverKindGenericHTTP is a transient connection created for one
	// stateless action
	DriverKindGenericHTTP DriverKind = "genericHttp"
	// DriverKindLocal is a connection whose client lives on this node
	DriverKindLocal DriverKind = "local"
)

// ConnDriver delivers actor output to the transport of a connection
type ConnDriver interface {
	SendMessage(ctx context.Context, conn *Conn, message json.RawMessage) error
	Disconnect(ctx context.Context, conn *Conn, reason string) error
}

type discardConnDriver struct{}

func (discardConnDriver) SendMessage(context.Context, *Conn, json.RawMessage) error { return nil }
func (discardConnDriver) Disconnect(context.Context, *Conn, string) error           { return nil }

// DiscardConnDriver drops every message. Transient action connections use it.
var DiscardConnDriver ConnDriver = discardConnDriver{}

// ConnOptions describes a connection to create
type ConnOptions struct {
	ID          string
	Token       string
	Params      json.RawMessage
	State       any
	AuthData    json.RawMessage
	Kind        DriverKind
	DriverState any
	Driver      ConnDriver
}

// Conn is a leader-side client connection
type Conn struct {
	id            string
	token         string
	params        json.RawMessage
	state         any
	authData      json.RawMessage
	kind          DriverKind
	driverState   any
	driver        ConnDriver
	subscriptions mapset.Set[string]
	// set by the owning instance
	remove func(ctx context.Context, conn *Conn)
}

func newConn(opts ConnOptions) *Conn {
	driver := opts.Driver
	if driver == nil {
		driver = DiscardConnDriver
	}
	return &Conn{
		id:            opts.ID,
		token:         opts.Token,
		params:        opts.Params,
		state:         opts.State,
		authData:      opts.AuthData,
		kind:          opts.Kind,
		driverState:   opts.DriverState,
		driver:        driver,
		subscriptions: mapset.NewSet[string](),
	}
}

// ID returns the connection id
func (c *Conn) ID() string { return c.id }

// Token returns the secret the client presents with every message
func (c *Conn) Token() string { return c.token }

// Params returns the connection parameters
func (c *Conn) Params() json.RawMessage { return c.params }

// State returns the state returned by the definition OnBeforeConnect hook
func (c *Conn) State() any { return c.state }

// AuthData returns the authentication data supplied on connect
func (c *Conn) AuthData() json.RawMessage { return c.authData }

// Kind returns the connection driver kind
func (c *Conn) Kind() DriverKind { return c.kind }

// DriverState returns the driver specific state
func (c *Conn) DriverState() any { return c.driverState }

// Subscribed reports whether the connection listens to event
func (c *Conn) Subscribed(event string) bool { return c.subscriptions.Contains(event) }

// Send pushes a message to the client
func (c *Conn) Send(ctx context.Context, message *ToClient) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", message.Type, err)
	}
	return c.driver.SendMessage(ctx, c, raw)
}

// Disconnect asks the transport to close the client and unregisters the
// connection from its actor
func (c *Conn) Disconnect(ctx context.Context, reason string) error {
	err := c.driver.Disconnect(ctx, c, reason)
	if c.remove != nil {
		c.remove(ctx, c)
	}
	return err
}
