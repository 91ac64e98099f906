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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/flowchartsman/retry"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/coordinate"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/future"
	"github.com/tochemey/coordinate/internal/xsync"
	"github.com/tochemey/coordinate/log"
)

// attempts of one backoff round, rounds repeat until the connection is
// established or closed
const reconnectAttempts = 10

// ReasonClientClosed is the close reason of a connection the client closed
const ReasonClientClosed = "client closed"

// EventHandler receives the arguments of an actor event
type EventHandler func(args []json.RawMessage)

// Conn is a connection to an actor. It reconnects on its own when the
// actor side drops it, for instance when the actor leadership moves.
type Conn struct {
	handle *ActorHandle
	logger log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	current *future.Future[coordinate.Connection]

	generation *atomic.Uint64
	lastErr    *atomic.Error
	nextID     *atomic.Uint64
	inflight   *xsync.Map[uint64, chan *actor.ToClient]
	closed     *atomic.Bool

	listenersMu sync.RWMutex
	listeners   map[string][]EventHandler
}

func newConn(ctx context.Context, handle *ActorHandle) *Conn {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn := &Conn{
		handle:     handle,
		logger:     handle.client.logger.With("actorId", handle.actorID),
		ctx:        ctx,
		cancel:     cancel,
		generation: atomic.NewUint64(0),
		lastErr:    atomic.NewError(nil),
		nextID:     atomic.NewUint64(0),
		inflight:   xsync.NewMap[uint64, chan *actor.ToClient](),
		closed:     atomic.NewBool(false),
		listeners:  make(map[string][]EventHandler),
	}
	conn.current = conn.connect()
	return conn
}

// Err returns the error of the last failed connection attempt. It is nil
// once a connection is established.
func (c *Conn) Err() error {
	return c.lastErr.Load()
}

// Ready waits for the connection to be established
func (c *Conn) Ready(ctx context.Context) error {
	_, err := c.await(ctx)
	return err
}

// Action runs an action over the connection
func (c *Conn) Action(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	conn, err := c.await(ctx)
	if err != nil {
		return nil, err
	}

	rawArgs, err := actor.MarshalArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args of action=(%s): %w", name, err)
	}

	id := c.nextID.Inc()
	reply := make(chan *actor.ToClient, 1)
	c.inflight.Set(id, reply)

	if err := c.send(ctx, conn, &actor.ToServer{Type: actor.MessageTypeAction, ID: id, Name: name, Args: rawArgs}); err != nil {
		c.inflight.Delete(id)
		return nil, err
	}

	select {
	case response := <-reply:
		if response.Type == actor.MessageTypeError {
			return nil, gerrors.NewActionError(response.Message)
		}
		return response.Output, nil
	case <-ctx.Done():
		c.inflight.Delete(id)
		return nil, ctx.Err()
	}
}

// On registers a handler of an actor event. The connection subscribes to
// the event with its first handler.
func (c *Conn) On(ctx context.Context, event string, handler EventHandler) error {
	c.listenersMu.Lock()
	first := len(c.listeners[event]) == 0
	c.listeners[event] = append(c.listeners[event], handler)
	c.listenersMu.Unlock()

	if !first {
		return nil
	}

	conn, err := c.await(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, conn, &actor.ToServer{Type: actor.MessageTypeSubscribe, Event: event})
}

// Off removes the handlers of an event and unsubscribes from it
func (c *Conn) Off(ctx context.Context, event string) error {
	c.listenersMu.Lock()
	_, ok := c.listeners[event]
	delete(c.listeners, event)
	c.listenersMu.Unlock()

	if !ok {
		return nil
	}

	conn, err := c.await(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, conn, &actor.ToServer{Type: actor.MessageTypeUnsubscribe, Event: event})
}

// Close closes the connection and stops reconnecting. Closing twice is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.failInflight(ReasonClientClosed)

	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()

	result := current.Await(ctx)
	if result.Failure() != nil {
		return nil
	}
	return result.Success().Close(ctx, ReasonClientClosed)
}

func (c *Conn) await(ctx context.Context) (coordinate.Connection, error) {
	if c.closed.Load() {
		return nil, gerrors.ErrConnectionClosed
	}

	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()

	result := current.Await(ctx)
	if err := result.Failure(); err != nil {
		if c.closed.Load() {
			return nil, gerrors.ErrConnectionClosed
		}
		return nil, err
	}
	return result.Success(), nil
}

func (c *Conn) send(ctx context.Context, conn coordinate.Connection, message *actor.ToServer) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", message.Type, err)
	}
	return conn.Send(ctx, raw)
}

// connect opens the connection with bounded exponential backoff until it
// succeeds or the Conn is closed
func (c *Conn) connect() *future.Future[coordinate.Connection] {
	handle := c.handle
	client := handle.client
	return future.New(c.ctx, func(ctx context.Context) (coordinate.Connection, error) {
		for {
			var conn coordinate.Connection
			retrier := retry.NewRetrier(reconnectAttempts, client.reconnectFloor, client.reconnectCeiling)
			err := retrier.RunContext(ctx, func(ctx context.Context) error {
				sink := &connSink{conn: c, generation: c.generation.Inc()}
				opened, err := client.coordinator.OpenConnection(ctx, handle.actorID, handle.params, handle.authData, sink)
				if err != nil {
					c.lastErr.Store(err)
					c.logger.Warnf("failed to connect: %v", err)
					return err
				}
				conn = opened
				return nil
			})

			switch {
			case err == nil:
				c.lastErr.Store(nil)
				c.resubscribe(ctx, conn)
				return conn, nil
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case permanent(err):
				return nil, err
			}
		}
	})
}

func (c *Conn) resubscribe(ctx context.Context, conn coordinate.Connection) {
	c.listenersMu.RLock()
	events := make([]string, 0, len(c.listeners))
	for event := range c.listeners {
		events = append(events, event)
	}
	c.listenersMu.RUnlock()

	for _, event := range events {
		if err := c.send(ctx, conn, &actor.ToServer{Type: actor.MessageTypeSubscribe, Event: event}); err != nil {
			c.logger.Warnf("failed to subscribe to event=(%s): %v", event, err)
		}
	}
}

// reconnect replaces the dropped connection
func (c *Conn) reconnect(reason string) {
	if c.closed.Load() {
		return
	}
	c.logger.Infof("connection dropped (%s), reconnecting", reason)
	c.failInflight(reason)

	c.mu.Lock()
	c.current = c.connect()
	c.mu.Unlock()
}

func (c *Conn) failInflight(reason string) {
	for _, id := range c.inflight.Keys() {
		if reply, ok := c.inflight.Pop(id); ok {
			reply <- &actor.ToClient{Type: actor.MessageTypeError, ID: id, Message: fmt.Sprintf("connection closed: %s", reason)}
		}
	}
}

func (c *Conn) receive(message *actor.ToClient) {
	switch message.Type {
	case actor.MessageTypeActionResponse, actor.MessageTypeError:
		if reply, ok := c.inflight.Pop(message.ID); ok {
			reply <- message
			return
		}
		if message.Type == actor.MessageTypeError {
			c.logger.Warnf("actor error: %s", message.Message)
		}
	case actor.MessageTypeEvent:
		c.listenersMu.RLock()
		handlers := append([]EventHandler(nil), c.listeners[message.Name]...)
		c.listenersMu.RUnlock()
		for _, handler := range handlers {
			handler(message.Args)
		}
	case actor.MessageTypeInit:
		c.logger.Debugf("connected as conn=(%s)", message.ConnID)
	}
}

func permanent(err error) bool {
	return errors.Is(err, gerrors.ErrInvalidActorID) ||
		errors.Is(err, gerrors.ErrTopologyNotStarted)
}

// connSink feeds one established connection into its Conn. Sinks of
// replaced connections are ignored.
type connSink struct {
	conn       *Conn
	generation uint64
}

var _ coordinate.ConnSink = (*connSink)(nil)

func (s *connSink) stale() bool {
	return s.generation != s.conn.generation.Load()
}

func (s *connSink) SendMessage(_ context.Context, raw json.RawMessage) error {
	if s.stale() {
		return nil
	}
	message := new(actor.ToClient)
	if err := json.Unmarshal(raw, message); err != nil {
		return fmt.Errorf("invalid actor message: %w", err)
	}
	s.conn.receive(message)
	return nil
}

func (s *connSink) Disconnect(_ context.Context, reason string) error {
	if s.stale() {
		return nil
	}
	s.conn.reconnect(reason)
	return nil
}
