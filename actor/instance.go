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
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/xsync"
	"github.com/tochemey/coordinate/log"
)

// ReasonActorStopped is the disconnect reason sent to the connections of an
// actor that stops on this node
const ReasonActorStopped = "actor stopped"

// Instance is the leader-side incarnation of an actor
type Instance interface {
	// ID returns the actor id
	ID() string
	// IsReady reports whether the actor finished starting and is not stopped
	IsReady() bool
	// Start loads the persisted state and runs the definition OnStart hook
	Start(ctx context.Context) error
	// PrepareConn validates a connection request and returns its state
	PrepareConn(ctx context.Context, params, authData json.RawMessage) (any, error)
	// CreateConn registers a connection and sends it the init message
	CreateConn(ctx context.Context, opts ConnOptions) (*Conn, error)
	// ProcessMessage handles a message the client of conn sent
	ProcessMessage(ctx context.Context, message json.RawMessage, conn *Conn) error
	// ExecuteAction runs the named action and returns its JSON output
	ExecuteAction(ctx context.Context, conn *Conn, name string, args []json.RawMessage) (json.RawMessage, error)
	// ConnForID returns the connection with the given id
	ConnForID(id string) (*Conn, bool)
	// RemoveConn unregisters a connection
	RemoveConn(ctx context.Context, conn *Conn)
	// ConnCount returns the number of live connections
	ConnCount() int
	// Stop disconnects every connection and cancels the pending alarm
	Stop(ctx context.Context) error
}

type instance struct {
	id         string
	key        string
	definition *Definition
	driver     Driver
	logger     log.Logger

	// guards state and serializes hooks and actions
	mu      sync.Mutex
	state   any
	conns   *xsync.Map[string, *Conn]
	ready   *atomic.Bool
	stopped *atomic.Bool
}

var _ Instance = (*instance)(nil)

func newInstance(id, key string, definition *Definition, driver Driver, logger log.Logger) *instance {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &instance{
		id:         id,
		key:        key,
		definition: definition,
		driver:     driver,
		logger:     logger.With("actorId", id),
		conns:      xsync.NewMap[string, *Conn](),
		ready:      atomic.NewBool(false),
		stopped:    atomic.NewBool(false),
	}
}

func (x *instance) ID() string {
	return x.id
}

func (x *instance) IsReady() bool {
	return x.ready.Load() && !x.stopped.Load()
}

func (x *instance) Start(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.stopped.Load() {
		return gerrors.ErrActorNotReady
	}

	if x.definition.CreateState != nil {
		x.state = x.definition.CreateState()
	}

	data, err := x.driver.ReadPersistedData(ctx, x.id)
	if err != nil {
		return fmt.Errorf("failed to read persisted state of %s: %w", x.id, err)
	}

	switch {
	case len(data) > 0 && x.state != nil:
		if err := json.Unmarshal(data, x.state); err != nil {
			return fmt.Errorf("failed to decode persisted state of %s: %w", x.id, err)
		}
	case x.state != nil:
		if err := x.persist(ctx); err != nil {
			return err
		}
	}

	if x.definition.OnStart != nil {
		if err := x.safeCall(func() error { return x.definition.OnStart(x.newContext(ctx)) }); err != nil {
			return fmt.Errorf("failed to start %s: %w", x.id, err)
		}
	}

	x.ready.Store(true)
	x.logger.Debug("actor started")
	return nil
}

func (x *instance) PrepareConn(ctx context.Context, params, authData json.RawMessage) (any, error) {
	if !x.IsReady() {
		return nil, gerrors.ErrActorNotReady
	}

	if x.definition.OnBeforeConnect == nil {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	var state any
	err := x.safeCall(func() error {
		var err error
		state, err = x.definition.OnBeforeConnect(x.newContext(ctx), params, authData)
		return err
	})
	return state, err
}

func (x *instance) CreateConn(ctx context.Context, opts ConnOptions) (*Conn, error) {
	if !x.IsReady() {
		return nil, gerrors.ErrActorNotReady
	}

	conn := newConn(opts)
	conn.remove = x.RemoveConn
	x.conns.Set(conn.ID(), conn)

	if x.definition.OnConnect != nil {
		x.mu.Lock()
		err := x.safeCall(func() error {
			x.definition.OnConnect(x.newContext(ctx), conn)
			return nil
		})
		x.mu.Unlock()
		if err != nil {
			x.logger.Warnf("connect hook of conn=(%s) failed: %v", conn.ID(), err)
		}
	}

	if err := conn.Send(ctx, &ToClient{Type: MessageTypeInit, ConnID: conn.ID(), ConnToken: conn.Token()}); err != nil {
		x.logger.Warnf("failed to send init to conn=(%s): %v", conn.ID(), err)
	}

	x.logger.Debugf("conn=(%s) kind=(%s) created", conn.ID(), conn.Kind())
	return conn, nil
}

func (x *instance) ProcessMessage(ctx context.Context, message json.RawMessage, conn *Conn) error {
	toServer := new(ToServer)
	if err := json.Unmarshal(message, toServer); err != nil {
		return fmt.Errorf("invalid client message: %w", err)
	}

	switch toServer.Type {
	case MessageTypeAction:
		output, err := x.ExecuteAction(ctx, conn, toServer.Name, toServer.Args)
		if err != nil {
			return conn.Send(ctx, &ToClient{Type: MessageTypeError, ID: toServer.ID, Message: err.Error()})
		}
		return conn.Send(ctx, &ToClient{Type: MessageTypeActionResponse, ID: toServer.ID, Output: output})
	case MessageTypeSubscribe:
		if toServer.Event == "" {
			return errors.New("subscribe without event")
		}
		conn.subscriptions.Add(toServer.Event)
		return nil
	case MessageTypeUnsubscribe:
		conn.subscriptions.Remove(toServer.Event)
		return nil
	case MessageTypePing:
		return conn.Send(ctx, &ToClient{Type: MessageTypePong})
	default:
		return fmt.Errorf("unsupported client message type=(%s)", toServer.Type)
	}
}

func (x *instance) ExecuteAction(ctx context.Context, conn *Conn, name string, args []json.RawMessage) (json.RawMessage, error) {
	if !x.IsReady() {
		return nil, gerrors.ErrActorNotReady
	}

	action, ok := x.definition.Actions[name]
	if !ok {
		return nil, gerrors.NewErrActionNotFound(name)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// stopped while waiting for the lock
	if x.stopped.Load() {
		return nil, gerrors.ErrActorNotReady
	}

	var output any
	err := x.safeCall(func() error {
		var err error
		output, err = action(&ActionContext{Context: x.newContext(ctx), conn: conn}, args)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := x.persist(ctx); err != nil {
		return nil, err
	}

	if output == nil {
		return nil, nil
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output of action=(%s): %w", name, err)
	}
	return raw, nil
}

func (x *instance) ConnForID(id string) (*Conn, bool) {
	return x.conns.Get(id)
}

func (x *instance) RemoveConn(ctx context.Context, conn *Conn) {
	if _, ok := x.conns.Pop(conn.ID()); !ok {
		return
	}

	if x.definition.OnDisconnect != nil && !x.stopped.Load() {
		x.mu.Lock()
		err := x.safeCall(func() error {
			x.definition.OnDisconnect(x.newContext(ctx), conn)
			return nil
		})
		x.mu.Unlock()
		if err != nil {
			x.logger.Warnf("disconnect hook of conn=(%s) failed: %v", conn.ID(), err)
		}
	}
	x.logger.Debugf("conn=(%s) removed", conn.ID())
}

func (x *instance) ConnCount() int {
	return x.conns.Len()
}

func (x *instance) Stop(ctx context.Context) error {
	if !x.stopped.CompareAndSwap(false, true) {
		return nil
	}

	// wait for the running action or hook
	x.mu.Lock()
	x.ready.Store(false)
	x.mu.Unlock()

	var err error
	for _, conn := range x.conns.Values() {
		x.conns.Delete(conn.ID())
		err = multierr.Append(err, conn.Disconnect(ctx, ReasonActorStopped))
	}

	if alarmErr := x.driver.DeleteAlarm(ctx, x.id); alarmErr != nil && !errors.Is(alarmErr, gerrors.ErrSchedulerNotStarted) {
		err = multierr.Append(err, alarmErr)
	}

	x.logger.Debug("actor stopped")
	return err
}

func (x *instance) broadcast(ctx context.Context, event string, args ...any) error {
	rawArgs, err := MarshalArgs(args...)
	if err != nil {
		return fmt.Errorf("failed to encode event=(%s) args: %w", event, err)
	}

	message := &ToClient{Type: MessageTypeEvent, Name: event, Args: rawArgs}
	for _, conn := range x.conns.Values() {
		if !conn.Subscribed(event) {
			continue
		}
		if err := conn.Send(ctx, message); err != nil {
			x.logger.Warnf("failed to send event=(%s) to conn=(%s): %v", event, conn.ID(), err)
		}
	}
	return nil
}

func (x *instance) fireAlarm(ctx context.Context) {
	if !x.IsReady() || x.definition.OnAlarm == nil {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.stopped.Load() {
		return
	}

	if err := x.safeCall(func() error { return x.definition.OnAlarm(x.newContext(ctx)) }); err != nil {
		x.logger.Errorf("alarm failed: %v", err)
		return
	}

	if err := x.persist(ctx); err != nil {
		x.logger.Error(err)
	}
}

// persist writes the state. The caller holds the lock.
func (x *instance) persist(ctx context.Context) error {
	if x.state == nil {
		return nil
	}

	data, err := json.Marshal(x.state)
	if err != nil {
		return fmt.Errorf("failed to encode state of %s: %w", x.id, err)
	}

	if err := x.driver.WritePersistedData(ctx, x.id, data); err != nil {
		return fmt.Errorf("failed to persist state of %s: %w", x.id, err)
	}
	return nil
}

func (x *instance) newContext(ctx context.Context) *Context {
	return &Context{ctx: ctx, instance: x}
}

// safeCall turns a panic of user code into an error
func (x *instance) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
