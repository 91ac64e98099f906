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
	"time"

	"github.com/tochemey/coordinate/log"
)

// Context is handed to definition hooks and actions. It is only valid for the
// duration of the call.
type Context struct {
	ctx      context.Context
	instance *instance
}

// Ctx returns the context of the running call
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// ActorID returns the id of the actor
func (c *Context) ActorID() string {
	return c.instance.id
}

// Key returns the key part of the actor id
func (c *Context) Key() string {
	return c.instance.key
}

// State returns the actor state
func (c *Context) State() any {
	return c.instance.state
}

// Logger returns the actor scoped logger
func (c *Context) Logger() log.Logger {
	return c.instance.logger
}

// Conns returns the live connections of the actor
func (c *Context) Conns() []*Conn {
	return c.instance.conns.Values()
}

// Broadcast sends an event to every connection subscribed to it
func (c *Context) Broadcast(event string, args ...any) error {
	return c.instance.broadcast(c.ctx, event, args...)
}

// SetAlarm schedules the definition OnAlarm hook to run at the given time
func (c *Context) SetAlarm(at time.Time) error {
	return c.instance.driver.SetAlarm(c.ctx, c.instance.id, at, c.instance.fireAlarm)
}

// DeleteAlarm cancels the pending alarm
func (c *Context) DeleteAlarm() error {
	return c.instance.driver.DeleteAlarm(c.ctx, c.instance.id)
}

// ActionContext is the Context of an action
type ActionContext struct {
	*Context
	conn *Conn
}

// Conn returns the connection that invoked the action
func (c *ActionContext) Conn() *Conn {
	return c.conn
}

// StateAs returns the actor state as T. It panics when the state has another type.
func StateAs[T any](c *Context) T {
	return c.State().(T)
}
