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

// Package memory provides an in-process actor.Driver. Persisted state lives
// as long as the driver; several nodes of one process may share it.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/alarm"
	"github.com/tochemey/coordinate/log"
)

// Driver keeps persisted state in a map
type Driver struct {
	mu        sync.RWMutex
	data      map[string][]byte
	scheduler *alarm.Scheduler
	closed    *atomic.Bool
}

var _ actor.Driver = (*Driver)(nil)

// NewDriver creates a Driver and starts its alarm scheduler
func NewDriver(logger log.Logger) *Driver {
	scheduler := alarm.NewScheduler(logger, time.Second)
	scheduler.Start(context.Background())
	return &Driver{
		data:      make(map[string][]byte),
		scheduler: scheduler,
		closed:    atomic.NewBool(false),
	}
}

// ReadPersistedData implements actor.Driver
func (d *Driver) ReadPersistedData(_ context.Context, actorID string) ([]byte, error) {
	if d.closed.Load() {
		return nil, gerrors.ErrDriverClosed
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.data[actorID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// WritePersistedData implements actor.Driver
func (d *Driver) WritePersistedData(_ context.Context, actorID string, data []byte) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}

	d.mu.Lock()
	d.data[actorID] = append([]byte(nil), data...)
	d.mu.Unlock()
	return nil
}

// SetAlarm implements actor.Driver
func (d *Driver) SetAlarm(_ context.Context, actorID string, at time.Time, fire func(ctx context.Context)) error {
	return d.scheduler.Set(actorID, at, fire)
}

// DeleteAlarm implements actor.Driver
func (d *Driver) DeleteAlarm(_ context.Context, actorID string) error {
	return d.scheduler.Delete(actorID)
}

// Close implements actor.Driver
func (d *Driver) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.scheduler.Stop(ctx)
	return nil
}
