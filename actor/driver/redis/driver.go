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

// Package redis implements actor.Driver on Redis. Each actor persists its
// state under actor:<id>:persisted.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/internal/alarm"
	"github.com/tochemey/coordinate/log"
)

const defaultKeyPrefix = "actor:"

// Driver stores persisted state in Redis and runs alarms in-process
type Driver struct {
	client    redis.UniversalClient
	keyPrefix string
	scheduler *alarm.Scheduler
}

var _ actor.Driver = (*Driver)(nil)

// Option configures the Driver
type Option func(*Driver)

// WithKeyPrefix sets the key prefix
func WithKeyPrefix(prefix string) Option {
	return func(d *Driver) {
		d.keyPrefix = prefix
	}
}

// NewDriver creates a Driver. The driver does not own the client.
func NewDriver(client redis.UniversalClient, logger log.Logger, opts ...Option) *Driver {
	scheduler := alarm.NewScheduler(logger, time.Second)
	scheduler.Start(context.Background())

	driver := &Driver{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(driver)
	}
	return driver
}

// ReadPersistedData implements actor.Driver
func (d *Driver) ReadPersistedData(ctx context.Context, actorID string) ([]byte, error) {
	data, err := d.client.Get(ctx, d.persistedKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("actor/redis: read %s: %w", actorID, err)
	}
	return data, nil
}

// WritePersistedData implements actor.Driver
func (d *Driver) WritePersistedData(ctx context.Context, actorID string, data []byte) error {
	if err := d.client.Set(ctx, d.persistedKey(actorID), data, 0).Err(); err != nil {
		return fmt.Errorf("actor/redis: write %s: %w", actorID, err)
	}
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
	d.scheduler.Stop(ctx)
	return nil
}

func (d *Driver) persistedKey(actorID string) string {
	return d.keyPrefix + actorID + ":persisted"
}
