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

// Package bolt implements actor.Driver on a local bbolt database file
package bolt

import (
	"context"
	"fmt"
	"os"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/alarm"
	"github.com/tochemey/coordinate/log"
)

const (
	boltFileMode   os.FileMode = 0o600
	boltBucketName             = "actors"
)

var defaultBoltOptions = &bbolt.Options{Timeout: 5 * time.Second, NoGrowSync: true}

// Driver stores persisted state in a bbolt bucket keyed by actor id
type Driver struct {
	db        *bbolt.DB
	bucket    []byte
	scheduler *alarm.Scheduler
	closed    *atomic.Bool
}

var _ actor.Driver = (*Driver)(nil)

// NewDriver opens (or creates) the database at path
func NewDriver(path string, logger log.Logger) (*Driver, error) {
	optionsCopy := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &optionsCopy)
	if err != nil {
		return nil, fmt.Errorf("actor/bolt: opening boltdb: %w", err)
	}

	bucket := []byte(boltBucketName)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("actor/bolt: initializing bucket: %w", err)
	}

	scheduler := alarm.NewScheduler(logger, time.Second)
	scheduler.Start(context.Background())

	return &Driver{
		db:        db,
		bucket:    bucket,
		scheduler: scheduler,
		closed:    atomic.NewBool(false),
	}, nil
}

// ReadPersistedData implements actor.Driver
func (d *Driver) ReadPersistedData(ctx context.Context, actorID string) ([]byte, error) {
	if err := d.ensureOpen(ctx); err != nil {
		return nil, err
	}

	var data []byte
	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(d.bucket)
		if bucket == nil {
			return fmt.Errorf("actor/bolt: bucket %q missing", d.bucket)
		}
		// values are only valid during the transaction
		if value := bucket.Get([]byte(actorID)); value != nil {
			data = append([]byte(nil), value...)
		}
		return nil
	})
	return data, err
}

// WritePersistedData implements actor.Driver
func (d *Driver) WritePersistedData(ctx context.Context, actorID string, data []byte) error {
	if err := d.ensureOpen(ctx); err != nil {
		return err
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(d.bucket)
		if bucket == nil {
			return fmt.Errorf("actor/bolt: bucket %q missing", d.bucket)
		}
		return bucket.Put([]byte(actorID), data)
	})
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
	return d.db.Close()
}

func (d *Driver) ensureOpen(ctx context.Context) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
