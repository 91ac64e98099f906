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
)

// Driver persists actor state and schedules actor alarms. Only the current
// leader of an actor uses its driver.
type Driver interface {
	// ReadPersistedData returns the persisted state of the actor, or nil when
	// none was written yet
	ReadPersistedData(ctx context.Context, actorID string) ([]byte, error)
	// WritePersistedData replaces the persisted state of the actor
	WritePersistedData(ctx context.Context, actorID string, data []byte) error
	// SetAlarm schedules fire at the given time, replacing any pending alarm
	SetAlarm(ctx context.Context, actorID string, at time.Time, fire func(ctx context.Context)) error
	// DeleteAlarm cancels the pending alarm of the actor
	DeleteAlarm(ctx context.Context, actorID string) error
	// Close releases the driver resources
	Close(ctx context.Context) error
}
