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

// Package alarm schedules the per-actor one-shot alarms of actor drivers.
// An actor has at most one pending alarm: setting a new one replaces it.
package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

// Scheduler wraps a quartz scheduler
type Scheduler struct {
	mu              sync.Mutex
	quartzScheduler quartz.Scheduler
	started         *atomic.Bool
	logger          log.Logger
	stopTimeout     time.Duration
}

// NewScheduler creates an instance of Scheduler
func NewScheduler(logger log.Logger, stopTimeout time.Duration) *Scheduler {
	// quartz logs are noisy, ours are enough
	quartzScheduler, _ := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Scheduler{
		quartzScheduler: quartzScheduler,
		started:         atomic.NewBool(false),
		logger:          logger,
		stopTimeout:     stopTimeout,
	}
}

// Start starts the scheduler
func (x *Scheduler) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started.Load() {
		return
	}
	x.quartzScheduler.Start(ctx)
	x.started.Store(x.quartzScheduler.IsStarted())
	x.logger.Debug("alarm scheduler started")
}

// Stop clears pending alarms and stops the scheduler
func (x *Scheduler) Stop(ctx context.Context) {
	if !x.started.Load() {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	_ = x.quartzScheduler.Clear()
	x.quartzScheduler.Stop()
	x.started.Store(false)

	ctx, cancel := context.WithTimeout(ctx, x.stopTimeout)
	defer cancel()
	x.quartzScheduler.Wait(ctx)
	x.logger.Debug("alarm scheduler stopped")
}

// Set schedules fire to run at the given time for actorID, replacing any
// pending alarm of that actor. A time in the past fires immediately.
func (x *Scheduler) Set(actorID string, at time.Time, fire func(ctx context.Context)) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.Load() {
		return gerrors.ErrSchedulerNotStarted
	}

	key := quartz.NewJobKey(jobKey(actorID))
	// an absent job is fine
	_ = x.quartzScheduler.DeleteJob(key)

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	fn := job.NewFunctionJob[bool](func(ctx context.Context) (bool, error) {
		fire(ctx)
		return true, nil
	})

	return x.quartzScheduler.ScheduleJob(quartz.NewJobDetail(fn, key), quartz.NewRunOnceTrigger(delay))
}

// Delete cancels the pending alarm of actorID if any
func (x *Scheduler) Delete(actorID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.started.Load() {
		return gerrors.ErrSchedulerNotStarted
	}

	// the job is gone once fired, so a missing job is not an error
	_ = x.quartzScheduler.DeleteJob(quartz.NewJobKey(jobKey(actorID)))
	return nil
}

func jobKey(actorID string) string {
	return "alarm:" + actorID
}
