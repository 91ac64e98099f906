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

package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFutureTimeout is returned when the future times out
var ErrFutureTimeout = errors.New("future timeout")

// Result defines the future result
type Result[T any] interface {
	// Success returns the successful result of the future
	Success() T
	// Failure returns the error
	Failure() error
}

type result[T any] struct {
	success T
	failure error
}

// Success returns the successful result of the future
func (x *result[T]) Success() T {
	return x.success
}

// Failure returns the error
func (x *result[T]) Failure() error {
	return x.failure
}

// Future is the pending outcome of an asynchronous computation. It completes
// exactly once; every waiter observes the same result.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	result *result[T]
	cancel context.CancelFunc
}

// New runs fn on its own goroutine and returns the Future of its outcome.
// A panic inside fn completes the future with an error.
func New[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, fmt.Errorf("future failed: %v", r))
			}
		}()

		success, err := fn(ctx)
		f.complete(success, err)
	}()

	return f
}

// Failed returns an already completed Future carrying err
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), cancel: func() {}}
	var zero T
	f.complete(zero, err)
	return f
}

func (x *Future[T]) complete(success T, err error) {
	x.once.Do(func() {
		x.result = &result[T]{success: success, failure: err}
		close(x.done)
	})
}

// Done is closed when the future completes
func (x *Future[T]) Done() <-chan struct{} {
	return x.done
}

// Await waits for the outcome until ctx is done
func (x *Future[T]) Await(ctx context.Context) Result[T] {
	select {
	case <-x.done:
		return x.result
	case <-ctx.Done():
		return &result[T]{failure: ctx.Err()}
	}
}

// AwaitTimeout waits for the outcome at most timeout
func (x *Future[T]) AwaitTimeout(timeout time.Duration) Result[T] {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-x.done:
		return x.result
	case <-timer.C:
		return &result[T]{failure: ErrFutureTimeout}
	}
}

// Cancel cancels the context handed to the computation
func (x *Future[T]) Cancel() {
	x.cancel()
}
