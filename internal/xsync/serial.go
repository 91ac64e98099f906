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

package xsync

import (
	"sync"
)

// Serial runs the tasks submitted under the same key one at a time, in
// submission order. Tasks of distinct keys run concurrently. A key holds a
// goroutine only while it has pending tasks.
type Serial[K comparable] struct {
	mu     sync.Mutex
	queues map[K][]func()
	wg     sync.WaitGroup
}

// NewSerial creates a Serial
func NewSerial[K comparable]() *Serial[K] {
	return &Serial[K]{queues: make(map[K][]func())}
}

// Submit queues task behind the pending tasks of key
func (s *Serial[K]) Submit(key K, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, running := s.queues[key]
	s.queues[key] = append(pending, task)
	if running {
		return
	}

	s.wg.Add(1)
	go s.drain(key)
}

// Wait blocks until every submitted task ran
func (s *Serial[K]) Wait() {
	s.wg.Wait()
}

// Len returns the number of keys with pending or running tasks
func (s *Serial[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

func (s *Serial[K]) drain(key K) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		pending := s.queues[key]
		if len(pending) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := pending[0]
		pending[0] = nil
		s.queues[key] = pending[1:]
		s.mu.Unlock()

		task()
	}
}
