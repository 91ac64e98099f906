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
	"sync"
	"time"
)

type testDriver struct {
	mu     sync.Mutex
	data   map[string][]byte
	alarms map[string]func(context.Context)
}

func newTestDriver() *testDriver {
	return &testDriver{data: make(map[string][]byte), alarms: make(map[string]func(context.Context))}
}

func (d *testDriver) ReadPersistedData(_ context.Context, actorID string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data[actorID], nil
}

func (d *testDriver) WritePersistedData(_ context.Context, actorID string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[actorID] = data
	return nil
}

func (d *testDriver) SetAlarm(_ context.Context, actorID string, _ time.Time, fire func(ctx context.Context)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alarms[actorID] = fire
	return nil
}

func (d *testDriver) DeleteAlarm(_ context.Context, actorID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.alarms, actorID)
	return nil
}

func (d *testDriver) Close(context.Context) error { return nil }

// fire runs the pending alarm of actorID, as the scheduler would
func (d *testDriver) fire(ctx context.Context, actorID string) bool {
	d.mu.Lock()
	fire, ok := d.alarms[actorID]
	delete(d.alarms, actorID)
	d.mu.Unlock()
	if ok {
		fire(ctx)
	}
	return ok
}

type recordingConnDriver struct {
	mu          sync.Mutex
	messages    []ToClient
	disconnects []string
}

func (r *recordingConnDriver) SendMessage(_ context.Context, _ *Conn, message json.RawMessage) error {
	toClient := ToClient{}
	if err := json.Unmarshal(message, &toClient); err != nil {
		return err
	}
	r.mu.Lock()
	r.messages = append(r.messages, toClient)
	r.mu.Unlock()
	return nil
}

func (r *recordingConnDriver) Disconnect(_ context.Context, _ *Conn, reason string) error {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, reason)
	r.mu.Unlock()
	return nil
}

func (r *recordingConnDriver) received() []ToClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToClient(nil), r.messages...)
}

func (r *recordingConnDriver) last() ToClient {
	received := r.received()
	return received[len(received)-1]
}

type counterState struct {
	Count int `json:"count"`
}

func counterDefinition() *Definition {
	return &Definition{
		Name:        "counter",
		CreateState: func() any { return &counterState{} },
		OnBeforeConnect: func(_ *Context, params, _ json.RawMessage) (any, error) {
			if string(params) == `"reject"` {
				return nil, errors.New("rejected")
			}
			return "conn-state", nil
		},
		OnAlarm: func(ctx *Context) error {
			StateAs[*counterState](ctx).Count = 100
			return nil
		},
		Actions: map[string]ActionFunc{
			"increment": func(ctx *ActionContext, args []json.RawMessage) (any, error) {
				by, err := Arg[int](args, 0)
				if err != nil {
					return nil, err
				}
				state := StateAs[*counterState](ctx.Context)
				state.Count += by
				if err := ctx.Broadcast("newCount", state.Count); err != nil {
					return nil, err
				}
				return state.Count, nil
			},
			"fail": func(*ActionContext, []json.RawMessage) (any, error) {
				return nil, errors.New("boom")
			},
			"panic": func(*ActionContext, []json.RawMessage) (any, error) {
				panic("kaboom")
			},
			"alarm": func(ctx *ActionContext, _ []json.RawMessage) (any, error) {
				return nil, ctx.SetAlarm(time.Now().Add(time.Minute))
			},
		},
	}
}
