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

package main

import (
	"encoding/json"

	"github.com/tochemey/coordinate/actor"
)

const counterEvent = "count"

type counterState struct {
	Count int `json:"count"`
}

// counterDefinition is the actor type a node hosts, addressed as counter/<key>
func counterDefinition() *actor.Definition {
	return &actor.Definition{
		Name:        "counter",
		CreateState: func() any { return &counterState{} },
		OnStart: func(ctx *actor.Context) error {
			ctx.Logger().Debugf("counter started at %d", actor.StateAs[*counterState](ctx).Count)
			return nil
		},
		Actions: map[string]actor.ActionFunc{
			"increment": func(ctx *actor.ActionContext, args []json.RawMessage) (any, error) {
				by := 1
				if len(args) > 0 {
					var err error
					if by, err = actor.Arg[int](args, 0); err != nil {
						return nil, err
					}
				}
				state := actor.StateAs[*counterState](ctx.Context)
				state.Count += by
				if err := ctx.Broadcast(counterEvent, state.Count); err != nil {
					return nil, err
				}
				return state.Count, nil
			},
			"get": func(ctx *actor.ActionContext, _ []json.RawMessage) (any, error) {
				return actor.StateAs[*counterState](ctx.Context).Count, nil
			},
			"reset": func(ctx *actor.ActionContext, _ []json.RawMessage) (any, error) {
				state := actor.StateAs[*counterState](ctx.Context)
				state.Count = 0
				if err := ctx.Broadcast(counterEvent, state.Count); err != nil {
					return nil, err
				}
				return state.Count, nil
			},
		},
	}
}
