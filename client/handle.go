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

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tochemey/coordinate/actor"
)

// ActorHandle addresses one actor
type ActorHandle struct {
	client   *Client
	actorID  string
	params   json.RawMessage
	authData json.RawMessage
}

// ActorID returns the actor id
func (h *ActorHandle) ActorID() string {
	return h.actorID
}

// Action runs an action without opening a connection
func (h *ActorHandle) Action(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	rawArgs, err := actor.MarshalArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args of action=(%s): %w", name, err)
	}
	return h.client.coordinator.CallAction(ctx, h.actorID, name, rawArgs, h.params, h.authData)
}

// Connect opens a connection to the actor. It returns right away: the
// connection operations wait for the connection to be established.
func (h *ActorHandle) Connect(ctx context.Context) *Conn {
	return newConn(ctx, h)
}
