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

package coordinate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/protocol"
)

const (
	actionSucceeded = "success"
	actionFailed    = "failure"
	actionTimedOut  = "timeout"
)

// requestAction sends a stateless action to the leader and waits for the
// correlated response for at most ActionTimeout
func (t *Topology) requestAction(ctx context.Context, leaderNodeID string, request *protocol.ToLeaderAction) (json.RawMessage, error) {
	request.RequestID = uuid.NewString()
	resolved := t.state.registerActionResponse(request.RequestID)

	if err := t.publish(ctx, leaderNodeID, protocol.Body{LA: request}); err != nil {
		t.state.abandonActionResponse(request.RequestID)
		return nil, err
	}

	timer := time.NewTimer(t.config.ActionTimeout)
	defer timer.Stop()

	var response *protocol.ToFollowerActionResponse
	select {
	case response = <-resolved:
	case <-timer.C:
		if t.state.abandonActionResponse(request.RequestID) {
			t.metric.ActionRequest(ctx, actionTimedOut)
			return nil, gerrors.ErrActionTimeout
		}
		response = <-resolved
	case <-ctx.Done():
		if t.state.abandonActionResponse(request.RequestID) {
			return nil, ctx.Err()
		}
		response = <-resolved
	}

	if !response.Success {
		t.metric.ActionRequest(ctx, actionFailed)
		return nil, gerrors.NewActionError(response.Error)
	}

	t.metric.ActionRequest(ctx, actionSucceeded)
	return response.Output, nil
}

// executeAction runs an action of a locally led actor on a transient
// connection. The execution is bounded by ActionTimeout.
func (t *Topology) executeAction(ctx context.Context, instance actor.Instance, name string, args []json.RawMessage, params, authData json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.ActionTimeout)
	defer cancel()

	connState, err := instance.PrepareConn(ctx, params, authData)
	if err != nil {
		return nil, err
	}

	connID, connToken := uuid.NewString(), uuid.NewString()
	conn, err := instance.CreateConn(ctx, actor.ConnOptions{
		ID:       connID,
		Token:    connToken,
		Params:   params,
		State:    connState,
		AuthData: authData,
		Kind:     actor.DriverKindGenericHTTP,
		Driver:   actor.DiscardConnDriver,
	})
	if err != nil {
		return nil, err
	}
	defer instance.RemoveConn(context.WithoutCancel(ctx), conn)

	type outcome struct {
		output json.RawMessage
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		output, err := instance.ExecuteAction(ctx, conn, name, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case result := <-done:
		return result.output, result.err
	case <-ctx.Done():
		return nil, gerrors.ErrActionTimeout
	}
}
