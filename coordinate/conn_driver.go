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
	"fmt"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/protocol"
)

// relayConnDriver backs the leader-side connections of clients hosted on
// another node. The connection driver state is the origin node id.
type relayConnDriver struct {
	topology *Topology
}

var _ actor.ConnDriver = (*relayConnDriver)(nil)

func (d *relayConnDriver) SendMessage(ctx context.Context, conn *actor.Conn, message json.RawMessage) error {
	origin, err := originNodeID(conn)
	if err != nil {
		return err
	}
	return d.topology.publish(ctx, origin, protocol.Body{
		FM: &protocol.ToFollowerMessage{ConnID: conn.ID(), Message: message},
	})
}

func (d *relayConnDriver) Disconnect(ctx context.Context, conn *actor.Conn, reason string) error {
	origin, err := originNodeID(conn)
	if err != nil {
		return err
	}
	return d.topology.publish(ctx, origin, protocol.Body{
		FCC: &protocol.ToFollowerConnectionClose{ConnID: conn.ID(), Reason: reason},
	})
}

func originNodeID(conn *actor.Conn) (string, error) {
	origin, ok := conn.DriverState().(string)
	if !ok || origin == "" {
		return "", fmt.Errorf("conn=(%s) has no origin node: %w", conn.ID(), gerrors.ErrMissingSender)
	}
	return origin, nil
}

// localConnDriver backs the connections of clients hosted on the leader node.
// The connection driver state is the *localConnection.
type localConnDriver struct{}

var _ actor.ConnDriver = localConnDriver{}

func (localConnDriver) SendMessage(ctx context.Context, conn *actor.Conn, message json.RawMessage) error {
	local, ok := conn.DriverState().(*localConnection)
	if !ok {
		return gerrors.ErrConnectionNotFound
	}
	if local.disposed.Load() {
		return gerrors.ErrConnectionClosed
	}
	return local.sink.SendMessage(ctx, message)
}

func (localConnDriver) Disconnect(ctx context.Context, conn *actor.Conn, reason string) error {
	local, ok := conn.DriverState().(*localConnection)
	if !ok {
		return gerrors.ErrConnectionNotFound
	}
	return local.disconnectFromActor(ctx, reason)
}
