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
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/protocol"
)

// ConnSink is the client-facing side of a connection: the transport that
// delivers actor output to the end client and closes it.
type ConnSink interface {
	// SendMessage delivers one actor message to the client
	SendMessage(ctx context.Context, message json.RawMessage) error
	// Disconnect closes the client. It is called at most once, when the
	// connection is closed by the actor side.
	Disconnect(ctx context.Context, reason string) error
}

// Connection is an open client connection to an actor
type Connection interface {
	// ID returns the connection id
	ID() string
	// Send forwards a client message to the actor
	Send(ctx context.Context, message json.RawMessage) error
	// Close closes the connection from the client side. Closing twice is a no-op.
	Close(ctx context.Context, reason string) error
}

// RelayConnection is a client connection hosted on a follower node and
// relayed to the leader over pub/sub
type RelayConnection struct {
	topology     *Topology
	peer         *Peer
	logger       log.Logger
	actorID      string
	connID       string
	connToken    string
	params       json.RawMessage
	authData     json.RawMessage
	leaderNodeID *atomic.String
	sink         ConnSink
	disposed     *atomic.Bool

	// mu orders the end of the handshake against a leader close
	mu           sync.Mutex
	opened       bool
	rejectReason string
}

var _ Connection = (*RelayConnection)(nil)

func newRelayConnection(topology *Topology, peer *Peer, connID, connToken, leaderNodeID string, params, authData json.RawMessage, sink ConnSink) *RelayConnection {
	return &RelayConnection{
		topology:     topology,
		peer:         peer,
		logger:       topology.logger.With("actorId", peer.ActorID(), "connId", connID),
		actorID:      peer.ActorID(),
		connID:       connID,
		connToken:    connToken,
		params:       params,
		authData:     authData,
		leaderNodeID: atomic.NewString(leaderNodeID),
		sink:         sink,
		disposed:     atomic.NewBool(false),
	}
}

// ID returns the connection id
func (r *RelayConnection) ID() string {
	return r.connID
}

// LeaderNodeID returns the node the connection is relayed to
func (r *RelayConnection) LeaderNodeID() string {
	return r.leaderNodeID.Load()
}

// start registers the connection and performs the handshake with the leader.
// The connection is open only once the leader acknowledged it without
// closing it.
func (r *RelayConnection) start(ctx context.Context) error {
	r.topology.state.relayConns.Set(r.connID, r)

	leader := r.leaderNodeID.Load()
	err := r.open(ctx, leader)
	if errors.Is(err, gerrors.ErrAckTimeout) {
		if moved, ok := r.reresolve(ctx, leader); ok {
			r.leaderNodeID.Store(moved)
			err = r.open(ctx, moved)
		}
	}
	if err == nil {
		err = r.confirm(ctx)
	}

	if err != nil {
		r.topology.state.relayConns.CompareAndDelete(r.connID, func(current *RelayConnection) bool { return current == r })
		r.disposed.Store(true)
		return err
	}

	r.topology.metric.RelayConnectionOpened(ctx)
	r.logger.Debugf("relay connection opened to node=(%s)", r.leaderNodeID.Load())
	return nil
}

// confirm ends the handshake. The leader sends the close of a rejected
// connection before its ack, so once the envelopes of the connection received
// so far are handled a rejection has been recorded.
func (r *RelayConnection) confirm(ctx context.Context) error {
	if err := r.topology.node.flush(ctx, r.connID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed.Load() {
		if r.rejectReason == "" {
			return gerrors.ErrConnectionClosed
		}
		return fmt.Errorf("%w: %s", gerrors.ErrConnectionRejected, r.rejectReason)
	}
	r.opened = true
	return nil
}

func (r *RelayConnection) open(ctx context.Context, leaderNodeID string) error {
	return r.topology.publishWithAck(ctx, leaderNodeID, protocol.Body{
		LCO: &protocol.ToLeaderConnectionOpen{
			ActorID:   r.actorID,
			ConnID:    r.connID,
			ConnToken: r.connToken,
			Params:    r.params,
			AuthData:  r.authData,
		},
	})
}

// reresolve refreshes the peer and returns the new leader when it moved to
// another node
func (r *RelayConnection) reresolve(ctx context.Context, previous string) (string, bool) {
	if err := r.peer.Refresh(ctx); err != nil {
		return "", false
	}
	current := r.peer.LeaderNodeID()
	if current == "" || current == previous || current == r.topology.nodeID {
		return "", false
	}
	return current, true
}

// Send forwards a client message to the leader. When the leader does not
// acknowledge it and leadership moved, the connection is re-opened at the
// new leader and the message sent once more.
func (r *RelayConnection) Send(ctx context.Context, message json.RawMessage) error {
	if r.disposed.Load() {
		return gerrors.ErrConnectionClosed
	}

	leader := r.leaderNodeID.Load()
	err := r.send(ctx, leader, message)
	if !errors.Is(err, gerrors.ErrAckTimeout) {
		return err
	}

	moved, ok := r.reresolve(ctx, leader)
	if !ok {
		return err
	}

	r.logger.Infof("actor leader moved from node=(%s) to node=(%s)", leader, moved)
	if err := r.open(ctx, moved); err != nil {
		return err
	}
	r.leaderNodeID.Store(moved)
	return r.send(ctx, moved, message)
}

func (r *RelayConnection) send(ctx context.Context, leaderNodeID string, message json.RawMessage) error {
	return r.topology.publishWithAck(ctx, leaderNodeID, protocol.Body{
		LM: &protocol.ToLeaderMessage{
			ActorID:   r.actorID,
			ConnID:    r.connID,
			ConnToken: r.connToken,
			Message:   message,
		},
	})
}

// Close closes the connection from the client side and notifies the leader
func (r *RelayConnection) Close(ctx context.Context, reason string) error {
	if !r.disposed.CompareAndSwap(false, true) {
		return nil
	}
	r.dispose(ctx)

	err := r.topology.publish(ctx, r.leaderNodeID.Load(), protocol.Body{
		LCC: &protocol.ToLeaderConnectionClose{ActorID: r.actorID, ConnID: r.connID},
	})
	if err != nil {
		r.logger.Warnf("failed to notify leader of close: %v", err)
	}
	r.logger.Debugf("relay connection closed: %s", reason)
	return nil
}

// disconnectFromLeader closes the connection on behalf of the leader
// without notifying it back. A close received during the handshake fails
// the handshake instead of disconnecting the client.
func (r *RelayConnection) disconnectFromLeader(ctx context.Context, reason string) error {
	r.mu.Lock()
	if !r.disposed.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return nil
	}
	opened := r.opened
	if !opened {
		r.rejectReason = reason
	}
	r.mu.Unlock()

	if !opened {
		r.logger.Debugf("relay connection rejected by leader: %s", reason)
		return nil
	}

	r.dispose(ctx)
	r.logger.Debugf("relay connection closed by leader: %s", reason)
	return r.sink.Disconnect(ctx, reason)
}

// deliver forwards a leader push to the client
func (r *RelayConnection) deliver(ctx context.Context, message json.RawMessage) {
	if r.disposed.Load() {
		r.logger.Debug("message for a closed relay connection dropped")
		return
	}
	if err := r.sink.SendMessage(ctx, message); err != nil {
		r.logger.Warnf("failed to deliver message to client: %v", err)
	}
}

func (r *RelayConnection) dispose(ctx context.Context) {
	r.topology.state.relayConns.CompareAndDelete(r.connID, func(current *RelayConnection) bool { return current == r })
	r.peer.Release(r.connID)
	r.topology.metric.RelayConnectionClosed(ctx)
}

// localConnection is a client connection hosted on the leader node
type localConnection struct {
	peer     *Peer
	instance actor.Instance
	conn     *actor.Conn
	connID   string
	sink     ConnSink
	disposed *atomic.Bool
}

var _ Connection = (*localConnection)(nil)

func (l *localConnection) ID() string {
	return l.connID
}

func (l *localConnection) Send(ctx context.Context, message json.RawMessage) error {
	if l.disposed.Load() || !l.instance.IsReady() {
		return gerrors.ErrConnectionClosed
	}
	return l.instance.ProcessMessage(ctx, message, l.conn)
}

func (l *localConnection) Close(ctx context.Context, _ string) error {
	if !l.disposed.CompareAndSwap(false, true) {
		return nil
	}
	if l.conn != nil {
		l.instance.RemoveConn(ctx, l.conn)
	}
	l.peer.Release(l.connID)
	return nil
}

func (l *localConnection) disconnectFromActor(ctx context.Context, reason string) error {
	if !l.disposed.CompareAndSwap(false, true) {
		return nil
	}
	l.peer.Release(l.connID)
	return l.sink.Disconnect(ctx, reason)
}
