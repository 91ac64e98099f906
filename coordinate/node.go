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
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/xsync"
	"github.com/tochemey/coordinate/protocol"
	"github.com/tochemey/coordinate/pubsub"
)

// node is the message dispatcher of this node's pub/sub topic. The envelopes
// of one connection are handled in receipt order, one at a time. Acks and
// action envelopes are handled on their own goroutine so that they are never
// queued behind a slow handler.
type node struct {
	topology     *Topology
	subscription pubsub.Subscription
	inflight     *errgroup.Group
	ordered      *xsync.Serial[string]
}

func newNode(topology *Topology) *node {
	return &node{
		topology: topology,
		inflight: new(errgroup.Group),
		ordered:  xsync.NewSerial[string](),
	}
}

func (n *node) start(ctx context.Context) error {
	subscription, err := n.topology.pubsub.CreateNodeSubscriber(ctx, n.topology.nodeID, n.receive)
	if err != nil {
		return fmt.Errorf("failed to subscribe node=(%s): %w", n.topology.nodeID, err)
	}
	n.subscription = subscription
	return nil
}

// stop unsubscribes and waits for the in-flight envelopes
func (n *node) stop(ctx context.Context) error {
	if n.subscription == nil {
		return nil
	}

	if err := n.subscription.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("failed to unsubscribe node=(%s): %w", n.topology.nodeID, err)
	}

	drained := make(chan struct{})
	go func() {
		_ = n.inflight.Wait()
		n.ordered.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receive is called by the subscription one envelope at a time
func (n *node) receive(ctx context.Context, raw []byte) {
	envelope, err := protocol.Decode(raw)
	if err != nil {
		n.topology.metric.EnvelopeRejected(ctx)
		n.topology.logger.Errorf("failed to decode node message: %v", err)
		return
	}

	if connID, ok := envelope.B.ConnID(); ok {
		n.ordered.Submit(connID, func() { n.dispatch(ctx, envelope) })
		return
	}

	n.inflight.Go(func() error {
		n.dispatch(ctx, envelope)
		return nil
	})
}

// flush waits until the envelopes of connID received so far are handled
func (n *node) flush(ctx context.Context, connID string) error {
	flushed := make(chan struct{})
	n.ordered.Submit(connID, func() { close(flushed) })
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *node) dispatch(ctx context.Context, envelope *protocol.Envelope) {
	logger := n.topology.logger
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("node message handler panicked: %v", r)
		}
	}()

	kind := envelope.B.Kind()
	n.topology.metric.EnvelopeReceived(ctx, string(kind))

	// lco is acked once the leader-side connection exists so that the
	// follower handshake completes only when messages can be routed
	if envelope.RequestsAck() && kind != protocol.KindLeaderConnectionOpen {
		n.ack(ctx, envelope)
	}

	body := envelope.B
	switch kind {
	case protocol.KindAck:
		n.handleAck(body.A)
	case protocol.KindLeaderConnectionOpen:
		n.handleLeaderConnectionOpen(ctx, envelope.N, body.LCO)
		if envelope.RequestsAck() {
			n.ack(ctx, envelope)
		}
	case protocol.KindLeaderConnectionClose:
		n.handleLeaderConnectionClose(ctx, body.LCC)
	case protocol.KindLeaderMessage:
		n.handleLeaderMessage(ctx, body.LM)
	case protocol.KindLeaderAction:
		n.handleLeaderAction(ctx, envelope.N, body.LA)
	case protocol.KindFollowerConnectionClose:
		n.handleFollowerConnectionClose(ctx, body.FCC)
	case protocol.KindFollowerMessage:
		n.handleFollowerMessage(ctx, body.FM)
	case protocol.KindFollowerActionResponse:
		n.handleFollowerActionResponse(body.FAR)
	}
}

func (n *node) ack(ctx context.Context, envelope *protocol.Envelope) {
	err := n.topology.send(ctx, envelope.N, &protocol.Envelope{B: protocol.Body{A: &protocol.Ack{M: envelope.M}}})
	if err != nil {
		n.topology.logger.Warnf("failed to ack message=(%s) of node=(%s): %v", envelope.M, envelope.N, err)
	}
}

func (n *node) handleAck(ack *protocol.Ack) {
	if !n.topology.state.resolveAck(ack.M) {
		n.topology.logger.Warnf("received ack for unknown message=(%s)", ack.M)
	}
}

// leaderActor returns the actor instance this node leads
func (n *node) leaderActor(actorID string) (actor.Instance, bool) {
	peer, ok := n.topology.state.peers.Get(actorID)
	if !ok {
		return nil, false
	}
	peer.touch()
	return peer.Actor()
}

func (n *node) handleLeaderConnectionOpen(ctx context.Context, origin string, open *protocol.ToLeaderConnectionOpen) {
	logger := n.topology.logger
	if origin == "" {
		logger.Errorf("connection open for conn=(%s): %v", open.ConnID, gerrors.ErrMissingSender)
		return
	}

	reject := func(err error) {
		logger.Warnf("failed to open conn=(%s) of actor=(%s): %v", open.ConnID, open.ActorID, err)
		rejectErr := n.topology.publish(ctx, origin, protocol.Body{
			FCC: &protocol.ToFollowerConnectionClose{ConnID: open.ConnID, Reason: err.Error()},
		})
		if rejectErr != nil {
			logger.Warnf("failed to report rejected conn=(%s): %v", open.ConnID, rejectErr)
		}
	}

	// the follower holds a stale leader, closing makes its client reconnect
	instance, ok := n.leaderActor(open.ActorID)
	if !ok {
		reject(gerrors.ErrActorNotFound)
		return
	}

	connState, err := instance.PrepareConn(ctx, open.Params, open.AuthData)
	if err != nil {
		reject(err)
		return
	}

	_, err = instance.CreateConn(ctx, actor.ConnOptions{
		ID:          open.ConnID,
		Token:       open.ConnToken,
		Params:      open.Params,
		State:       connState,
		AuthData:    open.AuthData,
		Kind:        actor.DriverKindCoordinateRelay,
		DriverState: origin,
		Driver:      n.topology.relayDriver,
	})
	if err != nil {
		reject(err)
	}
}

func (n *node) handleLeaderConnectionClose(ctx context.Context, closing *protocol.ToLeaderConnectionClose) {
	instance, ok := n.leaderActor(closing.ActorID)
	if !ok {
		n.topology.logger.Warnf("connection close for actor=(%s): %v", closing.ActorID, gerrors.ErrNotLeader)
		return
	}

	conn, ok := instance.ConnForID(closing.ConnID)
	if !ok {
		n.topology.logger.Warnf("connection close for unknown conn=(%s)", closing.ConnID)
		return
	}
	instance.RemoveConn(ctx, conn)
}

func (n *node) handleLeaderMessage(ctx context.Context, message *protocol.ToLeaderMessage) {
	logger := n.topology.logger
	instance, ok := n.leaderActor(message.ActorID)
	if !ok {
		logger.Warnf("message for actor=(%s): %v", message.ActorID, gerrors.ErrNotLeader)
		return
	}

	conn, ok := instance.ConnForID(message.ConnID)
	if !ok {
		logger.Warnf("message for unknown conn=(%s)", message.ConnID)
		return
	}

	if conn.Token() != message.ConnToken {
		logger.Errorf("message for conn=(%s): %v", message.ConnID, gerrors.ErrConnTokenMismatch)
		return
	}

	if err := instance.ProcessMessage(ctx, message.Message, conn); err != nil {
		logger.Warnf("failed to process message of conn=(%s): %v", message.ConnID, err)
	}
}

func (n *node) handleLeaderAction(ctx context.Context, origin string, request *protocol.ToLeaderAction) {
	logger := n.topology.logger
	if origin == "" {
		logger.Errorf("action request=(%s): %v", request.RequestID, gerrors.ErrMissingSender)
		return
	}

	response := &protocol.ToFollowerActionResponse{RequestID: request.RequestID}
	instance, ok := n.leaderActor(request.ActorID)
	switch {
	case !ok:
		response.Error = gerrors.ErrActorNotFound.Error()
	case !instance.IsReady():
		response.Error = gerrors.ErrActorNotReady.Error()
	default:
		output, err := n.topology.executeAction(ctx, instance, request.ActionName, request.ActionArgs, request.Params, request.AuthData)
		if err != nil {
			response.Error = err.Error()
		} else {
			response.Success = true
			response.Output = output
		}
	}

	if err := n.topology.publish(ctx, origin, protocol.Body{FAR: response}); err != nil {
		logger.Warnf("failed to reply to action request=(%s): %v", request.RequestID, err)
	}
}

func (n *node) handleFollowerConnectionClose(ctx context.Context, closing *protocol.ToFollowerConnectionClose) {
	relay, ok := n.topology.state.relayConns.Get(closing.ConnID)
	if !ok {
		n.topology.logger.Warnf("connection close for unknown relay conn=(%s)", closing.ConnID)
		return
	}
	if err := relay.disconnectFromLeader(ctx, closing.Reason); err != nil {
		n.topology.logger.Warnf("failed to disconnect relay conn=(%s): %v", closing.ConnID, err)
	}
}

func (n *node) handleFollowerMessage(ctx context.Context, message *protocol.ToFollowerMessage) {
	relay, ok := n.topology.state.relayConns.Get(message.ConnID)
	if !ok {
		n.topology.logger.Warnf("message for unknown relay conn=(%s)", message.ConnID)
		return
	}
	relay.deliver(ctx, message.Message)
}

func (n *node) handleFollowerActionResponse(response *protocol.ToFollowerActionResponse) {
	if !n.topology.state.resolveActionResponse(response) {
		n.topology.logger.Warnf("received response for unknown action request=(%s)", response.RequestID)
	}
}
