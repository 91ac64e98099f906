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
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/coordinate/actor"
	memorydriver "github.com/tochemey/coordinate/actor/driver/memory"
	gerrors "github.com/tochemey/coordinate/errors"
	imetric "github.com/tochemey/coordinate/internal/metric"
	"github.com/tochemey/coordinate/lease"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/protocol"
	"github.com/tochemey/coordinate/pubsub"
)

// ReasonNodeStopped is the close reason of the relay connections of a
// stopping node
const ReasonNodeStopped = "node stopped"

// Topology is the coordination layer of one node. Every actor is led by the
// single node holding its lease; the other nodes relay their client
// connections and stateless actions to that leader over pub/sub.
type Topology struct {
	nodeID          string
	config          *Config
	logger          log.Logger
	pubsub          pubsub.Driver
	leases          lease.Store
	factory         actor.Factory
	actorDriver     actor.Driver
	ownsActorDriver bool
	meterProvider   metric.MeterProvider
	metric          *imetric.CoordinateMetric

	state       *GlobalState
	node        *node
	relayDriver *relayConnDriver

	started *atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Topology. The pub/sub driver carries the node messages, the
// lease store arbitrates actor leadership and factory creates the actors this
// node leads.
func New(driver pubsub.Driver, leases lease.Store, factory actor.Factory, opts ...Option) (*Topology, error) {
	switch {
	case driver == nil:
		return nil, errors.New("the pub/sub driver is required")
	case leases == nil:
		return nil, errors.New("the lease store is required")
	case factory == nil:
		return nil, errors.New("the actor factory is required")
	}

	t := &Topology{
		config:        DefaultConfig(),
		logger:        log.DefaultLogger,
		pubsub:        driver,
		leases:        leases,
		factory:       factory,
		meterProvider: otel.GetMeterProvider(),
		started:       atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(t)
	}

	t.config.Sanitize()
	if err := t.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology config: %w", err)
	}

	if t.nodeID == "" {
		t.nodeID = uuid.NewString()
	}
	t.logger = t.logger.With("nodeId", t.nodeID)

	coordinateMetric, err := imetric.NewCoordinateMetric(t.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric instruments: %w", err)
	}
	t.metric = coordinateMetric

	if t.actorDriver == nil {
		t.actorDriver = memorydriver.NewDriver(t.logger)
		t.ownsActorDriver = true
	}

	t.state = newGlobalState(t.nodeID)
	t.node = newNode(t)
	t.relayDriver = &relayConnDriver{topology: t}
	return t, nil
}

// NodeID returns the id of this node
func (t *Topology) NodeID() string {
	return t.nodeID
}

// State returns the node Global State
func (t *Topology) State() *GlobalState {
	return t.state
}

// Config returns the effective configuration
func (t *Topology) Config() Config {
	return *t.config
}

// Start subscribes the node to its pub/sub topic
func (t *Topology) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if err := t.node.start(ctx); err != nil {
		t.cancel()
		t.started.Store(false)
		return err
	}

	t.logger.Infof("node=(%s) started", t.nodeID)
	return nil
}

// Stop closes the relay connections, disposes every actor peer, releasing
// the leases this node holds, and unsubscribes the node
func (t *Topology) Stop(ctx context.Context) error {
	if !t.started.CompareAndSwap(true, false) {
		return nil
	}

	var err error
	for _, relay := range t.state.relayConns.Values() {
		err = multierr.Append(err, relay.Close(ctx, ReasonNodeStopped))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, peer := range t.state.peers.Values() {
		eg.Go(func() error {
			return peer.Dispose(egCtx)
		})
	}
	err = multierr.Append(err, eg.Wait())
	err = multierr.Append(err, t.node.stop(ctx))
	t.cancel()

	if t.ownsActorDriver {
		err = multierr.Append(err, t.actorDriver.Close(ctx))
	}

	t.logger.Infof("node=(%s) stopped", t.nodeID)
	return err
}

// Peer returns the actor peer of actorID when one exists on this node
func (t *Topology) Peer(actorID string) (*Peer, bool) {
	return t.state.peers.Get(actorID)
}

// OpenConnection opens a client connection to an actor. The connection is
// served locally when this node leads the actor, and relayed to the leader
// otherwise. The returned connection keeps the actor peer alive until closed.
func (t *Topology) OpenConnection(ctx context.Context, actorID string, params, authData json.RawMessage, sink ConnSink) (Connection, error) {
	if !t.started.Load() {
		return nil, gerrors.ErrTopologyNotStarted
	}
	if sink == nil {
		return nil, errors.New("the connection sink is required")
	}

	connID, connToken := uuid.NewString(), uuid.NewString()
	peer, err := t.getOrCreatePeer(ctx, actorID, connID)
	if err != nil {
		return nil, err
	}

	connection, err := t.openConnection(ctx, peer, connID, connToken, params, authData, sink)
	if err != nil {
		peer.Release(connID)
		return nil, err
	}
	return connection, nil
}

func (t *Topology) openConnection(ctx context.Context, peer *Peer, connID, connToken string, params, authData json.RawMessage, sink ConnSink) (Connection, error) {
	instance, leaderNodeID, err := t.resolveLeader(ctx, peer)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		relay := newRelayConnection(t, peer, connID, connToken, leaderNodeID, params, authData, sink)
		if err := relay.start(ctx); err != nil {
			return nil, err
		}
		return relay, nil
	}

	if !instance.IsReady() {
		return nil, gerrors.ErrActorNotReady
	}

	local := &localConnection{
		peer:     peer,
		instance: instance,
		connID:   connID,
		sink:     sink,
		disposed: atomic.NewBool(false),
	}

	connState, err := instance.PrepareConn(ctx, params, authData)
	if err != nil {
		return nil, err
	}

	conn, err := instance.CreateConn(ctx, actor.ConnOptions{
		ID:          connID,
		Token:       connToken,
		Params:      params,
		State:       connState,
		AuthData:    authData,
		Kind:        actor.DriverKindLocal,
		DriverState: local,
		Driver:      localConnDriver{},
	})
	if err != nil {
		return nil, err
	}
	local.conn = conn
	return local, nil
}

// CallAction invokes an action without a persistent connection and returns
// its JSON output. A failure reported by a remote leader is an
// *errors.ActionError.
func (t *Topology) CallAction(ctx context.Context, actorID, name string, args []json.RawMessage, params, authData json.RawMessage) (json.RawMessage, error) {
	if !t.started.Load() {
		return nil, gerrors.ErrTopologyNotStarted
	}

	refID := uuid.NewString()
	peer, err := t.getOrCreatePeer(ctx, actorID, refID)
	if err != nil {
		return nil, err
	}
	defer peer.Release(refID)

	instance, leaderNodeID, err := t.resolveLeader(ctx, peer)
	if err != nil {
		return nil, err
	}

	if instance != nil {
		if !instance.IsReady() {
			return nil, gerrors.ErrActorNotReady
		}
		return t.executeAction(ctx, instance, name, args, params, authData)
	}

	output, err := t.requestAction(ctx, leaderNodeID, &protocol.ToLeaderAction{
		ActorID:    actorID,
		ActionName: name,
		ActionArgs: args,
		Params:     params,
		AuthData:   authData,
	})
	if errors.Is(err, gerrors.ErrActionTimeout) || errors.Is(err, gerrors.ErrActorNotFound) {
		// the leader may be gone, let the next call find the new one
		if refreshErr := peer.Refresh(ctx); refreshErr != nil {
			t.logger.Debugf("failed to refresh actor=(%s) leader: %v", actorID, refreshErr)
		}
	}
	return output, err
}

// resolveLeader waits for the peer to resolve and returns the local actor
// instance when this node leads, or the leader node id otherwise
func (t *Topology) resolveLeader(ctx context.Context, peer *Peer) (actor.Instance, string, error) {
	if err := peer.WaitResolved(ctx); err != nil {
		return nil, "", err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if instance, ok := peer.Actor(); ok {
			return instance, t.nodeID, nil
		}
		if leaderNodeID := peer.LeaderNodeID(); leaderNodeID != "" && leaderNodeID != t.nodeID {
			return nil, leaderNodeID, nil
		}
		if attempt == 0 {
			if err := peer.Refresh(ctx); err != nil {
				return nil, "", err
			}
		}
	}
	return nil, "", gerrors.ErrLeaderUnresolved
}

// getOrCreatePeer returns the peer of actorID holding the reference refID.
// A peer is created, and its lease loop started, on first use.
func (t *Topology) getOrCreatePeer(ctx context.Context, actorID, refID string) (*Peer, error) {
	if _, _, err := actor.ParseID(actorID); err != nil {
		return nil, err
	}

	for {
		peer, loaded := t.state.peers.GetOrSet(actorID, func() *Peer { return newPeer(t, actorID) })
		if !loaded {
			go peer.run(t.ctx)
		}

		if peer.Acquire(refID) {
			return peer, nil
		}

		// the peer is being disposed, wait for it to leave the table
		select {
		case <-peer.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.config.LeaseDuration):
			return nil, gerrors.ErrPeerDisposed
		}
	}
}

// send encodes and publishes an envelope
func (t *Topology) send(ctx context.Context, nodeID string, envelope *protocol.Envelope) error {
	raw, err := protocol.Encode(envelope)
	if err != nil {
		return err
	}
	return t.pubsub.PublishToNode(ctx, nodeID, raw)
}

// publish sends a body without requesting an ack
func (t *Topology) publish(ctx context.Context, nodeID string, body protocol.Body) error {
	return t.send(ctx, nodeID, &protocol.Envelope{N: t.nodeID, B: body})
}

// publishWithAck sends a body and waits for its ack for at most
// MessageAckTimeout
func (t *Topology) publishWithAck(ctx context.Context, nodeID string, body protocol.Body) error {
	messageID := uuid.NewString()
	acked := t.state.registerAck(messageID)

	if err := t.send(ctx, nodeID, &protocol.Envelope{N: t.nodeID, M: messageID, B: body}); err != nil {
		t.state.abandonAck(messageID)
		return err
	}

	timer := time.NewTimer(t.config.MessageAckTimeout)
	defer timer.Stop()

	select {
	case <-acked:
		return nil
	case <-timer.C:
		if t.state.abandonAck(messageID) {
			t.metric.AckTimeout(ctx)
			return gerrors.ErrAckTimeout
		}
	case <-ctx.Done():
		if t.state.abandonAck(messageID) {
			return ctx.Err()
		}
	}

	// resolved concurrently with the timeout
	<-acked
	return nil
}
