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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/coordinate/actor"
	memorydriver "github.com/tochemey/coordinate/actor/driver/memory"
	gerrors "github.com/tochemey/coordinate/errors"
	leasememory "github.com/tochemey/coordinate/lease/memory"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/protocol"
	"github.com/tochemey/coordinate/pubsub/memory"
)

var (
	ping = json.RawMessage(`{"type":"ping"}`)
)

func newBus() *memory.Bus {
	return memory.NewBus(memory.WithLogger(log.DiscardLogger))
}

func leaderInstance(t *testing.T, topology *Topology, actorID string) actor.Instance {
	t.Helper()
	peer, ok := topology.Peer(actorID)
	require.True(t, ok)
	instance, ok := peer.Actor()
	require.True(t, ok)
	return instance
}

func TestNew(t *testing.T) {
	registry, err := actor.NewRegistry(counterDefinition())
	require.NoError(t, err)
	bus := newBus()
	defer bus.Close()

	t.Run("With missing collaborators", func(t *testing.T) {
		_, err := New(nil, leasememory.NewStore(), registry)
		assert.Error(t, err)
		_, err = New(bus, nil, registry)
		assert.Error(t, err)
		_, err = New(bus, leasememory.NewStore(), nil)
		assert.Error(t, err)
	})
	t.Run("With invalid config", func(t *testing.T) {
		config := testConfig()
		config.RenewLeaseGrace = 2 * config.LeaseDuration
		_, err := New(bus, leasememory.NewStore(), registry, WithConfig(config))
		assert.Error(t, err)
	})
	t.Run("With generated node id", func(t *testing.T) {
		topology, err := New(bus, leasememory.NewStore(), registry, WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		assert.NotEmpty(t, topology.NodeID())
		assert.Equal(t, topology.NodeID(), topology.State().NodeID())
	})
	t.Run("With topology not started", func(t *testing.T) {
		topology, err := New(bus, leasememory.NewStore(), registry, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		_, err = topology.CallAction(context.Background(), "counter/a", "get", nil, nil, nil)
		assert.ErrorIs(t, err, gerrors.ErrTopologyNotStarted)
		_, err = topology.OpenConnection(context.Background(), "counter/a", nil, nil, new(recordingSink))
		assert.ErrorIs(t, err, gerrors.ErrTopologyNotStarted)
		assert.NoError(t, topology.Stop(context.Background()))
	})
}

func TestLeadership(t *testing.T) {
	t.Run("With a single leader across nodes", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus()
		leases := leasememory.NewStore()

		nodes := []*Topology{
			startNode(t, bus, leases, "node-1"),
			startNode(t, bus, leases, "node-2"),
			startNode(t, bus, leases, "node-3"),
		}

		for i, node := range nodes {
			output, err := node.CallAction(ctx, "counter/a", "increment", intArgs(1), nil, nil)
			require.NoError(t, err)
			assert.JSONEq(t, fmt.Sprint(i+1), string(output))
		}

		leaders := 0
		for _, node := range nodes {
			peer, ok := node.Peer("counter/a")
			require.True(t, ok)
			if peer.IsLeader() {
				leaders++
			}
			assert.Equal(t, "node-1", peer.LeaderNodeID())
		}
		assert.Equal(t, 1, leaders)

		record, err := leases.Get(ctx, "counter/a")
		require.NoError(t, err)
		assert.Equal(t, "node-1", record.NodeID)

		for _, node := range nodes {
			stopNode(t, node)
		}
		require.NoError(t, bus.Close())
	})
	t.Run("With failover after the leader stops", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus()
		leases := leasememory.NewStore()
		shared := memorydriver.NewDriver(log.DiscardLogger)

		nodeA := startNode(t, bus, leases, "node-a", WithActorDriver(shared))
		nodeB := startNode(t, bus, leases, "node-b", WithActorDriver(shared))

		_, err := nodeA.CallAction(ctx, "counter/a", "increment", intArgs(5), nil, nil)
		require.NoError(t, err)
		output, err := nodeB.CallAction(ctx, "counter/a", "increment", intArgs(1), nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `6`, string(output))

		// keep the peer of node-b alive while node-a leaves
		peerB, err := nodeB.getOrCreatePeer(ctx, "counter/a", "test")
		require.NoError(t, err)

		stopNode(t, nodeA)
		require.Eventually(t, peerB.IsLeader, 3*time.Second, 20*time.Millisecond)

		output, err = nodeB.CallAction(ctx, "counter/a", "get", nil, nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `6`, string(output))

		peerB.Release("test")
		stopNode(t, nodeB)
		require.NoError(t, shared.Close(ctx))
		require.NoError(t, bus.Close())
	})
	t.Run("With renewal failure", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus()
		leases := leasememory.NewStore()
		flaky := newFlakyStore(leases)

		nodeA := startNode(t, bus, flaky, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeA.CallAction(ctx, "counter/a", "get", nil, nil, nil)
		require.NoError(t, err)
		peerA, err := nodeA.getOrCreatePeer(ctx, "counter/a", "test")
		require.NoError(t, err)
		peerB, err := nodeB.getOrCreatePeer(ctx, "counter/a", "test")
		require.NoError(t, err)
		require.NoError(t, peerB.WaitResolved(ctx))
		require.True(t, peerA.IsLeader())
		assert.Equal(t, "node-a", peerB.LeaderNodeID())

		flaky.failing.Store(true)
		require.Eventually(t, func() bool { return !peerA.IsLeader() }, 2*time.Second, 10*time.Millisecond)
		_, hosted := peerA.Actor()
		assert.False(t, hosted)
		assert.Equal(t, RoleFollower, peerA.Role())

		require.Eventually(t, peerB.IsLeader, 3*time.Second, 20*time.Millisecond)

		peerA.Release("test")
		peerB.Release("test")
		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With idle peer", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus()
		leases := leasememory.NewStore()

		config := testConfig()
		config.PeerIdleTimeout = 200 * time.Millisecond
		node := startNode(t, bus, leases, "node-a", WithConfig(config))

		_, err := node.CallAction(ctx, "counter/idle", "increment", intArgs(1), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, node.State().Peers())

		require.Eventually(t, func() bool { return node.State().Peers() == 0 }, 3*time.Second, 20*time.Millisecond)
		_, err = leases.Get(ctx, "counter/idle")
		assert.ErrorIs(t, err, gerrors.ErrLeaseNotFound)

		// a new reference brings the actor back
		output, err := node.CallAction(ctx, "counter/idle", "get", nil, nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(output))

		stopNode(t, node)
		require.NoError(t, bus.Close())
	})
	t.Run("With stop releasing leases", func(t *testing.T) {
		ctx := context.Background()
		bus := newBus()
		leases := leasememory.NewStore()
		node := startNode(t, bus, leases, "node-a")

		_, err := node.CallAction(ctx, "counter/a", "get", nil, nil, nil)
		require.NoError(t, err)

		stopNode(t, node)
		_, err = leases.Get(ctx, "counter/a")
		assert.ErrorIs(t, err, gerrors.ErrLeaseNotFound)
		assert.Zero(t, node.State().Peers())
		require.NoError(t, bus.Close())
	})
}

func TestCallAction(t *testing.T) {
	ctx := context.Background()

	t.Run("With remote leader", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeB.CallAction(ctx, "counter/b", "increment", intArgs(2), nil, nil)
		require.NoError(t, err)
		output, err := nodeA.CallAction(ctx, "counter/b", "increment", intArgs(3), nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `5`, string(output))
		assert.Zero(t, nodeA.State().PendingActions())

		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With remote action failure", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeB.CallAction(ctx, "counter/b", "get", nil, nil, nil)
		require.NoError(t, err)

		_, err = nodeA.CallAction(ctx, "counter/b", "fail", nil, nil, nil)
		var actionErr *gerrors.ActionError
		require.ErrorAs(t, err, &actionErr)
		assert.Equal(t, "boom", actionErr.Message)

		_, err = nodeA.CallAction(ctx, "counter/b", "unknown", nil, nil, nil)
		require.ErrorAs(t, err, &actionErr)
		assert.Contains(t, actionErr.Message, gerrors.ErrActionNotFound.Error())

		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With actor not found on the target node", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		output, err := nodeA.requestAction(ctx, "node-b", &protocol.ToLeaderAction{
			ActorID:    "counter/y",
			ActionName: "increment",
			ActionArgs: intArgs(5),
		})
		require.Error(t, err)
		assert.Nil(t, output)
		assert.ErrorIs(t, err, gerrors.ErrActorNotFound)

		var actionErr *gerrors.ActionError
		require.ErrorAs(t, err, &actionErr)
		assert.Equal(t, "Actor not found", actionErr.Message)
		assert.Zero(t, nodeA.State().PendingActions())

		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With action response timeout", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")
		bus.SetFilter(func(nodeID string, _ []byte) bool { return nodeID != "node-b" })

		_, err := nodeA.requestAction(ctx, "node-b", &protocol.ToLeaderAction{ActorID: "counter/y", ActionName: "get"})
		assert.ErrorIs(t, err, gerrors.ErrActionTimeout)
		assert.Zero(t, nodeA.State().PendingActions())

		bus.SetFilter(nil)
		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With actor not ready on the leader", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()

		started := make(chan struct{})
		release := make(chan struct{})
		slow := &actor.Definition{
			Name: "slow",
			OnStart: func(*actor.Context) error {
				close(started)
				<-release
				return nil
			},
			Actions: map[string]actor.ActionFunc{
				"get": func(*actor.ActionContext, []json.RawMessage) (any, error) { return 1, nil },
			},
		}
		registry, err := actor.NewRegistry(counterDefinition(), slow)
		require.NoError(t, err)

		config := testConfig()
		config.LeaseDuration = 5 * time.Second
		config.RenewLeaseGrace = time.Second
		nodeA, err := New(bus, leases, registry,
			WithNodeID("node-a"),
			WithLogger(log.DiscardLogger),
			WithConfig(config))
		require.NoError(t, err)
		require.NoError(t, nodeA.Start(ctx))
		nodeB := startNode(t, bus, leases, "node-b")

		_, err = nodeA.getOrCreatePeer(ctx, "slow/a", "test")
		require.NoError(t, err)
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("actor did not start")
		}

		instance := leaderInstance(t, nodeA, "slow/a")
		require.False(t, instance.IsReady())

		_, err = nodeB.requestAction(ctx, "node-a", &protocol.ToLeaderAction{ActorID: "slow/a", ActionName: "get"})
		assert.ErrorIs(t, err, gerrors.ErrActorNotReady)
		var actionErr *gerrors.ActionError
		require.ErrorAs(t, err, &actionErr)
		assert.Equal(t, "Actor not ready", actionErr.Message)

		close(release)
		require.Eventually(t, instance.IsReady, time.Second, 10*time.Millisecond)
		output, err := nodeB.requestAction(ctx, "node-a", &protocol.ToLeaderAction{ActorID: "slow/a", ActionName: "get"})
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(output))

		stopNode(t, nodeB)
		stopNode(t, nodeA)
		require.NoError(t, bus.Close())
	})
	t.Run("With action request missing the sender", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		node := startNode(t, bus, leases, "node-a")

		_, err := node.CallAction(ctx, "counter/x", "get", nil, nil, nil)
		require.NoError(t, err)

		raw := []byte(`{"b":{"la":{"ri":"r1","ai":"counter/x","an":"increment","aa":[5]}}}`)
		require.NoError(t, bus.PublishToNode(ctx, "node-a", raw))

		assert.Never(t, func() bool {
			output, err := node.CallAction(ctx, "counter/x", "get", nil, nil, nil)
			return err != nil || string(output) != `0`
		}, 300*time.Millisecond, 20*time.Millisecond)

		stopNode(t, node)
		require.NoError(t, bus.Close())
	})
	t.Run("With invalid actor id", func(t *testing.T) {
		bus := newBus()
		node := startNode(t, bus, leasememory.NewStore(), "node-a")

		_, err := node.CallAction(ctx, "counter", "get", nil, nil, nil)
		assert.ErrorIs(t, err, gerrors.ErrInvalidActorID)

		stopNode(t, node)
		require.NoError(t, bus.Close())
	})
	t.Run("With unknown actor type", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		node := startNode(t, bus, leases, "node-a")

		_, err := node.CallAction(ctx, "ghost/a", "get", nil, nil, nil)
		assert.ErrorIs(t, err, gerrors.ErrLeaderUnresolved)
		_, err = leases.Get(ctx, "ghost/a")
		assert.ErrorIs(t, err, gerrors.ErrLeaseNotFound)

		stopNode(t, node)
		require.NoError(t, bus.Close())
	})
}

func TestNodeMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("With ack", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		err := nodeA.publishWithAck(ctx, "node-b", protocol.Body{
			LCC: &protocol.ToLeaderConnectionClose{ActorID: "counter/x", ConnID: "c1"},
		})
		require.NoError(t, err)
		assert.Zero(t, nodeA.State().PendingAcks())

		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With ack timeout", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")
		bus.SetFilter(func(nodeID string, _ []byte) bool { return nodeID != "node-b" })

		err := nodeA.publishWithAck(ctx, "node-b", protocol.Body{
			LCC: &protocol.ToLeaderConnectionClose{ActorID: "counter/x", ConnID: "c1"},
		})
		assert.ErrorIs(t, err, gerrors.ErrAckTimeout)
		assert.Zero(t, nodeA.State().PendingAcks())

		bus.SetFilter(nil)
		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With malformed envelopes", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		node := startNode(t, bus, leases, "node-a")

		require.NoError(t, bus.PublishToNode(ctx, "node-a", []byte(`not json`)))
		require.NoError(t, bus.PublishToNode(ctx, "node-a", []byte(`{"n":"node-b","m":"m1","b":{"a":{"m":"m0"}}}`)))
		require.NoError(t, bus.PublishToNode(ctx, "node-a", []byte(`{"b":{}}`)))

		output, err := node.CallAction(ctx, "counter/a", "increment", intArgs(1), nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(output))

		stopNode(t, node)
		require.NoError(t, bus.Close())
	})
	t.Run("With message for an unknown connection", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeA.CallAction(ctx, "counter/x", "get", nil, nil, nil)
		require.NoError(t, err)

		// lm before lco is acked and dropped
		err = nodeB.publishWithAck(ctx, "node-a", protocol.Body{
			LM: &protocol.ToLeaderMessage{ActorID: "counter/x", ConnID: "c-unknown", ConnToken: "tok", Message: ping},
		})
		require.NoError(t, err)
		assert.Zero(t, leaderInstance(t, nodeA, "counter/x").ConnCount())

		stopNode(t, nodeA)
		stopNode(t, nodeB)
		require.NoError(t, bus.Close())
	})
	t.Run("With connection open missing the sender", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		node := startNode(t, bus, leases, "node-a")

		_, err := node.CallAction(ctx, "counter/x", "get", nil, nil, nil)
		require.NoError(t, err)

		raw := []byte(`{"b":{"lco":{"ai":"counter/x","ci":"c1","ct":"tok1"}}}`)
		require.NoError(t, bus.PublishToNode(ctx, "node-a", raw))

		instance := leaderInstance(t, node, "counter/x")
		assert.Never(t, func() bool {
			_, ok := instance.ConnForID("c1")
			return ok || instance.ConnCount() > 0
		}, 300*time.Millisecond, 20*time.Millisecond)

		stopNode(t, node)
		require.NoError(t, bus.Close())
	})
	t.Run("With message after the connection closed", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeA.CallAction(ctx, "counter/x", "get", nil, nil, nil)
		require.NoError(t, err)
		_, err = nodeA.getOrCreatePeer(ctx, "counter/x", "test")
		require.NoError(t, err)

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", nil, nil, sink)
		require.NoError(t, err)
		relay := conn.(*RelayConnection)

		instance := leaderInstance(t, nodeA, "counter/x")
		require.NoError(t, conn.Close(ctx, "bye"))
		require.Eventually(t, func() bool { return instance.ConnCount() == 0 }, time.Second, 10*time.Millisecond)

		// a late lm is acked and dropped
		err = nodeB.publishWithAck(ctx, "node-a", protocol.Body{
			LM: &protocol.ToLeaderMessage{ActorID: "counter/x", ConnID: conn.ID(), ConnToken: relay.connToken, Message: ping},
		})
		require.NoError(t, err)
		assert.Zero(t, instance.ConnCount())
		assert.False(t, sink.hasType(actor.MessageTypePong))

		stopNode(t, nodeB)
		stopNode(t, nodeA)
		require.NoError(t, bus.Close())
	})
}

func TestRelayConnection(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Topology, *Topology, func()) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeA.CallAction(ctx, "counter/x", "get", nil, nil, nil)
		require.NoError(t, err)
		// keep node-a leading for the whole test
		_, err = nodeA.getOrCreatePeer(ctx, "counter/x", "test")
		require.NoError(t, err)

		return nodeA, nodeB, func() {
			stopNode(t, nodeB)
			stopNode(t, nodeA)
			require.NoError(t, bus.Close())
		}
	}

	t.Run("With messages relayed both ways", func(t *testing.T) {
		nodeA, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", json.RawMessage(`{"room":"a"}`), nil, sink)
		require.NoError(t, err)

		relay, ok := conn.(*RelayConnection)
		require.True(t, ok)
		assert.Equal(t, "node-a", relay.LeaderNodeID())
		assert.Equal(t, 1, nodeB.State().RelayConnections())

		instance := leaderInstance(t, nodeA, "counter/x")
		leaderConn, ok := instance.ConnForID(conn.ID())
		require.True(t, ok)
		assert.Equal(t, actor.DriverKindCoordinateRelay, leaderConn.Kind())
		assert.Equal(t, "node-b", leaderConn.DriverState())
		assert.JSONEq(t, `{"room":"a"}`, string(leaderConn.Params()))

		require.Eventually(t, func() bool { return sink.hasType(actor.MessageTypeInit) }, time.Second, 10*time.Millisecond)

		require.NoError(t, conn.Send(ctx, ping))
		require.Eventually(t, func() bool { return sink.hasType(actor.MessageTypePong) }, time.Second, 10*time.Millisecond)

		require.NoError(t, conn.Send(ctx, json.RawMessage(`{"type":"action","id":7,"name":"increment","args":[2]}`)))
		require.Eventually(t, func() bool {
			for _, message := range sink.received() {
				if message.Type == actor.MessageTypeActionResponse && message.ID == 7 {
					return string(message.Output) == `2`
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)

		require.NoError(t, conn.Send(ctx, json.RawMessage(`{"type":"subscribe","event":"newCount"}`)))
		require.Eventually(t, func() bool { return leaderConn.Subscribed("newCount") }, time.Second, 10*time.Millisecond)

		_, err = nodeA.CallAction(ctx, "counter/x", "increment", intArgs(1), nil, nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			for _, message := range sink.received() {
				if message.Type == actor.MessageTypeEvent && message.Name == "newCount" {
					return len(message.Args) == 1 && string(message.Args[0]) == `3`
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)

		require.NoError(t, conn.Close(ctx, "bye"))
		require.NoError(t, conn.Close(ctx, "bye"))
		require.Eventually(t, func() bool { return instance.ConnCount() == 0 }, time.Second, 10*time.Millisecond)
		assert.Zero(t, nodeB.State().RelayConnections())
		assert.ErrorIs(t, conn.Send(ctx, ping), gerrors.ErrConnectionClosed)
		assert.Empty(t, sink.disconnected())
	})
	t.Run("With leader closing the connection", func(t *testing.T) {
		nodeA, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", nil, nil, sink)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return sink.hasType(actor.MessageTypeInit) }, time.Second, 10*time.Millisecond)

		leaderConn, ok := leaderInstance(t, nodeA, "counter/x").ConnForID(conn.ID())
		require.True(t, ok)
		require.NoError(t, leaderConn.Disconnect(ctx, "kicked"))

		require.Eventually(t, func() bool { return len(sink.disconnected()) == 1 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"kicked"}, sink.disconnected())
		assert.Zero(t, nodeB.State().RelayConnections())
		assert.Zero(t, leaderInstance(t, nodeA, "counter/x").ConnCount())

		// closing after the leader did is a no-op, late pushes are dropped
		require.NoError(t, conn.Close(ctx, "bye"))
		assert.ErrorIs(t, conn.Send(ctx, ping), gerrors.ErrConnectionClosed)
		conn.(*RelayConnection).deliver(ctx, json.RawMessage(`{"type":"pong"}`))
		assert.False(t, sink.hasType(actor.MessageTypePong))
		assert.Len(t, sink.disconnected(), 1)
	})
	t.Run("With leader pushes delivered in order", func(t *testing.T) {
		nodeA, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", nil, nil, sink)
		require.NoError(t, err)

		leaderConn, ok := leaderInstance(t, nodeA, "counter/x").ConnForID(conn.ID())
		require.True(t, ok)

		const pushes = 200
		for id := uint64(1); id <= pushes; id++ {
			require.NoError(t, leaderConn.Send(ctx, &actor.ToClient{Type: actor.MessageTypeActionResponse, ID: id}))
		}
		require.NoError(t, leaderConn.Disconnect(ctx, "done"))

		require.Eventually(t, func() bool { return len(sink.disconnected()) == 1 }, 2*time.Second, 10*time.Millisecond)

		// every push sent before the close reached the client, in order
		var ids []uint64
		for _, message := range sink.received() {
			if message.Type == actor.MessageTypeActionResponse {
				ids = append(ids, message.ID)
			}
		}
		require.Len(t, ids, pushes)
		for i, id := range ids {
			assert.Equal(t, uint64(i+1), id)
		}
		assert.Equal(t, []string{"done"}, sink.disconnected())
	})
	t.Run("With client messages processed in order", func(t *testing.T) {
		_, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", nil, nil, sink)
		require.NoError(t, err)

		const actions = 50
		for id := 1; id <= actions; id++ {
			message := fmt.Sprintf(`{"type":"action","id":%d,"name":"increment","args":[1]}`, id)
			require.NoError(t, conn.Send(ctx, json.RawMessage(message)))
		}

		responses := func() []actor.ToClient {
			var out []actor.ToClient
			for _, message := range sink.received() {
				if message.Type == actor.MessageTypeActionResponse {
					out = append(out, message)
				}
			}
			return out
		}
		require.Eventually(t, func() bool { return len(responses()) == actions }, 2*time.Second, 10*time.Millisecond)

		// the counter value of each response is its request id
		for i, response := range responses() {
			assert.Equal(t, uint64(i+1), response.ID)
			assert.JSONEq(t, fmt.Sprintf("%d", i+1), string(response.Output))
		}
		require.NoError(t, conn.Close(ctx, "bye"))
	})
	t.Run("With actor stopping on the leader", func(t *testing.T) {
		nodeA, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		_, err := nodeB.OpenConnection(ctx, "counter/x", nil, nil, sink)
		require.NoError(t, err)

		peerA, ok := nodeA.Peer("counter/x")
		require.True(t, ok)
		require.NoError(t, peerA.Dispose(ctx))

		require.Eventually(t, func() bool { return len(sink.disconnected()) == 1 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, actor.ReasonActorStopped, sink.disconnected()[0])
	})
	t.Run("With forged connection token", func(t *testing.T) {
		_, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", nil, nil, sink)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return sink.hasType(actor.MessageTypeInit) }, time.Second, 10*time.Millisecond)

		err = nodeB.publishWithAck(ctx, "node-a", protocol.Body{
			LM: &protocol.ToLeaderMessage{ActorID: "counter/x", ConnID: conn.ID(), ConnToken: "forged", Message: ping},
		})
		require.NoError(t, err)
		assert.Never(t, func() bool { return sink.hasType(actor.MessageTypePong) }, 300*time.Millisecond, 20*time.Millisecond)

		require.NoError(t, conn.Close(ctx, "bye"))
	})
	t.Run("With connection rejected by the actor", func(t *testing.T) {
		_, nodeB, teardown := setup(t)
		defer teardown()

		sink := new(recordingSink)
		conn, err := nodeB.OpenConnection(ctx, "counter/x", json.RawMessage(`"reject"`), nil, sink)
		require.Error(t, err)
		assert.Nil(t, conn)
		assert.ErrorIs(t, err, gerrors.ErrConnectionRejected)
		assert.Contains(t, err.Error(), "rejected")
		assert.Empty(t, sink.disconnected())
		assert.Zero(t, nodeB.State().RelayConnections())
		assert.Zero(t, nodeB.State().PendingAcks())

		// the peer reference of the failed connection is released
		peer, ok := nodeB.Peer("counter/x")
		require.True(t, ok)
		peer.refMu.Lock()
		references := peer.references.Cardinality()
		peer.refMu.Unlock()
		assert.Zero(t, references)
	})
	t.Run("With unreachable leader", func(t *testing.T) {
		bus := newBus()
		leases := leasememory.NewStore()
		nodeA := startNode(t, bus, leases, "node-a")
		nodeB := startNode(t, bus, leases, "node-b")

		_, err := nodeA.CallAction(ctx, "counter/x", "get", nil, nil, nil)
		require.NoError(t, err)
		_, err = nodeA.getOrCreatePeer(ctx, "counter/x", "test")
		require.NoError(t, err)

		bus.SetFilter(func(nodeID string, _ []byte) bool { return nodeID != "node-a" })
		_, err = nodeB.OpenConnection(ctx, "counter/x", nil, nil, new(recordingSink))
		assert.ErrorIs(t, err, gerrors.ErrAckTimeout)
		assert.Zero(t, nodeB.State().RelayConnections())
		assert.Zero(t, nodeB.State().PendingAcks())

		bus.SetFilter(nil)
		stopNode(t, nodeB)
		stopNode(t, nodeA)
		require.NoError(t, bus.Close())
	})
}

func TestLocalConnection(t *testing.T) {
	ctx := context.Background()
	bus := newBus()
	leases := leasememory.NewStore()
	node := startNode(t, bus, leases, "node-a")
	defer func() {
		stopNode(t, node)
		require.NoError(t, bus.Close())
	}()

	t.Run("With leader on this node", func(t *testing.T) {
		sink := new(recordingSink)
		conn, err := node.OpenConnection(ctx, "counter/local", nil, nil, sink)
		require.NoError(t, err)
		_, isRelay := conn.(*RelayConnection)
		assert.False(t, isRelay)

		instance := leaderInstance(t, node, "counter/local")
		leaderConn, ok := instance.ConnForID(conn.ID())
		require.True(t, ok)
		assert.Equal(t, actor.DriverKindLocal, leaderConn.Kind())

		assert.True(t, sink.hasType(actor.MessageTypeInit))
		require.NoError(t, conn.Send(ctx, ping))
		assert.True(t, sink.hasType(actor.MessageTypePong))

		require.NoError(t, conn.Close(ctx, "bye"))
		assert.Zero(t, instance.ConnCount())
		assert.ErrorIs(t, conn.Send(ctx, ping), gerrors.ErrConnectionClosed)
	})
	t.Run("With connection rejected by the actor", func(t *testing.T) {
		_, err := node.OpenConnection(ctx, "counter/local", json.RawMessage(`"reject"`), nil, new(recordingSink))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rejected")
	})
	t.Run("With actor disconnecting the client", func(t *testing.T) {
		sink := new(recordingSink)
		conn, err := node.OpenConnection(ctx, "counter/local", nil, nil, sink)
		require.NoError(t, err)

		leaderConn, ok := leaderInstance(t, node, "counter/local").ConnForID(conn.ID())
		require.True(t, ok)
		require.NoError(t, leaderConn.Disconnect(ctx, "kicked"))

		assert.Equal(t, []string{"kicked"}, sink.disconnected())
		assert.ErrorIs(t, conn.Send(ctx, ping), gerrors.ErrConnectionClosed)
		require.NoError(t, conn.Close(ctx, "bye"))
	})
}
