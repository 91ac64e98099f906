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
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

// Role is the leadership role of a node for one actor
type Role int32

const (
	// RoleUnresolved means no lease attempt completed yet
	RoleUnresolved Role = iota
	// RoleFollower means another node holds the lease, or none could be acquired
	RoleFollower
	// RoleLeader means this node holds the lease and hosts the actor
	RoleLeader
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return "unresolved"
	}
}

// Peer is the per-node, per-actor view of leadership. It drives the lease
// loop, hosts the actor instance while this node leads and tracks the local
// references keeping it alive.
type Peer struct {
	actorID  string
	topology *Topology
	logger   log.Logger

	role           *atomic.Int32
	leaderNodeID   *atomic.String
	leaseExpiresAt *atomic.Time

	// serializes lease attempts
	leaseMu  sync.Mutex
	refresh  singleflight.Group
	instMu   sync.RWMutex
	instance actor.Instance

	refMu      sync.Mutex
	references mapset.Set[string]
	disposing  bool
	lastUsed   *atomic.Time

	resolved     chan struct{}
	resolvedOnce sync.Once
	wake         chan struct{}
	stop         chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

func newPeer(topology *Topology, actorID string) *Peer {
	return &Peer{
		actorID:        actorID,
		topology:       topology,
		logger:         topology.logger.With("actorId", actorID),
		role:           atomic.NewInt32(int32(RoleUnresolved)),
		leaderNodeID:   atomic.NewString(""),
		leaseExpiresAt: atomic.NewTime(time.Time{}),
		references:     mapset.NewSet[string](),
		lastUsed:       atomic.NewTime(time.Now()),
		resolved:       make(chan struct{}),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// ActorID returns the id of the actor
func (p *Peer) ActorID() string {
	return p.actorID
}

// Role returns the current role
func (p *Peer) Role() Role {
	return Role(p.role.Load())
}

// IsLeader reports whether this node leads the actor. A leader whose local
// lease estimate lapsed, because renewal is late, is not a leader anymore.
func (p *Peer) IsLeader() bool {
	return p.Role() == RoleLeader && time.Now().Before(p.leaseExpiresAt.Load())
}

// LeaderNodeID returns the node id of the last known leader. It is empty
// when the leader is unknown.
func (p *Peer) LeaderNodeID() string {
	if p.Role() == RoleLeader && !p.IsLeader() {
		return ""
	}
	return p.leaderNodeID.Load()
}

// Actor returns the hosted actor instance when this node leads the actor
func (p *Peer) Actor() (actor.Instance, bool) {
	if !p.IsLeader() {
		return nil, false
	}
	p.instMu.RLock()
	defer p.instMu.RUnlock()
	return p.instance, p.instance != nil
}

// WaitResolved blocks until the first lease attempt completed
func (p *Peer) WaitResolved(ctx context.Context) error {
	select {
	case <-p.resolved:
		return nil
	case <-p.stop:
		return gerrors.ErrPeerDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire records a local reference. It returns false when the peer is being
// disposed, in which case the caller must get a fresh peer.
func (p *Peer) Acquire(refID string) bool {
	p.refMu.Lock()
	defer p.refMu.Unlock()
	if p.disposing {
		return false
	}
	p.references.Add(refID)
	p.touch()
	return true
}

// Release drops a local reference
func (p *Peer) Release(refID string) {
	p.refMu.Lock()
	p.references.Remove(refID)
	p.refMu.Unlock()
	p.touch()
}

// Refresh runs a lease attempt right away. It is used when a leader-bound
// send did not reach its target. Concurrent calls share one attempt.
func (p *Peer) Refresh(ctx context.Context) error {
	_, err, _ := p.refresh.Do("refresh", func() (any, error) {
		select {
		case <-p.stop:
			return nil, gerrors.ErrPeerDisposed
		default:
		}
		p.attempt(ctx)
		return nil, nil
	})
	if err != nil {
		return err
	}

	// reschedule the loop after the role change
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dispose stops the lease loop, stops the hosted actor and releases the lease
func (p *Peer) Dispose(ctx context.Context) error {
	p.refMu.Lock()
	p.disposing = true
	p.refMu.Unlock()

	p.topology.state.peers.CompareAndDelete(p.actorID, func(current *Peer) bool { return current == p })
	p.stopOnce.Do(func() { close(p.stop) })

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) touch() {
	p.lastUsed.Store(time.Now())
}

func (p *Peer) run(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.stop:
			p.cleanup(ctx)
			return
		case <-p.wake:
		case <-timer.C:
			p.attempt(ctx)
		}

		if p.idle() {
			p.logger.Debug("actor peer idle, disposing")
			p.topology.state.peers.CompareAndDelete(p.actorID, func(current *Peer) bool { return current == p })
			p.stopOnce.Do(func() { close(p.stop) })
			p.cleanup(ctx)
			return
		}

		timer.Reset(p.nextAttempt())
	}
}

func (p *Peer) nextAttempt() time.Duration {
	config := p.topology.config
	if p.Role() == RoleLeader {
		next := time.Until(p.leaseExpiresAt.Load().Add(-config.RenewLeaseGrace))
		return max(next, 0)
	}
	return config.CheckLeaseInterval + rand.N(config.CheckLeaseJitter)
}

// attempt renews the lease when leading, otherwise tries to acquire it
func (p *Peer) attempt(ctx context.Context) {
	p.leaseMu.Lock()
	defer p.leaseMu.Unlock()

	config := p.topology.config
	leases := p.topology.leases
	nodeID := p.topology.nodeID

	ctx, cancel := context.WithTimeout(ctx, config.LeaseDuration)
	defer cancel()

	start := time.Now()
	if p.Role() == RoleLeader {
		if _, err := leases.Renew(ctx, p.actorID, nodeID, config.LeaseDuration); err != nil {
			p.logger.Warnf("failed to renew lease, stepping down: %v", err)
			p.demote(ctx, "")
			return
		}
		p.leaseExpiresAt.Store(start.Add(config.LeaseDuration))
		return
	}

	record, err := leases.Acquire(ctx, p.actorID, nodeID, config.LeaseDuration)
	if err != nil {
		p.logger.Warnf("failed to acquire lease: %v", err)
		if p.Role() == RoleUnresolved {
			p.follow("")
		}
		return
	}

	if record.NodeID != nodeID {
		p.follow(record.NodeID)
		return
	}

	p.leaseExpiresAt.Store(start.Add(config.LeaseDuration))
	p.promote(ctx)
}

// promote starts the actor on this node. The caller holds leaseMu.
func (p *Peer) promote(ctx context.Context) {
	topology := p.topology
	instance, err := topology.factory.NewInstance(p.actorID, topology.actorDriver, p.logger)
	if err != nil {
		p.logger.Errorf("failed to create actor: %v", err)
		if err := topology.leases.Release(ctx, p.actorID, topology.nodeID); err != nil {
			p.logger.Warnf("failed to release lease: %v", err)
		}
		p.follow("")
		return
	}

	p.instMu.Lock()
	p.instance = instance
	p.instMu.Unlock()
	p.leaderNodeID.Store(topology.nodeID)
	p.role.Store(int32(RoleLeader))
	topology.metric.LeaseTransition(ctx, RoleLeader.String())
	p.logger.Infof("node=(%s) is now the actor leader", topology.nodeID)

	// the actor is visible but not ready while it starts
	if err := instance.Start(ctx); err != nil {
		p.logger.Errorf("failed to start actor: %v", err)
		p.demote(ctx, "")
		if err := topology.leases.Release(ctx, p.actorID, topology.nodeID); err != nil {
			p.logger.Warnf("failed to release lease: %v", err)
		}
		return
	}
	p.resolve()
}

// demote stops the hosted actor and becomes a follower of leaderNodeID.
// The caller holds leaseMu.
func (p *Peer) demote(ctx context.Context, leaderNodeID string) {
	p.instMu.Lock()
	instance := p.instance
	p.instance = nil
	p.instMu.Unlock()

	p.follow(leaderNodeID)
	p.leaseExpiresAt.Store(time.Time{})
	p.topology.metric.LeaseTransition(ctx, RoleFollower.String())

	if instance != nil {
		if err := instance.Stop(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warnf("failed to stop actor: %v", err)
		}
	}
}

func (p *Peer) follow(leaderNodeID string) {
	if previous := p.leaderNodeID.Swap(leaderNodeID); previous != leaderNodeID {
		p.logger.Debugf("actor leader is node=(%s)", leaderNodeID)
	}
	p.role.Store(int32(RoleFollower))
	p.resolve()
}

func (p *Peer) resolve() {
	p.resolvedOnce.Do(func() { close(p.resolved) })
}

// idle marks the peer as disposing when nothing used it for PeerIdleTimeout
func (p *Peer) idle() bool {
	p.refMu.Lock()
	defer p.refMu.Unlock()

	if p.disposing || p.references.Cardinality() > 0 {
		return false
	}

	p.instMu.RLock()
	instance := p.instance
	p.instMu.RUnlock()
	if instance != nil && instance.ConnCount() > 0 {
		return false
	}

	if time.Since(p.lastUsed.Load()) < p.topology.config.PeerIdleTimeout {
		return false
	}

	p.disposing = true
	return true
}

func (p *Peer) cleanup(ctx context.Context) {
	p.leaseMu.Lock()
	defer p.leaseMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.topology.config.LeaseDuration)
	defer cancel()

	wasLeader := p.Role() == RoleLeader
	if wasLeader {
		p.demote(ctx, "")
		if err := p.topology.leases.Release(ctx, p.actorID, p.topology.nodeID); err != nil && !errors.Is(err, gerrors.ErrLeaseLost) {
			p.logger.Warnf("failed to release lease: %v", err)
		}
	}
	p.logger.Debug("actor peer disposed")
}
