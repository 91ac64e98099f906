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
	"github.com/tochemey/coordinate/internal/xsync"
	"github.com/tochemey/coordinate/protocol"
)

// GlobalState is the per-node registry shared by every coordination component.
// Each resolver entry is inserted right before its request is sent and
// removed exactly once, by the matching reply or by its waiter giving up.
type GlobalState struct {
	nodeID                  string
	messageAckResolvers     *xsync.Map[string, chan struct{}]
	actionResponseResolvers *xsync.Map[string, chan *protocol.ToFollowerActionResponse]
	relayConns              *xsync.Map[string, *RelayConnection]
	peers                   *xsync.Map[string, *Peer]
}

func newGlobalState(nodeID string) *GlobalState {
	return &GlobalState{
		nodeID:                  nodeID,
		messageAckResolvers:     xsync.NewMap[string, chan struct{}](),
		actionResponseResolvers: xsync.NewMap[string, chan *protocol.ToFollowerActionResponse](),
		relayConns:              xsync.NewMap[string, *RelayConnection](),
		peers:                   xsync.NewMap[string, *Peer](),
	}
}

// NodeID returns the id of this node
func (s *GlobalState) NodeID() string {
	return s.nodeID
}

// PendingAcks returns the number of ack resolvers awaiting a reply
func (s *GlobalState) PendingAcks() int {
	return s.messageAckResolvers.Len()
}

// PendingActions returns the number of action resolvers awaiting a reply
func (s *GlobalState) PendingActions() int {
	return s.actionResponseResolvers.Len()
}

// RelayConnections returns the number of open relay connections
func (s *GlobalState) RelayConnections() int {
	return s.relayConns.Len()
}

// Peers returns the number of actor peers
func (s *GlobalState) Peers() int {
	return s.peers.Len()
}

func (s *GlobalState) registerAck(messageID string) <-chan struct{} {
	resolved := make(chan struct{})
	s.messageAckResolvers.Set(messageID, resolved)
	return resolved
}

// resolveAck returns false when no waiter is registered for messageID
func (s *GlobalState) resolveAck(messageID string) bool {
	resolved, ok := s.messageAckResolvers.Pop(messageID)
	if ok {
		close(resolved)
	}
	return ok
}

// abandonAck returns false when the ack was resolved concurrently
func (s *GlobalState) abandonAck(messageID string) bool {
	_, ok := s.messageAckResolvers.Pop(messageID)
	return ok
}

func (s *GlobalState) registerActionResponse(requestID string) <-chan *protocol.ToFollowerActionResponse {
	resolved := make(chan *protocol.ToFollowerActionResponse, 1)
	s.actionResponseResolvers.Set(requestID, resolved)
	return resolved
}

// resolveActionResponse returns false when no waiter is registered for the request
func (s *GlobalState) resolveActionResponse(response *protocol.ToFollowerActionResponse) bool {
	resolved, ok := s.actionResponseResolvers.Pop(response.RequestID)
	if ok {
		resolved <- response
	}
	return ok
}

// abandonActionResponse returns false when the response arrived concurrently
func (s *GlobalState) abandonActionResponse(requestID string) bool {
	_, ok := s.actionResponseResolvers.Pop(requestID)
	return ok
}
