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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrActorNotFound is returned when no leader-side actor instance exists for an actor id on the target node.
	ErrActorNotFound = errors.New("Actor not found")

	// ErrActorNotReady is returned when the leader-side actor exists but has not finished starting.
	ErrActorNotReady = errors.New("Actor not ready")

	// ErrActionNotFound is returned when the actor definition has no action with the requested name.
	ErrActionNotFound = errors.New("action not found")

	// ErrUnknownActorType is returned when an actor id references a definition that is not registered.
	ErrUnknownActorType = errors.New("actor type is not registered")

	// ErrInvalidActorID is returned when an actor id is not of the form <name>/<key>.
	ErrInvalidActorID = errors.New("invalid actor id")

	// ErrAckTimeout is returned when a node did not acknowledge an envelope within the message ack timeout.
	ErrAckTimeout = errors.New("message ack timed out")

	// ErrActionTimeout is returned when the leader did not answer an action request in time.
	// The actor is reported as not available; the leader may still execute the action.
	ErrActionTimeout = errors.New("action response timed out: actor not available")

	// ErrInvalidEnvelope is returned when a node message cannot be decoded or violates the envelope shape.
	ErrInvalidEnvelope = errors.New("invalid node message")

	// ErrAckOfAck is returned when an ack envelope itself requests an ack.
	ErrAckOfAck = errors.New("ack messages cannot request ack in response")

	// ErrMissingSender is returned when a leader-bound envelope does not carry the sender node id.
	ErrMissingSender = errors.New("node id not provided")

	// ErrConnTokenMismatch is returned when a leader message presents a token that differs from the stored one.
	ErrConnTokenMismatch = errors.New("connection token does not match")

	// ErrConnectionClosed is returned when sending through a connection that has been disposed.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrConnectionRejected is returned when the actor leader closed a connection while it was opening.
	ErrConnectionRejected = errors.New("connection rejected by the actor leader")

	// ErrConnectionNotFound is returned when a connection id is unknown.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrLeaseLost is returned when renewing or releasing a lease this node no longer holds.
	ErrLeaseLost = errors.New("lease is no longer held")

	// ErrLeaseNotFound is returned when no lease record exists for an actor.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrNotLeader is returned when a leader-only operation runs on a node that does not hold the lease.
	ErrNotLeader = errors.New("node is not the actor leader")

	// ErrLeaderUnresolved is returned when the leader of an actor is not known yet.
	ErrLeaderUnresolved = errors.New("actor leader is not resolved")

	// ErrPeerDisposed is returned when using an actor peer after it has been disposed.
	ErrPeerDisposed = errors.New("actor peer is disposed")

	// ErrTopologyNotStarted is returned when using the topology before Start or after Stop.
	ErrTopologyNotStarted = errors.New("topology is not started")

	// ErrDriverClosed is returned when using a driver after Close.
	ErrDriverClosed = errors.New("driver is closed")

	// ErrSchedulerNotStarted is returned when scheduling an alarm before the scheduler started.
	ErrSchedulerNotStarted = errors.New("scheduler has not started")
)

// ActionError is the failure reported by a leader for an action request.
// It carries the leader-side message verbatim.
type ActionError struct {
	Message string
}

var _ error = (*ActionError)(nil)

// NewActionError creates an ActionError
func NewActionError(message string) *ActionError {
	return &ActionError{Message: message}
}

// Error implements the error interface
func (e *ActionError) Error() string {
	return e.Message
}

// Is maps the well-known leader replies onto their sentinel errors so that
// errors.Is(err, ErrActorNotFound) holds for a remote "Actor not found".
func (e *ActionError) Is(target error) bool {
	switch target {
	case ErrActorNotFound, ErrActorNotReady:
		return e.Message == target.Error()
	default:
		return false
	}
}

// NewErrActionNotFound formats an error with ErrActionNotFound
func NewErrActionNotFound(name string) error {
	return fmt.Errorf("action=(%s) %w", name, ErrActionNotFound)
}

// NewErrUnknownActorType formats an error with ErrUnknownActorType
func NewErrUnknownActorType(name string) error {
	return fmt.Errorf("actor type=(%s) %w", name, ErrUnknownActorType)
}

// NewErrInvalidEnvelope wraps a decoding failure with ErrInvalidEnvelope
func NewErrInvalidEnvelope(err error) error {
	return errors.Join(ErrInvalidEnvelope, err)
}
