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

// Package protocol defines the node-to-node message envelope exchanged over
// the pub/sub bus.
//
// Wire keys are short to keep envelopes small:
//
//	n   origin node id (return address for acks and replies)
//	m   message id, present iff an ack is requested
//	b   body, exactly one of:
//	    a   {m}                      ack
//	    lco {ai, ci, ct, p, ad}      to leader: connection open
//	    lcc {ai, ci}                 to leader: connection close
//	    lm  {ai, ci, ct, m}          to leader: connection message
//	    la  {ri, ai, an, aa, p, ad}  to leader: stateless action
//	    fcc {ci, r}                  to follower: connection close
//	    fm  {ci, m}                  to follower: connection message
//	    far {ri, s, o, e}            to follower: action response
//
// ai actor id, ci connection id, ct connection token, p connection params,
// ad auth data, ri request id, an action name, aa action args, s success,
// o output, e error, r reason.
package protocol

import (
	"encoding/json"
)

// Kind names a body variant by its wire key
type Kind string

const (
	// KindAck acknowledges a correlated envelope
	KindAck Kind = "a"
	// KindLeaderConnectionOpen opens a relayed connection at the leader
	KindLeaderConnectionOpen Kind = "lco"
	// KindLeaderConnectionClose closes a relayed connection at the leader
	KindLeaderConnectionClose Kind = "lcc"
	// KindLeaderMessage forwards a client message to the leader
	KindLeaderMessage Kind = "lm"
	// KindLeaderAction invokes a stateless action at the leader
	KindLeaderAction Kind = "la"
	// KindFollowerConnectionClose closes a relayed connection at the follower
	KindFollowerConnectionClose Kind = "fcc"
	// KindFollowerMessage carries a leader push to the follower
	KindFollowerMessage Kind = "fm"
	// KindFollowerActionResponse answers a KindLeaderAction
	KindFollowerActionResponse Kind = "far"
	// KindUnknown is the kind of a body carrying no variant, or more than one
	KindUnknown Kind = ""
)

// Envelope wraps exactly one Body variant with an optional ack request
type Envelope struct {
	// N is the node id of the sender. Acks and replies are published to it.
	N string `json:"n,omitempty"`
	// M is the message id. Set only when the sender awaits an ack.
	M string `json:"m,omitempty"`
	// B is the body
	B Body `json:"b"`
}

// Body holds exactly one non-nil variant
type Body struct {
	A   *Ack                       `json:"a,omitempty"`
	LCO *ToLeaderConnectionOpen    `json:"lco,omitempty"`
	LCC *ToLeaderConnectionClose   `json:"lcc,omitempty"`
	LM  *ToLeaderMessage           `json:"lm,omitempty"`
	LA  *ToLeaderAction            `json:"la,omitempty"`
	FCC *ToFollowerConnectionClose `json:"fcc,omitempty"`
	FM  *ToFollowerMessage         `json:"fm,omitempty"`
	FAR *ToFollowerActionResponse  `json:"far,omitempty"`
}

// Ack acknowledges the envelope whose message id is M
type Ack struct {
	M string `json:"m"`
}

// ToLeaderConnectionOpen asks the leader to create a connection on behalf of
// a follower-hosted client
type ToLeaderConnectionOpen struct {
	ActorID   string          `json:"ai"`
	ConnID    string          `json:"ci"`
	ConnToken string          `json:"ct"`
	Params    json.RawMessage `json:"p,omitempty"`
	AuthData  json.RawMessage `json:"ad,omitempty"`
}

// ToLeaderConnectionClose tells the leader a follower-hosted client left
type ToLeaderConnectionClose struct {
	ActorID string `json:"ai"`
	ConnID  string `json:"ci"`
}

// ToLeaderMessage forwards a client message to the leader
type ToLeaderMessage struct {
	ActorID   string          `json:"ai"`
	ConnID    string          `json:"ci"`
	ConnToken string          `json:"ct"`
	Message   json.RawMessage `json:"m"`
}

// ToLeaderAction invokes an action without a persistent connection
type ToLeaderAction struct {
	RequestID  string            `json:"ri"`
	ActorID    string            `json:"ai"`
	ActionName string            `json:"an"`
	ActionArgs []json.RawMessage `json:"aa"`
	Params     json.RawMessage   `json:"p,omitempty"`
	AuthData   json.RawMessage   `json:"ad,omitempty"`
}

// ToFollowerConnectionClose tells the follower the leader closed a connection
type ToFollowerConnectionClose struct {
	ConnID string `json:"ci"`
	Reason string `json:"r,omitempty"`
}

// ToFollowerMessage carries a leader push for a follower-hosted client
type ToFollowerMessage struct {
	ConnID  string          `json:"ci"`
	Message json.RawMessage `json:"m"`
}

// ToFollowerActionResponse answers a ToLeaderAction
type ToFollowerActionResponse struct {
	RequestID string          `json:"ri"`
	Success   bool            `json:"s"`
	Output    json.RawMessage `json:"o,omitempty"`
	Error     string          `json:"e,omitempty"`
}

// Kind returns the wire key of the single set variant. KindUnknown is
// returned when no variant or more than one variant is set.
func (b Body) Kind() Kind {
	kind := KindUnknown
	count := 0
	set := func(isSet bool, k Kind) {
		if isSet {
			kind = k
			count++
		}
	}

	set(b.A != nil, KindAck)
	set(b.LCO != nil, KindLeaderConnectionOpen)
	set(b.LCC != nil, KindLeaderConnectionClose)
	set(b.LM != nil, KindLeaderMessage)
	set(b.LA != nil, KindLeaderAction)
	set(b.FCC != nil, KindFollowerConnectionClose)
	set(b.FM != nil, KindFollowerMessage)
	set(b.FAR != nil, KindFollowerActionResponse)

	if count != 1 {
		return KindUnknown
	}
	return kind
}

// ConnID returns the connection id of the connection-scoped variants
// (lco, lcc, lm, fcc, fm). ok is false for the other variants.
func (b Body) ConnID() (connID string, ok bool) {
	switch {
	case b.LCO != nil:
		return b.LCO.ConnID, true
	case b.LCC != nil:
		return b.LCC.ConnID, true
	case b.LM != nil:
		return b.LM.ConnID, true
	case b.FCC != nil:
		return b.FCC.ConnID, true
	case b.FM != nil:
		return b.FM.ConnID, true
	default:
		return "", false
	}
}

// RequestsAck reports whether the sender awaits an ack for this envelope
func (e *Envelope) RequestsAck() bool {
	return e.N != "" && e.M != ""
}
