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

package actor

import (
	"encoding/json"
)

// MessageType identifies a client message
type MessageType string

const (
	// MessageTypeAction invokes an action, answered by an actionResponse or an error
	MessageTypeAction MessageType = "action"
	// MessageTypeSubscribe subscribes the connection to an event
	MessageTypeSubscribe MessageType = "subscribe"
	// MessageTypeUnsubscribe removes an event subscription
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	// MessageTypePing asks the actor for a pong
	MessageTypePing MessageType = "ping"

	// MessageTypeInit is the first message of a connection, carrying its id and token
	MessageTypeInit MessageType = "init"
	// MessageTypeActionResponse carries the output of an action
	MessageTypeActionResponse MessageType = "actionResponse"
	// MessageTypeError carries an action failure or a protocol error
	MessageTypeError MessageType = "error"
	// MessageTypeEvent carries a broadcast event to a subscribed connection
	MessageTypeEvent MessageType = "event"
	// MessageTypePong answers a ping
	MessageTypePong MessageType = "pong"
)

// ToServer is a message a client sends over its connection
type ToServer struct {
	Type  MessageType       `json:"type"`
	ID    uint64            `json:"id,omitempty"`
	Name  string            `json:"name,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
	Event string            `json:"event,omitempty"`
}

// ToClient is a message the actor pushes to a connection
type ToClient struct {
	Type      MessageType       `json:"type"`
	ID        uint64            `json:"id,omitempty"`
	ConnID    string            `json:"connId,omitempty"`
	ConnToken string            `json:"connToken,omitempty"`
	Output    json.RawMessage   `json:"output,omitempty"`
	Message   string            `json:"message,omitempty"`
	Name      string            `json:"name,omitempty"`
	Args      []json.RawMessage `json:"args,omitempty"`
}

// MarshalArgs encodes values as message arguments
func MarshalArgs(values ...any) ([]json.RawMessage, error) {
	args := make([]json.RawMessage, 0, len(values))
	for _, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		args = append(args, raw)
	}
	return args, nil
}
