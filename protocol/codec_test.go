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

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/coordinate/errors"
)

func TestDecode(t *testing.T) {
	t.Run("With leader connection open", func(t *testing.T) {
		raw := []byte(`{"n":"node-a","m":"msg-1","b":{"lco":{"ai":"counter/x","ci":"c1","ct":"tok1","p":{"room":"a"}}}}`)
		envelope, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, KindLeaderConnectionOpen, envelope.B.Kind())
		assert.True(t, envelope.RequestsAck())
		assert.Equal(t, "counter/x", envelope.B.LCO.ActorID)
		assert.Equal(t, "c1", envelope.B.LCO.ConnID)
		assert.Equal(t, "tok1", envelope.B.LCO.ConnToken)
		assert.JSONEq(t, `{"room":"a"}`, string(envelope.B.LCO.Params))
	})
	t.Run("With leader action", func(t *testing.T) {
		raw := []byte(`{"n":"node-a","b":{"la":{"ri":"r1","ai":"Y","an":"increment","aa":[5]}}}`)
		envelope, err := Decode(raw)
		require.NoError(t, err)
		assert.False(t, envelope.RequestsAck())
		require.Len(t, envelope.B.LA.ActionArgs, 1)
		assert.JSONEq(t, `5`, string(envelope.B.LA.ActionArgs[0]))
	})
	t.Run("With malformed JSON", func(t *testing.T) {
		_, err := Decode([]byte(`{"b":`))
		assert.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
	})
	t.Run("With empty body", func(t *testing.T) {
		_, err := Decode([]byte(`{"n":"node-a","b":{}}`))
		assert.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
	})
	t.Run("With two variants", func(t *testing.T) {
		_, err := Decode([]byte(`{"b":{"a":{"m":"x"},"fcc":{"ci":"c1"}}}`))
		assert.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
	})
	t.Run("With ack requesting an ack", func(t *testing.T) {
		_, err := Decode([]byte(`{"n":"node-a","m":"msg-2","b":{"a":{"m":"msg-1"}}}`))
		assert.ErrorIs(t, err, gerrors.ErrAckOfAck)
	})
	t.Run("With missing required field", func(t *testing.T) {
		_, err := Decode([]byte(`{"b":{"lm":{"ai":"X","ci":"","ct":"tok","m":{}}}}`))
		require.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
		assert.Contains(t, err.Error(), "the [lm.ci] is required")
	})
}

func TestEncode(t *testing.T) {
	t.Run("With failed action response", func(t *testing.T) {
		raw, err := Encode(&Envelope{B: Body{FAR: &ToFollowerActionResponse{RequestID: "r1", Success: false, Error: "Actor not found"}}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"b":{"far":{"ri":"r1","s":false,"e":"Actor not found"}}}`, string(raw))
	})
	t.Run("With successful action response", func(t *testing.T) {
		raw, err := Encode(&Envelope{B: Body{FAR: &ToFollowerActionResponse{RequestID: "r1", Success: true, Output: json.RawMessage(`10`)}}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"b":{"far":{"ri":"r1","s":true,"o":10}}}`, string(raw))
	})
	t.Run("With follower message", func(t *testing.T) {
		raw, err := Encode(&Envelope{N: "node-b", B: Body{FM: &ToFollowerMessage{ConnID: "c1", Message: json.RawMessage(`{"type":"pong"}`)}}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":"node-b","b":{"fm":{"ci":"c1","m":{"type":"pong"}}}}`, string(raw))
	})
	t.Run("With invalid envelope", func(t *testing.T) {
		_, err := Encode(&Envelope{})
		assert.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
	})
}

func TestBodyConnID(t *testing.T) {
	testCases := []struct {
		name   string
		body   Body
		connID string
		scoped bool
	}{
		{name: "lco", body: Body{LCO: &ToLeaderConnectionOpen{ConnID: "c1"}}, connID: "c1", scoped: true},
		{name: "lcc", body: Body{LCC: &ToLeaderConnectionClose{ConnID: "c2"}}, connID: "c2", scoped: true},
		{name: "lm", body: Body{LM: &ToLeaderMessage{ConnID: "c3"}}, connID: "c3", scoped: true},
		{name: "fcc", body: Body{FCC: &ToFollowerConnectionClose{ConnID: "c4"}}, connID: "c4", scoped: true},
		{name: "fm", body: Body{FM: &ToFollowerMessage{ConnID: "c5"}}, connID: "c5", scoped: true},
		{name: "a", body: Body{A: &Ack{M: "m1"}}},
		{name: "la", body: Body{LA: &ToLeaderAction{RequestID: "r1"}}},
		{name: "far", body: Body{FAR: &ToFollowerActionResponse{RequestID: "r1"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			connID, ok := tc.body.ConnID()
			assert.Equal(t, tc.scoped, ok)
			assert.Equal(t, tc.connID, connID)
		})
	}
}
