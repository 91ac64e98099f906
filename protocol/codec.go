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
	"fmt"

	"github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/validation"
)

// Encode validates and serializes the envelope
func Encode(envelope *Envelope) ([]byte, error) {
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(envelope)
}

// Decode parses and validates a raw envelope
func Decode(raw []byte) (*Envelope, error) {
	envelope := new(Envelope)
	if err := json.Unmarshal(raw, envelope); err != nil {
		return nil, errors.NewErrInvalidEnvelope(err)
	}

	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return envelope, nil
}

// Validate checks the envelope shape: exactly one body variant, the fields
// that variant requires, and that an ack never requests an ack.
func (e *Envelope) Validate() error {
	kind := e.B.Kind()
	if kind == KindUnknown {
		return errors.NewErrInvalidEnvelope(fmt.Errorf("body must carry exactly one variant"))
	}

	if kind == KindAck && e.M != "" {
		return errors.ErrAckOfAck
	}

	var chain *validation.Chain
	switch kind {
	case KindAck:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("a.m", e.B.A.M))
	case KindLeaderConnectionOpen:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("lco.ai", e.B.LCO.ActorID)).
			AddValidator(validation.NewEmptyStringValidator("lco.ci", e.B.LCO.ConnID)).
			AddValidator(validation.NewEmptyStringValidator("lco.ct", e.B.LCO.ConnToken))
	case KindLeaderConnectionClose:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("lcc.ai", e.B.LCC.ActorID)).
			AddValidator(validation.NewEmptyStringValidator("lcc.ci", e.B.LCC.ConnID))
	case KindLeaderMessage:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("lm.ai", e.B.LM.ActorID)).
			AddValidator(validation.NewEmptyStringValidator("lm.ci", e.B.LM.ConnID)).
			AddAssertion(len(e.B.LM.Message) > 0, "the [lm.m] is required")
	case KindLeaderAction:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("la.ri", e.B.LA.RequestID)).
			AddValidator(validation.NewEmptyStringValidator("la.ai", e.B.LA.ActorID)).
			AddValidator(validation.NewEmptyStringValidator("la.an", e.B.LA.ActionName))
	case KindFollowerConnectionClose:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("fcc.ci", e.B.FCC.ConnID))
	case KindFollowerMessage:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("fm.ci", e.B.FM.ConnID)).
			AddAssertion(len(e.B.FM.Message) > 0, "the [fm.m] is required")
	case KindFollowerActionResponse:
		chain = validation.New(validation.FailFast()).
			AddValidator(validation.NewEmptyStringValidator("far.ri", e.B.FAR.RequestID))
	}

	if err := chain.Validate(); err != nil {
		return errors.NewErrInvalidEnvelope(err)
	}
	return nil
}
