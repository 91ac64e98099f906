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
	"fmt"
	"strings"

	"github.com/tochemey/coordinate/internal/validation"
)

// ActionFunc implements an actor action. The returned output must be JSON
// serializable.
type ActionFunc func(ctx *ActionContext, args []json.RawMessage) (any, error)

// Definition describes an actor type
type Definition struct {
	// Name identifies the definition in actor ids
	Name string
	// CreateState returns a pointer to the initial state. Persisted state is
	// decoded into it when the actor starts.
	CreateState func() any
	// OnStart runs once the state is loaded, before the actor serves requests
	OnStart func(ctx *Context) error
	// OnBeforeConnect validates a connection request and returns the
	// connection state. Returning an error rejects the connection.
	OnBeforeConnect func(ctx *Context, params, authData json.RawMessage) (any, error)
	// OnConnect runs after a connection is registered
	OnConnect func(ctx *Context, conn *Conn)
	// OnDisconnect runs after a connection is removed
	OnDisconnect func(ctx *Context, conn *Conn)
	// OnAlarm runs when the alarm set with Context.SetAlarm fires
	OnAlarm func(ctx *Context) error
	// Actions maps action names onto their implementation
	Actions map[string]ActionFunc
}

var _ validation.Validator = (*Definition)(nil)

// Validate checks the definition
func (d *Definition) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Name", d.Name)).
		AddAssertion(!strings.Contains(d.Name, idSeparator), fmt.Sprintf("the [Name] must not contain %q", idSeparator)).
		Validate()
}

// Arg decodes the argument at index i
func Arg[T any](args []json.RawMessage, i int) (T, error) {
	var value T
	if i < 0 || i >= len(args) {
		return value, fmt.Errorf("missing argument at index %d", i)
	}

	if err := json.Unmarshal(args[i], &value); err != nil {
		return value, fmt.Errorf("invalid argument at index %d: %w", i, err)
	}
	return value, nil
}
