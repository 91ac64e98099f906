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
	"fmt"
	"sync"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

// Factory creates the leader-side instance of an actor
type Factory interface {
	NewInstance(actorID string, driver Driver, logger log.Logger) (Instance, error)
}

// Registry holds the known actor definitions
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

var _ Factory = (*Registry)(nil)

// NewRegistry creates a Registry with the given definitions
func NewRegistry(definitions ...*Definition) (*Registry, error) {
	registry := &Registry{definitions: make(map[string]*Definition, len(definitions))}
	for _, definition := range definitions {
		if err := registry.Register(definition); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a definition
func (r *Registry) Register(definition *Definition) error {
	if err := definition.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[definition.Name]; ok {
		return fmt.Errorf("actor type=(%s) is already registered", definition.Name)
	}
	r.definitions[definition.Name] = definition
	return nil
}

// Lookup returns the definition registered under name
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definition, ok := r.definitions[name]
	return definition, ok
}

// NewInstance implements Factory
func (r *Registry) NewInstance(actorID string, driver Driver, logger log.Logger) (Instance, error) {
	name, key, err := ParseID(actorID)
	if err != nil {
		return nil, err
	}

	definition, ok := r.Lookup(name)
	if !ok {
		return nil, gerrors.NewErrUnknownActorType(name)
	}
	return newInstance(actorID, key, definition, driver, logger), nil
}
