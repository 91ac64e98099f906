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
	"time"

	"github.com/tochemey/coordinate/internal/validation"
)

const (
	// DefaultLeaseDuration is the default validity of a held lease
	DefaultLeaseDuration = 3 * time.Second
	// DefaultRenewLeaseGrace is the default delay before expiry at which the holder renews
	DefaultRenewLeaseGrace = 1500 * time.Millisecond
	// DefaultCheckLeaseInterval is the default lease poll interval of a non leader
	DefaultCheckLeaseInterval = time.Second
	// DefaultCheckLeaseJitter is the default upper bound of the poll jitter
	DefaultCheckLeaseJitter = 500 * time.Millisecond
	// DefaultMessageAckTimeout is the default wait for the ack of a correlated send
	DefaultMessageAckTimeout = time.Second
	// DefaultActionTimeout is the default bound of a stateless action
	DefaultActionTimeout = time.Minute
	// DefaultPeerIdleTimeout is the default delay before an unused peer releases its lease
	DefaultPeerIdleTimeout = 30 * time.Second
)

// Config holds the timing of actor leadership and node messaging
type Config struct {
	// LeaseDuration is how long a held lease is valid
	LeaseDuration time.Duration
	// RenewLeaseGrace is how long before expiry the holder renews. Clock skew
	// between nodes must stay below it.
	RenewLeaseGrace time.Duration
	// CheckLeaseInterval is how often a non leader polls the lease
	CheckLeaseInterval time.Duration
	// CheckLeaseJitter is the upper bound of the random delay added to each poll
	CheckLeaseJitter time.Duration
	// MessageAckTimeout is the max wait for the ack of a correlated send
	MessageAckTimeout time.Duration
	// ActionTimeout bounds a stateless action: the follower wait for the
	// response and the leader execution
	ActionTimeout time.Duration
	// PeerIdleTimeout is how long a peer without references nor connections
	// is kept before it releases its lease
	PeerIdleTimeout time.Duration
}

var _ validation.Validator = (*Config)(nil)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LeaseDuration:      DefaultLeaseDuration,
		RenewLeaseGrace:    DefaultRenewLeaseGrace,
		CheckLeaseInterval: DefaultCheckLeaseInterval,
		CheckLeaseJitter:   DefaultCheckLeaseJitter,
		MessageAckTimeout:  DefaultMessageAckTimeout,
		ActionTimeout:      DefaultActionTimeout,
		PeerIdleTimeout:    DefaultPeerIdleTimeout,
	}
}

// Sanitize replaces zero values with their default
func (c *Config) Sanitize() {
	defaults := DefaultConfig()
	if c.LeaseDuration == 0 {
		c.LeaseDuration = defaults.LeaseDuration
	}
	if c.RenewLeaseGrace == 0 {
		c.RenewLeaseGrace = defaults.RenewLeaseGrace
	}
	if c.CheckLeaseInterval == 0 {
		c.CheckLeaseInterval = defaults.CheckLeaseInterval
	}
	if c.CheckLeaseJitter == 0 {
		c.CheckLeaseJitter = defaults.CheckLeaseJitter
	}
	if c.MessageAckTimeout == 0 {
		c.MessageAckTimeout = defaults.MessageAckTimeout
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = defaults.ActionTimeout
	}
	if c.PeerIdleTimeout == 0 {
		c.PeerIdleTimeout = defaults.PeerIdleTimeout
	}
}

// Validate implements validation.Validator
func (c *Config) Validate() error {
	return validation.New(validation.AllErrors()).
		AddValidator(validation.NewPositiveDurationValidator("LeaseDuration", c.LeaseDuration)).
		AddValidator(validation.NewPositiveDurationValidator("RenewLeaseGrace", c.RenewLeaseGrace)).
		AddValidator(validation.NewPositiveDurationValidator("CheckLeaseInterval", c.CheckLeaseInterval)).
		AddValidator(validation.NewPositiveDurationValidator("CheckLeaseJitter", c.CheckLeaseJitter)).
		AddValidator(validation.NewPositiveDurationValidator("MessageAckTimeout", c.MessageAckTimeout)).
		AddValidator(validation.NewPositiveDurationValidator("ActionTimeout", c.ActionTimeout)).
		AddValidator(validation.NewPositiveDurationValidator("PeerIdleTimeout", c.PeerIdleTimeout)).
		AddAssertion(c.RenewLeaseGrace < c.LeaseDuration, "the [RenewLeaseGrace] must be lower than the [LeaseDuration]").
		Validate()
}
