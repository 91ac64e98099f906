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

package nats

import (
	"time"

	"github.com/tochemey/coordinate/internal/validation"
	"github.com/tochemey/coordinate/pubsub"
)

// Config represents the NATS pub/sub driver configuration
type Config struct {
	// Server defines the nats server in the format nats://host:port
	Server string
	// TopicPrefix prefixes every node subject
	TopicPrefix string
	// ConnectionName is reported to the NATS server
	ConnectionName string
	// ReconnectWait bounds the initial connection backoff and the client reconnect wait
	ReconnectWait time.Duration
	// MaxConnectRetries is the number of attempts made to establish the initial connection
	MaxConnectRetries int
}

// Sanitize sets the default values
func (x *Config) Sanitize() {
	if x.TopicPrefix == "" {
		x.TopicPrefix = pubsub.DefaultTopicPrefix
	}
	if x.ConnectionName == "" {
		x.ConnectionName = "coordinate"
	}
	if x.ReconnectWait <= 0 {
		x.ReconnectWait = 2 * time.Second
	}
	if x.MaxConnectRetries <= 0 {
		x.MaxConnectRetries = 5
	}
}

// Validate checks whether the given configuration is valid
func (x Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Server", x.Server)).
		AddValidator(validation.NewEmptyStringValidator("TopicPrefix", x.TopicPrefix)).
		AddValidator(validation.NewPositiveDurationValidator("ReconnectWait", x.ReconnectWait)).
		Validate()
}
