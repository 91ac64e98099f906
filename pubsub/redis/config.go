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

package redis

import (
	"github.com/tochemey/coordinate/internal/validation"
	"github.com/tochemey/coordinate/pubsub"
)

// Config represents the Redis pub/sub driver configuration
type Config struct {
	// URL is the redis connection url, e.g. redis://localhost:6379/0
	URL string
	// TopicPrefix prefixes every node channel
	TopicPrefix string
	// ChannelSize is the buffer of the receive channel of each subscription
	ChannelSize int
}

// Sanitize sets the default values
func (x *Config) Sanitize() {
	if x.TopicPrefix == "" {
		x.TopicPrefix = pubsub.DefaultTopicPrefix
	}
	if x.ChannelSize <= 0 {
		x.ChannelSize = 1024
	}
}

// Validate checks whether the given configuration is valid
func (x Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("URL", x.URL)).
		AddValidator(validation.NewEmptyStringValidator("TopicPrefix", x.TopicPrefix)).
		Validate()
}
