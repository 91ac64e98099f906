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

package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tochemey/coordinate"

// CoordinateMetric defines the coordination layer instrumentation
type CoordinateMetric struct {
	// envelopes decoded by the node dispatcher, by body type
	envelopesReceived metric.Int64Counter
	// envelopes that failed decoding or validation
	envelopesRejected metric.Int64Counter
	// correlated sends abandoned without an ack
	ackTimeouts metric.Int64Counter
	// stateless action requests, by outcome
	actionRequests metric.Int64Counter
	// live relay connections on this node
	relayConnections metric.Int64UpDownCounter
	// lease role changes, by new role
	leaseTransitions metric.Int64Counter
}

// NewCoordinateMetric creates the instruments from provider, the global
// meter provider when nil
func NewCoordinateMetric(provider metric.MeterProvider) (*CoordinateMetric, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	coordinateMetric := new(CoordinateMetric)
	var err error
	if coordinateMetric.envelopesReceived, err = meter.Int64Counter(
		"coordinate.envelopes.received",
		metric.WithDescription("Total number of node envelopes received"),
	); err != nil {
		return nil, fmt.Errorf("failed to create envelopesReceived instrument, %w", err)
	}

	if coordinateMetric.envelopesRejected, err = meter.Int64Counter(
		"coordinate.envelopes.rejected",
		metric.WithDescription("Total number of malformed node envelopes"),
	); err != nil {
		return nil, fmt.Errorf("failed to create envelopesRejected instrument, %w", err)
	}

	if coordinateMetric.ackTimeouts, err = meter.Int64Counter(
		"coordinate.acks.timeout",
		metric.WithDescription("Total number of envelopes not acknowledged in time"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ackTimeouts instrument, %w", err)
	}

	if coordinateMetric.actionRequests, err = meter.Int64Counter(
		"coordinate.actions.requests",
		metric.WithDescription("Total number of stateless action requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create actionRequests instrument, %w", err)
	}

	if coordinateMetric.relayConnections, err = meter.Int64UpDownCounter(
		"coordinate.relay.connections",
		metric.WithDescription("Number of open relay connections"),
	); err != nil {
		return nil, fmt.Errorf("failed to create relayConnections instrument, %w", err)
	}

	if coordinateMetric.leaseTransitions, err = meter.Int64Counter(
		"coordinate.leases.transitions",
		metric.WithDescription("Total number of actor leadership role changes"),
	); err != nil {
		return nil, fmt.Errorf("failed to create leaseTransitions instrument, %w", err)
	}

	return coordinateMetric, nil
}

// EnvelopeReceived records a decoded envelope of the given body type
func (x *CoordinateMetric) EnvelopeReceived(ctx context.Context, kind string) {
	x.envelopesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}

// EnvelopeRejected records a malformed envelope
func (x *CoordinateMetric) EnvelopeRejected(ctx context.Context) {
	x.envelopesRejected.Add(ctx, 1)
}

// AckTimeout records an abandoned ack wait
func (x *CoordinateMetric) AckTimeout(ctx context.Context) {
	x.ackTimeouts.Add(ctx, 1)
}

// ActionRequest records the outcome of a stateless action request
func (x *CoordinateMetric) ActionRequest(ctx context.Context, outcome string) {
	x.actionRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RelayConnectionOpened records a relay connection open
func (x *CoordinateMetric) RelayConnectionOpened(ctx context.Context) {
	x.relayConnections.Add(ctx, 1)
}

// RelayConnectionClosed records a relay connection close
func (x *CoordinateMetric) RelayConnectionClosed(ctx context.Context) {
	x.relayConnections.Add(ctx, -1)
}

// LeaseTransition records a role change
func (x *CoordinateMetric) LeaseTransition(ctx context.Context, role string) {
	x.leaseTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
