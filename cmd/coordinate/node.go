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

package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/coordinate"
	"github.com/tochemey/coordinate/log"
)

// runningNode is a started topology along with the backends it runs on
type runningNode struct {
	topology *coordinate.Topology
	backends *backends
}

func startNode(ctx context.Context, config *Config, nodeID string, logger log.Logger) (*runningNode, error) {
	registry, err := actor.NewRegistry(counterDefinition())
	if err != nil {
		return nil, err
	}

	backends, err := newBackends(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backends: %w", err)
	}

	coordinateConfig := config.coordinateConfig()
	topology, err := coordinate.New(backends.pubsub, backends.leases, registry,
		coordinate.WithNodeID(nodeID),
		coordinate.WithLogger(logger),
		coordinate.WithConfig(&coordinateConfig),
		coordinate.WithActorDriver(backends.actorDriver))
	if err != nil {
		return nil, multierr.Append(err, backends.Close(ctx))
	}

	if err := topology.Start(ctx); err != nil {
		return nil, multierr.Append(err, backends.Close(ctx))
	}
	return &runningNode{topology: topology, backends: backends}, nil
}

// stop stops the topology, releasing its leases, then closes the backends
func (n *runningNode) stop(ctx context.Context) error {
	return multierr.Combine(n.topology.Stop(ctx), n.backends.Close(ctx))
}
