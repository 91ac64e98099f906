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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tochemey/coordinate/log"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(options *rootOptions) *cobra.Command {
	var nodeID string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a node hosting counter actors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(options.configPath)
			if err != nil {
				return err
			}
			if nodeID != "" {
				config.NodeID = nodeID
			}

			logger := log.NewZap(log.ParseLevel(config.LogLevel), cmd.ErrOrStderr())
			defer func() { _ = logger.Sync() }()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			node, err := startNode(ctx, config, config.NodeID, logger)
			if err != nil {
				return err
			}
			logger.Infof("serving pubsub=(%s) lease=(%s) state=(%s)", config.PubSub.Backend, config.Lease.Backend, config.State.Backend)

			<-ctx.Done()
			logger.Info("received shutdown signal")

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return node.stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&nodeID, "node-id", "", "Node id, overrides the configured one")
	return cmd
}
