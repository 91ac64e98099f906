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
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tochemey/coordinate/log"
)

func callCmd(options *rootOptions) *cobra.Command {
	var (
		params   string
		authData string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <actorID> <action> [json args...]",
		Short: "Call an actor action from an ephemeral node",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionArgs, err := rawArgs(args[2:])
			if err != nil {
				return err
			}
			rawParams, err := rawJSON("params", params)
			if err != nil {
				return err
			}
			rawAuthData, err := rawJSON("auth-data", authData)
			if err != nil {
				return err
			}

			config, err := loadConfig(options.configPath)
			if err != nil {
				return err
			}

			logger := log.NewZap(log.ParseLevel(config.LogLevel), cmd.ErrOrStderr())
			defer func() { _ = logger.Sync() }()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			// an ephemeral node must never reuse the id of a serving node
			node, err := startNode(ctx, config, "", logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := node.stop(context.WithoutCancel(ctx)); err != nil {
					logger.Warnf("failed to stop node: %v", err)
				}
			}()

			output, err := node.topology.CallAction(ctx, args[0], args[1], actionArgs, rawParams, rawAuthData)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return err
		},
	}

	cmd.Flags().StringVar(&params, "params", "", "Connection params as JSON")
	cmd.Flags().StringVar(&authData, "auth-data", "", "Authentication data as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Call timeout")
	return cmd
}

func rawArgs(args []string) ([]json.RawMessage, error) {
	raws := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		raw, err := rawJSON(fmt.Sprintf("arg %d", i), arg)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func rawJSON(name, value string) (json.RawMessage, error) {
	if value == "" {
		return nil, nil
	}
	if !json.Valid([]byte(value)) {
		return nil, fmt.Errorf("%s is not valid JSON: %s", name, value)
	}
	return json.RawMessage(value), nil
}
