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

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/tochemey/coordinate/actor"
	boltdriver "github.com/tochemey/coordinate/actor/driver/bolt"
	memorydriver "github.com/tochemey/coordinate/actor/driver/memory"
	redisdriver "github.com/tochemey/coordinate/actor/driver/redis"
	"github.com/tochemey/coordinate/lease"
	etcdlease "github.com/tochemey/coordinate/lease/etcd"
	memorylease "github.com/tochemey/coordinate/lease/memory"
	natslease "github.com/tochemey/coordinate/lease/nats"
	redislease "github.com/tochemey/coordinate/lease/redis"
	"github.com/tochemey/coordinate/log"
	"github.com/tochemey/coordinate/pubsub"
	memorypubsub "github.com/tochemey/coordinate/pubsub/memory"
	natspubsub "github.com/tochemey/coordinate/pubsub/nats"
	redispubsub "github.com/tochemey/coordinate/pubsub/redis"
)

// backends holds the collaborators of a node built from the config
type backends struct {
	pubsub      pubsub.Driver
	leases      lease.Store
	actorDriver actor.Driver
	// redis clients shared by the stores, closed last
	redisClients []*redis.Client
}

func newBackends(ctx context.Context, config *Config, logger log.Logger) (_ *backends, err error) {
	b := new(backends)
	defer func() {
		if err != nil {
			err = multierr.Append(err, b.Close(context.WithoutCancel(ctx)))
		}
	}()

	if b.pubsub, err = b.newPubSub(ctx, config.PubSub, logger); err != nil {
		return nil, err
	}
	if b.leases, err = b.newLeaseStore(config.Lease); err != nil {
		return nil, err
	}
	if b.actorDriver, err = b.newActorDriver(config.State, logger); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *backends) newPubSub(ctx context.Context, config PubSubConfig, logger log.Logger) (pubsub.Driver, error) {
	switch config.Backend {
	case backendNATS:
		driver, err := natspubsub.New(&natspubsub.Config{Server: config.NATS.URL, TopicPrefix: config.NATS.Prefix}, logger)
		if err != nil {
			return nil, err
		}
		return driver, nil
	case backendRedis:
		driver, err := redispubsub.New(ctx, &redispubsub.Config{URL: config.Redis.URL, TopicPrefix: config.Redis.Prefix}, logger)
		if err != nil {
			return nil, err
		}
		return driver, nil
	default:
		logger.Warn("memory pubsub only reaches the nodes of this process")
		return memorypubsub.NewBus(memorypubsub.WithLogger(logger)), nil
	}
}

func (b *backends) newLeaseStore(config LeaseConfig) (lease.Store, error) {
	switch config.Backend {
	case backendNATS:
		store, err := natslease.NewStore(&natslease.Config{URL: config.NATS.URL, Bucket: config.NATS.Prefix})
		if err != nil {
			return nil, err
		}
		return store, nil
	case backendRedis:
		client, err := b.redisClient(config.Redis.URL)
		if err != nil {
			return nil, err
		}
		var opts []redislease.Option
		if config.Redis.Prefix != "" {
			opts = append(opts, redislease.WithKeyPrefix(config.Redis.Prefix))
		}
		return redislease.NewStore(client, opts...), nil
	case backendEtcd:
		store, err := etcdlease.NewStore(&etcdlease.Config{Endpoints: config.Etcd.Endpoints, KeyPrefix: config.Etcd.Prefix})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memorylease.NewStore(), nil
	}
}

func (b *backends) newActorDriver(config StateConfig, logger log.Logger) (actor.Driver, error) {
	switch config.Backend {
	case backendRedis:
		client, err := b.redisClient(config.Redis.URL)
		if err != nil {
			return nil, err
		}
		var opts []redisdriver.Option
		if config.Redis.Prefix != "" {
			opts = append(opts, redisdriver.WithKeyPrefix(config.Redis.Prefix))
		}
		return redisdriver.NewDriver(client, logger, opts...), nil
	case backendBolt:
		driver, err := boltdriver.NewDriver(config.Bolt.Path, logger)
		if err != nil {
			return nil, err
		}
		return driver, nil
	default:
		return memorydriver.NewDriver(logger), nil
	}
}

func (b *backends) redisClient(url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	b.redisClients = append(b.redisClients, client)
	return client, nil
}

// Close releases the backends in reverse creation order
func (b *backends) Close(ctx context.Context) error {
	var err error
	if b.actorDriver != nil {
		err = multierr.Append(err, b.actorDriver.Close(ctx))
	}
	if b.leases != nil {
		err = multierr.Append(err, b.leases.Close())
	}
	if b.pubsub != nil {
		err = multierr.Append(err, b.pubsub.Close())
	}
	for _, client := range b.redisClients {
		err = multierr.Append(err, client.Close())
	}
	return err
}
