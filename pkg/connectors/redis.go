// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"

	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/configs"
	"github.com/redis/go-redis/v9"
)

type RedisConnector interface {
	Connect(ctx context.Context) error
	Name() string
	IsConnected(ctx context.Context) bool
	Disconnect(ctx context.Context) error
	GetConnection() *redis.Client
}

type redisConnector struct {
	cfg    configs.RedisConfig
	logger commons.Logger
	client *redis.Client
}

func NewRedisConnector(cfg configs.RedisConfig, logger commons.Logger) RedisConnector {
	return &redisConnector{cfg: cfg, logger: logger}
}

func (c *redisConnector) Name() string {
	return fmt.Sprintf("Redis redis://%s", c.cfg.Addr())
}

func (c *redisConnector) Connect(ctx context.Context) error {
	opts := &redis.Options{
		Addr:     c.cfg.Addr(),
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	}
	if c.cfg.MaxConnection > 0 {
		opts.PoolSize = c.cfg.MaxConnection
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping %s: %w", c.Name(), err)
	}
	c.client = client
	c.logger.Infof("connected to %s", c.Name())
	return nil
}

func (c *redisConnector) IsConnected(ctx context.Context) bool {
	if c.client == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}

func (c *redisConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	c.logger.Debugf("disconnecting %s", c.Name())
	return c.client.Close()
}

func (c *redisConnector) GetConnection() *redis.Client {
	return c.client
}
