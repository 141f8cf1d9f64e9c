// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forward

import (
	"context"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// redisClient is the part of *redis.Client the forwarder uses
type redisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisConfig configures the Redis forwarder
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the hash holding the latest snapshot; Key+":updates" is the pub/sub channel
	Key string
	TTL time.Duration
}

// RedisForwarder keeps the latest snapshot in a hash and publishes each update
type RedisForwarder struct {
	cfg    RedisConfig
	client redisClient
}

// NewRedisForwarder creates a forwarder and checks the server is reachable
func NewRedisForwarder(ctx context.Context, cfg RedisConfig) (*RedisForwarder, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "unable to reach redis at %s", cfg.Addr)
	}
	return newRedisForwarder(rdb, cfg), nil
}

func newRedisForwarder(client redisClient, cfg RedisConfig) *RedisForwarder {
	if cfg.Key == "" {
		cfg.Key = "gaugelink:telemetry"
	}
	return &RedisForwarder{cfg: cfg, client: client}
}

// Name returns the forwarder description
func (f *RedisForwarder) Name() string {
	return "redis " + f.cfg.Addr + "/" + f.cfg.Key
}

// Channel returns the pub/sub channel updates are published on
func (f *RedisForwarder) Channel() string {
	return f.cfg.Key + ":updates"
}

// Forward writes s to the hash and publishes its CBOR encoding
func (f *RedisForwarder) Forward(ctx context.Context, s telemetry.Snapshot, live bool) error {
	fields := map[string]interface{}{
		"oil_temp":       s.OilTemp,
		"water_temp":     s.WaterTemp,
		"engine_rpm":     s.EngineRPM,
		"oil_pressure":   s.OilPressure,
		"brake_pressure": s.BrakePressure,
		"brake_percent":  s.BrakePercent,
		"throttle_pos":   s.ThrottlePos,
		"speed":          s.Speed,
		"accel_pos":      s.AccelPos,
		"gauge":          s.Gauge.String(),
		"live":           live,
		"updated_at":     time.Now().UnixMilli(),
	}

	if err := f.client.HSet(ctx, f.cfg.Key, fields).Err(); err != nil {
		return errors.Wrapf(err, "unable to write %s", f.cfg.Key)
	}
	if f.cfg.TTL > 0 {
		if err := f.client.Expire(ctx, f.cfg.Key, f.cfg.TTL).Err(); err != nil {
			return errors.Wrapf(err, "unable to set ttl on %s", f.cfg.Key)
		}
	}

	payload, err := telemetry.MarshalCBOR(s)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.Channel(), payload).Err(); err != nil {
		return errors.Wrapf(err, "unable to publish to %s", f.Channel())
	}
	return nil
}

// Close closes the client
func (f *RedisForwarder) Close() error {
	return f.client.Close()
}
