/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership decides which instance runs shared maintenance when
// several dashboards back onto one database.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/telemetry"
)

const (
	defaultKey           = "speakergroups:leader:maintenance"
	defaultLeaseDuration = 15 * time.Second
	defaultRetryInterval = 5 * time.Second
)

// Gate reports whether this instance should run maintenance right now.
type Gate interface {
	Leader() bool
}

// Solo is the gate for a single instance. It always leads.
type Solo struct{}

// Leader implements Gate.
func (Solo) Leader() bool { return true }

// releaseScript deletes the key only while it still holds our id.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config configures a Redis lease.
type Config struct {
	Key           string
	LeaseDuration time.Duration
	RetryInterval time.Duration
	InstanceID    string
}

// DefaultConfig returns the lease defaults with a random instance id.
func DefaultConfig() Config {
	return Config{
		Key:           defaultKey,
		LeaseDuration: defaultLeaseDuration,
		RetryInterval: defaultRetryInterval,
		InstanceID:    uuid.NewString(),
	}
}

// Lease is a Redis SET NX lease renewed while held.
type Lease struct {
	client *redis.Client
	cfg    Config
	held   atomic.Bool
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLease creates a lease on client. Start begins campaigning.
func NewLease(client *redis.Client, cfg Config, logger zerolog.Logger) *Lease {
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = def.LeaseDuration
	}
	if cfg.RetryInterval <= 0 || cfg.RetryInterval >= cfg.LeaseDuration {
		cfg.RetryInterval = cfg.LeaseDuration / 3
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = def.InstanceID
	}
	return &Lease{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "leadership").Str("instance_id", cfg.InstanceID).Logger(),
	}
}

// Leader implements Gate.
func (l *Lease) Leader() bool {
	return l.held.Load()
}

// Start campaigns in the background until Close.
func (l *Lease) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.campaign(ctx)
	}()
}

// Close stops campaigning and hands the lease back if held.
func (l *Lease) Close() error {
	if l.cancel != nil {
		l.cancel()
		l.wg.Wait()
	}
	if !l.held.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.setHeld(false)
	if err := releaseScript.Run(ctx, l.client, []string{l.cfg.Key}, l.cfg.InstanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (l *Lease) campaign(ctx context.Context) {
	l.attempt(ctx)

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.attempt(ctx)
		}
	}
}

func (l *Lease) attempt(ctx context.Context) {
	ok, err := l.acquire(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			l.logger.Warn().Err(err).Msg("maintenance lease check failed")
		}
		l.setHeld(false)
		return
	}
	l.setHeld(ok)
}

// acquire takes the lease when free and renews it when already ours.
func (l *Lease) acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.cfg.Key, l.cfg.InstanceID, l.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	owner, err := l.client.Get(ctx, l.cfg.Key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get lease owner: %w", err)
	}
	if owner != l.cfg.InstanceID {
		return false, nil
	}
	if err := l.client.Expire(ctx, l.cfg.Key, l.cfg.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

func (l *Lease) setHeld(held bool) {
	if l.held.Swap(held) == held {
		return
	}
	gauge := telemetry.MaintenanceLeader.WithLabelValues(l.cfg.InstanceID)
	if held {
		gauge.Set(1)
		telemetry.MaintenanceLeaderChanges.WithLabelValues(l.cfg.InstanceID, "acquired").Inc()
		l.logger.Info().Msg("acquired maintenance lease")
		return
	}
	gauge.Set(0)
	telemetry.MaintenanceLeaderChanges.WithLabelValues(l.cfg.InstanceID, "lost").Inc()
	l.logger.Warn().Msg("lost maintenance lease")
}
