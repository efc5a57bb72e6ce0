/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/config"
	"github.com/friendsincode/speakergroups/internal/eventbus"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/groupconfig"
	"github.com/friendsincode/speakergroups/internal/hub"
	"github.com/friendsincode/speakergroups/internal/leadership"
)

// NewHubClient builds the hub client from cfg, browsing mDNS for the hub
// when no URL is configured and discovery is enabled.
func NewHubClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*hub.Client, error) {
	if err := cfg.ValidateHub(); err != nil {
		return nil, err
	}
	baseURL := cfg.HubURL
	if baseURL == "" {
		found, err := hub.Discover(ctx, cfg.DiscoveryTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("discover hub: %w", err)
		}
		baseURL = found
	}
	return hub.NewClient(baseURL, cfg.HubToken, cfg.HubTimeout, logger), nil
}

// OpenGroupSource returns the predefined group document location named by
// cfg.GroupsSource: an s3://bucket/key object or a local file.
func OpenGroupSource(ctx context.Context, cfg *config.Config) (groupconfig.Source, error) {
	bucket, key, ok := groupconfig.SplitS3URL(cfg.GroupsSource)
	if !ok {
		return groupconfig.FileSource{Path: cfg.GroupsSource}, nil
	}
	src, err := groupconfig.NewS3Source(ctx, groupconfig.S3Config{
		Bucket:          bucket,
		Key:             key,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.GroupsSource, err)
	}
	return src, nil
}

// closableBroker is a broker that owns a network connection.
type closableBroker interface {
	events.Broker
	Close() error
}

// NewBroker returns the broker selected by cfg.EventBus wrapping local. The
// returned closer is nil for the in-memory bus.
func NewBroker(cfg *config.Config, local *events.Bus, logger zerolog.Logger) (events.Broker, func() error) {
	var b closableBroker
	switch cfg.EventBus {
	case config.EventBusRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		rc.NodeID = cfg.InstanceID
		b = eventbus.NewRedisBus(rc, local, logger)
	case config.EventBusNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.Token = cfg.NATSToken
		nc.NodeID = cfg.InstanceID
		b = eventbus.NewNATSBus(nc, local, logger)
	default:
		return local, nil
	}
	return b, b.Close
}

// NewMaintenanceGate returns the gate deciding which instance prunes shared
// state. Instances sharing Redis elect one leader; any other setup leads alone.
// The closer is nil for the solo gate.
func NewMaintenanceGate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (leadership.Gate, func() error) {
	if cfg.EventBus != config.EventBusRedis {
		return leadership.Solo{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc := leadership.DefaultConfig()
	if cfg.InstanceID != "" {
		lc.InstanceID = cfg.InstanceID
	}
	lease := leadership.NewLease(client, lc, logger)
	lease.Start(ctx)
	return lease, func() error {
		err := lease.Close()
		if cerr := client.Close(); err == nil {
			err = cerr
		}
		return err
	}
}
