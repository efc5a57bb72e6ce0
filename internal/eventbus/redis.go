/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
)

// channelPrefix namespaces the Redis pub/sub channels.
const channelPrefix = "speakergroups:events:"

// RedisBus forwards selected events to other nodes over Redis pub/sub.
// Local delivery always goes through the in-process bus, so the dashboard
// keeps working while Redis is down.
type RedisBus struct {
	client  *redis.Client
	local   *events.Bus
	nodeID  string
	bridged map[events.EventType]bool
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	mu            sync.Mutex
	useFallback   bool
	failCount     int
	maxFails      int
	checkInterval time.Duration
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration

	NodeID  string
	Bridged []events.EventType
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// NewRedisBus bridges local to Redis. When Redis cannot be reached the bus
// starts in fallback mode and keeps retrying in the background.
func NewRedisBus(cfg RedisConfig, local *events.Bus, logger zerolog.Logger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}

	rb := &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		local:         local,
		nodeID:        newNodeID(cfg.NodeID),
		bridged:       bridgedSet(cfg.Bridged),
		logger:        logger.With().Str("component", "eventbus_redis").Logger(),
		ctx:           ctx,
		cancel:        cancel,
		maxFails:      cfg.MaxFailures,
		checkInterval: cfg.CheckInterval,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := rb.client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
	} else {
		rb.logger.Info().Str("addr", cfg.Addr).Str("node_id", rb.nodeID).Msg("Redis event bus initialized")
	}

	channels := make([]string, 0, len(rb.bridged))
	for t := range rb.bridged {
		channels = append(channels, channelPrefix+string(t))
	}
	pubsub := rb.client.Subscribe(ctx, channels...)

	rb.wg.Add(2)
	go rb.receiveMessages(pubsub)
	go rb.watchFallback()
	return rb
}

// NodeID identifies this instance on the bridge.
func (rb *RedisBus) NodeID() string {
	return rb.nodeID
}

// Subscribe registers a local handler.
func (rb *RedisBus) Subscribe(eventType events.EventType, handler events.Handler) *events.Subscription {
	return rb.local.Subscribe(eventType, handler)
}

// Publish delivers locally, then forwards bridged event types to Redis.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	if !rb.bridged[eventType] || rb.inFallback() {
		return
	}
	// Events that came in from another node are not sent back out.
	if _, remote := payload[OriginKey]; remote {
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, channelPrefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Close stops the receiver and closes the Redis client.
func (rb *RedisBus) Close() error {
	rb.logger.Info().Msg("closing Redis event bus")
	rb.cancel()
	rb.wg.Wait()
	return rb.client.Close()
}

func (rb *RedisBus) receiveMessages(pubsub *redis.PubSub) {
	defer rb.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Msg("Redis channel closed")
				return
			}
			m, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to unmarshal Redis message")
				continue
			}
			if deliver(rb.local, rb.nodeID, m) {
				rb.logger.Debug().
					Str("event_type", string(m.EventType)).
					Str("source_node", m.NodeID).
					Msg("delivered Redis event to local subscribers")
			}
		}
	}
}

func (rb *RedisBus) inFallback() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

// handleFailure implements circuit breaker logic.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, switching to in-memory fallback")
		rb.useFallback = true
	}
}

// watchFallback pings Redis while the breaker is open and closes it again
// once Redis answers.
func (rb *RedisBus) watchFallback() {
	defer rb.wg.Done()

	ticker := time.NewTicker(rb.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			if !rb.inFallback() {
				continue
			}
			ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
			err := rb.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				rb.logger.Debug().Err(err).Msg("Redis still unavailable")
				continue
			}
			rb.mu.Lock()
			rb.useFallback = false
			rb.failCount = 0
			rb.mu.Unlock()
			rb.logger.Info().Msg("reconnected to Redis, disabling fallback")
		}
	}
}

var _ events.Broker = (*RedisBus)(nil)
