/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/events"
)

// subjectPrefix namespaces the NATS subjects; the event type follows it.
const subjectPrefix = "speakergroups.events."

// NATSBus forwards selected events to other nodes over NATS core pub/sub.
type NATSBus struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	local   *events.Bus
	nodeID  string
	bridged map[events.EventType]bool
	logger  zerolog.Logger
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	NodeID  string
	Bridged []events.EventType
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus bridges local to NATS. If the first connection fails the bus
// runs local-only and the error is logged.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) *NATSBus {
	nb := &NATSBus{
		local:   local,
		nodeID:  newNodeID(cfg.NodeID),
		bridged: bridgedSet(cfg.Bridged),
		logger:  logger.With().Str("component", "eventbus_nats").Logger(),
	}

	opts := []nats.Option{
		nats.Name("speakergroups-" + nb.nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-memory event bus only")
		return nb
	}
	nb.conn = conn

	sub, err := conn.Subscribe(subjectPrefix+">", nb.receive)
	if err != nil {
		nb.logger.Warn().Err(err).Msg("NATS subscribe failed, using in-memory event bus only")
		conn.Close()
		nb.conn = nil
		return nb
	}
	nb.sub = sub

	nb.logger.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nb.nodeID).Msg("NATS event bus initialized")
	return nb
}

// NodeID identifies this instance on the bridge.
func (nb *NATSBus) NodeID() string {
	return nb.nodeID
}

// Subscribe registers a local handler.
func (nb *NATSBus) Subscribe(eventType events.EventType, handler events.Handler) *events.Subscription {
	return nb.local.Subscribe(eventType, handler)
}

// Publish delivers locally, then forwards bridged event types to NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil || !nb.bridged[eventType] {
		return
	}
	if _, remote := payload[OriginKey]; remote {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	nb.logger.Info().Msg("closing NATS event bus")
	return nb.conn.Drain()
}

func (nb *NATSBus) receive(msg *nats.Msg) {
	m, err := unmarshalMessage(msg.Data)
	if err != nil {
		nb.logger.Error().Err(err).Str("subject", msg.Subject).Msg("failed to unmarshal NATS message")
		return
	}
	if string(m.EventType) != strings.TrimPrefix(msg.Subject, subjectPrefix) {
		nb.logger.Warn().Str("subject", msg.Subject).Str("event_type", string(m.EventType)).Msg("subject and event type disagree, dropping")
		return
	}
	if !nb.bridged[m.EventType] {
		return
	}
	deliver(nb.local, nb.nodeID, m)
}

var _ events.Broker = (*NATSBus)(nil)
