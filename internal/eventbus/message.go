/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus between dashboard
// instances so they share one active player.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/speakergroups/internal/events"
)

// OriginKey is set on payloads that arrived from another node.
const OriginKey = "origin"

// DefaultBridged lists the event types forwarded between nodes.
func DefaultBridged() []events.EventType {
	return []events.EventType{
		events.EventActivePlayerChanged,
		events.EventActivePlayerRequested,
		events.EventReconcileFinished,
	}
}

// message is the wire format shared by the Redis and NATS bridges.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bridge message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("bridge message without event type")
	}
	return &msg, nil
}

// deliver publishes a remote message on the local bus. Messages this node
// sent itself are dropped. It reports whether the message was delivered.
func deliver(local *events.Bus, nodeID string, msg *message) bool {
	if msg.NodeID == nodeID {
		return false
	}
	payload := make(events.Payload, len(msg.Payload)+1)
	for k, v := range msg.Payload {
		payload[k] = v
	}
	payload[OriginKey] = msg.NodeID
	local.Publish(msg.EventType, payload)
	return true
}

func bridgedSet(types []events.EventType) map[events.EventType]bool {
	if len(types) == 0 {
		types = DefaultBridged()
	}
	set := make(map[events.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func newNodeID(nodeID string) string {
	if nodeID != "" {
		return nodeID
	}
	return uuid.NewString()
}
