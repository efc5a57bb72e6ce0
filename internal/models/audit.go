/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction names a controller action worth keeping a trail of.
type AuditAction string

const (
	AuditActionPlayerCommand   AuditAction = "player.command"
	AuditActionGroupApply      AuditAction = "group.apply"
	AuditActionActivePlayerSet AuditAction = "active_player.set"
)

// AuditLog records who drove the speakers, from where, and with what result.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	UserID    string         `gorm:"type:varchar(128);index:idx_audit_user" json:"user_id"` // token name, "anonymous" without auth
	Action    AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	Target    string         `gorm:"type:varchar(255);index:idx_audit_target" json:"target"` // entity id or group name
	Outcome   string         `gorm:"type:varchar(64)" json:"outcome"`                        // "ok" or an API error code
	Details   map[string]any `gorm:"serializer:json" json:"details,omitempty"`
	IPAddress string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
