/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ReconcileStatus is the terminal status of a reconciliation run.
type ReconcileStatus string

const (
	ReconcileCompleted ReconcileStatus = "completed"
	ReconcileFailed    ReconcileStatus = "failed"
)

// ReconcileStepRecord is the persisted outcome of one reconciliation step.
type ReconcileStepRecord struct {
	Kind       string   `json:"kind"`
	EntityIDs  []string `json:"entity_ids,omitempty"`
	Outcome    string   `json:"outcome"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// ReconcileRun records one application of a predefined group.
type ReconcileRun struct {
	ID         string                `gorm:"type:uuid;primaryKey" json:"id"`
	GroupName  string                `gorm:"index" json:"group_name"`
	AnchorID   string                `json:"anchor_id,omitempty"`
	MainID     string                `json:"main_id"`
	Status     ReconcileStatus       `gorm:"type:varchar(16);index" json:"status"`
	Error      string                `json:"error,omitempty"`
	Steps      []ReconcileStepRecord `gorm:"serializer:json" json:"steps"`
	StartedAt  time.Time             `gorm:"index" json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (ReconcileRun) TableName() string {
	return "reconcile_runs"
}
