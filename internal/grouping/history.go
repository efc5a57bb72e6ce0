/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package grouping

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/speakergroups/internal/models"
)

// HistoryStore keeps reconciliation runs in the database.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a run log backed by db.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record inserts a finished run.
func (h *HistoryStore) Record(ctx context.Context, run *models.ReconcileRun) error {
	if err := h.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("insert reconcile run: %w", err)
	}
	return nil
}

// Recent returns the newest runs first. An empty group name matches all groups.
func (h *HistoryStore) Recent(ctx context.Context, group string, limit int) ([]models.ReconcileRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := h.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if group != "" {
		q = q.Where("group_name = ?", group)
	}

	var runs []models.ReconcileRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list reconcile runs: %w", err)
	}
	return runs, nil
}
