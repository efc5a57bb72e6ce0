/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/speakergroups/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.ReconcileRun{},
		&models.AuditLog{},
	); err != nil {
		return err
	}
	return nil
}

// PruneReconcileRuns deletes runs that started before cutoff.
func PruneReconcileRuns(database *gorm.DB, cutoff time.Time) (int64, error) {
	res := database.Where("started_at < ?", cutoff).Delete(&models.ReconcileRun{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune reconcile runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
