/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/speakergroups/internal/telemetry"
)

const startedKey = "speakergroups:started_at"

// RegisterCallbacks times every create, query, row, update and delete and
// counts failures, labelled by operation and table.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	results := []struct {
		op            string
		before, after error
	}{
		{"create",
			cb.Create().Before("gorm:create").Register("telemetry:before_create", markStart),
			cb.Create().After("gorm:create").Register("telemetry:after_create", observe("create"))},
		{"query",
			cb.Query().Before("gorm:query").Register("telemetry:before_query", markStart),
			cb.Query().After("gorm:query").Register("telemetry:after_query", observe("query"))},
		{"row",
			cb.Row().Before("gorm:row").Register("telemetry:before_row", markStart),
			cb.Row().After("gorm:row").Register("telemetry:after_row", observe("row"))},
		{"update",
			cb.Update().Before("gorm:update").Register("telemetry:before_update", markStart),
			cb.Update().After("gorm:update").Register("telemetry:after_update", observe("update"))},
		{"delete",
			cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", markStart),
			cb.Delete().After("gorm:delete").Register("telemetry:after_delete", observe("delete"))},
	}
	for _, r := range results {
		if err := errors.Join(r.before, r.after); err != nil {
			return fmt.Errorf("register %s callbacks: %w", r.op, err)
		}
	}
	return nil
}

func markStart(db *gorm.DB) {
	db.InstanceSet(startedKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startedKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, "query_error").Inc()
		}
	}
}

// UpdateConnectionMetrics publishes the pool's open connection count.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
