/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
)

const (
	queueSize    = 256
	defaultLimit = 100
	maxLimit     = 500
)

// Payload keys understood by the audit service. Anything else lands in Details.
const (
	KeyUserID    = "user_id"
	KeyAction    = "action"
	KeyTarget    = "target"
	KeyOutcome   = "outcome"
	KeyIPAddress = "ip_address"
	KeyUserAgent = "user_agent"
)

// Service persists controller actions published on the event bus.
type Service struct {
	db     *gorm.DB
	bus    events.Broker
	queue  chan events.Payload
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus events.Broker, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		queue:  make(chan events.Payload, queueSize),
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to audited events and writes them until ctx is done.
// Bus handlers only enqueue, so publishers never wait on the database.
func (s *Service) Start(ctx context.Context) {
	sub := s.bus.Subscribe(events.EventControlAudited, s.enqueue)
	defer sub.Close()

	s.logger.Info().Msg("audit service started")
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.logger.Info().Msg("audit service stopping")
			return
		case payload := <-s.queue:
			s.logAuditEntry(ctx, payload)
		}
	}
}

func (s *Service) enqueue(p events.Payload) {
	select {
	case s.queue <- p:
	default:
		s.logger.Warn().Str("action", p.String(KeyAction)).Msg("audit queue full, dropping entry")
	}
}

// drain writes whatever is still queued at shutdown.
func (s *Service) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case payload := <-s.queue:
			s.logAuditEntry(ctx, payload)
		default:
			return
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, payload events.Payload) {
	entry := &models.AuditLog{
		UserID:    payload.String(KeyUserID),
		Action:    models.AuditAction(payload.String(KeyAction)),
		Target:    payload.String(KeyTarget),
		Outcome:   payload.String(KeyOutcome),
		IPAddress: payload.String(KeyIPAddress),
		UserAgent: payload.String(KeyUserAgent),
		Details:   make(map[string]any),
	}
	for k, v := range payload {
		switch k {
		case KeyUserID, KeyAction, KeyTarget, KeyOutcome, KeyIPAddress, KeyUserAgent:
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(entry.Action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.Action == "" {
		return errors.New("audit entry without action")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")
	return nil
}

// QueryFilters narrows Query. Zero values match everything.
type QueryFilters struct {
	UserID string
	Action models.AuditAction
	Target string
	Since  time.Time
	Limit  int
	Offset int
}

// Query returns matching entries, newest first, and the total match count.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Target != "" {
		query = query.Where("target = ?", filters.Target)
	}
	if !filters.Since.IsZero() {
		query = query.Where("timestamp >= ?", filters.Since)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Prune deletes entries older than cutoff.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune audit logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
