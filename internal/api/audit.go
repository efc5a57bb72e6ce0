/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/speakergroups/internal/audit"
	"github.com/friendsincode/speakergroups/internal/auth"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
)

const outcomeOK = "ok"

// recordAudit publishes a controller action for the audit trail.
func (a *API) recordAudit(r *http.Request, action models.AuditAction, target, outcome string, details events.Payload) {
	if a.bus == nil {
		return
	}
	payload := events.Payload{
		audit.KeyAction:    string(action),
		audit.KeyTarget:    target,
		audit.KeyOutcome:   outcome,
		audit.KeyIPAddress: clientIP(r),
		audit.KeyUserAgent: r.UserAgent(),
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		payload[audit.KeyUserID] = claims.UserID
	}
	for k, v := range details {
		payload[k] = v
	}
	a.bus.Publish(events.EventControlAudited, payload)
}

// outcomeOf is "ok" for nil, else the API error code for err.
func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	_, code := errorStatus(err)
	return code
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []models.AuditLog{}, "total": 0})
		return
	}

	q := r.URL.Query()
	filters := audit.QueryFilters{
		UserID: q.Get("user"),
		Action: models.AuditAction(q.Get("action")),
		Target: q.Get("target"),
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		filters.Since = t
	}

	entries, total, err := a.audit.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("query audit log failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}
