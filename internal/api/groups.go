/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/models"
)

func (a *API) handlePredefinedGroupsList(w http.ResponseWriter, r *http.Request) {
	groups := a.registry.List()
	if groups == nil {
		groups = []models.PredefinedGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// handlePredefinedGroupApply reconciles the live topology to a predefined
// group. A failed step still returns the per-step outcomes next to the error.
func (a *API) handlePredefinedGroupApply(w http.ResponseWriter, r *http.Request) {
	pg, err := a.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	res, err := a.reconciler.Apply(r.Context(), pg, a.store.Snapshot())
	details := events.Payload{}
	if res != nil {
		details["run_id"] = res.RunID
	}
	a.recordAudit(r, models.AuditActionGroupApply, pg.Name, outcomeOf(err), details)
	if err != nil {
		if res == nil {
			a.writeDomainError(w, err)
			return
		}
		status, code := errorStatus(err)
		a.logger.Warn().Err(err).Str("group", pg.Name).Str("run_id", res.RunID).Msg("predefined group apply failed")
		writeJSON(w, status, map[string]any{
			"error":  code,
			"detail": err.Error(),
			"result": res,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handlePredefinedGroupRuns(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []models.ReconcileRun{}})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.history.Recent(r.Context(), r.URL.Query().Get("group"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list reconcile runs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if runs == nil {
		runs = []models.ReconcileRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
