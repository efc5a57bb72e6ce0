/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/friendsincode/speakergroups/internal/activeplayer"
	"github.com/friendsincode/speakergroups/internal/models"
)

// activePlayerRequest selects a player. URL is the caller's page address;
// when set, the response carries it with the selection written in.
type activePlayerRequest struct {
	EntityID string `json:"entity_id"`
	URL      string `json:"url,omitempty"`
}

func (a *API) handleActivePlayerGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"entity_id": a.coordinator.Get()})
}

func (a *API) handleActivePlayerSet(w http.ResponseWriter, r *http.Request) {
	var req activePlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.EntityID = strings.TrimSpace(req.EntityID)
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id_required")
		return
	}

	var page *activeplayer.URLAddress
	if req.URL != "" {
		var err error
		if page, err = activeplayer.ParseURLAddress(req.URL); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_url")
			return
		}
	}

	if _, err := a.store.Player(req.EntityID); err != nil {
		a.recordAudit(r, models.AuditActionActivePlayerSet, req.EntityID, outcomeOf(err), nil)
		a.writeDomainError(w, err)
		return
	}

	resp := map[string]string{}
	if page != nil {
		a.coordinator.SelectFrom(page, req.EntityID)
		resp["url"] = page.String()
	} else {
		a.coordinator.SelectFrom(nil, req.EntityID)
	}
	a.recordAudit(r, models.AuditActionActivePlayerSet, req.EntityID, outcomeOK, nil)
	resp["entity_id"] = a.coordinator.Get()
	writeJSON(w, http.StatusOK, resp)
}
