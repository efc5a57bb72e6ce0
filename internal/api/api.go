/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/activeplayer"
	"github.com/friendsincode/speakergroups/internal/audit"
	"github.com/friendsincode/speakergroups/internal/auth"
	"github.com/friendsincode/speakergroups/internal/control"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/groupconfig"
	"github.com/friendsincode/speakergroups/internal/grouping"
	"github.com/friendsincode/speakergroups/internal/hub"
	"github.com/friendsincode/speakergroups/internal/store"
)

// Deps are the services the API reads from and drives.
type Deps struct {
	Store       *store.Store
	Control     *control.Service
	Registry    *groupconfig.Registry
	Reconciler  *grouping.Reconciler
	History     *grouping.HistoryStore // nil disables the run log endpoint
	Coordinator *activeplayer.Coordinator
	Audit       *audit.Service // nil disables the audit endpoint
	Bus         events.Broker
	JWTSecret   []byte // nil disables auth
}

// API exposes HTTP handlers.
type API struct {
	store       *store.Store
	control     *control.Service
	registry    *groupconfig.Registry
	reconciler  *grouping.Reconciler
	history     *grouping.HistoryStore
	coordinator *activeplayer.Coordinator
	audit       *audit.Service
	bus         events.Broker
	jwtSecret   []byte
	logger      zerolog.Logger
}

// New creates the API router wrapper.
func New(d Deps, logger zerolog.Logger) *API {
	return &API{
		store:       d.Store,
		control:     d.Control,
		registry:    d.Registry,
		reconciler:  d.Reconciler,
		history:     d.History,
		coordinator: d.Coordinator,
		audit:       d.Audit,
		bus:         d.Bus,
		jwtSecret:   d.JWTSecret,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the v1 API on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Group(func(vr chi.Router) {
				vr.Use(auth.RequireRole(auth.RoleViewer))
				vr.Get("/players", a.handlePlayersList)
				vr.Get("/players/{entityID}", a.handlePlayersGet)
				vr.Get("/groups", a.handleGroupsList)
				vr.Get("/predefined-groups", a.handlePredefinedGroupsList)
				vr.Get("/predefined-groups/runs", a.handlePredefinedGroupRuns)
				vr.Get("/active-player", a.handleActivePlayerGet)
				vr.Get("/events", a.handleEvents)
			})

			pr.Group(func(cr chi.Router) {
				cr.Use(auth.RequireRole(auth.RoleController))
				cr.Post("/players/{entityID}/commands/{command}", a.handlePlayerCommand)
				cr.Post("/predefined-groups/{name}/apply", a.handlePredefinedGroupApply)
				cr.Put("/active-player", a.handleActivePlayerSet)
				cr.Get("/audit", a.handleAuditList)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"players": len(a.store.Snapshot().Players),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// errorStatus maps domain errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var hubErr *hub.Error
	switch {
	case errors.Is(err, store.ErrUnknownEntity):
		return http.StatusNotFound, "unknown_entity"
	case errors.Is(err, groupconfig.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found"
	case errors.Is(err, control.ErrUnknownCommand):
		return http.StatusBadRequest, "unknown_command"
	case errors.Is(err, control.ErrMissingArgument):
		return http.StatusBadRequest, "missing_argument"
	case errors.Is(err, control.ErrInvalidVolume):
		return http.StatusBadRequest, "invalid_volume"
	case errors.Is(err, control.ErrNoMembers):
		return http.StatusBadRequest, "no_members"
	case errors.Is(err, grouping.ErrEmptyGroup):
		return http.StatusBadRequest, "empty_group"
	case errors.Is(err, hub.ErrUnauthorized):
		return http.StatusBadGateway, "hub_unauthorized"
	case errors.As(err, &hubErr):
		return http.StatusBadGateway, "hub_rejected"
	default:
		return http.StatusBadGateway, "hub_unavailable"
	}
}

func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn().Err(err).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code)
}
