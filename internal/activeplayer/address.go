/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package activeplayer

import (
	"fmt"
	"net/url"
	"sync"
)

// Address is the shareable location that remembers the selected entity.
type Address interface {
	Selected() string
	SetSelected(id string)
}

// URLAddress keeps the selection in a URL fragment, e.g.
// http://dash.local/#media_player.kitchen.
type URLAddress struct {
	mu sync.Mutex
	u  *url.URL
}

// ParseURLAddress parses raw as the dashboard's location.
func ParseURLAddress(raw string) (*URLAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	return &URLAddress{u: u}, nil
}

// Selected returns the entity id in the fragment, or "".
func (a *URLAddress) Selected() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.u.Fragment
}

// SetSelected replaces the fragment with id.
func (a *URLAddress) SetSelected(id string) {
	a.mu.Lock()
	a.u.Fragment = id
	a.u.RawFragment = ""
	a.mu.Unlock()
}

// String renders the full location.
func (a *URLAddress) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.u.String()
}
