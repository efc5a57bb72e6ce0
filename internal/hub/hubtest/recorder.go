/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hubtest provides an in-memory hub.Caller for tests.
package hubtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/friendsincode/speakergroups/internal/hub"
)

// ErrInjected is the failure returned by a Recorder set up to fail.
var ErrInjected = errors.New("injected hub failure")

// Call is one recorded service call.
type Call struct {
	Service string
	Data    hub.Data
}

// String renders the call compactly for test failure output.
func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Service, map[string]any(c.Data))
}

// Recorder records every call. Failing calls are recorded too.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// FailOn makes every call to this service fail.
	FailOn string
	// FailAt makes the n-th call (1-based) fail. Zero disables it.
	FailAt int
}

// CallService implements hub.Caller.
func (r *Recorder) CallService(_ context.Context, service string, data hub.Data) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Service: service, Data: data})
	if (r.FailOn != "" && service == r.FailOn) || (r.FailAt > 0 && len(r.calls) == r.FailAt) {
		return ErrInjected
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Services returns the service name of each recorded call.
func (r *Recorder) Services() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Service
	}
	return out
}

// Reset forgets the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

var _ hub.Caller = (*Recorder)(nil)
