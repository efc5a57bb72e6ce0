/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of speakergroups.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/speakergroups/internal/version.Version=X.Y.Z
var Version = "0.1.0-dev"

// Commit is the VCS revision, set via ldflags or read from build info.
var Commit = ""

// Revision returns Commit, falling back to the vcs.revision build setting.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}

// String renders version, revision and Go runtime for the version command.
func String() string {
	return fmt.Sprintf("speakergroups %s (%s, %s %s/%s)", Version, Revision(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
