// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version of engram binaries.
package version

import "runtime/debug"

// Version is the release version, injected at build time via
// -ldflags "-X github.com/engram-foundation/engram/lib/version.Version=v1.2.3".
// Defaults to "dev" for local builds.
var Version = "dev"

// Info returns the version string for --version output. When the
// binary was built with VCS information, the revision is appended so
// operators can identify exact builds.
func Info() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
			return Version + " (" + setting.Value[:12] + ")"
		}
	}
	return Version
}
