/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries the build version.
package version

// Version is set at build time via ldflags:
//
//	-X github.com/storybeam/radio/internal/version.Version=X.Y.Z
var Version = "0.4.0"
