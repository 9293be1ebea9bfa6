/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media stores audio objects the radio service owns, currently
// mirrored host-break segments. Backends: local filesystem and S3.
package media

import (
	"context"
	"io"
)

// Storage abstracts object storage for generated audio.
type Storage interface {
	// Store persists the object and returns a stable locator (a relative
	// path for filesystem storage, a public URL for S3).
	Store(ctx context.Context, key string, body io.Reader) (string, error)
	// Delete removes a stored object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// URL maps a locator returned by Store to a playable URL.
	URL(locator string) string
}
