// Package artifact stores generated PAC files by content hash and tracks
// which one is currently served as the latest.
package artifact

import (
	"context"
	"errors"

	"github.com/jmerrifield20/qpac/internal/pac"
)

// ErrNotFound is returned when a hash is unknown or no latest artifact has
// been recorded yet.
var ErrNotFound = errors.New("artifact not found")

// latestKey is the conf row holding the latest pointer in the SQL backends.
const latestKey = "latest_pac_file"

// Cache is a content-addressable artifact store with one mutable pointer.
// Entries are never modified once uploaded.
type Cache interface {
	// Upload stores a. Re-uploading an existing hash succeeds.
	Upload(ctx context.Context, a pac.Artifact) error

	// Get returns the artifact with the given hash.
	Get(ctx context.Context, hash string) (pac.Artifact, error)

	// SetLatest points the latest pointer at hash. The hash is not checked;
	// callers upload before pointing.
	SetLatest(ctx context.Context, hash string) error

	// Latest returns the artifact the latest pointer refers to.
	Latest(ctx context.Context) (pac.Artifact, error)
}
