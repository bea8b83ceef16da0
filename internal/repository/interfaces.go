// Package repository stores rendered playlist artifacts and cached upstream
// detail payloads.
package repository

import (
	"context"

	"github.com/jmylchreest/xtarr/internal/models"
)

// Artifact is one rendered collection of a target. Exactly one of Path and
// Payload is set: file-backed stores hand out a path to stream from, memory
// stores hand out the bytes.
type Artifact struct {
	Path    string
	Payload []byte
}

// PlaylistRepository publishes and serves the rendered artifacts of targets.
type PlaylistRepository interface {
	// Publish replaces the artifacts of target. Readers observe either the
	// previous or the new version of each artifact, never a partial one.
	// Previously published kinds missing from artifacts are removed unless
	// they are listed in keep.
	Publish(ctx context.Context, target string, artifacts map[models.CollectionKind][]byte, keep ...models.CollectionKind) error
	// Get returns the artifact of kind for target, or nil if it has not
	// been published.
	Get(ctx context.Context, target string, kind models.CollectionKind) (*Artifact, error)
}

// DetailRepository caches raw get_vod_info and get_series_info payloads.
type DetailRepository interface {
	// Upsert creates or replaces the detail keyed by (target, kind, content id).
	Upsert(ctx context.Context, detail *models.XtreamDetail) error
	// Get returns the detail, or nil if none is stored.
	Get(ctx context.Context, target string, kind models.DetailKind, contentID int64) (*models.XtreamDetail, error)
	// DeleteByTarget removes every detail of target.
	DeleteByTarget(ctx context.Context, target string) (int64, error)
	// Count returns the number of details stored for target.
	Count(ctx context.Context, target string) (int64, error)
}
