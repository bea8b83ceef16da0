package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/xtarr/internal/models"
	"github.com/jmylchreest/xtarr/internal/storage"
)

// fileStore keeps artifacts as files under {target}/ in a sandbox.
type fileStore struct {
	sandbox *storage.Sandbox
}

// NewFilePlaylistRepository creates a PlaylistRepository that writes each
// artifact to its own file. Artifacts are served by path.
func NewFilePlaylistRepository(sandbox *storage.Sandbox) PlaylistRepository {
	return &fileStore{sandbox: sandbox}
}

// ArtifactFileName returns the file name an artifact kind is stored under.
func ArtifactFileName(kind models.CollectionKind) string {
	if kind == models.CollectionM3U {
		return "playlist.m3u"
	}
	return string(kind) + ".json"
}

func validTargetDir(target string) error {
	if target == "" || target == "." || target == ".." || strings.ContainsAny(target, `/\`) {
		return fmt.Errorf("invalid target name for file store: %q", target)
	}
	return nil
}

// Publish writes every artifact atomically and removes artifacts of kinds
// that are no longer published and not kept.
func (s *fileStore) Publish(ctx context.Context, target string, artifacts map[models.CollectionKind][]byte, keep ...models.CollectionKind) error {
	if err := validTargetDir(target); err != nil {
		return err
	}

	for kind, data := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sandbox.AtomicWrite(target+"/"+ArtifactFileName(kind), data); err != nil {
			return fmt.Errorf("publishing %s for %s: %w", kind, target, err)
		}
	}

	for _, kind := range models.Collections {
		if _, ok := artifacts[kind]; ok || slices.Contains(keep, kind) {
			continue
		}
		if err := s.sandbox.RemoveAll(target + "/" + ArtifactFileName(kind)); err != nil {
			return fmt.Errorf("removing stale %s for %s: %w", kind, target, err)
		}
	}
	return nil
}

// Get returns the path of the artifact file, or nil if it does not exist.
func (s *fileStore) Get(_ context.Context, target string, kind models.CollectionKind) (*Artifact, error) {
	if err := validTargetDir(target); err != nil {
		return nil, err
	}

	name := target + "/" + ArtifactFileName(kind)
	exists, err := s.sandbox.Exists(name)
	if err != nil || !exists {
		return nil, err
	}

	path, err := s.sandbox.ResolvePath(name)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: path}, nil
}
