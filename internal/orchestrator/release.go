package orchestrator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/filestore"
)

// Release promotes ap from the staging store into the named release
// store, recording the move in the database (spec.md §4.9 "Promotion").
// It moves the file (creating intermediate directories), flips
// artifacts.released, and inserts a releases row.
func (o *Orchestrator) Release(ctx context.Context, ap filestore.ArtifactPath, storeName string) error {
	var target *filestore.ReleaseStore
	for _, rs := range o.releaseStores {
		if rs.Name() == storeName {
			target = rs
			break
		}
	}
	if target == nil {
		return xerrors.Errorf("no configured release store named %q", storeName)
	}

	src, err := o.staging.RootPath().Join(ap)
	if err != nil {
		return xerrors.Errorf("locating staged artifact %s: %w", ap, err)
	}

	dstPath := filepath.Join(target.RootPath().Path(), ap.String())
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return xerrors.Errorf("creating release directory for %s: %w", ap, err)
	}

	if err := moveFile(src.String(), dstPath); err != nil {
		return xerrors.Errorf("promoting %s to release store %q: %w", ap, storeName, err)
	}

	if err := target.Reload(); err != nil {
		return xerrors.Errorf("reloading release store %q: %w", storeName, err)
	}

	storeRow, err := o.db.GetOrCreateReleaseStore(ctx, storeName, target.RootPath().Path())
	if err != nil {
		return xerrors.Errorf("recording release store %q: %w", storeName, err)
	}

	artRow, err := o.db.GetArtifactByPath(ctx, ap.String())
	if err != nil {
		return xerrors.Errorf("looking up artifact row for %s: %w", ap, err)
	}

	if err := o.db.MarkArtifactReleased(ctx, artRow.ID); err != nil {
		return err
	}

	if _, err := o.db.InsertRelease(ctx, artRow.ID, storeRow.ID, time.Now().UTC()); err != nil {
		return xerrors.Errorf("recording release of %s: %w", ap, err)
	}

	return nil
}

// moveFile moves src to dst, refusing to clobber an existing dst, falling
// back to copy+remove when src and dst are on different filesystems
// (os.Rename's cross-device limitation).
func moveFile(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return xerrors.Errorf("refusing to overwrite existing file: %s", dst)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
