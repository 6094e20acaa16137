// Package filestore implements the two-tier artifact store: one staging
// store written to by successful jobs, and one-or-more release stores
// promoted artifacts move into (spec.md §4.4, C5).
package filestore

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// StoreRoot is an absolute path to an existing directory that roots a
// store.
type StoreRoot struct {
	path string
}

// NewStoreRoot validates that path is absolute and an existing directory.
func NewStoreRoot(path string) (StoreRoot, error) {
	if !filepath.IsAbs(path) {
		return StoreRoot{}, xerrors.Errorf("store root path is not absolute: %s", path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return StoreRoot{}, xerrors.Errorf("store root path does not exist: %w", err)
	}
	if !fi.IsDir() {
		return StoreRoot{}, xerrors.Errorf("store root path does not point to a directory: %s", path)
	}
	return StoreRoot{path: path}, nil
}

// Path returns the root's absolute filesystem path.
func (r StoreRoot) Path() string { return r.path }

// IsFile reports whether root/subpath is a regular file.
func (r StoreRoot) IsFile(ap ArtifactPath) bool {
	fi, err := os.Stat(filepath.Join(r.path, ap.rel))
	return err == nil && fi.Mode().IsRegular()
}

// Join constructs a FullArtifactPath, which is only constructible when
// the joined path is a regular file (I4).
func (r StoreRoot) Join(ap ArtifactPath) (FullArtifactPath, error) {
	joined := filepath.Join(r.path, ap.rel)
	fi, err := os.Stat(joined)
	if err != nil {
		return FullArtifactPath{}, xerrors.Errorf("path does not exist: %s", joined)
	}
	if fi.IsDir() {
		return FullArtifactPath{}, xerrors.Errorf("cannot load non-file path: %s", joined)
	}
	if !fi.Mode().IsRegular() {
		return FullArtifactPath{}, xerrors.Errorf("path is not a regular file: %s", joined)
	}
	return FullArtifactPath{root: r, ap: ap}, nil
}

// ArtifactPath is a relative path within a store, never absolute.
type ArtifactPath struct {
	rel string
}

// NewArtifactPath validates that p is relative.
func NewArtifactPath(p string) (ArtifactPath, error) {
	if filepath.IsAbs(p) {
		return ArtifactPath{}, xerrors.Errorf("artifact path is not relative: %s", p)
	}
	return ArtifactPath{rel: filepath.Clean(p)}, nil
}

func (a ArtifactPath) String() string { return a.rel }

// FileName returns the base name of the path.
func (a ArtifactPath) FileName() string { return filepath.Base(a.rel) }

// FullArtifactPath is a StoreRoot joined with an ArtifactPath, guaranteed
// (at construction time) to refer to an existing regular file (I4).
type FullArtifactPath struct {
	root StoreRoot
	ap   ArtifactPath
}

// String renders "<root>/<relative path>".
func (f FullArtifactPath) String() string {
	return filepath.Join(f.root.path, f.ap.rel)
}

// ArtifactPath returns the relative path component.
func (f FullArtifactPath) ArtifactPath() ArtifactPath { return f.ap }

// Read reads the artifact's full content from disk.
func (f FullArtifactPath) Read() ([]byte, error) {
	b, err := os.ReadFile(f.String())
	if err != nil {
		return nil, xerrors.Errorf("reading artifact from path %s: %w", f.String(), err)
	}
	return b, nil
}
