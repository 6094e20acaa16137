package filestore

import (
	"github.com/butido/butido/internal/pkgid"
	"golang.org/x/xerrors"
)

// Artifact is a file produced by a successful job, identified by its
// relative path and the (name, version) recovered from its filename stem
// (spec.md §3, Artifact).
type Artifact struct {
	Path    ArtifactPath
	Name    pkgid.Name
	Version pkgid.Version
}

// ParseArtifact parses an artifact's (name, version) from its path's
// filename stem, via the grammar "name '-' version" (spec.md's
// artifact filename grammar, §6). The split point is the first '-' whose
// prefix is a valid Name and whose suffix is a valid Version in its
// entirety; this picks "foo2-1-1.2a3" apart as (name=foo2,
// version=1-1.2a3).
func ParseArtifact(ap ArtifactPath) (Artifact, error) {
	stem := stemOf(ap.FileName())
	name, version, err := splitStem(stem)
	if err != nil {
		return Artifact{}, xerrors.Errorf("parsing artifact filename %q: %w", ap.FileName(), err)
	}
	return Artifact{Path: ap, Name: name, Version: version}, nil
}

// stemOf strips a single trailing ".<ext>" suffix, if any, mirroring the
// source's file_stem() semantics for artifact filenames like "a-1.tar".
func stemOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[:i]
		}
		if filename[i] == '/' {
			break
		}
	}
	return filename
}

func splitStem(stem string) (pkgid.Name, pkgid.Version, error) {
	for i := 0; i < len(stem); i++ {
		if stem[i] != '-' {
			continue
		}
		namePart := stem[:i]
		versionPart := stem[i+1:]
		if namePart == "" || versionPart == "" {
			continue
		}
		name, err := pkgid.ParseName(namePart)
		if err != nil {
			continue
		}
		version, err := pkgid.ParseVersion(versionPart)
		if err != nil {
			continue
		}
		return name, version, nil
	}
	return "", "", xerrors.Errorf("no valid \"name-version\" split found in %q", stem)
}
