package filestore

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

// WriteFilesFromTarStream unpacks a tar byte stream (as returned by the
// container runtime's copy-out operation, spec.md §6) into the staging
// root, then re-indexes each written regular file as an Artifact parsed
// from its filename (spec.md §4.4). Non-regular entries (directories,
// symlinks) are extracted but not indexed as artifacts. Tar decoding
// errors are surfaced to the caller.
func (s *StagingStore) WriteFilesFromTarStream(r io.Reader) ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr := tar.NewReader(r)
	var written []Artifact
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("decoding tar stream into staging store %s: %w", s.root.path, err)
		}

		target := filepath.Join(s.root.path, filepath.Clean(hdr.Name))
		if err := ensureWithinRoot(s.root.path, target); err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, xerrors.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, xerrors.Errorf("creating parent directory for %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return nil, xerrors.Errorf("creating file %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return nil, xerrors.Errorf("writing file %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return nil, xerrors.Errorf("closing file %s: %w", target, err)
			}

			rel, err := filepath.Rel(s.root.path, target)
			if err != nil {
				return nil, err
			}
			ap, err := NewArtifactPath(rel)
			if err != nil {
				return nil, err
			}
			art, err := ParseArtifact(ap)
			if err != nil {
				return nil, xerrors.Errorf("indexing extracted artifact: %w", err)
			}
			s.index[ap.rel] = art
			written = append(written, art)
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return nil, xerrors.Errorf("tar entry %s: symlink target %q must be relative", hdr.Name, hdr.Linkname)
			}
			linkTarget := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if err := ensureWithinRoot(s.root.path, linkTarget); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, xerrors.Errorf("creating parent directory for %s: %w", target, err)
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return nil, xerrors.Errorf("extracting symlink %s: %w", target, err)
			}
			// symlinks are extracted but not indexed as artifacts, per
			// spec.md §4.4.
		default:
			// other special entries (hardlinks, devices, fifos) are
			// ignored for artifact indexing purposes, per spec.md §4.4.
		}
	}
	return written, nil
}

// ensureWithinRoot rejects path traversal from a malicious or malformed
// tar entry (e.g. "../../etc/passwd").
func ensureWithinRoot(root, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return xerrors.Errorf("resolving tar entry path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return xerrors.Errorf("tar entry escapes store root: %s", target)
	}
	return nil
}
