// Package repository walks a tree of pkg.toml files, merges each leaf's
// root-to-leaf configuration chain, and indexes the resulting packages by
// (name, version) (spec.md §4.1, C3).
package repository

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/pkgid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const manifestFile = "pkg.toml"

// FileSystemRepresentation is the in-memory tree of every pkg.toml found
// under a repository root, keyed by its path relative to the root.
type FileSystemRepresentation struct {
	root  string
	files map[string][]byte // relative path -> raw file content
	dirs  []string          // relative directory paths that contain a pkg.toml, sorted
}

// Load reads every pkg.toml under root into memory. Hidden files (dotfiles)
// are ignored. Concurrent file reads are capped to respect the process's
// open-file limit.
func Load(root string) (*FileSystemRepresentation, error) {
	limit := openFileLimit()

	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := d.Name()
		if strings.HasPrefix(base, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && base == manifestFile {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("walking repository root %s: %w", root, err)
	}

	files := make(map[string][]byte, len(paths))
	var mu sync.Mutex
	sem := make(chan struct{}, limit)
	var eg errgroup.Group
	for _, p := range paths {
		p := p
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			content, err := os.ReadFile(p)
			if err != nil {
				return xerrors.Errorf("reading %s: %w", p, err)
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return xerrors.Errorf("relativizing %s: %w", p, err)
			}
			mu.Lock()
			files[rel] = content
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	dirSet := make(map[string]struct{}, len(files))
	for rel := range files {
		dirSet[filepath.Dir(rel)] = struct{}{}
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	return &FileSystemRepresentation{root: root, files: files, dirs: dirs}, nil
}

// IsLeafFile reports whether the pkg.toml at the given directory (relative
// to the repository root) is a leaf: the enclosing directory's subtree
// contains no other pkg.toml.
func (fs *FileSystemRepresentation) IsLeafFile(dir string) bool {
	return fs.isLeaf(dir)
}

// isLeaf is the precise check: no directory in fs.dirs is a strict
// descendant of dir.
func (fs *FileSystemRepresentation) isLeaf(dir string) bool {
	for _, d := range fs.dirs {
		if d == dir {
			continue
		}
		if isStrictDescendant(d, dir) {
			return false
		}
	}
	return true
}

func isStrictDescendant(candidate, of string) bool {
	if of == "." {
		return candidate != "."
	}
	prefix := of + string(filepath.Separator)
	return strings.HasPrefix(candidate+string(filepath.Separator), prefix) && candidate != of
}

// GetFilesFor returns the ordered root-to-leaf merge chain of pkg.toml
// paths (relative to the repository root) that configure the leaf at dir.
func (fs *FileSystemRepresentation) GetFilesFor(dir string) []string {
	var chain []string
	cur := dir
	for {
		if _, ok := fs.files[filepath.Join(cur, manifestFile)]; ok {
			chain = append(chain, filepath.Join(cur, manifestFile))
		}
		if cur == "." {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	// reverse into root-to-leaf order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Repository is the fully-loaded, indexed set of packages (I1: at most one
// Package per (name, version)).
type Repository struct {
	byID map[pkgid.ID]pkgfile.Package
}

// LoadRepository loads root and parses every leaf pkg.toml into a Package,
// indexed by (name, version). Malformed TOML or a duplicate identity fails
// the whole load, with the offending path in the error chain.
func LoadRepository(root string) (*Repository, error) {
	fs, err := Load(root)
	if err != nil {
		return nil, err
	}

	byID := make(map[pkgid.ID]pkgfile.Package)
	for _, dir := range fs.dirs {
		if !fs.isLeaf(dir) {
			continue
		}
		chain := fs.GetFilesFor(dir)
		var merged pkgfile.Raw
		first := true
		for _, relPath := range chain {
			frag, err := pkgfile.Decode(relPath, fs.files[relPath])
			if err != nil {
				return nil, xerrors.Errorf("loading repository: %w", err)
			}
			if first {
				merged = frag
				first = false
				continue
			}
			merged = merged.Merge(frag)
		}
		pkg, err := merged.ToPackage()
		if err != nil {
			return nil, xerrors.Errorf("loading repository: %w", err)
		}
		id := pkg.ID()
		if _, exists := byID[id]; exists {
			return nil, xerrors.Errorf("loading repository: duplicate package %s (from %s)", id, filepath.Join(root, dir))
		}
		byID[id] = pkg
	}

	return &Repository{byID: byID}, nil
}

// Find returns the package with the exact (name, version), or false.
func (r *Repository) Find(name pkgid.Name, version pkgid.Version) (pkgfile.Package, bool) {
	pkg, ok := r.byID[pkgid.ID{Name: name, Version: version}]
	return pkg, ok
}

// FindMatching returns every package with the given name satisfying the
// constraint. The DAG builder picks among these deterministically
// (lexicographically greatest version, per the open question in
// spec.md §9).
func (r *Repository) FindMatching(name pkgid.Name, c pkgid.Constraint) []pkgfile.Package {
	var out []pkgfile.Package
	for id, pkg := range r.byID {
		if id.Name != name {
			continue
		}
		if c.Matches(id.Version) {
			out = append(out, pkg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version.Less(out[j].Version) })
	return out
}

// Packages returns every loaded package, for introspection commands.
func (r *Repository) Packages() []pkgfile.Package {
	out := make([]pkgfile.Package, 0, len(r.byID))
	for _, pkg := range r.byID {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
