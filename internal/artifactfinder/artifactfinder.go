// Package artifactfinder implements the artifact-reuse lookup (C6,
// spec.md §4.6): given a package and the environment a prospective build
// would run in, find an already-built artifact for a job that looked the
// same, so the orchestrator can skip rebuilding it.
//
// Grounded directly on original_source/src/db/find_artifacts.rs: the
// database expresses everything it can (identity, allowed/denied images,
// exact script text, image name) as SQL filters, and the environment
// equality check — which diesel could not express conveniently — is a
// post-filter in Go, exactly as upstream splits the work.
package artifactfinder

import (
	"context"
	"sort"
	"time"

	"github.com/butido/butido/internal/dbstore"
	"github.com/butido/butido/internal/filestore"
	"golang.org/x/xerrors"
)

// EnvVar is a single environment variable name/value pair.
type EnvVar struct {
	Name  string
	Value string
}

// Request describes a prospective job: the package it would build, the
// environment it would run under, and the filtering knobs
// FindArtifacts exposes upstream.
type Request struct {
	PackageName    string
	PackageVersion string
	AllowedImages  []string
	DeniedImages   []string

	// PackageEnvironment is the environment declared on the package itself
	// (pkgfile.Package.Environment).
	PackageEnvironment map[string]string
	// AdditionalEnv is environment injected by the submission, outside the
	// package definition (e.g. CLI --env flags).
	AdditionalEnv []EnvVar

	// ScriptFilter, when true, only matches jobs whose recorded script text
	// equals RenderedScript exactly.
	ScriptFilter   bool
	RenderedScript string

	// ImageName, when set, restricts the match to jobs built against this
	// exact image.
	ImageName *string
}

// Found is a matched artifact: its on-disk location, and the date it was
// released, if it ever was. Find orders its results by storage tier first
// (staging before release stores) and only then prefers entries with the
// more recent release date; this type itself carries no ordering.
type Found struct {
	Path        filestore.FullArtifactPath
	ReleaseDate *time.Time

	// tier orders Found results by storage tier: 0 is staging, 1..N are
	// the configured release stores in order (spec.md §4.5: "prefer
	// entries from staging, then release stores in configured order").
	tier int
}

// Finder runs FindArtifacts against the database and the merged stores.
type Finder struct {
	store   *dbstore.Store
	staging *filestore.StagingStore // may be nil
	release []*filestore.ReleaseStore
}

// New builds a Finder. staging may be nil (some introspection commands only
// care about released artifacts).
func New(store *dbstore.Store, staging *filestore.StagingStore, release []*filestore.ReleaseStore) *Finder {
	return &Finder{store: store, staging: staging, release: release}
}

// Find runs the reuse lookup for req, returning every matching artifact
// still present on disk, each paired with its release date if promoted.
func (f *Finder) Find(ctx context.Context, req Request) ([]Found, error) {
	var scriptText *string
	if req.ScriptFilter {
		scriptText = &req.RenderedScript
	}

	candidates, err := f.store.FindArtifactCandidates(ctx, req.PackageName, req.PackageVersion, req.AllowedImages, req.DeniedImages, scriptText, req.ImageName)
	if err != nil {
		return nil, xerrors.Errorf("finding artifact candidates for %s-%s: %w", req.PackageName, req.PackageVersion, err)
	}

	var out []Found
	for _, c := range candidates {
		jobEnv, err := f.store.EnvOf(ctx, c.Job.ID)
		if err != nil {
			return nil, xerrors.Errorf("loading env for job %d: %w", c.Job.ID, err)
		}
		pairs := make([]EnvVar, 0, len(jobEnv))
		for _, e := range jobEnv {
			pairs = append(pairs, EnvVar{Name: e.Name, Value: e.Value})
		}
		if !environmentsEqual(pairs, req.PackageEnvironment, req.AdditionalEnv) {
			continue
		}

		var releaseDate *time.Time
		if rel, err := f.store.GetReleaseForArtifact(ctx, c.Artifact.ID); err != nil {
			return nil, xerrors.Errorf("loading release for artifact %d: %w", c.Artifact.ID, err)
		} else if rel != nil {
			d := rel.ReleaseDate
			releaseDate = &d
		}

		ap, err := filestore.NewArtifactPath(c.Artifact.Path)
		if err != nil {
			return nil, xerrors.Errorf("parsing recorded artifact path %q: %w", c.Artifact.Path, err)
		}

		full, tier, ok := f.resolve(ap)
		if !ok {
			// Recorded in the database, but no longer on disk in any
			// configured store: treat as not found, per spec.md
			// ("if it indeed was released but removed from the
			// filesystem").
			continue
		}
		out = append(out, Found{Path: full, ReleaseDate: releaseDate, tier: tier})
	}

	// spec.md §4.5: prefer staging over release stores, release stores in
	// their configured order, and among ties prefer the more recently
	// released entry.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].tier != out[j].tier {
			return out[i].tier < out[j].tier
		}
		di, dj := out[i].ReleaseDate, out[j].ReleaseDate
		switch {
		case di == nil && dj == nil:
			return false
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(*dj)
		}
	})

	return out, nil
}

// resolve looks up ap in staging first, then in each release store in
// order (I3: staging shadows release), returning the storage tier it was
// found at (0 = staging, 1..N = release stores in configured order).
func (f *Finder) resolve(ap filestore.ArtifactPath) (filestore.FullArtifactPath, int, bool) {
	if f.staging != nil {
		if _, ok := f.staging.Get(ap); ok {
			full, err := f.staging.RootPath().Join(ap)
			if err == nil {
				return full, 0, true
			}
		}
	}
	for i, rs := range f.release {
		if _, ok := rs.Get(ap); ok {
			full, err := rs.RootPath().Join(ap)
			if err == nil {
				return full, i + 1, true
			}
		}
	}
	return filestore.FullArtifactPath{}, 0, false
}

// environmentsEqual decides whether a recorded job's environment matches
// the environment a prospective job would run under: every entry on both
// sides must be accounted for by the other, mirroring
// original_source/src/db/find_artifacts.rs's `environments_equal` exactly
// (each of the three "all found" checks is independently required).
func environmentsEqual(jobEnv []EnvVar, pkgEnv map[string]string, addEnv []EnvVar) bool {
	inPkgOrAdd := func(name, value string) bool {
		if v, ok := pkgEnv[name]; ok && v == value {
			return true
		}
		for _, a := range addEnv {
			if a.Name == name && a.Value == value {
				return true
			}
		}
		return false
	}
	jobHas := func(name, value string) bool {
		for _, j := range jobEnv {
			if j.Name == name && j.Value == value {
				return true
			}
		}
		return false
	}

	for _, j := range jobEnv {
		if !inPkgOrAdd(j.Name, j.Value) {
			return false
		}
	}
	for name, value := range pkgEnv {
		if !jobHas(name, value) {
			return false
		}
	}
	for _, a := range addEnv {
		if !jobHas(a.Name, a.Value) {
			return false
		}
	}
	return true
}
