package filestore

// MergedStores is the composite lookup facade over staging + release
// stores: staging always shadows release (I3, I5: a freshly-built
// artifact in staging must shadow its released counterpart so a
// submission can reuse its own just-built output).
type MergedStores struct {
	staging  *StagingStore // may be nil
	releases []*ReleaseStore
}

// NewMergedStores builds a merged view. staging may be nil (some
// introspection commands only care about released artifacts).
func NewMergedStores(staging *StagingStore, releases []*ReleaseStore) *MergedStores {
	return &MergedStores{staging: staging, releases: releases}
}

// GetArtifact consults staging first; if present, that result is
// returned, otherwise release stores are consulted in configured order.
func (m *MergedStores) GetArtifact(ap ArtifactPath) (Artifact, StoreRoot, bool) {
	if m.staging != nil {
		if a, ok := m.staging.Get(ap); ok {
			return a, m.staging.RootPath(), true
		}
	}
	for _, rs := range m.releases {
		if a, ok := rs.Get(ap); ok {
			return a, rs.RootPath(), true
		}
	}
	return Artifact{}, StoreRoot{}, false
}

// GetArtifactByNameAndVersion is GetArtifact's by-identity counterpart,
// used when a job's dependency resolution only knows a package's
// (name, version) and not yet its on-disk path.
func (m *MergedStores) GetArtifactByNameAndVersion(name, version string) (Artifact, StoreRoot, bool) {
	if m.staging != nil {
		if a, ok := m.staging.GetByNameAndVersion(name, version); ok {
			return a, m.staging.RootPath(), true
		}
	}
	for _, rs := range m.releases {
		for _, a := range artifactsOf(rs) {
			if string(a.Name) == name && string(a.Version) == version {
				return a, rs.RootPath(), true
			}
		}
	}
	return Artifact{}, StoreRoot{}, false
}

func artifactsOf(rs *ReleaseStore) []Artifact {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]Artifact, 0, len(rs.index))
	for _, a := range rs.index {
		out = append(out, a)
	}
	return out
}
