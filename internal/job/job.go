package job

import (
	"sort"

	"github.com/google/uuid"

	"github.com/butido/butido/internal/filestore"
	"github.com/butido/butido/internal/pkgfile"
)

// ResourceKind distinguishes the two JobResource variants (spec.md §3).
type ResourceKind int

const (
	// ResourceEnv is a JobResource::Env(name, value).
	ResourceEnv ResourceKind = iota
	// ResourceArtifact is a JobResource::Artifact(ArtifactRef).
	ResourceArtifact
)

// Resource is one input a job's container needs: either a passthrough
// environment variable, or a dependency's built artifact.
type Resource struct {
	Kind  ResourceKind
	Name  string // env var name, when Kind == ResourceEnv
	Value string // env var value, when Kind == ResourceEnv

	ArtifactPath filestore.ArtifactPath // when Kind == ResourceArtifact
}

// EnvResource constructs a JobResource::Env.
func EnvResource(name, value string) Resource {
	return Resource{Kind: ResourceEnv, Name: name, Value: value}
}

// ArtifactResource constructs a JobResource::Artifact.
func ArtifactResource(ap filestore.ArtifactPath) Resource {
	return Resource{Kind: ResourceArtifact, ArtifactPath: ap}
}

// Job is a package's build request before its script has been rendered or
// its input artifacts resolved (spec.md §3).
type Job struct {
	UUID       uuid.UUID
	Package    pkgfile.Package
	Image      string
	Shebang    Shebang
	PhaseOrder []string
	Resources  []Resource
}

// New materializes a Job for pkg: a fresh uuid, the target image, the
// configured shebang and phase order, and an empty resource list (spec.md
// §4.3).
func New(pkg pkgfile.Package, image string, shebang Shebang, phaseOrder []string) Job {
	return Job{
		UUID:       uuid.New(),
		Package:    pkg,
		Image:      image,
		Shebang:    shebang,
		PhaseOrder: phaseOrder,
	}
}

// RunnableJob is a Job after its script has been rendered and its input
// artifacts resolved (spec.md §3).
type RunnableJob struct {
	Job
	Script Script
}

// ArtifactResolver looks up the artifact a predecessor job produced for a
// given (name, version), across the merged stores.
type ArtifactResolver interface {
	GetArtifactByNameAndVersion(name, version string) (filestore.Artifact, filestore.StoreRoot, bool)
}

// Materialize renders j's script and resolves its runtime-dependency
// artifacts into RunnableJob resources (spec.md §4.3). strictMode controls
// undefined-template-variable handling in script rendering. envResources
// are the submission's passthrough environment (JobResource::Env entries),
// appended after the resolved artifacts.
func Materialize(j Job, builder *Builder, strictMode bool, resolver ArtifactResolver, envResources []Resource) (RunnableJob, error) {
	script, err := builder.Build(j.Package, j.PhaseOrder, strictMode)
	if err != nil {
		return RunnableJob{}, err
	}

	var resources []Resource
	for _, dep := range j.Package.DependenciesOfKind(pkgfile.KindRuntime) {
		name, constraint, err := dep.NameAndConstraint()
		if err != nil {
			return RunnableJob{}, err
		}
		_ = constraint // dependency resolution already happened in depgraph.Build

		art, _, found := resolver.GetArtifactByNameAndVersion(string(name), string(constraint.Version()))
		if !found {
			continue
		}
		resources = append(resources, ArtifactResource(art.Path))
	}

	sort.Slice(resources, func(i, k int) bool {
		if resources[i].Kind != ResourceArtifact || resources[k].Kind != ResourceArtifact {
			return false
		}
		return resources[i].ArtifactPath.String() < resources[k].ArtifactPath.String()
	})

	resources = append(resources, envResources...)
	j.Resources = resources

	return RunnableJob{Job: j, Script: script}, nil
}
