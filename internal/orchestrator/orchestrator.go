// Package orchestrator wires the dependency graph (C4), job
// materialization (C7), artifact-reuse lookup (C6), endpoint dispatch
// (C9) and submission recording (C11) into the single control/data flow
// spec.md §2 diagrams: repository -> DAG -> job set -> (reuse? or
// schedule+run) -> artifact -> DB record.
//
// Grounded on distr1-distri/internal/batch/batch.go for the overall
// "build everything the frontier allows, record what happened" shape,
// generalized here to also consult the artifact-reuse cache before
// dispatching a job and to persist every submission/job/artifact to
// Postgres via internal/dbstore.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/artifactfinder"
	"github.com/butido/butido/internal/condition"
	"github.com/butido/butido/internal/config"
	"github.com/butido/butido/internal/dbstore"
	"github.com/butido/butido/internal/depgraph"
	"github.com/butido/butido/internal/endpoint"
	"github.com/butido/butido/internal/filestore"
	"github.com/butido/butido/internal/job"
	"github.com/butido/butido/internal/logstream"
	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/pkgid"
	"github.com/butido/butido/internal/repository"
	"github.com/butido/butido/internal/scheduler"
)

// SubmissionRequest is everything one `butido build` invocation needs
// beyond the already-loaded repository and configuration.
type SubmissionRequest struct {
	PackageName Name
	Constraint  pkgid.Constraint
	Image       string
	Env         map[string]string // additional submission env, beyond each package's own `environment` table
}

// Name is a thin alias kept local so callers don't need to import pkgid
// just to build a SubmissionRequest.
type Name = pkgid.Name

// Orchestrator holds every collaborator one submission needs.
type Orchestrator struct {
	cfg           *config.Configuration
	repo          *repository.Repository
	db            *dbstore.Store
	staging       *filestore.StagingStore
	releaseStores []*filestore.ReleaseStore
	merged        *filestore.MergedStores
	finder        *artifactfinder.Finder
	endpoints     []*endpoint.Endpoint
}

// New builds an Orchestrator over already-constructed collaborators.
func New(cfg *config.Configuration, repo *repository.Repository, db *dbstore.Store, staging *filestore.StagingStore, releaseStores []*filestore.ReleaseStore, endpoints []*endpoint.Endpoint) *Orchestrator {
	merged := filestore.NewMergedStores(staging, releaseStores)
	return &Orchestrator{
		cfg:           cfg,
		repo:          repo,
		db:            db,
		staging:       staging,
		releaseStores: releaseStores,
		merged:        merged,
		finder:        artifactfinder.New(db, staging, releaseStores),
		endpoints:     endpoints,
	}
}

// Submit resolves req's root package, builds its dependency DAG, records
// the submission, and dispatches its job set to completion (spec.md §2,
// §4.9).
func (o *Orchestrator) Submit(ctx context.Context, req SubmissionRequest) (scheduler.Result, error) {
	root, err := o.resolveRoot(req.PackageName, req.Constraint)
	if err != nil {
		return scheduler.Result{}, xerrors.Errorf("resolving root package: %w", err)
	}

	data := condition.Data{ImageName: req.Image, Env: envPairs(req.Env)}
	dag, err := depgraph.Build(o.repo, root, data)
	if err != nil {
		return scheduler.Result{}, xerrors.Errorf("building dependency graph for %s: %w", root.ID(), err)
	}

	submit, err := o.recordSubmit(ctx, root, req.Image, dag)
	if err != nil {
		return scheduler.Result{}, xerrors.Errorf("recording submission: %w", err)
	}

	endpointRows := make(map[string]dbstore.Endpoint, len(o.endpoints))
	for _, ep := range o.endpoints {
		row, err := o.db.GetOrCreateEndpoint(ctx, ep.Name())
		if err != nil {
			return scheduler.Result{}, xerrors.Errorf("recording endpoint %s: %w", ep.Name(), err)
		}
		endpointRows[ep.Name()] = row
	}

	builder := job.NewBuilder(job.Shebang(o.cfg.Shebang))
	dispatchables := make([]scheduler.Dispatchable, len(o.endpoints))
	byName := make(map[string]*endpoint.Endpoint, len(o.endpoints))
	for i, ep := range o.endpoints {
		dispatchables[i] = ep
		byName[ep.Name()] = ep
	}

	materialize := o.materializer(builder, req)
	run := o.runner(submit, endpointRows, byName, req)

	sched := scheduler.New(dispatchables, materialize, run, func(id pkgid.ID) logstream.Sink {
		return logstream.NewDBSink()
	}, req.Image)

	return sched.Run(ctx, dag)
}

// resolveRoot finds the root package matching name+constraint, picking
// the lexicographically greatest version on ambiguity (the same
// tie-break depgraph.Build applies to dependency resolution, spec.md §9
// open question).
func (o *Orchestrator) resolveRoot(name pkgid.Name, c pkgid.Constraint) (pkgfile.Package, error) {
	candidates := o.repo.FindMatching(name, c)
	if len(candidates) == 0 {
		return pkgfile.Package{}, xerrors.Errorf("no package matches %s %s", name, c)
	}
	return candidates[len(candidates)-1], nil
}

// materializer renders and resolves each dispatched job's script and
// input artifacts (spec.md §4.3). The per-job environment is the
// package's own `environment` table plus the submission's additional env,
// filtered through `containers.allowed_env` (spec.md §6).
func (o *Orchestrator) materializer(builder *job.Builder, req SubmissionRequest) scheduler.Materializer {
	return func(j job.Job) (job.RunnableJob, error) {
		j.Shebang = job.Shebang(o.cfg.Shebang)
		if len(j.PhaseOrder) == 0 {
			j.PhaseOrder = o.cfg.AvailablePhases
		}
		envResources := o.envResourcesFor(j.Package, req.Env)
		return job.Materialize(j, builder, o.cfg.StrictInterpolation, o.merged, envResources)
	}
}

func (o *Orchestrator) envResourcesFor(pkg pkgfile.Package, additional map[string]string) []job.Resource {
	allowed := make(map[string]bool, len(o.cfg.Containers.AllowedEnv))
	for _, name := range o.cfg.Containers.AllowedEnv {
		allowed[name] = true
	}

	merged := make(map[string]string, len(pkg.Environment)+len(additional))
	for k, v := range pkg.Environment {
		merged[k] = v
	}
	for k, v := range additional {
		merged[k] = v
	}

	var names []string
	for k := range merged {
		if len(allowed) == 0 || allowed[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	resources := make([]job.Resource, 0, len(names))
	for _, name := range names {
		resources = append(resources, job.EnvResource(name, merged[name]))
	}
	return resources
}

// runner returns the scheduler.Runner closure that, for each dispatched
// job, first checks the artifact-reuse cache (C6), and only runs a real
// container (C8) on a miss. A container run's outcome, success or failure,
// is recorded to the database (C11); a reuse hit is not recorded.
func (o *Orchestrator) runner(submit dbstore.Submit, endpointRows map[string]dbstore.Endpoint, byName map[string]*endpoint.Endpoint, req SubmissionRequest) scheduler.Runner {
	return func(ctx context.Context, ep scheduler.Dispatchable, rj job.RunnableJob, sink logstream.Sink) ([]filestore.ArtifactPath, error) {
		real, ok := byName[ep.Name()]
		if !ok {
			return nil, xerrors.Errorf("no concrete endpoint registered for %q", ep.Name())
		}

		if reused, found, err := o.tryReuse(ctx, rj, req); err != nil {
			return nil, err
		} else if found {
			return reused, nil
		}

		items := &collectingSink{}
		fileSink, logPath, err := o.newFileSink(rj)
		if err != nil {
			return nil, err
		}
		dbSink := logstream.NewDBSink()
		multi := logstream.NewMultiSink(fileSink, dbSink, items)

		paths, containerID, runErr := real.RunJob(ctx, rj, multi, o.staging)
		_ = fileSink.Flush()

		success := runErr == nil
		if ok := logstream.IsSuccessful(items.items); ok != nil {
			success = success && *ok
		}

		if recErr := o.recordJob(ctx, submit, endpointRows[ep.Name()], rj, containerID, dbSink.Text(), success, paths); recErr != nil {
			if runErr == nil {
				return nil, xerrors.Errorf("recording job %s: %w", rj.UUID, recErr)
			}
		}

		if runErr != nil {
			return nil, xerrors.Errorf("running job %s on %s (log: %s): %w", rj.UUID, ep.Name(), logPath, runErr)
		}
		return paths, nil
	}
}

// tryReuse consults the artifact-reuse cache for rj, returning the
// already-built artifact paths on a hit (spec.md §4.5, scenario 5).
func (o *Orchestrator) tryReuse(ctx context.Context, rj job.RunnableJob, req SubmissionRequest) ([]filestore.ArtifactPath, bool, error) {
	envVars := make([]artifactfinder.EnvVar, 0, len(rj.Resources))
	for _, r := range rj.Resources {
		if r.Kind == job.ResourceEnv {
			envVars = append(envVars, artifactfinder.EnvVar{Name: r.Name, Value: r.Value})
		}
	}

	freq := artifactfinder.Request{
		PackageName:        string(rj.Package.Name),
		PackageVersion:     string(rj.Package.Version),
		AllowedImages:      rj.Package.AllowedImages,
		DeniedImages:       rj.Package.DeniedImages,
		PackageEnvironment: rj.Package.Environment,
		AdditionalEnv:      envVars,
		ScriptFilter:       true,
		RenderedScript:     rj.Script.String(),
		ImageName:          &rj.Image,
	}

	found, err := o.finder.Find(ctx, freq)
	if err != nil {
		return nil, false, xerrors.Errorf("checking artifact reuse for %s: %w", rj.Package.ID(), err)
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	return []filestore.ArtifactPath{found[0].Path.ArtifactPath()}, true, nil
}

func (o *Orchestrator) newFileSink(rj job.RunnableJob) (*logstream.FileSink, string, error) {
	if err := os.MkdirAll(o.cfg.LogDir, 0o755); err != nil {
		return nil, "", xerrors.Errorf("creating log directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s", time.Now().UTC().Format("2006-01-02T15:04:05"), rj.Package.Name)
	path := filepath.Join(o.cfg.LogDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", xerrors.Errorf("creating log file %s: %w", path, err)
	}
	return logstream.NewFileSink(f), path, nil
}

// recordJob inserts the job row, its env associations, and its produced
// artifacts (spec.md §4.9). containerHash is the id of the container rj
// actually ran in, preserved for debugging (spec.md §7); it may be empty
// if the job never reached container creation.
func (o *Orchestrator) recordJob(ctx context.Context, submit dbstore.Submit, epRow dbstore.Endpoint, rj job.RunnableJob, containerHash, logText string, success bool, paths []filestore.ArtifactPath) error {
	pkgRow, err := o.db.GetOrCreatePackage(ctx, string(rj.Package.Name), string(rj.Package.Version))
	if err != nil {
		return xerrors.Errorf("recording package %s: %w", rj.Package.ID(), err)
	}

	imageRow, err := o.db.GetOrCreateImage(ctx, rj.Image)
	if err != nil {
		return xerrors.Errorf("recording image %s: %w", rj.Image, err)
	}

	jobRow, err := o.db.InsertJob(ctx, rj.UUID, submit.ID, pkgRow.ID, epRow.ID, imageRow.ID, containerHash, rj.Script.String())
	if err != nil {
		return xerrors.Errorf("inserting job row: %w", err)
	}

	for _, r := range rj.Resources {
		if r.Kind != job.ResourceEnv {
			continue
		}
		envRow, err := o.db.GetOrCreateEnvVar(ctx, r.Name, r.Value)
		if err != nil {
			return xerrors.Errorf("recording envvar %s: %w", r.Name, err)
		}
		if err := o.db.SetJobEnv(ctx, jobRow.ID, envRow.ID); err != nil {
			return xerrors.Errorf("associating envvar %s with job: %w", r.Name, err)
		}
	}

	for _, p := range paths {
		if _, err := o.db.InsertArtifact(ctx, p.String(), jobRow.ID); err != nil {
			return xerrors.Errorf("recording artifact %s: %w", p, err)
		}
	}

	if err := o.db.FinishJob(ctx, jobRow.ID, logText, success); err != nil {
		return xerrors.Errorf("finishing job row: %w", err)
	}
	return nil
}

// recordSubmit create-or-fetches the package/githash/image rows and
// inserts the Submit row (spec.md §4.9: "create-or-fetch rows in this
// order: Package, GitHash, Image, then insert a Submit").
func (o *Orchestrator) recordSubmit(ctx context.Context, root pkgfile.Package, image string, dag *depgraph.Dag) (dbstore.Submit, error) {
	pkgRow, err := o.db.GetOrCreatePackage(ctx, string(root.Name), string(root.Version))
	if err != nil {
		return dbstore.Submit{}, xerrors.Errorf("recording root package: %w", err)
	}

	hash, err := repoGitHash(o.cfg.Repository)
	if err != nil {
		return dbstore.Submit{}, xerrors.Errorf("determining repository revision: %w", err)
	}
	hashRow, err := o.db.GetOrCreateGitHash(ctx, hash)
	if err != nil {
		return dbstore.Submit{}, xerrors.Errorf("recording repository revision: %w", err)
	}

	imageRow, err := o.db.GetOrCreateImage(ctx, image)
	if err != nil {
		return dbstore.Submit{}, xerrors.Errorf("recording image %s: %w", image, err)
	}

	tree, err := serializeDag(dag)
	if err != nil {
		return dbstore.Submit{}, xerrors.Errorf("serializing dependency tree: %w", err)
	}

	return o.db.InsertSubmit(ctx, uuid.New(), time.Now().UTC(), imageRow.ID, pkgRow.ID, hashRow.ID, tree)
}

type serializedPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type serializedEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

type serializedDag struct {
	Root     string              `json:"root"`
	Packages []serializedPackage `json:"packages"`
	Edges    []serializedEdge    `json:"edges"`
}

// serializeDag renders dag into the JSON tree stored on submits.tree
// (spec.md §3 Submit.serialized_tree).
func serializeDag(dag *depgraph.Dag) (string, error) {
	pkgs := dag.Packages()
	s := serializedDag{Root: dag.Root().ID().String()}
	for _, p := range pkgs {
		s.Packages = append(s.Packages, serializedPackage{Name: string(p.Name), Version: string(p.Version)})
		for _, edge := range dag.DependenciesOf(p.ID()) {
			s.Edges = append(s.Edges, serializedEdge{From: p.ID().String(), To: edge.To.String(), Kind: edge.Kind.String()})
		}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// repoGitHash shells out to `git rev-parse HEAD` in root, matching the
// teacher's own use of os/exec for external tool invocation
// (distr1-distri/bootstrap.go). If root is not a git checkout, a
// deterministic placeholder hash is used instead of failing the
// submission outright (repository trees under test, or vendored via
// tarball, legitimately have no .git directory).
func repoGitHash(root string) (string, error) {
	cmd := exec.Command("git", "-C", root, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "unknown", nil
	}
	return strings.TrimSpace(string(out)), nil
}

func envPairs(env map[string]string) []condition.Env {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]condition.Env, 0, len(names))
	for _, name := range names {
		out = append(out, condition.Env{Name: name, Value: env[name]})
	}
	return out
}

// collectingSink retains every pushed item so IsSuccessful can inspect
// the job's terminal State sentinel after the container exits.
type collectingSink struct {
	items []logstream.Item
}

func (c *collectingSink) Push(it logstream.Item) error {
	c.items = append(c.items, it)
	return nil
}
