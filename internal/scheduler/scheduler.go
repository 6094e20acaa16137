// Package scheduler implements the endpoint dispatch policy (C9,
// spec.md §4.7): walk the dependency DAG's frontier, pick the best
// eligible endpoint for each ready job, and run jobs in parallel up to the
// sum of endpoints' maxjobs, aggregating per-job outcomes without letting
// one job's failure cancel its siblings.
//
// Grounded on distr1-distri/internal/batch/batch.go's scheduler: a
// frontier-driven loop that dispatches every node with no outstanding
// dependencies, waits for that whole wave to finish, then recomputes the
// frontier. Fan-out uses a sync.WaitGroup and a channel semaphore, and
// each ready job is routed to one of several endpoints by the spec's
// capacity-weighted policy instead of a fixed local worker pool.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/depgraph"
	"github.com/butido/butido/internal/filestore"
	"github.com/butido/butido/internal/job"
	"github.com/butido/butido/internal/logstream"
	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/pkgid"
	"github.com/butido/butido/internal/trc"
)

// Dispatchable decides eligibility and exposes the scoring inputs the pick
// policy needs (spec.md §4.7). Implemented by *endpoint.Endpoint; an
// interface here keeps the scheduler independently testable without a
// container runtime.
type Dispatchable interface {
	Name() string
	Speed() uint
	CurrentJobs() uint
	MaxJobs() uint
	HasCapacity() bool
}

// Materializer renders a Job into a RunnableJob (internal/job.Materialize),
// abstracted so the scheduler can be tested without a real script builder.
type Materializer func(j job.Job) (job.RunnableJob, error)

// Runner executes a RunnableJob on a chosen endpoint and returns the
// ArtifactPaths it produced. Implemented by (*endpoint.Endpoint).RunJob.
type Runner func(ctx context.Context, ep Dispatchable, rj job.RunnableJob, sink logstream.Sink) ([]filestore.ArtifactPath, error)

// Outcome is one job's final result.
type Outcome struct {
	Package pkgid.ID
	Error   error
	Paths   []filestore.ArtifactPath
}

// Result aggregates every job's outcome (spec.md §4.7: "the overall run
// result aggregates per-job outcomes").
type Result struct {
	Outcomes map[pkgid.ID]Outcome
}

// Success reports whether every job in the result succeeded (spec.md §7:
// "the final submission result is success iff every job succeeded").
func (r Result) Success() bool {
	for _, o := range r.Outcomes {
		if o.Error != nil {
			return false
		}
	}
	return true
}

// pick selects the best eligible endpoint for a job whose allowed/denied
// image constraints are given, per spec.md §4.7's scoring policy: highest
// (speed - current_load), ties broken by speed, then by stable input
// order.
func pick(endpoints []Dispatchable, image string, allowedImages, deniedImages []string) Dispatchable {
	type scored struct {
		ep    Dispatchable
		score int64
	}
	var candidates []scored
	for _, ep := range endpoints {
		if !ep.HasCapacity() {
			continue
		}
		if imageDenied(image, deniedImages) {
			continue
		}
		if len(allowedImages) > 0 && !imageAllowed(image, allowedImages) {
			continue
		}
		load := int64(ep.CurrentJobs())
		score := int64(ep.Speed()) - load
		candidates = append(candidates, scored{ep: ep, score: score})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, k int) bool {
		if candidates[i].score != candidates[k].score {
			return candidates[i].score > candidates[k].score
		}
		return candidates[i].ep.Speed() > candidates[k].ep.Speed()
	})
	return candidates[0].ep
}

func imageDenied(image string, denied []string) bool {
	for _, d := range denied {
		if d == image {
			return true
		}
	}
	return false
}

func imageAllowed(image string, allowed []string) bool {
	for _, a := range allowed {
		if a == image {
			return true
		}
	}
	return false
}

// Scheduler drives one submission's job dispatch over a DAG.
type Scheduler struct {
	endpoints      []Dispatchable
	materialize    Materializer
	run            Runner
	sinkFor        func(pkgid.ID) logstream.Sink
	requestedImage string
}

// New constructs a Scheduler over the given endpoints. requestedImage is
// the image the submission asked for (spec.md §3 Job.image); every
// dispatched job targets it. When requestedImage is empty (no image was
// requested), each job falls back to the first of its package's own
// allowed_images, if any.
func New(endpoints []Dispatchable, materialize Materializer, run Runner, sinkFor func(pkgid.ID) logstream.Sink, requestedImage string) *Scheduler {
	return &Scheduler{endpoints: endpoints, materialize: materialize, run: run, sinkFor: sinkFor, requestedImage: requestedImage}
}

// Run walks dag's frontier to completion, dispatching each ready job to
// the best eligible endpoint and running up to the sum of endpoints'
// maxjobs jobs in parallel (spec.md §4.7). Cancellation of ctx stops new
// dispatch; already-dispatched jobs are awaited before Run returns a
// partial Result.
func (s *Scheduler) Run(ctx context.Context, dag *depgraph.Dag) (Result, error) {
	var maxParallel uint
	for _, ep := range s.endpoints {
		maxParallel += ep.MaxJobs()
	}
	if maxParallel == 0 {
		maxParallel = 1
	}

	var mu sync.Mutex
	done := make(map[pkgid.ID]bool)
	outcomes := make(map[pkgid.ID]Outcome)

	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	var cancelled bool

	epIndex := make(map[string]int, len(s.endpoints))
	for i, ep := range s.endpoints {
		epIndex[ep.Name()] = i
	}

	dispatchOne := func(pkg pkgidPackage) {
		defer wg.Done()
		defer func() { <-sem }()

		id := pkg.id

		j := job.New(pkg.pkg, pkg.image, pkg.shebang, pkg.phaseOrder)
		rj, err := s.materialize(j)
		if err != nil {
			mu.Lock()
			outcomes[id] = Outcome{Package: id, Error: xerrors.Errorf("materializing job for %s: %w", id, err)}
			done[id] = true
			mu.Unlock()
			return
		}

		ep := pick(s.endpoints, pkg.image, pkg.allowedImages, pkg.deniedImages)
		if ep == nil {
			mu.Lock()
			outcomes[id] = Outcome{Package: id, Error: xerrors.Errorf("no eligible endpoint with capacity for %s", id)}
			done[id] = true
			mu.Unlock()
			return
		}

		var sink logstream.Sink
		if s.sinkFor != nil {
			sink = s.sinkFor(id)
		} else {
			sink = logstream.NewDBSink()
		}

		ev := trc.JobEvent(ep.Name(), epIndex[ep.Name()], rj.UUID.String(), string(pkg.pkg.Name), string(pkg.pkg.Version))
		paths, err := s.run(ctx, ep, rj, sink)
		ev.Done()

		mu.Lock()
		if err != nil {
			outcomes[id] = Outcome{Package: id, Error: xerrors.Errorf("running job for %s on endpoint %s: %w", id, ep.Name(), err)}
		} else {
			outcomes[id] = Outcome{Package: id, Paths: paths}
		}
		done[id] = true
		mu.Unlock()
	}

	for {
		mu.Lock()
		frontier := dag.Frontier(done)
		mu.Unlock()

		var pending []pkgidPackage
		for _, pkg := range frontier {
			id := pkgid.ID{Name: pkg.Name, Version: pkg.Version}
			mu.Lock()
			alreadyDone := done[id]
			mu.Unlock()
			if alreadyDone {
				continue
			}
			image := s.requestedImage
			if image == "" {
				image = firstOr(pkg.AllowedImages, "")
			}
			pending = append(pending, pkgidPackage{
				id:            id,
				pkg:           pkg,
				image:         image,
				allowedImages: pkg.AllowedImages,
				deniedImages:  pkg.DeniedImages,
				shebang:       "#!/bin/bash",
				phaseOrder:    pkg.PhaseOrder,
			})
		}

		if len(pending) == 0 {
			mu.Lock()
			allDone := len(done) >= dag.Len()
			mu.Unlock()
			if allDone {
				break
			}
			// frontier momentarily empty while in-flight jobs finish;
			// wait for at least one to complete before recomputing.
			wg.Wait()
			continue
		}

		if ctx.Err() != nil {
			cancelled = true
			break
		}

		for _, pkg := range pending {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				cancelled = true
			}
			if cancelled {
				break
			}
			wg.Add(1)
			go dispatchOne(pkg)
		}
		wg.Wait()
		if cancelled {
			break
		}
	}

	wg.Wait()

	if cancelled && ctx.Err() != nil {
		return Result{Outcomes: outcomes}, xerrors.Errorf("scheduler cancelled: %w", ctx.Err())
	}
	return Result{Outcomes: outcomes}, nil
}

type pkgidPackage struct {
	id            pkgid.ID
	pkg           pkgfile.Package
	image         string
	allowedImages []string
	deniedImages  []string
	shebang       job.Shebang
	phaseOrder    []string
}

func firstOr(ss []string, fallback string) string {
	if len(ss) > 0 {
		return ss[0]
	}
	return fallback
}
