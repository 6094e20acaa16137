// Package endpoint implements the container-host abstraction (C8,
// spec.md §4.6): one container runtime reachable over a Unix socket or an
// HTTP endpoint URI, with setup verification, job execution, and the
// concurrency accounting the scheduler (internal/scheduler) depends on.
package endpoint

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/filestore"
	"github.com/butido/butido/internal/job"
	"github.com/butido/butido/internal/logstream"
)

// Type distinguishes how the endpoint's URI is interpreted (spec.md §6).
type Type string

const (
	TypeSocket Type = "socket"
	TypeHTTP   Type = "http"
)

// Config is one configured endpoint's static settings (spec.md §6
// `docker.endpoints`).
type Config struct {
	Name                string
	URI                 string
	EndpointType        Type
	Speed               uint
	MaxJobs             uint
	DockerVersions      []string // whitelist, optional
	DockerAPIVersions   []string // whitelist, optional
	VerifyImagesPresent bool
	RequiredImages      []string

	// KeepFailedContainers keeps a failed job's container instead of
	// removing it, so it can be inspected with `docker logs`/`docker exec`
	// (spec.md §9). The zero value removes failed containers;
	// internal/config sets it from docker.keep_failed_containers, which
	// defaults to true (keep-on-failure).
	KeepFailedContainers bool
}

// In-container fixed paths (spec.md §6).
const (
	containerScriptPath  = "/script"
	containerOutputsPath = "/outputs"
	containerInputsPath  = "/inputs"
	containerPatchesPath = "/patches"
)

// Endpoint is one running handle to a container runtime plus its
// concurrency accounting (I7: num_current_jobs ≤ num_max_jobs).
type Endpoint struct {
	cfg           Config
	cli           *client.Client
	keepOnFailure bool

	mu             sync.Mutex
	numCurrentJobs uint
}

// New opens a handle to the container runtime at cfg.URI. The returned
// Endpoint is not yet verified usable; call Setup before dispatching jobs.
func New(cfg Config) (*Endpoint, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.URI != "" {
		opts = append(opts, client.WithHost(cfg.URI))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, xerrors.Errorf("opening container runtime handle for endpoint %s: %w", cfg.Name, err)
	}
	return &Endpoint{cfg: cfg, cli: cli, keepOnFailure: cfg.KeepFailedContainers}, nil
}

// Name returns the endpoint's configured name.
func (e *Endpoint) Name() string { return e.cfg.Name }

// Speed returns the endpoint's relative capacity weight.
func (e *Endpoint) Speed() uint { return e.cfg.Speed }

// MaxJobs returns the endpoint's hard concurrency cap.
func (e *Endpoint) MaxJobs() uint { return e.cfg.MaxJobs }

// CurrentJobs returns the number of jobs currently dispatched to this
// endpoint.
func (e *Endpoint) CurrentJobs() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numCurrentJobs
}

// HasCapacity reports whether the endpoint can accept one more job without
// violating I7.
func (e *Endpoint) HasCapacity() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numCurrentJobs < e.cfg.MaxJobs
}

// Setup concurrently verifies the runtime version, the runtime API
// version, and image presence, per spec.md §4.6's setup contract. Any
// check failure aborts setup with a named cause.
func (e *Endpoint) Setup(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.verifyVersion(ctx) })
	if e.cfg.VerifyImagesPresent {
		g.Go(func() error { return e.verifyImagesPresent(ctx) })
	}

	if err := g.Wait(); err != nil {
		return xerrors.Errorf("endpoint %s failed setup: %w", e.cfg.Name, err)
	}
	return nil
}

func (e *Endpoint) verifyVersion(ctx context.Context) error {
	v, err := e.cli.ServerVersion(ctx)
	if err != nil {
		return xerrors.Errorf("querying runtime version: %w", err)
	}
	if len(e.cfg.DockerVersions) > 0 && !contains(e.cfg.DockerVersions, v.Version) {
		return xerrors.Errorf("runtime version %s not in configured whitelist %v", v.Version, e.cfg.DockerVersions)
	}
	if len(e.cfg.DockerAPIVersions) > 0 && !contains(e.cfg.DockerAPIVersions, v.APIVersion) {
		return xerrors.Errorf("runtime API version %s not in configured whitelist %v", v.APIVersion, e.cfg.DockerAPIVersions)
	}
	return nil
}

func (e *Endpoint) verifyImagesPresent(ctx context.Context) error {
	images, err := e.cli.ImageList(ctx, types.ImageListOptions{})
	if err != nil {
		return xerrors.Errorf("listing images: %w", err)
	}
	present := make(map[string]bool)
	for _, img := range images {
		for _, tag := range img.RepoTags {
			present[tag] = true
		}
	}
	for _, required := range e.cfg.RequiredImages {
		if !present[required] {
			return xerrors.Errorf("required image %q not present on endpoint %s", required, e.cfg.Name)
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// ContainerError records a non-zero exit or execution failure, preserving
// the container id/hash so a human can inspect it with `docker exec`
// (spec.md §7).
type ContainerError struct {
	ContainerID string
	ExitCode    int64
	Message     string
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("container %s exited with status %d: %s (hint: `docker logs %s` / `docker exec -it %s sh`)", e.ContainerID, e.ExitCode, e.Message, e.ContainerID, e.ContainerID)
}

// RunJob executes rj inside a fresh container on this endpoint, streaming
// parsed log items into sink, and returns the ArtifactPaths staged from
// the container's output directory along with the container's id/hash
// (spec.md §4.6 run_job, steps 1-8; §6/§7 "container hash preserved for
// debugging" — returned on every path once the container exists, including
// error returns, so callers can always persist it alongside the job row).
// Whether the container is removed afterwards is e.keepOnFailure's policy
// (spec.md §9: "default is keep-on-failure").
func (e *Endpoint) RunJob(ctx context.Context, rj job.RunnableJob, sink logstream.Sink, staging *filestore.StagingStore) ([]filestore.ArtifactPath, string, error) {
	e.mu.Lock()
	e.numCurrentJobs++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.numCurrentJobs--
		e.mu.Unlock()
	}()

	env := envStrings(rj.Resources)

	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image: rj.Image,
		Env:   env,
		Cmd:   []string{"/bin/sh", containerScriptPath},
	}, nil, nil, nil, "")
	if err != nil {
		return nil, "", xerrors.Errorf("creating container for job %s: %w", rj.UUID, err)
	}
	containerID := resp.ID
	success := false
	defer func() {
		if success || !e.keepOnFailure {
			e.cli.ContainerRemove(context.Background(), containerID, types.ContainerRemoveOptions{Force: true})
		}
	}()

	if err := e.copyScriptIn(ctx, containerID, string(rj.Script)); err != nil {
		return nil, containerID, xerrors.Errorf("copying script into container %s: %w", containerID, err)
	}

	if err := e.cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return nil, containerID, xerrors.Errorf("starting container %s: %w", containerID, err)
	}

	logsReader, err := e.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true, ShowStderr: true, Follow: true,
	})
	if err != nil {
		return nil, containerID, xerrors.Errorf("attaching to container %s logs: %w", containerID, err)
	}
	defer logsReader.Close()

	if err := logstream.ParseLines(logsReader, sink); err != nil {
		return nil, containerID, xerrors.Errorf("streaming logs for container %s: %w", containerID, err)
	}

	statusCh, errCh := e.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return nil, containerID, xerrors.Errorf("waiting for container %s: %w", containerID, err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}
	if exitCode != 0 {
		return nil, containerID, &ContainerError{ContainerID: containerID, ExitCode: exitCode, Message: "script exited non-zero"}
	}

	tarStream, _, err := e.cli.CopyFromContainer(ctx, containerID, containerOutputsPath)
	if err != nil {
		return nil, containerID, xerrors.Errorf("copying outputs from container %s: %w", containerID, err)
	}
	defer tarStream.Close()

	written, err := staging.WriteFilesFromTarStream(tarStream)
	if err != nil {
		return nil, containerID, xerrors.Errorf("ingesting outputs from container %s: %w", containerID, err)
	}

	paths := make([]filestore.ArtifactPath, len(written))
	for i, a := range written {
		paths[i] = a.Path
	}
	success = true
	return paths, containerID, nil
}

func (e *Endpoint) copyScriptIn(ctx context.Context, containerID, script string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	body := []byte(script)
	if err := tw.WriteHeader(&tar.Header{Name: "script", Mode: 0o755, Size: int64(len(body))}); err != nil {
		return err
	}
	if _, err := tw.Write(body); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return e.cli.CopyToContainer(ctx, containerID, "/", &buf, types.CopyToContainerOptions{})
}

func envStrings(resources []job.Resource) []string {
	var out []string
	for _, r := range resources {
		if r.Kind == job.ResourceEnv {
			out = append(out, fmt.Sprintf("%s=%s", r.Name, r.Value))
		}
	}
	return out
}

// Ping repeats a lightweight liveness probe n times back to back
// (spec.md §4.6 auxiliary operation), returning the first error or nil
// once every attempt succeeds. It does not wait between attempts.
func (e *Endpoint) Ping(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if _, err := e.cli.Ping(ctx); err != nil {
			return xerrors.Errorf("pinging endpoint %s (attempt %d/%d): %w", e.cfg.Name, i+1, n, err)
		}
	}
	return nil
}

// Stats returns the runtime's info payload, used by operator CLIs.
func (e *Endpoint) Stats(ctx context.Context) (types.Info, error) {
	info, err := e.cli.Info(ctx)
	if err != nil {
		return types.Info{}, xerrors.Errorf("fetching stats for endpoint %s: %w", e.cfg.Name, err)
	}
	return info, nil
}

// ListContainers lists containers on this endpoint.
func (e *Endpoint) ListContainers(ctx context.Context) ([]types.Container, error) {
	cs, err := e.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, xerrors.Errorf("listing containers on endpoint %s: %w", e.cfg.Name, err)
	}
	return cs, nil
}

// StopContainer stops a container by id with a nil timeout (runtime
// default).
func (e *Endpoint) StopContainer(ctx context.Context, id string) error {
	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return xerrors.Errorf("stopping container %s: %w", id, err)
	}
	return nil
}

// StartContainer starts a previously-created container.
func (e *Endpoint) StartContainer(ctx context.Context, id string) error {
	if err := e.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return xerrors.Errorf("starting container %s: %w", id, err)
	}
	return nil
}

// DeleteContainer force-removes a container by id.
func (e *Endpoint) DeleteContainer(ctx context.Context, id string) error {
	if err := e.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil {
		return xerrors.Errorf("deleting container %s: %w", id, err)
	}
	return nil
}

// PruneContainers removes stopped containers.
func (e *Endpoint) PruneContainers(ctx context.Context) error {
	if _, err := e.cli.ContainersPrune(ctx, filters.NewArgs()); err != nil {
		return xerrors.Errorf("pruning containers on endpoint %s: %w", e.cfg.Name, err)
	}
	return nil
}

// TopContainer lists running processes inside a container.
func (e *Endpoint) TopContainer(ctx context.Context, id string) (container.ContainerTopOKBody, error) {
	top, err := e.cli.ContainerTop(ctx, id, nil)
	if err != nil {
		return container.ContainerTopOKBody{}, xerrors.Errorf("listing processes in container %s: %w", id, err)
	}
	return top, nil
}

// ExecInContainer runs an arbitrary command in a running container and
// returns its combined output, used by operator CLIs.
func (e *Endpoint) ExecInContainer(ctx context.Context, id string, cmd []string) (string, error) {
	execResp, err := e.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd: cmd, AttachStdout: true, AttachStderr: true,
	})
	if err != nil {
		return "", xerrors.Errorf("creating exec for container %s: %w", id, err)
	}
	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return "", xerrors.Errorf("attaching exec for container %s: %w", id, err)
	}
	defer attach.Close()

	out, err := io.ReadAll(attach.Reader)
	if err != nil {
		return "", xerrors.Errorf("reading exec output for container %s: %w", id, err)
	}
	return string(out), nil
}

// ImagesPresent lists locally present image tags.
func (e *Endpoint) ImagesPresent(ctx context.Context) ([]string, error) {
	images, err := e.cli.ImageList(ctx, types.ImageListOptions{})
	if err != nil {
		return nil, xerrors.Errorf("listing images on endpoint %s: %w", e.cfg.Name, err)
	}
	var tags []string
	for _, img := range images {
		tags = append(tags, img.RepoTags...)
	}
	return tags, nil
}
