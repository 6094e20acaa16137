package dbstore

import (
	"time"

	"github.com/google/uuid"
)

// Image is a row in the images table, one per distinct container image name
// a job has been built against.
type Image struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// EnvVar is one (name, value) pair; rows are shared across jobs via
// job_envs, mirroring original_source/src/db/models/envvar.rs.
type EnvVar struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Value string `db:"value"`
}

// GitHash records the revision of the repository a submit ran against.
type GitHash struct {
	ID   int64  `db:"id"`
	Hash string `db:"hash"`
}

// Package is a row in the packages table, one per distinct (name, version)
// ever submitted.
type Package struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	Version string `db:"version"`
}

// Endpoint is a row in the endpoints table, one per configured container
// endpoint name (internal/endpoint.Endpoint.Name()).
type Endpoint struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Submit is one top-level `butido build` invocation.
type Submit struct {
	ID                 int64     `db:"id"`
	UUID               uuid.UUID `db:"uuid"`
	SubmittedAt        time.Time `db:"submitted_at"`
	RequestedImageID   int64     `db:"requested_image_id"`
	RequestedPackageID int64     `db:"requested_package_id"`
	GitHashID          int64     `db:"githash_id"`
	Tree               string    `db:"tree"`
}

// Job is one package build within a submit, dispatched to one endpoint.
type Job struct {
	ID            int64     `db:"id"`
	UUID          uuid.UUID `db:"uuid"`
	SubmitID      int64     `db:"submit_id"`
	PackageID     int64     `db:"package_id"`
	EndpointID    int64     `db:"endpoint_id"`
	ImageID       int64     `db:"image_id"`
	ContainerHash string    `db:"container_hash"`
	ScriptText    string    `db:"script_text"`
	LogText       string    `db:"log_text"`
	Success       *bool     `db:"success"`
}

// Artifact is a row recording a file a job produced, addressed by its
// store-relative path (internal/filestore.ArtifactPath.String()).
type Artifact struct {
	ID       int64  `db:"id"`
	Path     string `db:"path"`
	Released bool   `db:"released"`
	JobID    int64  `db:"job_id"`
}

// ReleaseStoreRow names a configured release store directory
// (original_source/src/db/models/release_store.rs, SPEC_FULL.md §3's
// supplemented feature).
type ReleaseStoreRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Path string `db:"path"`
}

// Release records that an artifact was promoted into a named release
// store at a point in time.
type Release struct {
	ID          int64     `db:"id"`
	ArtifactID  int64     `db:"artifact_id"`
	StoreID     int64     `db:"store_id"`
	ReleaseDate time.Time `db:"release_date"`
}
