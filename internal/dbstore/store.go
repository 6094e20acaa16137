package dbstore

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

// Store wraps the Postgres connection pool, mirroring the teacher's
// single-purpose-wrapper style (distr1-distri/internal/build wraps exec.Cmd
// the same way it wraps an external resource behind a small Go type).
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn (a standard libpq connection string) using the
// lib/pq driver via sqlx.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, xerrors.Errorf("connecting to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies Schema idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return xerrors.Errorf("applying schema: %w", err)
	}
	return nil
}

// GetOrCreateImage inserts name if absent and returns its row.
func (s *Store) GetOrCreateImage(ctx context.Context, name string) (Image, error) {
	var img Image
	err := s.db.GetContext(ctx, &img, `
		INSERT INTO images (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`, name)
	if err != nil {
		return Image{}, xerrors.Errorf("upserting image %q: %w", name, err)
	}
	return img, nil
}

// GetOrCreateGitHash inserts hash if absent and returns its row.
func (s *Store) GetOrCreateGitHash(ctx context.Context, hash string) (GitHash, error) {
	var gh GitHash
	err := s.db.GetContext(ctx, &gh, `
		INSERT INTO githashes (hash) VALUES ($1)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING id, hash`, hash)
	if err != nil {
		return GitHash{}, xerrors.Errorf("upserting githash %q: %w", hash, err)
	}
	return gh, nil
}

// GetOrCreatePackage inserts (name, version) if absent and returns its row.
func (s *Store) GetOrCreatePackage(ctx context.Context, name, version string) (Package, error) {
	var pkg Package
	err := s.db.GetContext(ctx, &pkg, `
		INSERT INTO packages (name, version) VALUES ($1, $2)
		ON CONFLICT (name, version) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, version`, name, version)
	if err != nil {
		return Package{}, xerrors.Errorf("upserting package %s-%s: %w", name, version, err)
	}
	return pkg, nil
}

// GetOrCreateEndpoint inserts name if absent and returns its row.
func (s *Store) GetOrCreateEndpoint(ctx context.Context, name string) (Endpoint, error) {
	var ep Endpoint
	err := s.db.GetContext(ctx, &ep, `
		INSERT INTO endpoints (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`, name)
	if err != nil {
		return Endpoint{}, xerrors.Errorf("upserting endpoint %q: %w", name, err)
	}
	return ep, nil
}

// GetOrCreateEnvVar inserts (name, value) if absent and returns its row.
func (s *Store) GetOrCreateEnvVar(ctx context.Context, name, value string) (EnvVar, error) {
	var ev EnvVar
	err := s.db.GetContext(ctx, &ev, `
		INSERT INTO envvars (name, value) VALUES ($1, $2)
		ON CONFLICT (name, value) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, value`, name, value)
	if err != nil {
		return EnvVar{}, xerrors.Errorf("upserting envvar %s=%s: %w", name, value, err)
	}
	return ev, nil
}

// GetOrCreateReleaseStore inserts (name, path) if absent and returns its row.
func (s *Store) GetOrCreateReleaseStore(ctx context.Context, name, path string) (ReleaseStoreRow, error) {
	var rs ReleaseStoreRow
	err := s.db.GetContext(ctx, &rs, `
		INSERT INTO release_stores (name, path) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET path = EXCLUDED.path
		RETURNING id, name, path`, name, path)
	if err != nil {
		return ReleaseStoreRow{}, xerrors.Errorf("upserting release store %q: %w", name, err)
	}
	return rs, nil
}

// InsertSubmit creates a new submit row, recording the serialized
// dependency tree alongside the requested package/image and the repo
// githash (spec.md §4.9, §6 `submits(..., requested_package_id, ...,
// tree jsonb)`).
func (s *Store) InsertSubmit(ctx context.Context, id uuid.UUID, submittedAt time.Time, imageID, packageID, githashID int64, treeJSON string) (Submit, error) {
	var sub Submit
	err := s.db.GetContext(ctx, &sub, `
		INSERT INTO submits (uuid, submitted_at, requested_image_id, requested_package_id, githash_id, tree)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, uuid, submitted_at, requested_image_id, requested_package_id, githash_id, tree`,
		id, submittedAt, imageID, packageID, githashID, treeJSON)
	if err != nil {
		return Submit{}, xerrors.Errorf("inserting submit %s: %w", id, err)
	}
	return sub, nil
}

// InsertJob creates a new job row, recording the image it ran against and
// the container hash it ran in (spec.md §6 jobs.image_id/container_hash,
// "container hash preserved for debugging", spec.md §7).
func (s *Store) InsertJob(ctx context.Context, id uuid.UUID, submitID, packageID, endpointID, imageID int64, containerHash, scriptText string) (Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job, `
		INSERT INTO jobs (uuid, submit_id, package_id, endpoint_id, image_id, container_hash, script_text, log_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '')
		RETURNING id, uuid, submit_id, package_id, endpoint_id, image_id, container_hash, script_text, log_text, success`,
		id, submitID, packageID, endpointID, imageID, containerHash, scriptText)
	if err != nil {
		return Job{}, xerrors.Errorf("inserting job %s: %w", id, err)
	}
	return job, nil
}

// SetJobEnv associates a job with an envvar row (job_envs junction).
func (s *Store) SetJobEnv(ctx context.Context, jobID, envVarID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_envs (job_id, envvar_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, jobID, envVarID)
	if err != nil {
		return xerrors.Errorf("associating job %d with envvar %d: %w", jobID, envVarID, err)
	}
	return nil
}

// FinishJob records the job's collected log text and outcome.
func (s *Store) FinishJob(ctx context.Context, jobID int64, logText string, success bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET log_text = $2, success = $3 WHERE id = $1`, jobID, logText, success)
	if err != nil {
		return xerrors.Errorf("finishing job %d: %w", jobID, err)
	}
	return nil
}

// EnvOf returns every environment variable recorded against a job.
func (s *Store) EnvOf(ctx context.Context, jobID int64) ([]EnvVar, error) {
	var envs []EnvVar
	err := s.db.SelectContext(ctx, &envs, `
		SELECT e.id, e.name, e.value FROM envvars e
		INNER JOIN job_envs je ON je.envvar_id = e.id
		WHERE je.job_id = $1`, jobID)
	if err != nil {
		return nil, xerrors.Errorf("loading env for job %d: %w", jobID, err)
	}
	return envs, nil
}

// InsertArtifact records an output file path against the job that produced
// it.
func (s *Store) InsertArtifact(ctx context.Context, path string, jobID int64) (Artifact, error) {
	var art Artifact
	err := s.db.GetContext(ctx, &art, `
		INSERT INTO artifacts (path, job_id) VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET job_id = EXCLUDED.job_id
		RETURNING id, path, released, job_id`, path, jobID)
	if err != nil {
		return Artifact{}, xerrors.Errorf("inserting artifact %q: %w", path, err)
	}
	return art, nil
}

// GetArtifactByPath looks up an artifact row by its store-relative path.
func (s *Store) GetArtifactByPath(ctx context.Context, path string) (Artifact, error) {
	var art Artifact
	err := s.db.GetContext(ctx, &art, `
		SELECT id, path, released, job_id FROM artifacts WHERE path = $1`, path)
	if err != nil {
		return Artifact{}, xerrors.Errorf("loading artifact %q: %w", path, err)
	}
	return art, nil
}

// MarkArtifactReleased flips an artifact's released flag once its file
// has been moved into a release store (spec.md §3, §4.9 promotion).
func (s *Store) MarkArtifactReleased(ctx context.Context, artifactID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE artifacts SET released = true WHERE id = $1`, artifactID)
	if err != nil {
		return xerrors.Errorf("marking artifact %d released: %w", artifactID, err)
	}
	return nil
}

// InsertRelease promotes an artifact into a named release store.
func (s *Store) InsertRelease(ctx context.Context, artifactID, storeID int64, releaseDate time.Time) (Release, error) {
	var rel Release
	err := s.db.GetContext(ctx, &rel, `
		INSERT INTO releases (artifact_id, store_id, release_date)
		VALUES ($1, $2, $3)
		RETURNING id, artifact_id, store_id, release_date`, artifactID, storeID, releaseDate)
	if err != nil {
		return Release{}, xerrors.Errorf("inserting release for artifact %d: %w", artifactID, err)
	}
	return rel, nil
}

// GetReleaseForArtifact returns the most recent release of an artifact, if
// any.
func (s *Store) GetReleaseForArtifact(ctx context.Context, artifactID int64) (*Release, error) {
	var rel Release
	err := s.db.GetContext(ctx, &rel, `
		SELECT id, artifact_id, store_id, release_date FROM releases
		WHERE artifact_id = $1 ORDER BY release_date DESC LIMIT 1`, artifactID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		return nil, xerrors.Errorf("loading release for artifact %d: %w", artifactID, err)
	}
	return &rel, nil
}

// CandidateRow is one (artifact, job) pair matched by FindArtifactCandidates,
// mirroring the Rust query's `(dbmodels::Artifact, dbmodels::Job)` row
// shape in original_source/src/db/find_artifacts.rs.
type CandidateRow struct {
	Artifact Artifact
	Job      Job
}

// FindArtifactCandidates runs the join query behind the artifact-reuse
// lookup (C6): packages, joined through jobs/submits/artifacts/images,
// filtered by name+version, allowed/denied images, exact script text and
// image name where requested. This mirrors the `FindArtifacts::run` query
// shape (inner joins, `.into_boxed()` conditional filters) from
// original_source/src/db/find_artifacts.rs; the environment-equality
// post-filter and store-path resolution happen one layer up, in
// internal/artifactfinder, exactly as upstream splits "SQL can express"
// from "SQL cannot express" filtering.
func (s *Store) FindArtifactCandidates(ctx context.Context, name, version string, allowedImages, deniedImages []string, scriptText *string, imageName *string) ([]CandidateRow, error) {
	q := `
		SELECT a.id AS "artifact.id", a.path AS "artifact.path", a.released AS "artifact.released", a.job_id AS "artifact.job_id",
		       j.id AS "job.id", j.uuid AS "job.uuid", j.submit_id AS "job.submit_id",
		       j.package_id AS "job.package_id", j.endpoint_id AS "job.endpoint_id",
		       j.script_text AS "job.script_text", j.log_text AS "job.log_text", j.success AS "job.success"
		FROM packages p
		INNER JOIN jobs j ON j.package_id = p.id
		INNER JOIN submits sub ON j.submit_id = sub.id
		INNER JOIN artifacts a ON a.job_id = j.id
		INNER JOIN images img ON sub.requested_image_id = img.id
		WHERE p.name = $1 AND p.version = $2`
	args := []interface{}{name, version}

	if len(allowedImages) > 0 {
		q += ` AND img.name = ANY($` + placeholderIndex(len(args)+1) + `)`
		args = append(args, pqStringArray(allowedImages))
	}
	if len(deniedImages) > 0 {
		q += ` AND NOT (img.name = ANY($` + placeholderIndex(len(args)+1) + `))`
		args = append(args, pqStringArray(deniedImages))
	}
	if scriptText != nil {
		q += ` AND j.script_text = $` + placeholderIndex(len(args)+1)
		args = append(args, *scriptText)
	}
	if imageName != nil {
		q += ` AND img.name = $` + placeholderIndex(len(args)+1)
		args = append(args, *imageName)
	}

	rows := []CandidateRow{}
	sqlRows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, xerrors.Errorf("querying artifact candidates for %s-%s: %w", name, version, err)
	}
	defer sqlRows.Close()
	for sqlRows.Next() {
		var row CandidateRow
		if err := sqlRows.StructScan(&row); err != nil {
			return nil, xerrors.Errorf("scanning artifact candidate row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, xerrors.Errorf("iterating artifact candidates: %w", err)
	}
	return rows, nil
}

func placeholderIndex(n int) string { return strconv.Itoa(n) }

func pqStringArray(ss []string) interface{} { return pq.Array(ss) }
