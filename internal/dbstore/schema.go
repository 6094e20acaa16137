// Package dbstore is the relational persistence layer (C11, spec.md §3):
// packages, images, envvars, githashes, endpoints, submits, jobs, artifacts,
// releases and job_envs, plus the supplemented release_stores registry
// (original_source/src/db/models/release_store.rs).
package dbstore

// Schema is the DDL applied by `butido db migrate` (cmd/butido). Modeled
// directly on original_source/migrations/*/up.sql, adapted to Go naming
// and widened with the release_stores table + releases.store_id column
// (SPEC_FULL.md §3's supplemented feature).
const Schema = `
CREATE TABLE IF NOT EXISTS images (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS envvars (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	UNIQUE(name, value)
);

CREATE TABLE IF NOT EXISTS githashes (
	id SERIAL PRIMARY KEY,
	hash TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS packages (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	UNIQUE(name, version)
);

CREATE TABLE IF NOT EXISTS endpoints (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS submits (
	id SERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	submitted_at TIMESTAMP NOT NULL,
	requested_image_id INTEGER NOT NULL REFERENCES images(id),
	requested_package_id INTEGER NOT NULL REFERENCES packages(id),
	githash_id INTEGER NOT NULL REFERENCES githashes(id),
	tree JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id SERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	submit_id INTEGER NOT NULL REFERENCES submits(id),
	package_id INTEGER NOT NULL REFERENCES packages(id),
	endpoint_id INTEGER NOT NULL REFERENCES endpoints(id),
	image_id INTEGER NOT NULL REFERENCES images(id),
	container_hash TEXT NOT NULL DEFAULT '',
	script_text TEXT NOT NULL,
	log_text TEXT NOT NULL DEFAULT '',
	success BOOLEAN
);

CREATE TABLE IF NOT EXISTS job_envs (
	job_id INTEGER NOT NULL REFERENCES jobs(id),
	envvar_id INTEGER NOT NULL REFERENCES envvars(id),
	PRIMARY KEY (job_id, envvar_id)
);

CREATE TABLE IF NOT EXISTS artifacts (
	id SERIAL PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	released BOOLEAN NOT NULL DEFAULT false,
	job_id INTEGER NOT NULL REFERENCES jobs(id)
);

CREATE TABLE IF NOT EXISTS release_stores (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS releases (
	id SERIAL PRIMARY KEY,
	artifact_id INTEGER NOT NULL REFERENCES artifacts(id),
	store_id INTEGER NOT NULL REFERENCES release_stores(id),
	release_date TIMESTAMP NOT NULL,
	UNIQUE(artifact_id, store_id)
);
`
