package main

import (
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/butido/butido"
	"github.com/butido/butido/internal/config"
	"github.com/butido/butido/internal/dbstore"
	"github.com/butido/butido/internal/endpoint"
	"github.com/butido/butido/internal/filestore"
	"github.com/butido/butido/internal/orchestrator"
	"github.com/butido/butido/internal/repository"
)

// app bundles the components every submission/introspection command needs,
// built once from the loaded configuration.
type app struct {
	cfg  *config.Configuration
	repo *repository.Repository
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, xerrors.Errorf("loading configuration: %w", err)
	}
	repo, err := repository.LoadRepository(cfg.Repository)
	if err != nil {
		return nil, xerrors.Errorf("loading repository %s: %w", cfg.Repository, err)
	}
	return &app{cfg: cfg, repo: repo}, nil
}

// newOrchestrator wires the database, stores and endpoints needed to
// submit or promote a build, per spec.md §4.9's submission recorder. The
// database handle is closed via butido.RegisterAtExit rather than a
// returned closer; main runs the registered funcs once rootCmd.Execute
// returns, so a command that calls log.Fatal or os.Exit itself skips
// that cleanup.
func (a *app) newOrchestrator() (*orchestrator.Orchestrator, error) {
	db, err := dbstore.Open(a.cfg.Database.DSN())
	if err != nil {
		return nil, xerrors.Errorf("opening database: %w", err)
	}
	butido.RegisterAtExit(db.Close)

	stagingRoot, err := filestore.NewStoreRoot(a.cfg.Staging)
	if err != nil {
		return nil, xerrors.Errorf("resolving staging root %s: %w", a.cfg.Staging, err)
	}
	staging, err := filestore.NewStagingStore(stagingRoot)
	if err != nil {
		return nil, xerrors.Errorf("loading staging store: %w", err)
	}

	releaseStores := make([]*filestore.ReleaseStore, 0, len(a.cfg.ReleaseStores))
	for _, dir := range a.cfg.ReleaseStores {
		root, err := filestore.NewStoreRoot(dir)
		if err != nil {
			return nil, xerrors.Errorf("resolving release store %s: %w", dir, err)
		}
		rs, err := filestore.NewReleaseStore(filepath.Base(dir), root)
		if err != nil {
			return nil, xerrors.Errorf("loading release store %s: %w", dir, err)
		}
		releaseStores = append(releaseStores, rs)
	}

	endpoints := make([]*endpoint.Endpoint, 0, len(a.cfg.Docker.Endpoints))
	for _, ecfg := range a.cfg.EndpointConfigs() {
		ep, err := endpoint.New(ecfg)
		if err != nil {
			return nil, xerrors.Errorf("configuring endpoint %s: %w", ecfg.Name, err)
		}
		endpoints = append(endpoints, ep)
	}

	return orchestrator.New(a.cfg, a.repo, db, staging, releaseStores, endpoints), nil
}
