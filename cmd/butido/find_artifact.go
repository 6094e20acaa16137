package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/artifactfinder"
	"github.com/butido/butido/internal/dbstore"
	"github.com/butido/butido/internal/filestore"
)

var findArtifactImage string

var findArtifactCmd = &cobra.Command{
	Use:   "find-artifact <name> <version>",
	Short: "Find already-built artifacts matching a package and environment",
	Args:  cobra.ExactArgs(2),
	RunE:  runFindArtifact,
}

func init() {
	findArtifactCmd.Flags().StringVar(&findArtifactImage, "image", "", "restrict the match to this exact image name")
}

func runFindArtifact(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	db, err := dbstore.Open(a.cfg.Database.DSN())
	if err != nil {
		return xerrors.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stagingRoot, err := filestore.NewStoreRoot(a.cfg.Staging)
	if err != nil {
		return xerrors.Errorf("resolving staging root: %w", err)
	}
	staging, err := filestore.NewStagingStore(stagingRoot)
	if err != nil {
		return xerrors.Errorf("loading staging store: %w", err)
	}

	var releaseStores []*filestore.ReleaseStore
	for _, dir := range a.cfg.ReleaseStores {
		root, err := filestore.NewStoreRoot(dir)
		if err != nil {
			return xerrors.Errorf("resolving release store %s: %w", dir, err)
		}
		rs, err := filestore.NewReleaseStore(filepath.Base(dir), root)
		if err != nil {
			return xerrors.Errorf("loading release store %s: %w", dir, err)
		}
		releaseStores = append(releaseStores, rs)
	}

	finder := artifactfinder.New(db, staging, releaseStores)

	req := artifactfinder.Request{PackageName: args[0], PackageVersion: args[1]}
	if findArtifactImage != "" {
		req.ImageName = &findArtifactImage
	}

	found, err := finder.Find(context.Background(), req)
	if err != nil {
		return xerrors.Errorf("finding artifacts: %w", err)
	}
	if len(found) == 0 {
		fmt.Println("No matching artifact found")
		return nil
	}
	for _, f := range found {
		released := "staged"
		if f.ReleaseDate != nil {
			released = f.ReleaseDate.String()
		}
		fmt.Printf("%s (%s)\n", f.Path, released)
	}
	return nil
}
