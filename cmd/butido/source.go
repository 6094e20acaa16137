package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/source"
)

var sourceDownloadForce bool

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage cached upstream source tarballs",
}

var sourceDownloadCmd = &cobra.Command{
	Use:   "download <name> <version-constraint>",
	Short: "Fetch and verify a package's upstream tarball into the source cache",
	Args:  cobra.ExactArgs(2),
	RunE:  runSourceDownload,
}

func init() {
	sourceDownloadCmd.Flags().BoolVar(&sourceDownloadForce, "force", false, "re-download even if the tarball is already cached")
	sourceCmd.AddCommand(sourceDownloadCmd)
}

func runSourceDownload(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	pkg, err := findPackage(a, args[0], args[1])
	if err != nil {
		return err
	}

	cache := source.NewCache(a.cfg.SourceCache)
	entry := cache.EntryFor(string(pkg.Name), string(pkg.Version), pkg.Source)

	if !entry.Exists() || sourceDownloadForce {
		if err := entry.Fetch(context.Background(), http.DefaultClient, sourceDownloadForce); err != nil {
			return xerrors.Errorf("fetching source for %s: %w", pkg.ID(), err)
		}
	}

	ok, err := entry.Verify()
	if err != nil {
		return xerrors.Errorf("verifying source for %s: %w", pkg.ID(), err)
	}
	if !ok {
		return xerrors.Errorf("hash mismatch for %s at %s", pkg.ID(), entry.Path())
	}
	fmt.Printf("%s: %s (verified)\n", pkg.ID(), entry.Path())
	return nil
}
