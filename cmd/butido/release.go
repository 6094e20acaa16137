package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido"
	"github.com/butido/butido/internal/filestore"
)

var releaseStoreName string

var releaseCmd = &cobra.Command{
	Use:   "release <artifact-path>",
	Short: "Promote a staged artifact into a named release store",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseStoreName, "store", "", "name of the configured release store to promote into")
	releaseCmd.MarkFlagRequired("store")
}

func runRelease(cmd *cobra.Command, args []string) error {
	ap, err := filestore.NewArtifactPath(args[0])
	if err != nil {
		return xerrors.Errorf("invalid artifact path %q: %w", args[0], err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	orch, err := a.newOrchestrator()
	if err != nil {
		return err
	}

	ctx, cancel := butido.InterruptibleContext()
	defer cancel()

	if err := orch.Release(ctx, ap, releaseStoreName); err != nil {
		return xerrors.Errorf("releasing %s: %w", ap, err)
	}
	return nil
}
