package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/pkgid"
)

var versionsOfCmd = &cobra.Command{
	Use:   "versions-of <name>",
	Short: "List every version of a package known to the repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsOf,
}

func runVersionsOf(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name, err := pkgid.ParseName(args[0])
	if err != nil {
		return xerrors.Errorf("invalid package name %q: %w", args[0], err)
	}
	for _, pkg := range a.repo.Packages() {
		if pkg.Name == name {
			fmt.Println(pkg.Version)
		}
	}
	return nil
}
