package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/pkgid"
)

var whatDependsCmd = &cobra.Command{
	Use:   "what-depends <name>",
	Short: "List packages that declare a dependency on the named package",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhatDepends,
}

func init() {
	addDependencyTypeFlags(whatDependsCmd)
}

func runWhatDepends(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name, err := pkgid.ParseName(args[0])
	if err != nil {
		return xerrors.Errorf("invalid package name %q: %w", args[0], err)
	}

	for _, pkg := range a.repo.Packages() {
		for _, kind := range selectedKinds() {
			for _, dep := range pkg.DependenciesOfKind(kind) {
				depName, _, err := dep.NameAndConstraint()
				if err != nil {
					continue
				}
				if depName == name {
					fmt.Printf("%s depends on %s via %s\n", pkg.ID(), name, kind)
				}
			}
		}
	}
	return nil
}
