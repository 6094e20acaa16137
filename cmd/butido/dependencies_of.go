package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/pkgid"
)

var depKindFlags struct {
	runtime       bool
	build         bool
	system        bool
	systemRuntime bool
}

var dependenciesOfCmd = &cobra.Command{
	Use:   "dependencies-of <name>",
	Short: "List the dependencies every matching package declares",
	Args:  cobra.ExactArgs(1),
	RunE:  runDependenciesOf,
}

func init() {
	addDependencyTypeFlags(dependenciesOfCmd)
}

func addDependencyTypeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&depKindFlags.runtime, "runtime", true, "include runtime dependencies")
	cmd.Flags().BoolVar(&depKindFlags.build, "build", true, "include build dependencies")
	cmd.Flags().BoolVar(&depKindFlags.system, "system", false, "include system (build) dependencies")
	cmd.Flags().BoolVar(&depKindFlags.systemRuntime, "system-runtime", false, "include system runtime dependencies")
}

func selectedKinds() []pkgfile.DependencyKind {
	var kinds []pkgfile.DependencyKind
	if depKindFlags.system {
		kinds = append(kinds, pkgfile.KindSystemBuild)
	}
	if depKindFlags.systemRuntime {
		kinds = append(kinds, pkgfile.KindSystemRuntime)
	}
	if depKindFlags.build {
		kinds = append(kinds, pkgfile.KindBuild)
	}
	if depKindFlags.runtime {
		kinds = append(kinds, pkgfile.KindRuntime)
	}
	return kinds
}

func runDependenciesOf(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	name, err := pkgid.ParseName(args[0])
	if err != nil {
		return xerrors.Errorf("invalid package name %q: %w", args[0], err)
	}

	for _, pkg := range a.repo.Packages() {
		if pkg.Name != name {
			continue
		}
		fmt.Println(pkg.ID())
		for _, kind := range selectedKinds() {
			for _, dep := range pkg.DependenciesOfKind(kind) {
				fmt.Printf("  [%s] %s\n", kind, dep.Expr)
			}
		}
	}
	return nil
}
