package main

import (
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/pkgid"
)

// findPackage resolves a single package by exact name and version
// constraint, the same "<name> <constraint>" pair pkg.toml dependency
// references use.
func findPackage(a *app, rawName, rawConstraint string) (pkgfile.Package, error) {
	name, err := pkgid.ParseName(rawName)
	if err != nil {
		return pkgfile.Package{}, xerrors.Errorf("invalid package name %q: %w", rawName, err)
	}
	constraint, err := pkgid.ParseConstraint(rawConstraint)
	if err != nil {
		return pkgfile.Package{}, xerrors.Errorf("invalid version constraint %q: %w", rawConstraint, err)
	}
	matches := a.repo.FindMatching(name, constraint)
	if len(matches) == 0 {
		return pkgfile.Package{}, xerrors.Errorf("no package matches %s %s", name, constraint)
	}
	return matches[len(matches)-1], nil
}
