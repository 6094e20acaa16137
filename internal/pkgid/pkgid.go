// Package pkgid implements the identity types for packages: names,
// versions and the (currently exact-equality only) version constraint
// grammar.
package pkgid

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Name is a package name matching the grammar letter (letter|digit|'-'|'_')*.
// Names compare by byte equality.
type Name string

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isNameCont(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '-' || b == '_'
}

// ParseName validates s against the name grammar.
func ParseName(s string) (Name, error) {
	if s == "" {
		return "", xerrors.New("package name must not be empty")
	}
	if !isLetter(s[0]) {
		return "", xerrors.Errorf("package name %q must start with a letter", s)
	}
	for i := 1; i < len(s); i++ {
		if !isNameCont(s[i]) {
			return "", xerrors.Errorf("package name %q contains invalid character %q at offset %d", s, s[i], i)
		}
	}
	return Name(s), nil
}

// Version is a package version matching the grammar
// digit (digit|letter|'-'|'_'|'.')*. Ordering is lexical over the raw
// string, not semver.
type Version string

func isVersionCont(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '-' || b == '_' || b == '.'
}

// ParseVersion validates s against the version grammar.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return "", xerrors.New("package version must not be empty")
	}
	if !isDigit(s[0]) {
		return "", xerrors.Errorf("package version %q must start with a digit", s)
	}
	for i := 1; i < len(s); i++ {
		if !isVersionCont(s[i]) {
			return "", xerrors.Errorf("package version %q contains invalid character %q at offset %d", s, s[i], i)
		}
	}
	return Version(s), nil
}

// Less orders versions lexically over their raw bytes (not semver).
func (v Version) Less(other Version) bool {
	return string(v) < string(other)
}

// ID identifies a package by name and version, used as the repository's
// primary key (invariant I1).
type ID struct {
	Name    Name
	Version Version
}

func (id ID) String() string {
	return fmt.Sprintf("%s-%s", id.Name, id.Version)
}

// Constraint is a package version constraint. The grammar currently only
// admits exact equality ('=' Version), but the type stays open for future
// operators per the open question in spec.md §9 — callers must route
// through Matches, never compare the operator field directly.
type Constraint struct {
	op      byte
	version Version
}

// ParseConstraint parses a constraint of the form "=<version>". Any other
// leading operator is rejected at parse time, per the documented
// limitation of the grammar.
func ParseConstraint(s string) (Constraint, error) {
	if len(s) == 0 {
		return Constraint{}, xerrors.New("empty version constraint")
	}
	op := s[0]
	if op != '=' {
		return Constraint{}, xerrors.Errorf("unsupported constraint operator %q (only '=' is implemented)", op)
	}
	v, err := ParseVersion(s[1:])
	if err != nil {
		return Constraint{}, xerrors.Errorf("parsing version constraint %q: %w", s, err)
	}
	return Constraint{op: op, version: v}, nil
}

// Matches reports whether v satisfies the constraint. All callers must
// use this method instead of inspecting the constraint's fields.
func (c Constraint) Matches(v Version) bool {
	return c.version == v
}

// Version returns the version named by the constraint, for callers that
// need to display or log it.
func (c Constraint) Version() Version { return c.version }

func (c Constraint) String() string {
	return fmt.Sprintf("%c%s", c.op, c.version)
}

// ParseNameAndConstraint splits a "<name> <constraint>" dependency
// reference, e.g. "make =4.2.1", as used in pkg.toml dependency entries.
func ParseNameAndConstraint(s string) (Name, Constraint, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", Constraint{}, xerrors.Errorf("dependency reference %q must be \"<name> <constraint>\"", s)
	}
	name, err := ParseName(fields[0])
	if err != nil {
		return "", Constraint{}, xerrors.Errorf("dependency reference %q: %w", s, err)
	}
	constraint, err := ParseConstraint(fields[1])
	if err != nil {
		return "", Constraint{}, xerrors.Errorf("dependency reference %q: %w", s, err)
	}
	return name, constraint, nil
}
