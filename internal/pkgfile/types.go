// Package pkgfile decodes pkg.toml fragments and produces the immutable
// Package domain type (spec.md §3, §4.1). A single pkg.toml decodes into a
// Raw fragment; the repository loader (internal/repository) merges the
// root-to-leaf chain of Raw fragments before Raw.ToPackage converts the
// result into a Package.
package pkgfile

import (
	"github.com/butido/butido/internal/condition"
	"github.com/butido/butido/internal/pkgid"
)

// HashType names one of the supported source-tarball digest algorithms.
type HashType string

const (
	HashSHA1   HashType = "sha1"
	HashSHA256 HashType = "sha256"
	HashSHA512 HashType = "sha512"
)

// Hash is a source tarball's expected digest.
type Hash struct {
	Type  HashType `toml:"type"`
	Value string   `toml:"hash"`
}

// Source describes where to fetch a package's upstream tarball from and
// how to verify it, handed to the internal/source collaborator.
type Source struct {
	URL  string `toml:"url"`
	Hash Hash   `toml:"hash"`
}

// DependencyKind distinguishes the four dependency kinds a pkg.toml can
// declare. System* dependencies are advertised but never expand into DAG
// nodes (spec.md §4.2).
type DependencyKind int

const (
	KindSystemBuild DependencyKind = iota
	KindSystemRuntime
	KindBuild
	KindRuntime
)

func (k DependencyKind) String() string {
	switch k {
	case KindSystemBuild:
		return "system"
	case KindSystemRuntime:
		return "system_runtime"
	case KindBuild:
		return "build"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Dependency is either a Simple "<name> <constraint>" string or a
// Conditional dependency gated on a Condition.
type Dependency struct {
	Expr      string
	Condition condition.Condition
	Gated     bool // true if parsed from the table form (Conditional)
}

// UnmarshalTOML implements github.com/BurntSushi/toml's Unmarshaler,
// accepting either a bare string ("name =version") or a table
// { name = "...", condition = { ... } }.
func (d *Dependency) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*d = Dependency{Expr: v}
		return nil
	case map[string]interface{}:
		return d.unmarshalTable(v)
	default:
		return errInvalidDependencyShape(data)
	}
}

// NameAndConstraint parses the dependency's "<name> <constraint>" text.
func (d Dependency) NameAndConstraint() (pkgid.Name, pkgid.Constraint, error) {
	return pkgid.ParseNameAndConstraint(d.Expr)
}

// Phase is one named build-script segment: either inline text or a path
// reference to a file containing the script. Path references are a
// documented limitation (spec.md §9 open question): rendering a Phase
// sourced from Path currently fails, it is not resolved here.
type Phase struct {
	Text string
	Path string
	// HasPath distinguishes an empty inline script ("") from a path
	// reference, since both zero-value the other field.
	HasPath bool
}

// UnmarshalTOML accepts { script = "..." } or { path = "..." }.
func (p *Phase) UnmarshalTOML(data interface{}) error {
	m, ok := data.(map[string]interface{})
	if !ok {
		return errInvalidPhaseShape(data)
	}
	if v, ok := m["path"]; ok {
		s, ok := v.(string)
		if !ok {
			return errInvalidPhaseShape(data)
		}
		*p = Phase{Path: s, HasPath: true}
		return nil
	}
	if v, ok := m["script"]; ok {
		s, ok := v.(string)
		if !ok {
			return errInvalidPhaseShape(data)
		}
		*p = Phase{Text: s}
		return nil
	}
	return errInvalidPhaseShape(data)
}

// Package is the immutable, fully-merged representation of a leaf
// pkg.toml (spec.md §3, Package). Created at repository load, read-only
// thereafter.
type Package struct {
	Name    pkgid.Name
	Version pkgid.Version

	Source Source

	SystemBuild   []Dependency
	SystemRuntime []Dependency
	Build         []Dependency
	Runtime       []Dependency
	ScriptPaths   []string

	Environment map[string]string
	Patches     []string
	Flags       []string

	AllowedImages []string
	DeniedImages  []string

	Phases      map[string]Phase
	PhaseOrder  []string // not set by ToPackage; jobs take the configured available_phases order

	Shebang string // not set by ToPackage; scripts take the Builder's configured shebang
}

// ID returns the package's repository key (I1).
func (p Package) ID() pkgid.ID {
	return pkgid.ID{Name: p.Name, Version: p.Version}
}

func (p Package) String() string {
	return p.ID().String()
}

// DependenciesOfKind returns the dependency list for the given kind.
func (p Package) DependenciesOfKind(k DependencyKind) []Dependency {
	switch k {
	case KindSystemBuild:
		return p.SystemBuild
	case KindSystemRuntime:
		return p.SystemRuntime
	case KindBuild:
		return p.Build
	case KindRuntime:
		return p.Runtime
	default:
		return nil
	}
}
