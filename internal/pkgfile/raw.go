package pkgfile

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// RawDependencies mirrors the dependencies.{system,system_runtime,build,
// runtime,script_paths} table of a pkg.toml fragment.
type RawDependencies struct {
	System        []Dependency `toml:"system"`
	SystemRuntime []Dependency `toml:"system_runtime"`
	Build         []Dependency `toml:"build"`
	Runtime       []Dependency `toml:"runtime"`
	ScriptPaths   []string     `toml:"script_paths"`
}

// Raw is one pkg.toml fragment as decoded from disk, before the
// repository loader's root-to-leaf merge (spec.md §4.1) produces the
// effective Package.
type Raw struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`

	Source Source `toml:"source"`

	Dependencies RawDependencies `toml:"dependencies"`

	Environment map[string]string `toml:"environment"`
	Patches     []string          `toml:"patches"`
	Flags       []string          `toml:"flags"`

	AllowedImages []string `toml:"allowed_images"`
	DeniedImages  []string `toml:"denied_images"`

	Phases map[string]Phase `toml:"phases"`

	meta toml.MetaData
	path string // the source path this fragment was decoded from, for error context
}

// Decode parses a pkg.toml fragment's bytes.
func Decode(path string, content []byte) (Raw, error) {
	var r Raw
	meta, err := toml.NewDecoder(bytes.NewReader(content)).Decode(&r)
	if err != nil {
		return Raw{}, xerrors.Errorf("parsing %s: %w", path, err)
	}
	r.meta = meta
	r.path = path
	return r, nil
}

func (r Raw) defined(key string) bool {
	return r.meta.IsDefined(key)
}

// Merge overlays child onto r (the accumulated parent configuration),
// root-to-leaf, child overrides parent per key (spec.md §4.1). Only keys
// the child fragment actually declared replace the parent's value; an
// unset key is inherited untouched.
func (r Raw) Merge(child Raw) Raw {
	out := r

	if child.defined("name") {
		out.Name = child.Name
	}
	if child.defined("version") {
		out.Version = child.Version
	}
	if child.defined("source") {
		out.Source = child.Source
	}
	if child.defined("dependencies") {
		out.Dependencies = mergeDependencies(out.Dependencies, child.Dependencies, child.meta)
	}
	if child.defined("environment") {
		out.Environment = mergeStringMap(out.Environment, child.Environment)
	}
	if child.defined("patches") {
		out.Patches = child.Patches
	}
	if child.defined("flags") {
		out.Flags = child.Flags
	}
	if child.defined("allowed_images") {
		out.AllowedImages = child.AllowedImages
	}
	if child.defined("denied_images") {
		out.DeniedImages = child.DeniedImages
	}
	if child.defined("phases") {
		out.Phases = mergePhases(out.Phases, child.Phases)
	}
	out.meta = child.meta
	out.path = child.path
	return out
}

func mergeDependencies(parent, child RawDependencies, childMeta toml.MetaData) RawDependencies {
	out := parent
	if childMeta.IsDefined("dependencies", "system") {
		out.System = child.System
	}
	if childMeta.IsDefined("dependencies", "system_runtime") {
		out.SystemRuntime = child.SystemRuntime
	}
	if childMeta.IsDefined("dependencies", "build") {
		out.Build = child.Build
	}
	if childMeta.IsDefined("dependencies", "runtime") {
		out.Runtime = child.Runtime
	}
	if childMeta.IsDefined("dependencies", "script_paths") {
		out.ScriptPaths = child.ScriptPaths
	}
	return out
}

func mergeStringMap(parent, child map[string]string) map[string]string {
	out := make(map[string]string, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

func mergePhases(parent, child map[string]Phase) map[string]Phase {
	out := make(map[string]Phase, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

// ToPackage converts the fully-merged leaf fragment into an immutable
// Package, validating identity grammars in the process.
func (r Raw) ToPackage() (Package, error) {
	name, err := parseName(r.Name)
	if err != nil {
		return Package{}, xerrors.Errorf("%s: %w", r.path, err)
	}
	version, err := parseVersion(r.Version)
	if err != nil {
		return Package{}, xerrors.Errorf("%s: %w", r.path, err)
	}
	return Package{
		Name:          name,
		Version:       version,
		Source:        r.Source,
		SystemBuild:   r.Dependencies.System,
		SystemRuntime: r.Dependencies.SystemRuntime,
		Build:         r.Dependencies.Build,
		Runtime:       r.Dependencies.Runtime,
		ScriptPaths:   r.Dependencies.ScriptPaths,
		Environment:   r.Environment,
		Patches:       r.Patches,
		Flags:         r.Flags,
		AllowedImages: r.AllowedImages,
		DeniedImages:  r.DeniedImages,
		Phases:        r.Phases,
	}, nil
}
