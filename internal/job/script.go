// Package job builds the shell script a container runs for one package
// build (C7, spec.md §4.7), and the in-memory Job/RunnableJob types that
// carry a package through scheduling to execution.
//
// Script templating is grounded on original_source/src/package/script.rs:
// the same phase-order concatenation, the same `phase`/`state`/`progress`
// helpers emitting the `#BUTIDO:...` sentinel lines internal/logstream
// parses back out of the job's stdout, and the same strict-undefined-
// variable behavior (handlebars' `set_strict_mode` there, Go's
// `Option("missingkey=error")` here).
package job

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/pkgfile"
)

// Shebang is the interpreter line written at the top of every rendered
// script (spec.md §6 configuration key `shebang`).
type Shebang string

// Script is a fully rendered, ready-to-execute build script.
type Script string

func (s Script) String() string { return string(s) }

// LinesNumbered returns the script split into 1-indexed (line, text) pairs,
// mirroring Script::lines_numbered in original_source/src/package/script.rs
// (used by introspection/lint output).
func (s Script) LinesNumbered() []struct {
	Line int
	Text string
} {
	lines := strings.Split(string(s), "\n")
	out := make([]struct {
		Line int
		Text string
	}, len(lines))
	for i, l := range lines {
		out[i] = struct {
			Line int
			Text string
		}{Line: i + 1, Text: l}
	}
	return out
}

// Lint pipes the script's text to the stdin of an external linter (e.g.
// "shellcheck -" or "sh -n"), returning its combined stdout/stderr. A
// non-zero exit is not itself a Go error; callers distinguish linter
// findings (reflected in the returned output) from the inability to run
// the linter at all (a returned error).
func (s Script) Lint(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(string(s))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if _, ok := err.(*exec.ExitError); ok {
		return out.String(), nil
	}
	if err != nil {
		return "", xerrors.Errorf("running linter %s: %w", name, err)
	}
	return out.String(), nil
}

// Builder renders a Package's phases into a Script.
type Builder struct {
	shebang Shebang
}

// NewBuilder constructs a Builder for the given shebang.
func NewBuilder(shebang Shebang) *Builder {
	return &Builder{shebang: shebang}
}

// Build concatenates package's phases (in phaseOrder) into one script body,
// then interpolates package-derived template variables into it. strictMode,
// when true, rejects a script referencing an undefined template variable
// (spec.md §4.7, §7 error taxonomy) rather than silently rendering it
// empty.
func (b *Builder) Build(pkg pkgfile.Package, phaseOrder []string, strictMode bool) (Script, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", b.shebang)

	for _, name := range phaseOrder {
		phase, ok := pkg.Phases[name]
		switch {
		case ok && !phase.HasPath:
			fmt.Fprintf(&sb, "### phase %s\n%s\n### / %s phase\n\n", name, phase.Text, name)
		case ok && phase.HasPath:
			// Path-embedded phases require copying the referenced file into
			// the build context, which this orchestrator does not yet
			// support (original_source carries the same limitation, see
			// its own "NOT SUPPORTED YET" phase body).
			fmt.Fprintf(&sb, "\n# Phase (from file %s): %s\n# NOT SUPPORTED YET\nexit 1\n\n", phase.Path, name)
		default:
			fmt.Fprintf(&sb, "# No script for phase: %s\n", name)
		}
	}

	return b.interpolate(sb.String(), pkg, strictMode)
}

func (b *Builder) interpolate(body string, pkg pkgfile.Package, strictMode bool) (Script, error) {
	funcs := sprig.TxtFuncMap()
	funcs["phase"] = phaseHelper
	funcs["state"] = stateHelper
	funcs["progress"] = progressHelper

	tmpl := template.New("script").Funcs(funcs)
	if strictMode {
		tmpl = tmpl.Option("missingkey=error")
	}
	tmpl, err := tmpl.Parse(body)
	if err != nil {
		return "", xerrors.Errorf("parsing script template for %s: %w", pkg.ID(), err)
	}

	// Execute against a map, not pkg itself: text/template's missingkey
	// option only governs undefined map-key lookups, never undefined
	// struct field access (which always errors). Routing through a map is
	// what makes strictMode=false actually lenient, per spec.md §4.7.
	vars := templateVars(pkg)

	var out strings.Builder
	if err := tmpl.Execute(&out, vars); err != nil {
		return "", xerrors.Errorf("interpolating script for %s: %w", pkg.ID(), err)
	}
	return Script(out.String()), nil
}

// templateVars exposes pkg's fields under their Go field names so existing
// `{{ .Name }}`-style script templates keep working unchanged.
func templateVars(pkg pkgfile.Package) map[string]interface{} {
	return map[string]interface{}{
		"Name":          string(pkg.Name),
		"Version":       string(pkg.Version),
		"Source":        pkg.Source,
		"Environment":   pkg.Environment,
		"Patches":       pkg.Patches,
		"Flags":         pkg.Flags,
		"AllowedImages": pkg.AllowedImages,
		"DeniedImages":  pkg.DeniedImages,
		"ScriptPaths":   pkg.ScriptPaths,
	}
}

// phaseHelper renders the `#BUTIDO:PHASE:<name>` sentinel consumed by
// internal/logstream.
func phaseHelper(name string) string {
	return fmt.Sprintf("echo '#BUTIDO:PHASE:%s'\n", name)
}

// stateHelper renders `#BUTIDO:STATE:OK` or `#BUTIDO:STATE:ERR:<message>`.
// Any state other than "OK"/"ERR" is a template error, mirroring the
// upstream helper's behavior exactly.
func stateHelper(state string, message ...string) (string, error) {
	switch state {
	case "OK":
		return "echo '#BUTIDO:STATE:OK'\n", nil
	case "ERR":
		if len(message) == 0 {
			return "", xerrors.Errorf("state helper: ERR requires a message argument")
		}
		return fmt.Sprintf("echo '#BUTIDO:STATE:ERR:%s'\n", message[0]), nil
	default:
		return "", xerrors.Errorf("state helper: state must be either 'OK' or 'ERR', got %q", state)
	}
}

// progressHelper renders `#BUTIDO:PROGRESS:<n>`.
func progressHelper(n int) string {
	return fmt.Sprintf("echo '#BUTIDO:PROGRESS:%d'\n", n)
}
