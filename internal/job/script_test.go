package job

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butido/butido/internal/pkgfile"
)

func simplePackage(t *testing.T) pkgfile.Package {
	t.Helper()
	raw, err := pkgfile.Decode("a/pkg.toml", []byte(`
name = "a"
version = "1"
source.url = "https://example.invalid/a-1.tar"
source.hash.type = "sha256"
source.hash.value = "deadbeef"

[phases.build]
script = "echo ok"
`))
	require.NoError(t, err)
	pkg, err := raw.ToPackage()
	require.NoError(t, err)
	return pkg
}

func TestBuildRendersPhasesInOrder(t *testing.T) {
	pkg := simplePackage(t)
	b := NewBuilder("#!/bin/bash")
	script, err := b.Build(pkg, []string{"build"}, true)
	require.NoError(t, err)
	s := script.String()
	assert.True(t, strings.HasPrefix(s, "#!/bin/bash\n"))
	assert.Contains(t, s, "### phase build")
	assert.Contains(t, s, "echo ok")
}

func TestBuildMissingPhaseEmitsComment(t *testing.T) {
	pkg := simplePackage(t)
	b := NewBuilder("#!/bin/bash")
	script, err := b.Build(pkg, []string{"install"}, true)
	require.NoError(t, err)
	assert.Contains(t, script.String(), "# No script for phase: install")
}

func TestStateHelperRejectsUnknownState(t *testing.T) {
	_, err := stateHelper("MAYBE")
	assert.Error(t, err)
}

func TestStateHelperRequiresMessageForErr(t *testing.T) {
	_, err := stateHelper("ERR")
	assert.Error(t, err)

	out, err := stateHelper("ERR", "boom")
	require.NoError(t, err)
	assert.Equal(t, "echo '#BUTIDO:STATE:ERR:boom'\n", out)
}

func TestPhaseAndProgressHelpers(t *testing.T) {
	assert.Equal(t, "echo '#BUTIDO:PHASE:build'\n", phaseHelper("build"))
	assert.Equal(t, "echo '#BUTIDO:PROGRESS:42'\n", progressHelper(42))
}

func TestBuildStrictModeRejectsUndefinedVariable(t *testing.T) {
	raw, err := pkgfile.Decode("a/pkg.toml", []byte(`
name = "a"
version = "1"
source.url = "https://example.invalid/a-1.tar"
source.hash.type = "sha256"
source.hash.value = "deadbeef"

[phases.build]
script = "echo {{ .NoSuchField }}"
`))
	require.NoError(t, err)
	pkg, err := raw.ToPackage()
	require.NoError(t, err)

	b := NewBuilder("#!/bin/bash")
	_, err = b.Build(pkg, []string{"build"}, true)
	assert.Error(t, err)
}

func TestBuildNonStrictModeToleratesUndefinedVariable(t *testing.T) {
	raw, err := pkgfile.Decode("a/pkg.toml", []byte(`
name = "a"
version = "1"
source.url = "https://example.invalid/a-1.tar"
source.hash.type = "sha256"
source.hash.value = "deadbeef"

[phases.build]
script = "echo {{ .NoSuchField }}"
`))
	require.NoError(t, err)
	pkg, err := raw.ToPackage()
	require.NoError(t, err)

	b := NewBuilder("#!/bin/bash")
	script, err := b.Build(pkg, []string{"build"}, false)
	require.NoError(t, err)
	assert.Contains(t, script.String(), "echo")
}

func TestLintReportsSyntaxErrorViaShDashN(t *testing.T) {
	s := Script("#!/bin/sh\nif true; then\n")
	out, err := s.Lint(context.Background(), "sh", "-n")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestLintAcceptsValidScript(t *testing.T) {
	s := Script("#!/bin/sh\necho ok\n")
	out, err := s.Lint(context.Background(), "sh", "-n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLintFailsWhenLinterMissing(t *testing.T) {
	s := Script("echo ok\n")
	_, err := s.Lint(context.Background(), "definitely-not-a-real-binary")
	assert.Error(t, err)
}
