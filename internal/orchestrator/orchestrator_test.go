package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butido/butido/internal/condition"
	"github.com/butido/butido/internal/config"
	"github.com/butido/butido/internal/depgraph"
	"github.com/butido/butido/internal/logstream"
	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/repository"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newRepo(t *testing.T, pkgs map[string]string) *repository.Repository {
	t.Helper()
	root := t.TempDir()
	for dir, content := range pkgs {
		writeFile(t, filepath.Join(root, dir, "pkg.toml"), content)
	}
	repo, err := repository.LoadRepository(root)
	require.NoError(t, err)
	return repo
}

func TestSerializeDagIncludesRootPackagesAndEdges(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"a": "name = \"a\"\nversion = \"1\"\n\n[dependencies]\nruntime = [\"b =2\"]\n",
		"b": "name = \"b\"\nversion = \"2\"\n",
	})
	root, ok := repo.Find("a", "1")
	require.True(t, ok)
	dag, err := depgraph.Build(repo, root, condition.Data{})
	require.NoError(t, err)

	tree, err := serializeDag(dag)
	require.NoError(t, err)
	assert.Contains(t, tree, `"root":"a-1"`)
	assert.Contains(t, tree, `"name":"a"`)
	assert.Contains(t, tree, `"name":"b"`)
	assert.Contains(t, tree, `"to":"b-2"`)
	assert.Contains(t, tree, `"kind":"Runtime"`)
}

func TestEnvPairsSortedByName(t *testing.T) {
	pairs := envPairs(map[string]string{"b": "2", "a": "1"})
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].Name)
	assert.Equal(t, "b", pairs[1].Name)
}

func TestEnvResourcesForFiltersByAllowlist(t *testing.T) {
	o := &Orchestrator{
		cfg: &config.Configuration{
			Containers: config.ContainersConfig{AllowedEnv: []string{"FOO"}},
		},
	}
	pkg := pkgfile.Package{Environment: map[string]string{"FOO": "1", "BAR": "2"}}

	resources := o.envResourcesFor(pkg, map[string]string{"FOO": "override"})

	require.Len(t, resources, 1)
	assert.Equal(t, "FOO", resources[0].Name)
	assert.Equal(t, "override", resources[0].Value)
}

func TestEnvResourcesForAllowsEverythingWhenAllowlistEmpty(t *testing.T) {
	o := &Orchestrator{cfg: &config.Configuration{}}
	pkg := pkgfile.Package{Environment: map[string]string{"FOO": "1", "BAR": "2"}}

	resources := o.envResourcesFor(pkg, nil)

	require.Len(t, resources, 2)
	assert.Equal(t, "BAR", resources[0].Name)
	assert.Equal(t, "FOO", resources[1].Name)
}

func TestRepoGitHashFallsBackToUnknownOutsideGitCheckout(t *testing.T) {
	hash, err := repoGitHash(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "unknown", hash)
}

func TestCollectingSinkAccumulatesItems(t *testing.T) {
	sink := &collectingSink{}
	require.NoError(t, sink.Push(logstream.StateItem(logstream.StateOK, "")))
	require.Len(t, sink.items, 1)
}
