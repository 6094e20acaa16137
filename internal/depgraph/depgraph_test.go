package depgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/butido/butido/internal/condition"
	"github.com/butido/butido/internal/repository"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newRepo(t *testing.T, pkgs map[string]string) *repository.Repository {
	t.Helper()
	root := t.TempDir()
	for dir, content := range pkgs {
		writeFile(t, filepath.Join(root, dir, "pkg.toml"), content)
	}
	repo, err := repository.LoadRepository(root)
	if err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestSinglePackageEmptyDeps(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"a": "name = \"a\"\nversion = \"1\"\n",
	})
	root, _ := repo.Find("a", "1")
	dag, err := Build(repo, root, condition.Data{})
	if err != nil {
		t.Fatal(err)
	}
	if dag.Len() != 1 {
		t.Fatalf("expected 1 node, got %d", dag.Len())
	}
}

func TestLinearRuntimeDependency(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"a": "name = \"a\"\nversion = \"1\"\n\n[dependencies]\nruntime = [\"b =2\"]\n",
		"b": "name = \"b\"\nversion = \"2\"\n",
	})
	root, _ := repo.Find("a", "1")
	dag, err := Build(repo, root, condition.Data{})
	if err != nil {
		t.Fatal(err)
	}
	if dag.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", dag.Len())
	}
	edges := dag.DependenciesOf(root.ID())
	if len(edges) != 1 || edges[0].Kind != Runtime || edges[0].To.String() != "b-2" {
		t.Fatalf("edges = %+v", edges)
	}
}

func TestConditionalDependencyExcludedAndIncluded(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"a": `name = "a"
version = "1"

[[dependencies.runtime]]
name = "b =2"
condition = { in_image = "xyz" }
`,
		"b": "name = \"b\"\nversion = \"2\"\n",
	})
	root, _ := repo.Find("a", "1")

	dagExcluded, err := Build(repo, root, condition.Data{ImageName: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if dagExcluded.Len() != 1 {
		t.Fatalf("expected dep excluded, got %d nodes", dagExcluded.Len())
	}

	dagIncluded, err := Build(repo, root, condition.Data{ImageName: "xyz"})
	if err != nil {
		t.Fatal(err)
	}
	if dagIncluded.Len() != 2 {
		t.Fatalf("expected dep included, got %d nodes", dagIncluded.Len())
	}
}

func TestUnresolvedDependencyFails(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"a": "name = \"a\"\nversion = \"1\"\n\n[dependencies]\nruntime = [\"missing =1\"]\n",
	})
	root, _ := repo.Find("a", "1")
	if _, err := Build(repo, root, condition.Data{}); err == nil {
		t.Fatal("expected error for unresolved dependency")
	}
}

func TestCycleRejected(t *testing.T) {
	repo := newRepo(t, map[string]string{
		"a": "name = \"a\"\nversion = \"1\"\n\n[dependencies]\nruntime = [\"b =1\"]\n",
		"b": "name = \"b\"\nversion = \"1\"\n\n[dependencies]\nruntime = [\"a =1\"]\n",
	})
	root, _ := repo.Find("a", "1")
	if _, err := Build(repo, root, condition.Data{}); err == nil {
		t.Fatal("expected cycle error")
	}
}
