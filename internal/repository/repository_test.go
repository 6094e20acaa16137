package repository

import (
	"os"
	"path/filepath"
	"testing"
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

func TestLeafOnlyProducesPackages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg.toml"), `
[environment]
CC = "gcc"
`)
	writeFile(t, filepath.Join(root, "a", "pkg.toml"), `
name = "a"
version = "1"
`)

	repo, err := LoadRepository(root)
	if err != nil {
		t.Fatal(err)
	}
	pkgs := repo.Packages()
	if len(pkgs) != 1 {
		t.Fatalf("expected 1 package (non-leaf root contributes but does not emit), got %d: %+v", len(pkgs), pkgs)
	}
	if pkgs[0].Environment["CC"] != "gcc" {
		t.Fatalf("expected inherited environment, got %+v", pkgs[0].Environment)
	}
}

func TestDuplicateIdentityFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "pkg.toml"), "name = \"x\"\nversion = \"1\"\n")
	writeFile(t, filepath.Join(root, "b", "pkg.toml"), "name = \"x\"\nversion = \"1\"\n")

	if _, err := LoadRepository(root); err == nil {
		t.Fatal("expected error for duplicate (name,version)")
	}
}

func TestEmptyDependencySetYieldsLoadableSingleton(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "pkg.toml"), "name = \"a\"\nversion = \"1\"\n")

	repo, err := LoadRepository(root)
	if err != nil {
		t.Fatal(err)
	}
	pkg, ok := repo.Find("a", "1")
	if !ok {
		t.Fatal("expected to find a-1")
	}
	if len(pkg.Build) != 0 || len(pkg.Runtime) != 0 {
		t.Fatalf("expected no dependencies, got build=%v runtime=%v", pkg.Build, pkg.Runtime)
	}
}
