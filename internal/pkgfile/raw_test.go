package pkgfile

import "testing"

func TestDecodeSimplePackage(t *testing.T) {
	src := `
name = "a"
version = "1"

[dependencies]
runtime = ["b =2"]

[phases.build]
script = "echo ok"
`
	raw, err := Decode("pkg.toml", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	pkg, err := raw.ToPackage()
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Name != "a" || pkg.Version != "1" {
		t.Fatalf("got %v", pkg.ID())
	}
	if len(pkg.Runtime) != 1 || pkg.Runtime[0].Expr != "b =2" {
		t.Fatalf("runtime deps = %+v", pkg.Runtime)
	}
	if pkg.Phases["build"].Text != "echo ok" {
		t.Fatalf("phases = %+v", pkg.Phases)
	}
}

func TestMergeChildOverridesParent(t *testing.T) {
	parent, err := Decode("parent/pkg.toml", []byte(`
[dependencies]
build = ["gcc =1"]

[environment]
CC = "gcc"
`))
	if err != nil {
		t.Fatal(err)
	}
	child, err := Decode("parent/child/pkg.toml", []byte(`
name = "leaf"
version = "1"

[environment]
CC = "clang"
`))
	if err != nil {
		t.Fatal(err)
	}

	merged := parent.Merge(child)
	pkg, err := merged.ToPackage()
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Build) != 1 || pkg.Build[0].Expr != "gcc =1" {
		t.Fatalf("expected inherited build deps, got %+v", pkg.Build)
	}
	if pkg.Environment["CC"] != "clang" {
		t.Fatalf("expected child override of CC, got %q", pkg.Environment["CC"])
	}
}

func TestConditionalDependencyTableForm(t *testing.T) {
	raw, err := Decode("pkg.toml", []byte(`
name = "a"
version = "1"

[[dependencies.runtime]]
name = "b =2"
condition = { in_image = "xyz" }
`))
	if err != nil {
		t.Fatal(err)
	}
	pkg, err := raw.ToPackage()
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Runtime) != 1 {
		t.Fatalf("expected 1 runtime dep, got %d", len(pkg.Runtime))
	}
	dep := pkg.Runtime[0]
	if !dep.Gated {
		t.Fatal("expected conditional dependency")
	}
	if len(dep.Condition.InImage) != 1 || dep.Condition.InImage[0] != "xyz" {
		t.Fatalf("condition = %+v", dep.Condition)
	}
}
