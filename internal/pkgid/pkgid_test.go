package pkgid

import "testing"

func TestParseVersionGrammar(t *testing.T) {
	bad := []string{"", "=", "*1", ">1", "<1", "=a", "=.a", "=.1", "=a1", "a"}
	for _, s := range bad {
		if _, err := ParseVersion(s); err == nil {
			t.Errorf("ParseVersion(%q) = nil error, want error", s)
		}
	}

	good := map[string]Version{
		"1":                                "1",
		"1.0.17":                           "1.0.17",
		"1.0.17asejg":                      "1.0.17asejg",
		"1-0B17-beta1247_commit_12653hasd": "1-0B17-beta1247_commit_12653hasd",
	}
	for s, want := range good {
		got, err := ParseVersion(s)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseVersion(%q) = %q, want %q", s, got, want)
		}
	}
}

func TestParseConstraint(t *testing.T) {
	c, err := ParseConstraint("=1.0.17")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Matches("1.0.17") {
		t.Error("constraint should match 1.0.17")
	}
	if c.Matches("1.0.18") {
		t.Error("constraint should not match 1.0.18")
	}

	for _, op := range []string{">1", "<1", "~1", "^1"} {
		if _, err := ParseConstraint(op); err == nil {
			t.Errorf("ParseConstraint(%q) = nil error, want error (only '=' supported)", op)
		}
	}
}

func TestParseNameAndConstraint(t *testing.T) {
	name, c, err := ParseNameAndConstraint("make =4.2.1")
	if err != nil {
		t.Fatal(err)
	}
	if name != "make" {
		t.Errorf("name = %q, want make", name)
	}
	if !c.Matches("4.2.1") {
		t.Error("constraint should match 4.2.1")
	}
}

func TestIDString(t *testing.T) {
	id := ID{Name: "foo2", Version: "1-1.2a3"}
	if got, want := id.String(), "foo2-1-1.2a3"; got != want {
		t.Errorf("ID.String() = %q, want %q", got, want)
	}
}
