package artifactfinder

import "testing"

func TestEnvironmentsEqualExactMatch(t *testing.T) {
	jobEnv := []EnvVar{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}
	pkgEnv := map[string]string{"A": "1"}
	addEnv := []EnvVar{{Name: "B", Value: "2"}}

	if !environmentsEqual(jobEnv, pkgEnv, addEnv) {
		t.Fatal("expected environments to be equal")
	}
}

func TestEnvironmentsEqualMissingFromJob(t *testing.T) {
	jobEnv := []EnvVar{{Name: "A", Value: "1"}}
	pkgEnv := map[string]string{"A": "1", "B": "2"}

	if environmentsEqual(jobEnv, pkgEnv, nil) {
		t.Fatal("expected mismatch: pkg env B=2 is not present in job env")
	}
}

func TestEnvironmentsEqualExtraInJob(t *testing.T) {
	jobEnv := []EnvVar{{Name: "A", Value: "1"}, {Name: "C", Value: "3"}}
	pkgEnv := map[string]string{"A": "1"}

	if environmentsEqual(jobEnv, pkgEnv, nil) {
		t.Fatal("expected mismatch: job env has unexplained C=3")
	}
}

func TestEnvironmentsEqualAdditionalEnvNotInJob(t *testing.T) {
	jobEnv := []EnvVar{{Name: "A", Value: "1"}}
	addEnv := []EnvVar{{Name: "B", Value: "2"}}

	if environmentsEqual(jobEnv, nil, addEnv) {
		t.Fatal("expected mismatch: additional env B=2 must also appear in job env")
	}
}

func TestEnvironmentsEqualValueMismatch(t *testing.T) {
	jobEnv := []EnvVar{{Name: "A", Value: "1"}}
	pkgEnv := map[string]string{"A": "2"}

	if environmentsEqual(jobEnv, pkgEnv, nil) {
		t.Fatal("expected mismatch: differing values for the same key")
	}
}

func TestEnvironmentsEqualEmptyBothSides(t *testing.T) {
	if !environmentsEqual(nil, nil, nil) {
		t.Fatal("expected empty environments to be trivially equal")
	}
}
