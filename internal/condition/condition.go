// Package condition evaluates the conditional-dependency gates declared in
// pkg.toml: has_env, env_eq and in_image clauses, each optional, all
// present clauses required to hold (spec.md §3, Condition).
package condition

import "golang.org/x/xerrors"

// OneOrMore models a TOML value position that accepts either a single
// string or a list of strings (e.g. has_env = "foo" vs.
// has_env = ["foo", "bar"]).
type OneOrMore []string

// Strings returns the normalized slice form regardless of whether the
// value was declared as a scalar or a list.
func (o OneOrMore) Strings() []string { return []string(o) }

// UnmarshalTOML implements github.com/BurntSushi/toml's Unmarshaler,
// accepting either a bare string or an array of strings.
func (o *OneOrMore) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*o = OneOrMore{v}
		return nil
	case []interface{}:
		out := make(OneOrMore, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return xerrors.Errorf("expected string element in list, got %T", elem)
			}
			out = append(out, s)
		}
		*o = out
		return nil
	default:
		return xerrors.Errorf("expected string or list of strings, got %T", data)
	}
}

// Env is one environment variable name/value pair, as supplied to
// Condition.Matches via Data.Env.
type Env struct {
	Name  string
	Value string
}

// Data carries the run-time facts a Condition is evaluated against: the
// image the job will run under (if known) and the environment closure in
// effect for the submission.
type Data struct {
	ImageName string // empty means "no image configured" (I6)
	Env       []Env
}

// Condition is the optional has_env / env_eq / in_image triple attached to
// a Conditional dependency.
type Condition struct {
	HasEnv OneOrMore        `toml:"has_env"`
	EnvEq  map[string]string `toml:"env_eq"`
	InImage OneOrMore        `toml:"in_image"`
}

// Matches reports whether the condition is satisfied by data. Every
// present clause must hold (AND semantics); absent clauses are vacuously
// true. The evaluation is pure and deterministic given (c, data): it
// depends on nothing else (property P7).
func (c Condition) Matches(data Data) bool {
	if !c.matchesHasEnv(data) {
		return false
	}
	if !c.matchesEnvEq(data) {
		return false
	}
	return c.matchesInImage(data)
}

func (c Condition) matchesHasEnv(data Data) bool {
	if len(c.HasEnv) == 0 {
		return true
	}
	for _, required := range c.HasEnv {
		if !hasEnvName(data.Env, required) {
			return false
		}
	}
	return true
}

func hasEnvName(env []Env, name string) bool {
	for _, e := range env {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (c Condition) matchesEnvEq(data Data) bool {
	for name, want := range c.EnvEq {
		if !hasEnvValue(data.Env, name, want) {
			return false
		}
	}
	return true
}

func hasEnvValue(env []Env, name, value string) bool {
	for _, e := range env {
		if e.Name == name {
			return e.Value == value
		}
	}
	return false
}

// matchesInImage implements I6: an in_image clause with no image
// configured in the evaluation context is unsatisfied, by convention.
func (c Condition) matchesInImage(data Data) bool {
	if len(c.InImage) == 0 {
		return true
	}
	if data.ImageName == "" {
		return false
	}
	for _, img := range c.InImage {
		if img == data.ImageName {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the condition has no clauses at all, i.e. it
// always matches.
func (c Condition) IsEmpty() bool {
	return len(c.HasEnv) == 0 && len(c.EnvEq) == 0 && len(c.InImage) == 0
}
