package pkgfile

import (
	"github.com/butido/butido/internal/condition"
	"golang.org/x/xerrors"
)

func (d *Dependency) unmarshalTable(m map[string]interface{}) error {
	name, ok := m["name"].(string)
	if !ok {
		return xerrors.Errorf("dependency table missing string 'name' field: %v", m)
	}
	cond := condition.Condition{}
	if raw, ok := m["condition"]; ok {
		condMap, ok := raw.(map[string]interface{})
		if !ok {
			return xerrors.Errorf("dependency 'condition' must be a table, got %T", raw)
		}
		c, err := decodeCondition(condMap)
		if err != nil {
			return xerrors.Errorf("decoding condition: %w", err)
		}
		cond = c
	}
	*d = Dependency{Expr: name, Condition: cond, Gated: true}
	return nil
}

func decodeCondition(m map[string]interface{}) (condition.Condition, error) {
	var c condition.Condition
	if v, ok := m["has_env"]; ok {
		o, err := oneOrMoreFrom(v)
		if err != nil {
			return c, xerrors.Errorf("has_env: %w", err)
		}
		c.HasEnv = o
	}
	if v, ok := m["in_image"]; ok {
		o, err := oneOrMoreFrom(v)
		if err != nil {
			return c, xerrors.Errorf("in_image: %w", err)
		}
		c.InImage = o
	}
	if v, ok := m["env_eq"]; ok {
		eq, ok := v.(map[string]interface{})
		if !ok {
			return c, xerrors.Errorf("env_eq must be a table, got %T", v)
		}
		c.EnvEq = make(map[string]string, len(eq))
		for k, val := range eq {
			s, ok := val.(string)
			if !ok {
				return c, xerrors.Errorf("env_eq[%q] must be a string, got %T", k, val)
			}
			c.EnvEq[k] = s
		}
	}
	return c, nil
}

func oneOrMoreFrom(v interface{}) (condition.OneOrMore, error) {
	switch val := v.(type) {
	case string:
		return condition.OneOrMore{val}, nil
	case []interface{}:
		out := make(condition.OneOrMore, 0, len(val))
		for _, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, xerrors.Errorf("expected string element, got %T", elem)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, xerrors.Errorf("expected string or list of strings, got %T", v)
	}
}
