package pkgfile

import "golang.org/x/xerrors"

func errInvalidDependencyShape(data interface{}) error {
	return xerrors.Errorf("dependency must be a string or a table, got %T", data)
}

func errInvalidPhaseShape(data interface{}) error {
	return xerrors.Errorf("phase must be a table with a 'script' or 'path' key, got %T", data)
}
