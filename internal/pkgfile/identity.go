package pkgfile

import "github.com/butido/butido/internal/pkgid"

func parseName(s string) (pkgid.Name, error)    { return pkgid.ParseName(s) }
func parseVersion(s string) (pkgid.Version, error) { return pkgid.ParseVersion(s) }
