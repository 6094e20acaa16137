package repository

import "golang.org/x/sys/unix"

// openFileLimit caps concurrent pkg.toml reads so the loader never hits
// the process's RLIMIT_NOFILE, leaving headroom for the rest of the
// orchestrator's own file descriptors.
func openFileLimit() int {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 64
	}
	cur := int(rlimit.Cur)
	if cur <= 8 {
		return 1
	}
	limit := cur / 4
	if limit < 1 {
		limit = 1
	}
	if limit > 256 {
		limit = 256
	}
	return limit
}
