//go:build !windows

package persist

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// freeDiskSpace returns the bytes available to this user on the volume
// holding path. The parent directory is queried so the path itself need not
// exist yet.
func freeDiskSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
