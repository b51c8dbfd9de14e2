//go:build windows

package persist

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// freeDiskSpace returns the bytes available to this user on the volume
// holding path. The parent directory is queried so the path itself need not
// exist yet.
func freeDiskSpace(path string) (uint64, error) {
	dir, err := windows.UTF16PtrFromString(filepath.Dir(path))
	if err != nil {
		return 0, fmt.Errorf("encode path %s: %w", path, err)
	}
	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &freeToCaller, &total, &totalFree); err != nil {
		return 0, fmt.Errorf("free space query %s: %w", path, err)
	}
	return freeToCaller, nil
}
