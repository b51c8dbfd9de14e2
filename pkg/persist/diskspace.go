package persist

// MinSafetyMargin is the floor of the free-space safety margin (100 MiB).
const MinSafetyMargin = 100 << 20

// CapacityChecker gates writes on free disk space. A save always implies
// writing the new primary and shifting up to N backup generations, so the
// real pressure is requiredBytes times (1 + generations), not the payload
// size alone.
type CapacityChecker struct {
	path        string
	generations int

	// freeSpace queries available bytes on the volume holding path.
	// Replaced in tests.
	freeSpace func(path string) (uint64, error)
}

// NewCapacityChecker creates a checker for the volume holding path, sized
// for the configured backup generation count.
func NewCapacityChecker(path string, generations int) *CapacityChecker {
	return &CapacityChecker{
		path:        path,
		generations: generations,
		freeSpace:   freeDiskSpace,
	}
}

// HasCapacity reports whether a write of requiredBytes, plus its backup
// rotation cost and a safety margin, fits in the free space. A failed
// free-space query denies the write: fail closed, never optimistic.
func (c *CapacityChecker) HasCapacity(requiredBytes int64) bool {
	if requiredBytes < 0 {
		return false
	}
	free, err := c.freeSpace(c.path)
	if err != nil {
		return false
	}

	writes := uint64(requiredBytes) * uint64(1+c.generations)
	margin := writes / 2
	if margin < MinSafetyMargin {
		margin = MinSafetyMargin
	}
	return free > writes+margin
}
