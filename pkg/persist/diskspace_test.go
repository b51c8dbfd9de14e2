package persist

import (
	"errors"
	"testing"
)

func checkerWithFree(free uint64, err error) *CapacityChecker {
	c := NewCapacityChecker("/data/history.json", 5)
	c.freeSpace = func(string) (uint64, error) { return free, err }
	return c
}

func TestHasCapacity(t *testing.T) {
	const required = 200 << 20 // 200 MiB payload

	// With 5 generations a save costs 6 writes; margin is half of that
	// (600 MiB here, above the 100 MiB floor).
	const writes = required * 6
	const need = writes + writes/2

	tests := []struct {
		name string
		free uint64
		want bool
	}{
		{name: "ample space", free: need * 2, want: true},
		{name: "exactly at threshold", free: need, want: false},
		{name: "just above threshold", free: need + 1, want: true},
		{name: "only payload would fit", free: required + 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkerWithFree(tt.free, nil)
			if got := c.HasCapacity(required); got != tt.want {
				t.Errorf("HasCapacity(%d) with %d free = %v, want %v", required, tt.free, got, tt.want)
			}
		})
	}
}

func TestHasCapacityMarginFloor(t *testing.T) {
	// Tiny payloads still demand the 100 MiB margin floor.
	const required = 1024

	c := checkerWithFree(50<<20, nil)
	if c.HasCapacity(required) {
		t.Error("50 MiB free must not satisfy the 100 MiB margin floor")
	}

	c = checkerWithFree(MinSafetyMargin+required*6+1, nil)
	if !c.HasCapacity(required) {
		t.Error("free space above writes plus floor margin should pass")
	}
}

func TestHasCapacityFailsClosed(t *testing.T) {
	c := checkerWithFree(1<<40, errors.New("statfs: permission denied"))
	if c.HasCapacity(1) {
		t.Error("a failed free-space query must deny the write")
	}
}

func TestHasCapacityNegativeRequired(t *testing.T) {
	c := checkerWithFree(1<<40, nil)
	if c.HasCapacity(-1) {
		t.Error("negative request must be denied")
	}
}

func TestFreeDiskSpaceQueriesRealVolume(t *testing.T) {
	free, err := freeDiskSpace(t.TempDir() + "/history.json")
	if err != nil {
		t.Fatalf("freeDiskSpace failed: %v", err)
	}
	if free == 0 {
		t.Error("expected nonzero free space on the test volume")
	}
}
