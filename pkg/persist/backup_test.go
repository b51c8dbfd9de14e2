package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRotateShiftsGenerations(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "history.json")
	writeFile(t, primary, "v3")
	writeFile(t, BackupPath(primary, 1), "v2")
	writeFile(t, BackupPath(primary, 2), "v1")

	r := NewRotator(5)
	if err := r.Rotate(primary); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	if got := readFile(t, BackupPath(primary, 1)); got != "v3" {
		t.Errorf("backup.1 = %q, want previous primary v3", got)
	}
	if got := readFile(t, BackupPath(primary, 2)); got != "v2" {
		t.Errorf("backup.2 = %q, want v2", got)
	}
	if got := readFile(t, BackupPath(primary, 3)); got != "v1" {
		t.Errorf("backup.3 = %q, want v1", got)
	}
	if got := readFile(t, primary); got != "v3" {
		t.Errorf("rotation must not touch the primary, got %q", got)
	}
	if fileExists(BackupPath(primary, 4)) {
		t.Error("no backup.4 should exist")
	}

	// No staging debris left behind.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".staging-") {
			t.Errorf("staging area %s left behind", e.Name())
		}
	}
}

func TestRotateDiscardsOldestGeneration(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "history.json")
	writeFile(t, primary, "new")
	writeFile(t, BackupPath(primary, 1), "mid")
	writeFile(t, BackupPath(primary, 2), "old")

	r := NewRotator(2)
	if err := r.Rotate(primary); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}

	if got := readFile(t, BackupPath(primary, 1)); got != "new" {
		t.Errorf("backup.1 = %q, want new", got)
	}
	if got := readFile(t, BackupPath(primary, 2)); got != "mid" {
		t.Errorf("backup.2 = %q, want mid", got)
	}
	if fileExists(BackupPath(primary, 3)) {
		t.Error("chain must stay bounded at 2 generations")
	}
}

func TestRotateMissingPrimaryIsNoOp(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "history.json")
	writeFile(t, BackupPath(primary, 1), "old")

	r := NewRotator(5)
	if err := r.Rotate(primary); err != nil {
		t.Fatalf("rotate without primary should be a no-op, got %v", err)
	}
	if got := readFile(t, BackupPath(primary, 1)); got != "old" {
		t.Error("existing backups must be untouched when there is nothing to rotate")
	}
}

func TestRotateZeroGenerations(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "history.json")
	writeFile(t, primary, "data")

	r := NewRotator(0)
	if err := r.Rotate(primary); err != nil {
		t.Fatalf("rotate with zero generations should be a no-op, got %v", err)
	}
	if fileExists(BackupPath(primary, 1)) {
		t.Error("no backups should be created when generations is zero")
	}
}

func TestRotateStagingFailureLeavesChainUntouched(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "history.json")
	writeFile(t, primary, "v2")
	writeFile(t, BackupPath(primary, 1), "v1")

	r := NewRotator(5)
	// Staged copies fail; the direct single-backup fallback succeeds.
	r.copyFile = func(src, dst string) error {
		if strings.Contains(dst, ".staging-") {
			return errors.New("injected copy failure")
		}
		return copyFile(src, dst)
	}

	err := r.Rotate(primary)
	if !errors.Is(err, ErrRotationFailed) {
		t.Fatalf("expected ErrRotationFailed, got %v", err)
	}

	// Fallback keeps a single best-effort backup of the current primary;
	// nothing else in the chain moved.
	if got := readFile(t, BackupPath(primary, 1)); got != "v2" {
		t.Errorf("fallback backup.1 = %q, want v2", got)
	}
	if fileExists(BackupPath(primary, 2)) {
		t.Error("no partial rotation may reach generation 2")
	}
	if got := readFile(t, primary); got != "v2" {
		t.Error("primary must be untouched")
	}
}

func TestRotateTotalFailureReportsBoth(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "history.json")
	writeFile(t, primary, "v2")
	writeFile(t, BackupPath(primary, 1), "v1")

	r := NewRotator(5)
	r.copyFile = func(src, dst string) error {
		return errors.New("disk unplugged")
	}

	err := r.Rotate(primary)
	if !errors.Is(err, ErrRotationFailed) {
		t.Fatalf("expected ErrRotationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "fallback also failed") {
		t.Errorf("expected fallback failure to be reported, got %v", err)
	}
	// Prior state fully intact.
	if got := readFile(t, BackupPath(primary, 1)); got != "v1" {
		t.Errorf("backup.1 = %q, want untouched v1", got)
	}
}

func TestMigrateLegacyBackup(t *testing.T) {
	t.Run("folds into generation 1", func(t *testing.T) {
		dir := t.TempDir()
		primary := filepath.Join(dir, "history.json")
		writeFile(t, primary+".backup", "legacy")

		r := NewRotator(5)
		if err := r.MigrateLegacy(primary); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		if got := readFile(t, BackupPath(primary, 1)); got != "legacy" {
			t.Errorf("backup.1 = %q, want legacy content", got)
		}
		if fileExists(primary + ".backup") {
			t.Error("legacy file should be gone after migration")
		}
	})

	t.Run("uses next free slot when generation 1 exists", func(t *testing.T) {
		dir := t.TempDir()
		primary := filepath.Join(dir, "history.json")
		writeFile(t, primary+".backup", "legacy")
		writeFile(t, BackupPath(primary, 1), "newer")

		r := NewRotator(5)
		if err := r.MigrateLegacy(primary); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		if got := readFile(t, BackupPath(primary, 1)); got != "newer" {
			t.Error("existing generation 1 must not be overwritten")
		}
		if got := readFile(t, BackupPath(primary, 2)); got != "legacy" {
			t.Errorf("backup.2 = %q, want legacy content", got)
		}
	})

	t.Run("no legacy file is a no-op", func(t *testing.T) {
		dir := t.TempDir()
		primary := filepath.Join(dir, "history.json")

		r := NewRotator(5)
		if err := r.MigrateLegacy(primary); err != nil {
			t.Fatalf("migrate without legacy file failed: %v", err)
		}
	})

	t.Run("full chain leaves legacy in place", func(t *testing.T) {
		dir := t.TempDir()
		primary := filepath.Join(dir, "history.json")
		writeFile(t, primary+".backup", "legacy")
		for gen := 1; gen <= 5; gen++ {
			writeFile(t, BackupPath(primary, gen), "gen")
		}

		r := NewRotator(5)
		if err := r.MigrateLegacy(primary); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		if !fileExists(primary + ".backup") {
			t.Error("legacy file must not be discarded when the chain is full")
		}
	})
}
