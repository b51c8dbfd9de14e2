package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrRotationFailed reports that the full generation shift could not be
// completed and the rotator fell back to a single best-effort backup. The
// save that triggered the rotation still proceeds.
var ErrRotationFailed = errors.New("persist: backup rotation failed")

// Rotator maintains up to N numbered generations of the persisted file:
// <primary>.backup.1 (newest) through <primary>.backup.N (oldest).
//
// Rotation is atomic with respect to interruption: every generation shift is
// staged in a temporary directory first, and the on-disk chain is only
// touched once all staged copies exist. A crash mid-rotation leaves the
// prior state untouched, never a partially shifted chain.
type Rotator struct {
	generations int

	// copyFile stages one file; replaced in tests to force failures.
	copyFile func(src, dst string) error
}

// NewRotator creates a rotator keeping the given number of generations.
func NewRotator(generations int) *Rotator {
	return &Rotator{
		generations: generations,
		copyFile:    copyFile,
	}
}

// BackupPath returns the path of the given backup generation of primary.
func BackupPath(primary string, gen int) string {
	return fmt.Sprintf("%s.backup.%d", primary, gen)
}

// legacyBackupPath is the single-backup file written by older releases.
func legacyBackupPath(primary string) string {
	return primary + ".backup"
}

// MigrateLegacy folds a legacy single-backup file into the numbered chain.
// The legacy file becomes generation 1 when that slot is free, otherwise the
// first free slot; if the chain is full it is left in place rather than
// discarded.
func (r *Rotator) MigrateLegacy(primary string) error {
	legacy := legacyBackupPath(primary)
	if _, err := os.Stat(legacy); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("persist: stat legacy backup: %w", err)
	}

	for gen := 1; gen <= r.generations; gen++ {
		target := BackupPath(primary, gen)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.Rename(legacy, target); err != nil {
			return fmt.Errorf("persist: migrate legacy backup: %w", err)
		}
		return nil
	}
	return nil
}

// Rotate shifts the backup chain one generation: the oldest is discarded,
// each backup.k becomes backup.k+1, and the current primary becomes
// backup.1. If staging fails, the prior on-disk state is left untouched and
// a single best-effort backup.1 copy is attempted instead; the returned
// error wraps ErrRotationFailed but must not abort the caller's save.
func (r *Rotator) Rotate(primary string) error {
	if r.generations <= 0 {
		return nil
	}
	if _, err := os.Stat(primary); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("persist: stat primary: %w", err)
	}

	staging, err := os.MkdirTemp(filepath.Dir(primary), filepath.Base(primary)+".staging-")
	if err != nil {
		return r.fallback(primary, fmt.Errorf("create staging dir: %w", err))
	}

	type move struct {
		staged string
		final  string
	}
	var moves []move

	stage := func(src, final string, slot int) error {
		staged := filepath.Join(staging, fmt.Sprintf("gen.%d", slot))
		if err := r.copyFile(src, staged); err != nil {
			return err
		}
		moves = append(moves, move{staged: staged, final: final})
		return nil
	}

	for gen := r.generations - 1; gen >= 1; gen-- {
		src := BackupPath(primary, gen)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			os.RemoveAll(staging)
			return r.fallback(primary, fmt.Errorf("stat %s: %w", src, err))
		}
		if err := stage(src, BackupPath(primary, gen+1), gen+1); err != nil {
			os.RemoveAll(staging)
			return r.fallback(primary, fmt.Errorf("stage generation %d: %w", gen, err))
		}
	}
	if err := stage(primary, BackupPath(primary, 1), 1); err != nil {
		os.RemoveAll(staging)
		return r.fallback(primary, fmt.Errorf("stage primary: %w", err))
	}

	// All staged copies exist; commit. The oldest generation is dropped,
	// every other final name is replaced by a staged file whose content is
	// already safe in the staging area.
	if err := os.Remove(BackupPath(primary, r.generations)); err != nil && !os.IsNotExist(err) {
		os.RemoveAll(staging)
		return r.fallback(primary, fmt.Errorf("discard oldest generation: %w", err))
	}
	for _, m := range moves {
		if err := os.Rename(m.staged, m.final); err != nil {
			os.RemoveAll(staging)
			return r.fallback(primary, fmt.Errorf("commit %s: %w", m.final, err))
		}
	}
	os.RemoveAll(staging)
	return nil
}

// fallback maintains a single best-effort backup copy rather than leaving
// zero backups behind a failed rotation.
func (r *Rotator) fallback(primary string, cause error) error {
	if err := r.copyFile(primary, BackupPath(primary, 1)); err != nil {
		return fmt.Errorf("%w: %v (single-backup fallback also failed: %v)", ErrRotationFailed, cause, err)
	}
	return fmt.Errorf("%w: %v (kept single backup)", ErrRotationFailed, cause)
}

// copyFile copies src to dst with restrictive permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
