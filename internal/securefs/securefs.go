// Package securefs restricts the files and directories the engine produces
// to the owning process user: owner read/write (and execute for
// directories), nothing for group or other.
package securefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keymint/keymint/internal/logger"
)

// ErrPermissionEnforcement indicates that an owner-only lockdown could not
// be applied. Callers treat this as a hard fault, not a per-item failure.
var ErrPermissionEnforcement = errors.New("permission enforcement failed")

// EnforceOwnerOnly makes path readable and writable by the owner only.
// Directories additionally keep owner execute; files lose all execute bits.
// The bits are applied in three separate steps (read, write, execute) so a
// failure names the step that could not be applied. A missing path is a
// no-op: paths handed here were just created, and a racing removal is
// tolerated.
func EnforceOwnerOnly(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return enforcementError(fmt.Sprintf("failed to inspect %s", path), err)
	}

	mode := info.Mode().Perm()

	mode = (mode &^ 0o044) | 0o400
	if err := chmodStep(path, mode); err != nil {
		return enforcementError(fmt.Sprintf("failed to set %s readable only by the owner", path), err)
	}

	mode = (mode &^ 0o022) | 0o200
	if err := chmodStep(path, mode); err != nil {
		return enforcementError(fmt.Sprintf("failed to set %s writable only by the owner", path), err)
	}

	if info.IsDir() {
		mode = (mode &^ 0o011) | 0o100
		if err := chmodStep(path, mode); err != nil {
			return enforcementError(fmt.Sprintf("failed to set %s executable only by the owner", path), err)
		}
	} else {
		mode &^= 0o111
		if err := chmodStep(path, mode); err != nil {
			return enforcementError(fmt.Sprintf("failed to set %s not executable", path), err)
		}
	}

	return nil
}

// chmodStep applies one permission transition. A path that vanished since
// the initial stat is tolerated, matching EnforceOwnerOnly's no-op contract.
func chmodStep(path string, mode os.FileMode) error {
	err := os.Chmod(path, mode)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// enforcementError logs the failure at warn level and returns it as a
// hard fault. The warn-then-fail sequence is deliberate: the log names the
// exact step for the operator while callers only branch on the sentinel.
func enforcementError(msg string, cause error) error {
	logger.Warn(msg, logger.KeyError, cause.Error())
	return fmt.Errorf("%s: %w", msg, ErrPermissionEnforcement)
}

// MkdirOwnerOnly creates path (and parents) owner-only. The enforcement
// pass runs even when the directory already existed so a pre-existing lax
// mode is corrected.
func MkdirOwnerOnly(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return EnforceOwnerOnly(path)
}

// WriteFileOwnerOnly writes data to path atomically with owner-only
// permissions. The data lands in a temporary file first and is renamed
// into place, so readers never observe a partial file.
func WriteFileOwnerOnly(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}

	return nil
}
