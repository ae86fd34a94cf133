//go:build unix

package toml

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// withFileLock holds an exclusive flock on lockPath while fn runs. The lock
// file is never removed, so every process contends on the same inode even
// after the billing file itself is replaced by rename.
func withFileLock(lockPath string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), storeDirMode); err != nil {
		return fmt.Errorf("create billing directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, storeFileMode)
	if err != nil {
		return fmt.Errorf("open billing lock file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("acquire billing file lock: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck

	return fn()
}
