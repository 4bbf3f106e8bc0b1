package infra

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// InstanceLock implements domain.InstanceGuard with a PID marker file whose
// name is derived from the executable path, so copies of the binary in
// different locations do not block each other.
type InstanceLock struct {
	path           string
	processManager domain.ProcessManager
}

// NewInstanceLock creates the lock for the running executable.
func NewInstanceLock(dataDir string, pm domain.ProcessManager) *InstanceLock {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return NewInstanceLockWithPath(filepath.Join(dataDir, MarkerName(exe)), pm)
}

// NewInstanceLockWithPath creates a lock at a specific marker path (for testing).
func NewInstanceLockWithPath(path string, pm domain.ProcessManager) *InstanceLock {
	return &InstanceLock{path: path, processManager: pm}
}

// MarkerName returns the marker file name for an executable path.
func MarkerName(exePath string) string {
	hash := md5.Sum([]byte(exePath))
	return hex.EncodeToString(hash[:])[:8] + ".lock"
}

// Path returns the marker file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Acquire records the current PID, unless a live process already holds the marker.
func (l *InstanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := l.openLocked(os.O_CREATE | os.O_RDWR)
	if err != nil {
		return err
	}
	defer l.closeLocked(f)

	self := l.processManager.GetCurrentPID()
	if holder := readPID(f); holder > 0 && holder != self && l.processManager.IsRunning(holder) {
		return fmt.Errorf("pid %d: %w", holder, domain.ErrAlreadyRunning)
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to reset marker: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(self)), 0); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return f.Sync()
}

// Release empties the marker if it still holds our PID. The file itself is
// kept: an Acquire blocked on its lock must see the same inode.
func (l *InstanceLock) Release() error {
	f, err := l.openLocked(os.O_RDWR)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer l.closeLocked(f)

	if readPID(f) != l.processManager.GetCurrentPID() {
		return nil
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to reset marker: %w", err)
	}
	return f.Sync()
}

// HolderPID returns the PID recorded in the marker, or 0.
func (l *InstanceLock) HolderPID() int {
	f, err := os.Open(l.path)
	if err != nil {
		return 0
	}
	defer f.Close()
	return readPID(f)
}

func (l *InstanceLock) openLocked(flag int) (*os.File, error) {
	f, err := os.OpenFile(l.path, flag, 0600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open marker: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return f, nil
}

func (l *InstanceLock) closeLocked(f *os.File) {
	_ = unlockFile(f)
	f.Close()
}

func readPID(f *os.File) int {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	data, err := io.ReadAll(io.LimitReader(f, 32))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Ensure InstanceLock implements domain.InstanceGuard.
var _ domain.InstanceGuard = (*InstanceLock)(nil)
