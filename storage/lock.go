package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InstanceLock keeps one kernel per data directory, since both would
// share the same KV file.
type InstanceLock struct {
	path string
}

func NewInstanceLock(dataDir string) *InstanceLock {
	return &InstanceLock{path: filepath.Join(dataDir, "hermitcrab.lock")}
}

// Check reports whether another live process holds the lock. Stale or
// unreadable lock files are removed.
func (l *InstanceLock) Check() (bool, int, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid == os.Getpid() {
		_ = os.Remove(l.path)
		return false, 0, nil
	}
	if _, err := os.FindProcess(pid); err != nil {
		_ = os.Remove(l.path)
		return false, 0, nil
	}
	return true, pid, nil
}

func (l *InstanceLock) Acquire() error {
	return os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0600)
}

func (l *InstanceLock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
