package scheduler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// HealLock keeps heal cycles from overlapping across processes, such as a
// running server and a `vidpipe heal` started from cron.
type HealLock struct {
	path string
}

// NewHealLock creates a lock on the given file. An empty path disables
// locking.
func NewHealLock(path string) *HealLock {
	return &HealLock{path: path}
}

// Run calls fn while holding the lock. It reports false without calling fn
// when another holder has the lock.
func (l *HealLock) Run(fn func() error) (bool, error) {
	if l == nil || l.path == "" {
		return true, fn()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(l.path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquiring heal lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer lock.Unlock()

	return true, fn()
}
