//go:build !windows

package storage

import (
	"os"
	"syscall"
)

// lockFile takes an exclusive flock on f. With block false the call
// fails immediately when another process holds the lock.
func lockFile(f *os.File, block bool) error {
	how := syscall.LOCK_EX
	if !block {
		how |= syscall.LOCK_NB
	}
	return syscall.Flock(int(f.Fd()), how)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
