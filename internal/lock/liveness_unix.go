//go:build unix

package lock

import "golang.org/x/sys/unix"

// ProcessAlive reports whether pid refers to a live process, using a
// zero-signal probe. ESRCH means the process is gone; EPERM means it
// exists under another user, so the lock must not be stolen. Any other
// probe failure is also treated as alive (fail safe toward not stealing
// an active lock).
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	switch err {
	case nil:
		return true
	case unix.ESRCH:
		return false
	case unix.EPERM:
		return true
	default:
		return true
	}
}
