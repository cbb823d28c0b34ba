//go:build windows

package lock

import "golang.org/x/sys/windows"

// ProcessAlive reports whether pid refers to a live process. Windows has
// no zero-signal probe; opening a query handle and checking the exit
// code is the closest equivalent. Access-denied means the process exists
// in another session, so it counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return err == windows.ERROR_ACCESS_DENIED
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return true
	}
	return code == windows.STILL_ACTIVE
}
