//go:build windows

package gate

import "os/exec"

// Windows has no POSIX process groups; killing the direct child is the
// best a timeout can do.
func setProcessGroup(cmd *exec.Cmd) {}

func interruptGroup(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}

func killGroup(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}
