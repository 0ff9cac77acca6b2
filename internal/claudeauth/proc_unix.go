//go:build !windows

package claudeauth

import "golang.org/x/sys/unix"

// processAlive probes a pid with signal 0. EPERM still means the process
// exists, just under another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
