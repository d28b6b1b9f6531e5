//go:build !windows

package server

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// stopServerTree sends SIGTERM to the server's process group so that
// wrappers like npm take their children down with them. An empty group is
// not an error.
func stopServerTree(cmd *exec.Cmd) error {
	err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func killServerTree(cmd *exec.Cmd) {
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

// serverTreeAlive reports whether any process is left in the server's group.
func serverTreeAlive(cmd *exec.Cmd) bool {
	err := unix.Kill(-cmd.Process.Pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
