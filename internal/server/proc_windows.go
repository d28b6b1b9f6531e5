//go:build windows

package server

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// stopServerTree asks taskkill to end the server and its descendants,
// falling back to killing the direct child.
func stopServerTree(cmd *exec.Cmd) error {
	pid := strconv.Itoa(cmd.Process.Pid)
	if err := exec.Command("taskkill", "/T", "/F", "/PID", pid).Run(); err != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}

func killServerTree(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
}

// serverTreeAlive is always false: taskkill /T already walked the tree and
// Windows has no way to signal a group whose leader is gone.
func serverTreeAlive(cmd *exec.Cmd) bool {
	return false
}
