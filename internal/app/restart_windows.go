//go:build windows

package app

import (
	"os"
	"os/exec"
)

// RestartProcess starts a new copy of the binary and exits; Windows has no exec.
// RestartProcess 启动新进程后退出当前进程
func RestartProcess() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	child := exec.Command(exe, os.Args[1:]...)
	child.Stdout, child.Stderr = os.Stdout, os.Stderr
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
