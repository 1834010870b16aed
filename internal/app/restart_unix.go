//go:build !windows

package app

import (
	"os"
	"syscall"
)

// RestartProcess replaces the current process image with a fresh copy of the binary,
// keeping argv and environment.
// RestartProcess 以同样的参数与环境重新执行当前二进制
func RestartProcess() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}
