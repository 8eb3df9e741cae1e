//go:build windows

package main

import (
	"os/exec"
)

func configureDaemonProc(cmd *exec.Cmd) {
	// Windows has no session leader concept; the default detachment is
	// enough for our use case.
}
