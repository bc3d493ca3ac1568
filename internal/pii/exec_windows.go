//go:build windows

package pii

import (
	"os/exec"
	"syscall"
)

// configureHiddenWindow suppresses the console window Windows would
// otherwise flash when spawning the external analyzer subprocess.
func configureHiddenWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
