//go:build !windows

package pii

import "os/exec"

// configureHiddenWindow is a no-op on platforms without a console window
// to hide.
func configureHiddenWindow(cmd *exec.Cmd) {}
