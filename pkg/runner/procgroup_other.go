//go:build !unix

package runner

import "os/exec"

// killProcessGroup leaves the default behavior: only the direct child is
// killed on cancellation.
func killProcessGroup(*exec.Cmd) {}
