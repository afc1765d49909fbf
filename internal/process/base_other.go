//go:build !linux

package process

import "os/exec"

// configureSysProcAttr is a no-op where Pdeathsig is unavailable.
func configureSysProcAttr(_ *exec.Cmd) {}
