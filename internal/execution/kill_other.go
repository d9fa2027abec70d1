//go:build !unix

package execution

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// interruptGroup has no graceful equivalent here; the process is killed.
func interruptGroup(p *os.Process) error {
	return killGroup(p)
}

func killGroup(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
