//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

func configureProcAttr(*exec.Cmd) {}

// signalGroup kills the process; there is no polite termination here.
func signalGroup(p *os.Process, _ bool) error {
	return p.Kill()
}

func suspendGroup(*os.Process, bool) error {
	return errors.ErrUnsupported
}

func exitCode(state *os.ProcessState, err error) (int, error) {
	if state == nil {
		return -1, err
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return state.ExitCode(), err
	}
	return state.ExitCode(), nil
}
