//go:build windows

package exec

import (
	"os"
	"os/exec"

	"github.com/gruntwork-io/clusterflow/internal/errors"
)

func setProcessGroup(*exec.Cmd) {}

func signalProcessGroup(process *os.Process, sig os.Signal) error {
	if err := process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.New(err)
	}

	return nil
}

func killProcessGroup(process *os.Process) error {
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.New(err)
	}

	return nil
}
