//go:build !windows

package exec

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}

	cmd.SysProcAttr.Setpgid = true
}

func signalProcessGroup(process *os.Process, sig os.Signal) error {
	sysSig, ok := sig.(syscall.Signal)
	if !ok {
		return errors.New(process.Signal(sig))
	}

	return groupKill(process.Pid, sysSig)
}

func killProcessGroup(process *os.Process) error {
	return groupKill(process.Pid, unix.SIGKILL)
}

// groupKill signals every process in the group led by pid. A group that is already gone is not an error.
func groupKill(pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return errors.New(err)
	}

	return nil
}
