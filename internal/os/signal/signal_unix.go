//go:build !windows

package signal

import (
	"os"
	"syscall"
)

// InterruptSignal is the signal sent to child processes when a run is aborted.
const InterruptSignal = syscall.SIGINT

// InterruptSignals are the signals that cancel a running pipeline. SIGHUP is included
// so that closing the terminal still runs post-execute hooks.
var InterruptSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP}
