//go:build windows

package signal

import (
	"os"
)

// InterruptSignal is nil on windows, child processes are killed instead.
var InterruptSignal os.Signal

// InterruptSignals are the signals that cancel a running pipeline.
var InterruptSignals = []os.Signal{os.Interrupt}
