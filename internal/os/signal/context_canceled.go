package signal

import (
	"context"
	"os"
)

// ContextCanceledCause is the cancel cause of a context canceled by NotifyContext.
type ContextCanceledCause struct {
	Signal os.Signal
}

func NewContextCanceledCause(sig os.Signal) *ContextCanceledCause {
	return &ContextCanceledCause{Signal: sig}
}

// Error reads like context.Canceled so callers that print ctx errors see nothing new.
func (cause *ContextCanceledCause) Error() string {
	return context.Canceled.Error() + " by signal " + cause.Signal.String()
}

func (*ContextCanceledCause) Unwrap() error {
	return context.Canceled
}
