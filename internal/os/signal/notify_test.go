package signal_test

import (
	"context"
	"syscall"
	"testing"

	"github.com/gruntwork-io/clusterflow/internal/os/signal"
	"github.com/stretchr/testify/assert"
)

func TestCauseSignal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(signal.NewContextCanceledCause(syscall.SIGTERM))

	assert.Equal(t, syscall.SIGTERM, signal.CauseSignal(ctx))
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)

	plain, cancelPlain := context.WithCancel(context.Background())
	cancelPlain()

	assert.Nil(t, signal.CauseSignal(plain))
}

func TestNotifyContextStop(t *testing.T) {
	t.Parallel()

	ctx, stop := signal.NotifyContext(context.Background())
	stop()
	stop()

	<-ctx.Done()
	assert.Nil(t, signal.CauseSignal(ctx))
}
