// Package exec runs external commands. It wraps the os/exec package with graceful
// interrupt forwarding so that child processes get a chance to clean up.
package exec

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/os/signal"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultForwardSignalDelay is how long a child gets to exit after it was interrupted
// before it is killed.
const DefaultForwardSignalDelay = 15 * time.Second

// Cmd is a command type.
type Cmd struct {
	*exec.Cmd

	ctx      context.Context
	filename string

	logger log.Logger

	forwardSignalDelay time.Duration
	interruptSignal    os.Signal
}

// Command returns the `Cmd` struct to execute the named program with the given arguments.
// The command is interrupted when ctx is done.
func Command(ctx context.Context, name string, args ...string) *Cmd {
	cmd := &Cmd{
		Cmd:                exec.Command(name, args...),
		ctx:                ctx,
		logger:             log.Default(),
		filename:           filepath.Base(name),
		forwardSignalDelay: DefaultForwardSignalDelay,
		interruptSignal:    signal.InterruptSignal,
	}

	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// a child that outlives its process group must not hold Wait on the output pipes
	cmd.WaitDelay = time.Second

	setProcessGroup(cmd.Cmd)

	return cmd
}

// Shell returns a `Cmd` that runs script with `/bin/sh -c`.
func Shell(ctx context.Context, script string) *Cmd {
	return Command(ctx, "/bin/sh", "-c", script)
}

// Configure sets options to the `Cmd`.
func (cmd *Cmd) Configure(opts ...Option) {
	for _, opt := range opts {
		opt(cmd)
	}
}

// Run starts the command and waits for it to complete.
func (cmd *Cmd) Run() error {
	if err := cmd.Start(); err != nil {
		return err
	}

	cancelShutdown := cmd.RegisterGracefullyShutdown(cmd.ctx)
	defer cancelShutdown()

	err := cmd.Wait()

	// background jobs of an interrupted script may outlive it
	if cmd.ctx.Err() != nil {
		killProcessGroup(cmd.Process) //nolint:errcheck
	}

	if err != nil {
		return errors.New(err)
	}

	return nil
}

// Start starts the specified command but does not wait for it to complete.
func (cmd *Cmd) Start() error {
	cmd.logger.Tracef("Running command: %s", cmd.String())

	if err := cmd.Cmd.Start(); err != nil {
		return errors.New(err)
	}

	return nil
}

// RegisterGracefullyShutdown interrupts the command once ctx is done. The child runs in its own
// process group, so it never sees a terminal interrupt by itself: the whole group gets the
// signal that canceled ctx, or the interrupt signal if ctx was canceled for another reason.
// A group still running after cmd.forwardSignalDelay, or when the same signal arrives
// a second time, is killed.
func (cmd *Cmd) RegisterGracefullyShutdown(ctx context.Context) func() {
	ctxShutdown, cancelShutdown := context.WithCancel(context.Background())

	go func() {
		select {
		case <-ctxShutdown.Done():
		case <-ctx.Done():
			sig := signal.CauseSignal(ctx)
			if sig == nil {
				sig = cmd.interruptSignal
			}

			cmd.SendSignal(sig)

			if sig != nil {
				cmd.killAfterDelay(ctxShutdown, sig)
			}
		}
	}()

	return cancelShutdown
}

func (cmd *Cmd) killAfterDelay(ctx context.Context, sig os.Signal) {
	ctxDelay, cancelDelay := context.WithCancel(ctx)
	defer cancelDelay()

	stop := signal.NotifierWithContext(ctx, func(_ os.Signal) {
		cancelDelay()
	}, sig)
	defer stop()

	cmd.logger.Debugf("%s will be killed unless it exits within %s", cmd.filename, cmd.forwardSignalDelay)

	select {
	case <-ctx.Done():
		return
	case <-time.After(cmd.forwardSignalDelay):
	case <-ctxDelay.Done():
		if ctx.Err() != nil {
			return
		}
	}

	cmd.SendSignal(nil)
}

// SendSignal sends sig to the process group of the executed command. A nil signal kills the group.
func (cmd *Cmd) SendSignal(sig os.Signal) {
	if cmd.Process == nil {
		return
	}

	if sig == nil {
		cmd.logger.Debugf("Killing %s", cmd.filename)

		if err := killProcessGroup(cmd.Process); err != nil {
			cmd.logger.Errorf("Failed to kill %s: %v", cmd.filename, err)
		}

		return
	}

	cmd.logger.Debugf("%s signal is sent to %s", cases.Title(language.English).String(sig.String()), cmd.filename)

	if err := signalProcessGroup(cmd.Process, sig); err != nil {
		cmd.logger.Errorf("Failed to send signal %s to %s: %v", sig, cmd.filename, err)
	}
}

// Option is a decorator for Cmd.
type Option func(*Cmd)

// WithLogger sets the logger used for command diagnostics.
func WithLogger(logger log.Logger) Option {
	return func(cmd *Cmd) {
		cmd.logger = logger
	}
}

// WithForwardSignalDelay sets how long an interrupted command may run before it is killed.
func WithForwardSignalDelay(delay time.Duration) Option {
	return func(cmd *Cmd) {
		cmd.forwardSignalDelay = delay
	}
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(cmd *Cmd) {
		cmd.Dir = dir
	}
}

// WithEnv appends the given variables to the current process environment.
func WithEnv(env map[string]string) Option {
	return func(cmd *Cmd) {
		cmd.Env = os.Environ()

		for key, val := range env {
			cmd.Env = append(cmd.Env, key+"="+val)
		}
	}
}

// WithOutput redirects both stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(cmd *Cmd) {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}
}

// ExitCode returns the exit code of a failed command, or an error if err did not come from one.
func ExitCode(err error) (int, error) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return 0, err
}
