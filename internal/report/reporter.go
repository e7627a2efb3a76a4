// Package report prints a live snapshot of clusters after a failed run, so that users notice
// resources a failure may have left behind.
package report

//go:generate mockgen -source=reporter.go -destination=mock_reporter.go -package=report

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/os/exec"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-shellwords"
)

const (
	// DefaultSettleDelay gives a controller time to record a failed submission before its status is read.
	DefaultSettleDelay = 500 * time.Millisecond

	// showCursor restores the terminal cursor a spinner may have hidden.
	showCursor = "\x1b[?25h"
)

// ErrEmptyStatusCommand is returned when the status command has no words.
var ErrEmptyStatusCommand = errors.New("status command is empty")

// Reporter reports the state of clusters after a failure involving clusterName.
type Reporter interface {
	Report(ctx context.Context, clusterName string) error
}

// CommandReporter reports by running the status subcommand of a clusterflow binary.
type CommandReporter struct {
	logger        log.Logger
	statusCommand string
	names         *cluster.ReservedNames
	writer        io.Writer
	settleDelay   time.Duration
}

// Option configures a CommandReporter.
type Option func(*CommandReporter)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(delay time.Duration) Option {
	return func(reporter *CommandReporter) {
		reporter.settleDelay = delay
	}
}

// NewCommandReporter returns a reporter that runs `<statusCommand> status`, or
// `<statusCommand> controller status` for controller clusters. statusCommand is split into
// words the way a shell would, so it may carry leading arguments.
func NewCommandReporter(logger log.Logger, statusCommand string, names *cluster.ReservedNames, writer io.Writer, opts ...Option) *CommandReporter {
	reporter := &CommandReporter{
		logger:        logger,
		statusCommand: statusCommand,
		names:         names,
		writer:        writer,
		settleDelay:   DefaultSettleDelay,
	}

	for _, opt := range opts {
		opt(reporter)
	}

	return reporter
}

func (reporter *CommandReporter) Report(ctx context.Context, clusterName string) error {
	defer reporter.restoreCursor()

	command, err := shellwords.Parse(reporter.statusCommand)
	if err != nil {
		return errors.WithStackTraceAndPrefix(err, "parsing status command %q", reporter.statusCommand)
	}

	if len(command) == 0 {
		return ErrEmptyStatusCommand
	}

	args := []string{"status"}

	if reporter.names.IsController(clusterName) {
		select {
		case <-ctx.Done():
			return errors.New(ctx.Err())
		case <-time.After(reporter.settleDelay):
		}

		args = []string{"controller", "status"}
	}

	cmd := exec.Command(ctx, command[0], append(command[1:], args...)...)
	cmd.Configure(
		exec.WithLogger(reporter.logger),
		exec.WithOutput(reporter.writer, reporter.writer),
	)

	if err := cmd.Run(); err != nil {
		return errors.WithStackTraceAndPrefix(err, "reporting status of %s", clusterName)
	}

	return nil
}

// restoreCursor shows the cursor again if the report went to a terminal.
func (reporter *CommandReporter) restoreCursor() {
	file, ok := reporter.writer.(*os.File)
	if !ok || !(isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())) {
		return
	}

	fmt.Fprint(file, showCursor) //nolint:errcheck
}
