package main

import (
	"context"
	"os"

	"github.com/gruntwork-io/clusterflow/cli"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/os/signal"
	"github.com/gruntwork-io/clusterflow/options"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// The main entrypoint for clusterflow
func main() {
	opts := options.NewOptions()

	defer errors.Recover(checkForErrorsAndExit(opts.Logger))

	// an interrupt cancels ctx, which is forwarded to running task processes as the same signal
	ctx, stop := signal.NotifyContext(log.ContextWithLogger(context.Background(), opts.Logger))

	err := cli.NewApp(opts).RunContext(ctx, os.Args)

	stop()
	checkForErrorsAndExit(opts.Logger)(err)
}

// If there is an error, display it in the console and exit with a non-zero exit code. Otherwise, exit 0.
func checkForErrorsAndExit(logger log.Logger) func(error) {
	return func(err error) {
		if err == nil {
			os.Exit(0)
		}

		logger.Error(err.Error())

		if errStack := errors.ErrorStack(err); errStack != "" {
			logger.Trace(errStack)
		}

		exitCode, ok := errors.ExitCode(err)
		if !ok || exitCode == 0 {
			exitCode = 1
		}

		os.Exit(exitCode)
	}
}
