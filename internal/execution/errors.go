package execution

import (
	"fmt"

	"github.com/gruntwork-io/clusterflow/internal/errors"
)

// UsageError is a request the pipeline refuses to run. It is reported before any stage runs
// and never triggers a status report.
type UsageError struct {
	Msg string
}

func (err UsageError) Error() string {
	return err.Msg
}

// usageError returns a UsageError that exits the process with code 1.
func usageError(format string, args ...any) error {
	return errors.ErrorWithExitCode{
		Err:      errors.New(UsageError{Msg: fmt.Sprintf(format, args...)}),
		ExitCode: 1,
	}
}

// StageError is a failure raised while running a stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (err StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", err.Stage, err.Err)
}

func (err StageError) Unwrap() error {
	return err.Err
}
