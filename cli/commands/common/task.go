package common

import (
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/task"
	"github.com/urfave/cli/v2"
)

// ErrMissingTaskFile is returned when a task command is run without a task file.
var ErrMissingTaskFile = errors.New("missing task file argument")

// TaskPath returns the task file argument of ctx.
func TaskPath(ctx *cli.Context) (string, error) {
	if !ctx.Args().Present() {
		return "", ErrMissingTaskFile
	}

	if ctx.NArg() > 1 {
		return "", errors.Errorf("expected one task file, got %d arguments: %v", ctx.NArg(), ctx.Args().Slice())
	}

	return ctx.Args().First(), nil
}

// LoadTask parses the task file at path.
func LoadTask(path string) (*task.Dag, error) {
	return task.ParseFile(path)
}
