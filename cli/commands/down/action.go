package down

import (
	"context"
	"fmt"

	"github.com/gruntwork-io/clusterflow/cli/commands/common"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/options"
)

// Run tears down every named cluster, continuing past failures and returning them together.
func Run(ctx context.Context, opts *options.Options, names []string) error {
	pipeline, err := common.NewPipeline(ctx, opts)
	if err != nil {
		return err
	}
	defer pipeline.Close() //nolint:errcheck

	errs := &errors.MultiError{}

	for _, name := range names {
		if err := teardown(ctx, pipeline, name); err != nil {
			errs = errs.Append(err)
			continue
		}

		fmt.Fprintf(opts.Writer, "Cluster %s terminated.\n", name) //nolint:errcheck
	}

	return errs.ErrorOrNil()
}

func teardown(ctx context.Context, pipeline *common.Pipeline, name string) error {
	handle, err := pipeline.Registry.GetHandle(ctx, name)
	if err != nil {
		return err
	}

	if handle == nil {
		return errors.Errorf("cluster %q not found", name)
	}

	return pipeline.Backend.Teardown(ctx, handle)
}
